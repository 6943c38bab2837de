package xlform

import (
	"fmt"
	"strings"
)

// Describe returns a human-readable tree of a template's structure: the
// header row, column mappings, formulas with their dependencies and the
// editable/protected cell counts. Useful for checking what the extractor
// inferred from a reference workbook.
func Describe(t *TemplateModel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s (version %s)\n", t.TemplateName, t.Version)
	if t.Description != "" {
		fmt.Fprintf(&b, "  %s\n", t.Description)
	}
	if !t.IsActive {
		b.WriteString("  [inactive]\n")
	}

	if t.HeaderRowIndex < 0 {
		b.WriteString("Header row: not detected\n")
	} else {
		fmt.Fprintf(&b, "Header row: %d (data starts at row %d)\n", t.HeaderRowIndex+1, t.DataStartRow+1)
	}

	fmt.Fprintf(&b, "Columns (%d):\n", len(t.ColumnMappings))
	for _, m := range t.ColumnMappings {
		fmt.Fprintf(&b, "  %s  %q", m.ColumnName(), m.HeaderName)
		if m.MappedField != FieldNone {
			fmt.Fprintf(&b, " -> %s", m.MappedField)
		}
		fmt.Fprintf(&b, " [%s]", m.DataType)
		if m.IsRequired {
			b.WriteString(" required")
		}
		b.WriteByte('\n')
	}
	if t.EmployeeFieldMapping.EmployeeIDColumn < 0 {
		b.WriteString("  (no employee id column: uploads will be rejected)\n")
	}

	fmt.Fprintf(&b, "Formulas (%d):\n", len(t.FormulaDefinitions))
	for _, fd := range t.FormulaDefinitions {
		fmt.Fprintf(&b, "  %s  =%s", fd.CellAddress, fd.Formula)
		if len(fd.DependentCells) > 0 {
			fmt.Fprintf(&b, "  <- %s", strings.Join(fd.DependentCells, ", "))
		}
		fmt.Fprintf(&b, " [%s]\n", fd.ResultType)
	}

	md := t.Metadata
	fmt.Fprintf(&b, "Size: %d rows x %d columns\n", md.TotalRows, md.TotalColumns)
	fmt.Fprintf(&b, "Cells: %d input, %d protected\n", len(md.DataInputRanges), len(md.ProtectedRanges))
	return b.String()
}
