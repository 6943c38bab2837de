package xlform

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// TemplateInfo is the caller-supplied identity of a new template.
type TemplateInfo struct {
	Name        string // base name; a timestamp and random token are appended
	Description string
	CreatedBy   string
}

// Extractor derives a TemplateModel from a decoded reference sheet.
type Extractor struct {
	opts  *Options
	rules *RuleSet
}

// NewExtractor creates an Extractor. It fails only when custom header rules
// do not compile.
func NewExtractor(opts ...Option) (*Extractor, error) {
	o := buildOptions(opts)
	rules, err := o.ruleSet()
	if err != nil {
		return nil, fmt.Errorf("header rules: %w", err)
	}
	return &Extractor{opts: o, rules: rules}, nil
}

// ExtractBytes decodes a workbook and extracts its template. The original
// bytes are kept on the model unless disabled with WithRetainOriginal.
func (e *Extractor) ExtractBytes(data []byte, fileName string, info TemplateInfo) (*TemplateModel, error) {
	g, err := e.opts.codec.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	t, err := e.Extract(g, info)
	if err != nil {
		return nil, err
	}
	if e.opts.retainOriginal {
		t.OriginalFile = &OriginalFile{FileName: fileName, Data: bytes.Clone(data)}
	}
	return t, nil
}

// Extract builds a TemplateModel from a decoded grid in a single pass.
func (e *Extractor) Extract(g *Grid, info TemplateInfo) (*TemplateModel, error) {
	if g.IsEmpty() {
		return nil, ErrEmptySpreadsheet
	}

	headerRow := e.detectHeaderRow(g)
	t := &TemplateModel{
		ID:                   e.opts.newID(),
		TemplateName:         e.templateName(info.Name),
		Description:          info.Description,
		Version:              e.opts.version,
		SheetName:            g.Sheet,
		EmployeeFieldMapping: NewEmployeeFieldMapping(),
		HeaderRowIndex:       headerRow,
		DataStartRow:         -1,
		IsActive:             true,
		CreatedBy:            info.CreatedBy,
		CreatedAt:            e.opts.clock(),
	}
	if t.Description == "" {
		t.Description = e.opts.defaultDescription
	}
	if headerRow >= 0 {
		t.DataStartRow = headerRow + 1
	}

	headers := e.mapColumns(g, t)
	e.classifyCells(g, t, headers)

	t.Metadata.TotalRows = g.MaxRow + 1
	t.Metadata.TotalColumns = g.MaxCol + 1

	e.opts.logger.Debug("template extracted",
		slog.String("template", t.TemplateName),
		slog.Int("headerRow", t.HeaderRowIndex),
		slog.Int("columns", len(t.ColumnMappings)),
		slog.Int("formulas", len(t.FormulaDefinitions)))
	return t, nil
}

// detectHeaderRow returns the row among the first scanned rows holding the
// most literal text cells. Ties go to the lowest row; -1 when no row has any.
func (e *Extractor) detectHeaderRow(g *Grid) int {
	last := min(g.MaxRow, e.opts.headerScanRows)
	best, bestCount := -1, 0
	for r := 0; r <= last; r++ {
		count := 0
		for _, c := range g.Row(r) {
			if c.IsFormula() || c.Type != ValueString {
				continue
			}
			if s, _ := c.Value.(string); strings.TrimSpace(s) != "" {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = r, count
		}
	}
	return best
}

// mapColumns records a ColumnMapping per header cell and fills the employee
// field mapping first-wins, left to right. It returns column → header.
func (e *Extractor) mapColumns(g *Grid, t *TemplateModel) map[int]string {
	headers := make(map[int]string)
	if t.HeaderRowIndex < 0 {
		return headers
	}
	for _, c := range g.Row(t.HeaderRowIndex) {
		if c.IsFormula() {
			continue
		}
		name := g.Text(c.Row, c.Col)
		if name == "" {
			continue
		}
		headers[c.Col] = name

		m := ColumnMapping{ColumnIndex: c.Col, HeaderName: name, DataType: DataString}
		// Later columns of an already mapped field stay unmapped.
		if field, ok := e.rules.Classify(name); ok && t.EmployeeFieldMapping.assign(field, c.Col) {
			m.MappedField = field
			m.IsRequired = field == FieldEmployeeID
		}
		if sample := g.Cell(t.DataStartRow, c.Col); sample != nil {
			m.DataType = inferDataType(sample)
		}
		t.ColumnMappings = append(t.ColumnMappings, m)
	}
	return headers
}

// classifyCells walks every cell once, in row then column order.
func (e *Extractor) classifyCells(g *Grid, t *TemplateModel, headers map[int]string) {
	formulaRows := make(map[int]bool)
	for _, c := range g.Cells() {
		def := CellDefinition{
			Row:          c.Row,
			Col:          c.Col,
			Address:      c.Address(),
			Value:        normalizeValue(c.Value),
			Formula:      c.Formula,
			DataType:     inferDataType(c),
			ColumnHeader: headers[c.Col],
			NumberFormat: c.NumberFormat,
		}

		switch {
		case c.IsFormula():
			def.Type = CellFormula
			def.FormulaDependencies = ExtractReferences(c.Formula)
		case c.Row == t.HeaderRowIndex:
			def.Type = CellHeader
		case isLabel(c):
			def.Type = CellMetadata
		default:
			def.Type = CellData
		}
		def.IsLocked = def.Type != CellData

		if def.Type == CellFormula {
			t.FormulaDefinitions = append(t.FormulaDefinitions, FormulaDefinition{
				CellAddress:    def.Address,
				Row:            c.Row,
				Col:            c.Col,
				Formula:        c.Formula,
				DependentCells: def.FormulaDependencies,
				ResultType:     inferResultType(c),
			})
			t.Metadata.FormulaCells = append(t.Metadata.FormulaCells, def.Address)
			formulaRows[c.Row] = true
		}
		if def.IsLocked {
			t.Metadata.ProtectedRanges = append(t.Metadata.ProtectedRanges, def.Address)
		} else {
			t.Metadata.DataInputRanges = append(t.Metadata.DataInputRanges, def.Address)
		}
		t.SheetStructure = append(t.SheetStructure, def)
	}

	for r := range formulaRows {
		t.Metadata.FormulaRows = append(t.Metadata.FormulaRows, r)
	}
	sort.Ints(t.Metadata.FormulaRows)
}

// templateName appends a creation timestamp and a short random token to
// base so repeated uploads of one template never collide.
func (e *Extractor) templateName(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = e.opts.defaultTemplateName
	}
	// The tail of an id varies even for sequential generators.
	token := strings.ToLower(strings.ReplaceAll(e.opts.newID(), "-", ""))
	if len(token) > 6 {
		token = token[len(token)-6:]
	}
	return fmt.Sprintf("%s-%d-%s", base, e.opts.clock().UnixMilli(), token)
}

// isLabel reports whether a literal looks like a "Name:" label.
func isLabel(c *Cell) bool {
	s, ok := c.Value.(string)
	return ok && strings.Contains(s, ":")
}

func inferDataType(c *Cell) DataType {
	switch {
	case c.IsFormula():
		return DataFormula
	case c.Type == ValueDate:
		return DataDate
	case c.Type == ValueNumber:
		if classifyNumberFormat(c.NumberFormat) == formatPercent {
			return DataPercentage
		}
		return DataNumber
	}
	return DataString
}

func inferResultType(c *Cell) ResultType {
	if classifyNumberFormat(c.NumberFormat) == formatPercent {
		return ResultPercentage
	}
	if c.Type == ValueString {
		return ResultString
	}
	return ResultNumber
}
