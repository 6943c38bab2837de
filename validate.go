package xlform

import "fmt"

// ValidationReport is the outcome of checking an upload against a template.
// Only the employee-id check produces a hard error; everything else is a
// warning and callers decide whether warnings block ingestion.
type ValidationReport struct {
	IsValid     bool     `json:"isValid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	RowCount    int      `json:"rowCount"`
	ColumnCount int      `json:"columnCount"`
}

// Err returns a *ValidationError when the report has hard errors, else nil.
func (r *ValidationReport) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Errors: r.Errors, Warnings: r.Warnings}
}

// ValidateUpload checks the shape and headers of an uploaded grid against
// a template.
func ValidateUpload(t *TemplateModel, g *Grid) *ValidationReport {
	r := &ValidationReport{
		Errors:      []string{},
		Warnings:    []string{},
		ColumnCount: g.MaxCol + 1,
	}

	if t.EmployeeFieldMapping.EmployeeIDColumn < 0 {
		r.Errors = append(r.Errors, "Template does not have an Employee ID column mapping")
	}

	if r.ColumnCount < t.Metadata.TotalColumns {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Uploaded file has fewer columns than template (%d vs %d)",
			r.ColumnCount, t.Metadata.TotalColumns))
	}

	var found []string
	if t.HeaderRowIndex >= 0 {
		for _, c := range g.Row(t.HeaderRowIndex) {
			if text := g.Text(c.Row, c.Col); text != "" {
				found = append(found, text)
			}
		}
	}
	for _, m := range t.ColumnMappings {
		if !containsHeader(found, m.HeaderName) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Expected header %q not found in uploaded file", m.HeaderName))
		}
	}

	start := t.DataStartRow
	if start < 0 {
		start = 1
	}
	r.RowCount = max(g.MaxRow-start+1, 0)
	r.IsValid = len(r.Errors) == 0
	return r
}

func containsHeader(headers []string, want string) bool {
	for _, h := range headers {
		if headersEqual(h, want) {
			return true
		}
	}
	return false
}
