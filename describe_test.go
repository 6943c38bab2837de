package xlform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe_ScoreTemplate(t *testing.T) {
	tmpl := extractTemplate(t, scoreTemplate())
	out := Describe(tmpl)

	assert.Contains(t, out, "Template: "+tmpl.TemplateName+" (version 1.0.0)")
	assert.Contains(t, out, "  Performance Management System Header Template\n")
	assert.Contains(t, out, "Header row: 1 (data starts at row 2)")
	assert.Contains(t, out, "Columns (5):")
	assert.Contains(t, out, `  A  "Employee ID" -> employeeId [string] required`)
	assert.Contains(t, out, `  B  "Name" -> name [string]`)
	assert.Contains(t, out, `  C  "Q1" [number]`)
	assert.Contains(t, out, `  E  "Total" [formula]`)
	assert.Contains(t, out, "Formulas (1):")
	assert.Contains(t, out, "  E2  =SUM(C2,D2)  <- C2, D2 [number]")
	assert.Contains(t, out, "Size: 2 rows x 5 columns")
	assert.Contains(t, out, "Cells: 4 input, 6 protected")
	assert.NotContains(t, out, "[inactive]")
	assert.NotContains(t, out, "no employee id column")
}

func TestDescribe_NoHeaderInactive(t *testing.T) {
	tmpl := extractTemplate(t, cells{"A1": 1, "B1": "=A1*2"})
	tmpl.IsActive = false
	out := Describe(tmpl)

	assert.Contains(t, out, "  [inactive]\n")
	assert.Contains(t, out, "Header row: not detected")
	assert.Contains(t, out, "Columns (0):")
	assert.Contains(t, out, "(no employee id column: uploads will be rejected)")
	assert.Contains(t, out, "  B1  =A1*2  <- A1 [number]")
}
