package xlform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules_Classify(t *testing.T) {
	rs := MustRuleSet(DefaultRules())

	tests := []struct {
		header string
		want   Field
	}{
		{"Employee ID", FieldEmployeeID},
		{"  EMPLOYEE NO ", FieldEmployeeID},
		{"Employee Number", FieldEmployeeID},
		{"Name", FieldName},
		{"Employee Name", FieldName},
		{"full name", FieldName},
		{"Email Address", FieldEmail},
		{"E-Mail", FieldEmail},
		{"Job Title", FieldDesignation},
		{"Designation", FieldDesignation},
		{"Dept", FieldDepartment},
		{"Division", FieldDivision},
		{"Work Location", FieldGeography},
		{"Region", FieldGeography},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := rs.Classify(tt.header)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultRules_Unmapped(t *testing.T) {
	rs := MustRuleSet(DefaultRules())
	for _, header := range []string{"", "   ", "Q1 Score", "Bonus %", "Manager"} {
		f, ok := rs.Classify(header)
		assert.False(t, ok, header)
		assert.Equal(t, FieldNone, f)
	}
}

func TestRuleSet_FirstMatchWins(t *testing.T) {
	// "Employee ID Email" satisfies both the id and the email rule.
	rs := MustRuleSet(DefaultRules())
	f, ok := rs.Classify("Employee ID Email")
	require.True(t, ok)
	assert.Equal(t, FieldEmployeeID, f)
}

func TestRuleSet_CustomRuleTakesPrecedence(t *testing.T) {
	rules := append([]HeaderRule{{Field: FieldEmployeeID, Expr: `header == "staff code"`}}, DefaultRules()...)
	rs, err := NewRuleSet(rules)
	require.NoError(t, err)
	assert.True(t, rs.Matches("Staff Code", FieldEmployeeID))
	assert.True(t, rs.Matches("Employee ID", FieldEmployeeID))
	assert.False(t, rs.Matches("Staff Code", FieldName))
}

func TestNewRuleSet_BadExpression(t *testing.T) {
	_, err := NewRuleSet([]HeaderRule{{Field: FieldName, Expr: `header contains`}})
	assert.Error(t, err)

	_, err = NewRuleSet([]HeaderRule{{Field: FieldName, Expr: `len(header)`}})
	assert.Error(t, err, "non-boolean expression")
}

func TestNewRuleSet_UnknownField(t *testing.T) {
	_, err := NewRuleSet([]HeaderRule{{Field: "salary", Expr: `true`}})
	assert.Error(t, err)
}

func TestParseField(t *testing.T) {
	f, err := ParseField("EmployeeId")
	require.NoError(t, err)
	assert.Equal(t, FieldEmployeeID, f)

	_, err = ParseField("salary")
	assert.Error(t, err)
}

func TestHeadersEqual(t *testing.T) {
	assert.True(t, headersEqual(" Employee ID", "employee id "))
	assert.False(t, headersEqual("Employee ID", "Employee"))
}
