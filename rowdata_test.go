package xlform

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldValue_LiteralAndComputed(t *testing.T) {
	lit := Literal(3)
	assert.False(t, lit.IsComputed())
	assert.Equal(t, 3.0, lit.Resolved())
	assert.False(t, lit.HasCalculatedValue())

	comp := Computed("SUM(A2,B2)", 7)
	assert.True(t, comp.IsComputed())
	assert.Equal(t, 7.0, comp.Resolved())
	assert.True(t, comp.HasCalculatedValue())

	assert.False(t, Computed("A1", nil).HasCalculatedValue())
	assert.False(t, Computed("A1", "").HasCalculatedValue())
}

func TestFieldValue_NormalizesDates(t *testing.T) {
	v := Literal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-01-15T00:00:00Z", v.Value)
}

func TestRowData_SetReplacesInPlace(t *testing.T) {
	d := rowOf("Employee ID", "E001", "Q1", 3, "Total", nil)
	d.Set("Q1", Literal(5))
	d.Set("Bonus", Literal(0.1))

	assert.Equal(t, []string{"Employee ID", "Q1", "Total", "Bonus"}, d.Headers())
	v, ok := d.Get("Q1")
	require.True(t, ok)
	assert.Equal(t, 5.0, v.Value)

	_, ok = d.Get("missing")
	assert.False(t, ok)
}

func TestRowData_JSONKeepsOrderAndShape(t *testing.T) {
	var d RowData
	d.Set("Zeta", Literal("z"))
	d.Set("Alpha", Literal(1.5))
	d.Set("Total", Computed("SUM(A2,B2)", 7.0))

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"Zeta":"z","Alpha":1.5,"Total":{"formula":"SUM(A2,B2)","value":7,"calculatedValue":7}}`,
		string(data))
	assert.Regexp(t, `^\{"Zeta".*"Alpha".*"Total"`, string(data))

	var back RowData
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)
}

func TestRowData_UnmarshalPlainObjectIsLiteral(t *testing.T) {
	var d RowData
	require.NoError(t, json.Unmarshal([]byte(`{"Meta":{"note":"x"}}`), &d))
	v, ok := d.Get("Meta")
	require.True(t, ok)
	assert.False(t, v.IsComputed())
	assert.Equal(t, map[string]any{"note": "x"}, v.Value)
}

func TestRowData_UnmarshalRejectsArray(t *testing.T) {
	var d RowData
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &d))
}

func TestRowData_UnmarshalNull(t *testing.T) {
	d := rowOf("A", 1)
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Nil(t, d)
}
