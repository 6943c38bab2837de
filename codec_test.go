package xlform

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExcelizeCodec_DecodeValues(t *testing.T) {
	g := decodeWorkbook(t, cells{
		"A1": "Employee ID", "B1": "Score", "C1": "Active",
		"A2": "E001", "B2": 4.5, "C2": true,
	})

	assert.Equal(t, "Sheet1", g.Sheet)
	assert.Equal(t, 0, g.MinRow)
	assert.Equal(t, 1, g.MaxRow)
	assert.Equal(t, 2, g.MaxCol)

	assert.Equal(t, "Employee ID", g.Cell(0, 0).Value)
	assert.Equal(t, ValueString, g.Cell(0, 0).Type)
	assert.Equal(t, 4.5, g.Cell(1, 1).Value)
	assert.Equal(t, ValueNumber, g.Cell(1, 1).Type)
	assert.Equal(t, true, g.Cell(1, 2).Value)
	assert.Equal(t, ValueBool, g.Cell(1, 2).Type)
}

func TestExcelizeCodec_DecodeFormulaWithoutCachedValue(t *testing.T) {
	g := decodeWorkbook(t, cells{"A2": 3, "B2": 4, "C2": "=SUM(A2,B2)"})

	c := g.Cell(1, 2)
	require.NotNil(t, c)
	assert.Equal(t, "SUM(A2,B2)", c.Formula)
	assert.Equal(t, 7.0, c.Value)
	assert.True(t, c.IsFormula())
}

func TestExcelizeCodec_DecodeFormulaWithoutCalc(t *testing.T) {
	data := newWorkbook(t, cells{"A2": 3, "B2": 4, "C2": "=SUM(A2,B2)"})
	g, err := NewExcelizeCodec(WithCalcOnDecode(false)).Decode(bytes.NewReader(data))
	require.NoError(t, err)

	c := g.Cell(1, 2)
	require.NotNil(t, c)
	assert.Equal(t, "SUM(A2,B2)", c.Formula)
	assert.Nil(t, c.Value)
	assert.Equal(t, 2, g.MaxCol)
}

func TestExcelizeCodec_DecodeDateAndPercent(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", 0.25))
	pct, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "B1", "B1", pct))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	g, err := NewExcelizeCodec().Decode(&buf)
	require.NoError(t, err)

	date := g.Cell(0, 0)
	require.NotNil(t, date)
	assert.Equal(t, ValueDate, date.Type)
	tm, ok := date.Value.(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2024, tm.Year())
	assert.Equal(t, time.January, tm.Month())
	assert.Equal(t, 15, tm.Day())

	p := g.Cell(0, 1)
	require.NotNil(t, p)
	assert.Equal(t, 0.25, p.Value)
	assert.Equal(t, "0.00%", p.NumberFormat)
	assert.Equal(t, DataPercentage, inferDataType(p))
}

func TestExcelizeCodec_DecodeEmpty(t *testing.T) {
	_, err := NewExcelizeCodec().Decode(bytes.NewReader(newWorkbook(t, cells{})))
	assert.ErrorIs(t, err, ErrEmptySpreadsheet)
}

func TestExcelizeCodec_DecodeMalformed(t *testing.T) {
	_, err := NewExcelizeCodec().Decode(bytes.NewReader([]byte("not a workbook")))
	assert.ErrorIs(t, err, ErrMalformedSpreadsheet)
}

func TestExcelizeCodec_EncodeRoundTrip(t *testing.T) {
	g := NewGrid("PMS Data")
	g.SetValue(0, 0, "Employee ID")
	g.SetValue(0, 1, "Q1")
	g.SetValue(0, 2, "Total")
	g.SetValue(1, 0, "E001")
	g.SetValue(1, 1, 5.0)
	g.SetFormula(1, 2, "=B2*2", 10.0)
	g.Set(&Cell{Row: 2, Col: 1, Value: 0.5, NumberFormat: "0%", Type: ValueNumber})
	g.ColumnWidths = map[int]float64{0: 14}

	var buf bytes.Buffer
	require.NoError(t, NewExcelizeCodec().Encode(g, &buf))

	back, err := NewExcelizeCodec().Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "PMS Data", back.Sheet)
	assert.Equal(t, "Employee ID", back.Cell(0, 0).Value)
	assert.Equal(t, 5.0, back.Cell(1, 1).Value)

	total := back.Cell(1, 2)
	require.NotNil(t, total)
	assert.Equal(t, "B2*2", total.Formula)
	assert.Equal(t, 10.0, total.Value)

	pct := back.Cell(2, 1)
	require.NotNil(t, pct)
	assert.Equal(t, "0%", pct.NumberFormat)
	assert.Equal(t, formatPercent, classifyNumberFormat(pct.NumberFormat))
}

func TestClassifyNumberFormat(t *testing.T) {
	assert.Equal(t, formatGeneral, classifyNumberFormat(""))
	assert.Equal(t, formatGeneral, classifyNumberFormat("General"))
	assert.Equal(t, formatGeneral, classifyNumberFormat("#,##0.00"))
	assert.Equal(t, formatPercent, classifyNumberFormat("0.0%"))
	assert.Equal(t, formatDate, classifyNumberFormat("yyyy-mm-dd"))
	assert.Equal(t, formatDate, classifyNumberFormat("[h]:mm:ss"))
}

func TestDimensionEnd(t *testing.T) {
	r, c, ok := dimensionEnd("A1:D20")
	require.True(t, ok)
	assert.Equal(t, 19, r)
	assert.Equal(t, 3, c)

	r, c, ok = dimensionEnd("$B$3")
	require.True(t, ok)
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, c)

	_, _, ok = dimensionEnd("")
	assert.False(t, ok)
}
