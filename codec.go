package xlform

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/xuri/nfp"
)

// Codec converts between workbook bytes and a Grid.
type Codec interface {
	// Decode reads the first sheet of a workbook.
	Decode(r io.Reader) (*Grid, error)
	// Encode writes the grid as a single-sheet workbook, preserving formulas.
	Encode(g *Grid, w io.Writer) error
}

// ExcelizeCodec implements Codec for .xlsx workbooks using excelize.
type ExcelizeCodec struct {
	password     string
	calcOnDecode bool
}

// CodecOption configures an ExcelizeCodec.
type CodecOption func(*ExcelizeCodec)

// WithPassword sets the password used to open encrypted workbooks.
func WithPassword(password string) CodecOption {
	return func(c *ExcelizeCodec) { c.password = password }
}

// WithCalcOnDecode controls whether formula cells that carry no cached result
// are calculated while decoding (default: true).
func WithCalcOnDecode(calc bool) CodecOption {
	return func(c *ExcelizeCodec) { c.calcOnDecode = calc }
}

// NewExcelizeCodec creates an ExcelizeCodec.
func NewExcelizeCodec(opts ...CodecOption) *ExcelizeCodec {
	c := &ExcelizeCodec{calcOnDecode: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode implements Codec.
func (c *ExcelizeCodec) Decode(r io.Reader) (*Grid, error) {
	f, err := excelize.OpenReader(r, excelize.Options{Password: c.password})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSpreadsheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedSpreadsheet)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read rows from sheet %q: %v", ErrMalformedSpreadsheet, sheet, err)
	}

	maxRow, maxCol := len(rows)-1, -1
	for _, row := range rows {
		if len(row)-1 > maxCol {
			maxCol = len(row) - 1
		}
	}
	// Formula cells without a cached value are trimmed by GetRows; the
	// sheet dimension still covers them.
	if dim, err := f.GetSheetDimension(sheet); err == nil {
		if r, c, ok := dimensionEnd(dim); ok {
			maxRow = max(maxRow, r)
			maxCol = max(maxCol, c)
		}
	}

	g := NewGrid(sheet)
	styles := make(map[int]string)
	for r := 0; r <= maxRow; r++ {
		for col := 0; col <= maxCol; col++ {
			raw := ""
			if r < len(rows) && col < len(rows[r]) {
				raw = rows[r][col]
			}
			name := EncodeCellAddress(NewCellRef(r, col))
			formula, _ := f.GetCellFormula(sheet, name)
			if raw == "" && formula == "" {
				continue
			}
			cell := &Cell{Row: r, Col: col, Formula: strings.TrimPrefix(formula, "=")}
			cell.NumberFormat = c.numberFormat(f, sheet, name, styles)
			c.decodeValue(f, sheet, name, raw, cell)
			g.Set(cell)
		}
	}

	if g.IsEmpty() {
		return nil, fmt.Errorf("%w: sheet %q", ErrEmptySpreadsheet, sheet)
	}
	return g, nil
}

// decodeValue fills cell.Value and cell.Type from the raw stored text.
func (c *ExcelizeCodec) decodeValue(f *excelize.File, sheet, name, raw string, cell *Cell) {
	if raw == "" && cell.Formula != "" && c.calcOnDecode {
		if v, err := f.CalcCellValue(sheet, name, excelize.Options{RawCellValue: true}); err == nil {
			raw = v
		}
	}
	if raw == "" {
		cell.Type = ValueBlank
		return
	}

	typ, _ := f.GetCellType(sheet, name)
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		cell.Value, cell.Type = raw, ValueString
		return
	case excelize.CellTypeBool:
		cell.Value, cell.Type = raw == "1" || strings.EqualFold(raw, "TRUE"), ValueBool
		return
	case excelize.CellTypeError:
		cell.Value, cell.Type = raw, ValueError
		return
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			cell.Value, cell.Type = t, ValueDate
			return
		}
		if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
			cell.Value, cell.Type = t, ValueDate
			return
		}
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		cell.Value, cell.Type = raw, ValueString
		return
	}
	if classifyNumberFormat(cell.NumberFormat) == formatDate {
		if t, err := excelize.ExcelDateToTime(n, false); err == nil {
			cell.Value, cell.Type = t, ValueDate
			return
		}
	}
	cell.Value, cell.Type = n, ValueNumber
}

// numberFormat resolves the display format code of a cell through its style.
func (c *ExcelizeCodec) numberFormat(f *excelize.File, sheet, name string, cache map[int]string) string {
	styleID, err := f.GetCellStyle(sheet, name)
	if err != nil || styleID == 0 {
		return ""
	}
	if code, ok := cache[styleID]; ok {
		return code
	}
	code := ""
	if style, err := f.GetStyle(styleID); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			code = *style.CustomNumFmt
		} else {
			code = builtInNumFmt[style.NumFmt]
		}
	}
	cache[styleID] = code
	return code
}

// Encode implements Codec.
func (c *ExcelizeCodec) Encode(g *Grid, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := g.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("rename sheet %q: %w", sheet, err)
		}
	}

	styleCache := make(map[string]int)
	for _, cell := range g.Cells() {
		name := cell.Address()
		// SetCellFormula marks the cell "str" and keeps V as is, so only a
		// numeric cached result survives under a formula.
		if _, numeric := cell.Value.(float64); cell.Value != nil && (cell.Formula == "" || numeric) {
			if err := f.SetCellValue(sheet, name, cell.Value); err != nil {
				return fmt.Errorf("write cell %s: %w", name, err)
			}
		}
		if cell.Formula != "" {
			if err := f.SetCellFormula(sheet, name, cell.Formula); err != nil {
				return fmt.Errorf("write formula %s: %w", name, err)
			}
		}
		if cell.NumberFormat == "" || cell.NumberFormat == "General" {
			continue
		}
		styleID, ok := styleCache[cell.NumberFormat]
		if !ok {
			code := cell.NumberFormat
			id, err := f.NewStyle(&excelize.Style{CustomNumFmt: &code})
			if err != nil {
				return fmt.Errorf("create number format %q: %w", code, err)
			}
			styleID = id
			styleCache[code] = id
		}
		if err := f.SetCellStyle(sheet, name, name, styleID); err != nil {
			return fmt.Errorf("style cell %s: %w", name, err)
		}
	}

	cols := make([]int, 0, len(g.ColumnWidths))
	for col := range g.ColumnWidths {
		cols = append(cols, col)
	}
	sort.Ints(cols)
	for _, col := range cols {
		name := ColumnIndexToLetter(col)
		if err := f.SetColWidth(sheet, name, name, g.ColumnWidths[col]); err != nil {
			return fmt.Errorf("set width of column %s: %w", name, err)
		}
	}

	return f.Write(w)
}

// dimensionEnd returns the 0-based bottom-right corner of a dimension
// reference such as "A1:D20" or "B3".
func dimensionEnd(dim string) (row, col int, ok bool) {
	parts := strings.Split(dim, ":")
	ref, err := ParseCellAddress(strings.ReplaceAll(parts[len(parts)-1], "$", ""))
	if err != nil {
		return 0, 0, false
	}
	return ref.Row, ref.Col, true
}

type formatKind int

const (
	formatGeneral formatKind = iota
	formatPercent
	formatDate
)

// classifyNumberFormat inspects a number format code with nfp and reports
// whether it renders values as percentages or dates.
func classifyNumberFormat(code string) formatKind {
	if code == "" || strings.EqualFold(code, "General") {
		return formatGeneral
	}
	ps := nfp.NumberFormatParser()
	kind := formatGeneral
	for _, section := range ps.Parse(code) {
		for _, tok := range section.Items {
			switch tok.TType {
			case nfp.TokenTypePercent:
				kind = formatPercent
			case nfp.TokenTypeDateTimes, nfp.TokenTypeElapsedDateTimes:
				return formatDate
			}
		}
	}
	return kind
}

// builtInNumFmt maps the built-in number format ids that matter for
// classification to their format codes.
var builtInNumFmt = map[int]string{
	0:  "General",
	1:  "0",
	2:  "0.00",
	3:  "#,##0",
	4:  "#,##0.00",
	9:  "0%",
	10: "0.00%",
	11: "0.00E+00",
	12: "# ?/?",
	13: "# ??/??",
	14: "mm-dd-yy",
	15: "d-mmm-yy",
	16: "d-mmm",
	17: "mmm-yy",
	18: "h:mm AM/PM",
	19: "h:mm:ss AM/PM",
	20: "h:mm",
	21: "h:mm:ss",
	22: "m/d/yy h:mm",
	37: "#,##0 ;(#,##0)",
	38: "#,##0 ;[Red](#,##0)",
	39: "#,##0.00 ;(#,##0.00)",
	40: "#,##0.00 ;[Red](#,##0.00)",
	45: "mm:ss",
	46: "[h]:mm:ss",
	47: "mm:ss.0",
	48: "##0.0E+0",
	49: "@",
}
