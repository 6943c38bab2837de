package xlform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueType is the kind of value a decoded cell holds.
type ValueType int

const (
	ValueBlank ValueType = iota
	ValueString
	ValueNumber
	ValueBool
	ValueDate
	ValueError
)

// String returns a human-readable name for the ValueType.
func (vt ValueType) String() string {
	switch vt {
	case ValueBlank:
		return "Blank"
	case ValueString:
		return "String"
	case ValueNumber:
		return "Number"
	case ValueBool:
		return "Boolean"
	case ValueDate:
		return "Date"
	case ValueError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Cell is one decoded spreadsheet cell.
type Cell struct {
	Row          int       // 0-based row index
	Col          int       // 0-based column index
	Value        any       // string, float64, bool, time.Time or nil
	Formula      string    // formula text without leading "=", empty for literals
	NumberFormat string    // display format code, empty for General
	Type         ValueType // type of Value
}

// Address returns the canonical "A1" address of the cell.
func (c *Cell) Address() string {
	return EncodeCellAddress(NewCellRef(c.Row, c.Col))
}

// IsEmpty reports whether the cell has neither a value nor a formula.
func (c *Cell) IsEmpty() bool {
	if c == nil {
		return true
	}
	if c.Formula != "" {
		return false
	}
	switch v := c.Value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

// IsFormula reports whether the cell carries a formula.
func (c *Cell) IsFormula() bool {
	return c != nil && c.Formula != ""
}

// Grid is the decoded content of one sheet: a sparse set of cells plus the
// rectangular bound that encloses them.
type Grid struct {
	Sheet        string
	MinRow       int
	MaxRow       int
	MinCol       int
	MaxCol       int
	ColumnWidths map[int]float64 // used by Encode only

	rows map[int]map[int]*Cell
}

// NewGrid creates an empty grid for the named sheet.
func NewGrid(sheet string) *Grid {
	return &Grid{
		Sheet:  sheet,
		MinRow: -1, MaxRow: -1, MinCol: -1, MaxCol: -1,
		rows: make(map[int]map[int]*Cell),
	}
}

// Set stores a cell, replacing any previous cell at the same position, and
// widens the bound. Empty cells are ignored.
func (g *Grid) Set(c *Cell) {
	if c.IsEmpty() {
		return
	}
	if g.rows == nil {
		g.rows = make(map[int]map[int]*Cell)
	}
	row, ok := g.rows[c.Row]
	if !ok {
		row = make(map[int]*Cell)
		g.rows[c.Row] = row
	}
	row[c.Col] = c
	if g.MinRow < 0 || c.Row < g.MinRow {
		g.MinRow = c.Row
	}
	if c.Row > g.MaxRow {
		g.MaxRow = c.Row
	}
	if g.MinCol < 0 || c.Col < g.MinCol {
		g.MinCol = c.Col
	}
	if c.Col > g.MaxCol {
		g.MaxCol = c.Col
	}
}

// SetValue is a convenience for Set with a literal value.
func (g *Grid) SetValue(row, col int, value any) {
	g.Set(&Cell{Row: row, Col: col, Value: value, Type: valueTypeOf(value)})
}

// SetFormula is a convenience for Set with a formula and its cached value.
func (g *Grid) SetFormula(row, col int, formula string, cached any) {
	g.Set(&Cell{Row: row, Col: col, Formula: strings.TrimPrefix(formula, "="), Value: cached, Type: valueTypeOf(cached)})
}

// Cell returns the cell at (row, col) or nil.
func (g *Grid) Cell(row, col int) *Cell {
	if g == nil || g.rows == nil {
		return nil
	}
	return g.rows[row][col]
}

// Row returns the cells of one row ordered by column.
func (g *Grid) Row(row int) []*Cell {
	cells := make([]*Cell, 0, len(g.rows[row]))
	for _, c := range g.rows[row] {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Col < cells[j].Col })
	return cells
}

// RowIsEmpty reports whether every cell of the row is empty.
func (g *Grid) RowIsEmpty(row int) bool {
	for _, c := range g.rows[row] {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Cells returns all cells in row, then column order.
func (g *Grid) Cells() []*Cell {
	var cells []*Cell
	for _, row := range g.rows {
		for _, c := range row {
			cells = append(cells, c)
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	return cells
}

// Len returns the number of non-empty cells.
func (g *Grid) Len() int {
	n := 0
	for _, row := range g.rows {
		n += len(row)
	}
	return n
}

// IsEmpty reports whether the grid holds no cells.
func (g *Grid) IsEmpty() bool {
	return g == nil || g.Len() == 0
}

// Text returns the trimmed display text of a cell, or "" when absent.
func (g *Grid) Text(row, col int) string {
	c := g.Cell(row, col)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(formatValue(c.Value))
}

// valueTypeOf infers the ValueType of a Go value.
func valueTypeOf(v any) ValueType {
	switch v.(type) {
	case nil:
		return ValueBlank
	case string:
		return ValueString
	case bool:
		return ValueBool
	case time.Time:
		return ValueDate
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return ValueNumber
	default:
		return ValueString
	}
}

// formatValue renders a cell value as text.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format(time.RFC3339)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toNumber coerces a cell value to a float64. Text is parsed leniently;
// anything else that is not numeric reports false.
func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
