package xlform

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// cells maps "A1"-style addresses to values. Strings starting with "=" are
// written as formulas without a cached result.
type cells map[string]any

// newWorkbook builds a single-sheet workbook and returns its bytes.
func newWorkbook(t *testing.T, content cells) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	for addr, v := range content {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "=") {
			require.NoError(t, f.SetCellFormula(sheet, addr, s[1:]))
			continue
		}
		require.NoError(t, f.SetCellValue(sheet, addr, v))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

// decodeWorkbook builds a workbook and decodes it with the default codec.
func decodeWorkbook(t *testing.T, content cells) *Grid {
	t.Helper()
	g, err := NewExcelizeCodec().Decode(bytes.NewReader(newWorkbook(t, content)))
	require.NoError(t, err)
	return g
}

// testClock is a fixed point in time used by deterministic tests.
var testClock = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// sequentialIDs returns a generator producing prefix-1, prefix-2, ...
func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// testOptions fixes the clock and id generator.
func testOptions(extra ...Option) []Option {
	opts := []Option{
		WithClock(func() time.Time { return testClock }),
		WithIDGenerator(sequentialIDs("id")),
	}
	return append(opts, extra...)
}

// scoreTemplate is a reference sheet with an employee id column, two
// inputs and a total formula on the first data row.
//
//	A1: Employee ID  B1: Name   C1: Q1   D1: Q2   E1: Total
//	A2: E001         B2: Alice  C2: 3    D2: 4    E2: =SUM(C2,D2)
func scoreTemplate() cells {
	return cells{
		"A1": "Employee ID", "B1": "Name", "C1": "Q1", "D1": "Q2", "E1": "Total",
		"A2": "E001", "B2": "Alice", "C2": 3, "D2": 4, "E2": "=SUM(C2,D2)",
	}
}

// extractTemplate decodes content and extracts a template from it.
func extractTemplate(t *testing.T, content cells, opts ...Option) *TemplateModel {
	t.Helper()
	e, err := NewExtractor(testOptions(opts...)...)
	require.NoError(t, err)
	tmpl, err := e.Extract(decodeWorkbook(t, content), TemplateInfo{Name: "Scores"})
	require.NoError(t, err)
	return tmpl
}

// rowOf builds literal row data from header/value pairs.
func rowOf(pairs ...any) RowData {
	var d RowData
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(pairs[i].(string), Literal(pairs[i+1]))
	}
	return d
}
