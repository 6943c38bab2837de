package xlform

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// CellRef is a zero-based position on a sheet.
type CellRef struct {
	Row int // 0-based row index
	Col int // 0-based column index
}

// NewCellRef creates a CellRef from 0-based row and column.
func NewCellRef(row, col int) CellRef {
	return CellRef{Row: row, Col: col}
}

// String formats the reference as an uppercase "A1"-style address.
func (c CellRef) String() string {
	return EncodeCellAddress(c)
}

// addressPattern is the canonical cell address grammar.
var addressPattern = regexp.MustCompile(`(?i)^([A-Z]+)([0-9]+)$`)

// referencePattern matches cell reference tokens inside formula text.
// Stored FormulaDefinitions were produced with exactly this grammar.
var referencePattern = regexp.MustCompile(`(?i)\$?[A-Z]+\$?[0-9]+`)

// shiftPattern is referencePattern with the anchors and parts captured.
var shiftPattern = regexp.MustCompile(`(?i)(\$?)([A-Z]+)(\$?)([0-9]+)`)

// ParseCellAddress parses "B12" into {Row: 11, Col: 1}. Letters are
// case-insensitive; the row is 1-based in the text.
func ParseCellAddress(text string) (CellRef, error) {
	m := addressPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return CellRef{}, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}
	col, err := ColumnLetterToIndex(m[1])
	if err != nil {
		return CellRef{}, err
	}
	row, err := strconv.Atoi(m[2])
	if err != nil || row < 1 {
		return CellRef{}, fmt.Errorf("%w: invalid row in %q", ErrInvalidAddress, text)
	}
	return NewCellRef(row-1, col), nil
}

// EncodeCellAddress formats a CellRef as "A1". It is the inverse of
// ParseCellAddress.
func EncodeCellAddress(ref CellRef) string {
	return ColumnIndexToLetter(ref.Col) + strconv.Itoa(ref.Row+1)
}

// ColumnIndexToLetter converts a 0-based column index to letters.
// 0→"A", 25→"Z", 26→"AA", 702→"AAA"
func ColumnIndexToLetter(index int) string {
	if index < 0 {
		return ""
	}
	// 14 letters cover math.MaxInt.
	var buf [14]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('A' + index%26)
		index = index/26 - 1 // bijective base-26 has no zero digit
		if index < 0 {
			break
		}
	}
	return string(buf[i:])
}

// ColumnLetterToIndex converts column letters to a 0-based index.
// "A"→0, "Z"→25, "AA"→26. Names beyond math.MaxInt are rejected.
func ColumnLetterToIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("%w: empty column name", ErrInvalidAddress)
	}
	col := -1
	for _, ch := range strings.ToUpper(letters) {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("%w: invalid column name %q", ErrInvalidAddress, letters)
		}
		d := int(ch - 'A')
		if col > (math.MaxInt-d)/26-1 {
			return 0, fmt.Errorf("%w: column name %q out of range", ErrInvalidAddress, letters)
		}
		col = (col+1)*26 + d
	}
	return col, nil
}

// ExtractReferences returns the cell addresses a formula reads, with "$"
// anchors stripped, uppercased, de-duplicated and in first-seen order.
func ExtractReferences(formula string) []string {
	matches := referencePattern.FindAllString(formula, -1)
	seen := make(map[string]bool, len(matches))
	deps := make([]string, 0, len(matches))
	for _, m := range matches {
		addr := strings.ToUpper(strings.ReplaceAll(m, "$", ""))
		if seen[addr] {
			continue
		}
		seen[addr] = true
		deps = append(deps, addr)
	}
	return deps
}

// ShiftFormulaRows moves every relative row reference in formula by delta
// rows. Row-anchored references ("A$2", "$A$2") keep their row. Function
// names that look like references (LOG10) and text inside string literals
// are left untouched.
func ShiftFormulaRows(formula string, delta int) string {
	if delta == 0 {
		return formula
	}
	matches := shiftPattern.FindAllStringSubmatchIndex(formula, -1)
	if len(matches) == 0 {
		return formula
	}
	quoted := quotedSpans(formula)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if !isReferenceToken(formula, start, end, quoted) {
			continue
		}
		rowAnchor := formula[m[6]:m[7]]
		if rowAnchor == "$" {
			continue
		}
		row, err := strconv.Atoi(formula[m[8]:m[9]])
		if err != nil {
			continue
		}
		newRow := row + delta
		if newRow < 1 {
			continue
		}
		b.WriteString(formula[last:start])
		b.WriteString(formula[m[2]:m[3]]) // column anchor
		b.WriteString(formula[m[4]:m[5]]) // column letters
		b.WriteString(strconv.Itoa(newRow))
		last = end
	}
	b.WriteString(formula[last:])
	return b.String()
}

// isReferenceToken reports whether formula[start:end] stands alone as a
// reference rather than being part of an identifier, a function name or a
// quoted string.
func isReferenceToken(formula string, start, end int, quoted [][2]int) bool {
	if start > 0 && isIdentChar(formula[start-1]) {
		return false
	}
	if end < len(formula) && (isIdentChar(formula[end]) || formula[end] == '(') {
		return false
	}
	for _, span := range quoted {
		if start >= span[0] && start < span[1] {
			return false
		}
	}
	return true
}

func isIdentChar(b byte) bool {
	return b == '_' || b == '.' || (b >= '0' && b <= '9') || isAlpha(b)
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// quotedSpans returns the [start, end) offsets of double-quoted literals.
func quotedSpans(formula string) [][2]int {
	var spans [][2]int
	open := -1
	for i := 0; i < len(formula); i++ {
		if formula[i] != '"' {
			continue
		}
		if open < 0 {
			open = i
			continue
		}
		if i+1 < len(formula) && formula[i+1] == '"' {
			i++ // escaped quote
			continue
		}
		spans = append(spans, [2]int{open, i + 1})
		open = -1
	}
	if open >= 0 {
		spans = append(spans, [2]int{open, len(formula)})
	}
	return spans
}
