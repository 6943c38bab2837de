package xlform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FieldValue is one value of a row, keyed by header in RowData. A value is
// either a literal as found in the sheet or a computed value that remembers
// the formula it came from.
type FieldValue struct {
	Formula         string // non-empty for computed values
	Value           any    // string, float64, bool or nil
	CalculatedValue any
}

// Literal returns a literal FieldValue.
func Literal(v any) FieldValue {
	return FieldValue{Value: normalizeValue(v)}
}

// Computed returns a computed FieldValue whose value and calculated value
// are both v.
func Computed(formula string, v any) FieldValue {
	v = normalizeValue(v)
	return FieldValue{Formula: formula, Value: v, CalculatedValue: v}
}

// IsComputed reports whether the value came from a formula.
func (v FieldValue) IsComputed() bool {
	return v.Formula != ""
}

// Resolved returns the calculated value of a computed value, or the literal.
func (v FieldValue) Resolved() any {
	if v.IsComputed() {
		return v.CalculatedValue
	}
	return v.Value
}

// HasCalculatedValue reports whether a computed value carries a usable
// result. Literals never do.
func (v FieldValue) HasCalculatedValue() bool {
	if !v.IsComputed() {
		return false
	}
	return !isBlankValue(v.CalculatedValue)
}

type computedJSON struct {
	Formula         string `json:"formula"`
	Value           any    `json:"value"`
	CalculatedValue any    `json:"calculatedValue"`
}

// MarshalJSON writes literals as bare values and computed values as
// {formula, value, calculatedValue}.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.IsComputed() {
		return json.Marshal(computedJSON{Formula: v.Formula, Value: v.Value, CalculatedValue: v.CalculatedValue})
	}
	return json.Marshal(v.Value)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var c computedJSON
		if err := json.Unmarshal(trimmed, &c); err == nil && c.Formula != "" {
			*v = FieldValue{Formula: c.Formula, Value: c.Value, CalculatedValue: c.CalculatedValue}
			return nil
		}
	}
	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	*v = FieldValue{Value: raw}
	return nil
}

// RowEntry is one header → value pair of a RowData.
type RowEntry struct {
	Header string
	Value  FieldValue
}

// RowData is an ordered mapping from header name to value. Column order of
// the source sheet is kept, including when marshalled to JSON.
type RowData []RowEntry

// Get returns the value stored for header.
func (d RowData) Get(header string) (FieldValue, bool) {
	for _, e := range d {
		if e.Header == header {
			return e.Value, true
		}
	}
	return FieldValue{}, false
}

// Set stores v under header, replacing an existing value in place or
// appending a new entry.
func (d *RowData) Set(header string, v FieldValue) {
	for i := range *d {
		if (*d)[i].Header == header {
			(*d)[i].Value = v
			return
		}
	}
	*d = append(*d, RowEntry{Header: header, Value: v})
}

// Headers returns the headers in order.
func (d RowData) Headers() []string {
	headers := make([]string, len(d))
	for i, e := range d {
		headers[i] = e.Header
	}
	return headers
}

// MarshalJSON writes the entries as a JSON object in order.
func (d RowData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Header)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", e.Header, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping its key order.
func (d *RowData) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row data: expected object, got %v", tok)
	}
	var out RowData
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row data: expected key, got %v", tok)
		}
		var v FieldValue
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("row data %q: %w", key, err)
		}
		out = append(out, RowEntry{Header: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

// normalizeValue reduces a cell value to the JSON-stable set
// string, float64, bool and nil.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, float64, bool:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	}
	if n, ok := toNumber(v); ok {
		return n
	}
	return formatValue(v)
}

func isBlankValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	}
	return false
}
