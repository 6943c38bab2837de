package xlform

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/text/cases"
)

// Field is a semantic employee field a header column can map to.
type Field string

const (
	FieldNone        Field = ""
	FieldEmployeeID  Field = "employeeId"
	FieldName        Field = "name"
	FieldEmail       Field = "email"
	FieldDesignation Field = "designation"
	FieldDepartment  Field = "department"
	FieldDivision    Field = "division"
	FieldGeography   Field = "geography"
)

// Fields lists every mappable field.
var Fields = []Field{
	FieldEmployeeID, FieldName, FieldEmail, FieldDesignation,
	FieldDepartment, FieldDivision, FieldGeography,
}

// ParseField returns the Field named s.
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if strings.EqualFold(string(f), s) {
			return f, nil
		}
	}
	return FieldNone, fmt.Errorf("unknown field %q", s)
}

// HeaderRule maps headers matching Expr to Field. Expr is an expr-lang
// boolean expression over the variable "header", which holds the
// case-folded, trimmed header text.
type HeaderRule struct {
	Field Field
	Expr  string
}

// DefaultRules returns the built-in header classification table. Order
// matters: the first matching rule wins.
func DefaultRules() []HeaderRule {
	return []HeaderRule{
		{FieldEmployeeID, `header contains "employee" && (header contains "id" || header contains "no" || header contains "number")`},
		{FieldName, `header in ["name", "employee name", "full name"]`},
		{FieldEmail, `header contains "email" || header contains "e-mail"`},
		{FieldDesignation, `header contains "designation" || header contains "title" || header contains "position"`},
		{FieldDepartment, `header contains "department" || header contains "dept"`},
		{FieldDivision, `header contains "division"`},
		{FieldGeography, `header contains "geography" || header contains "location" || header contains "region"`},
	}
}

type compiledRule struct {
	field   Field
	program *vm.Program
}

// RuleSet is an ordered, compiled set of header rules.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet compiles rules in order. Custom rules are usually placed ahead
// of DefaultRules so they take precedence.
func NewRuleSet(rules []HeaderRule) (*RuleSet, error) {
	rs := &RuleSet{}
	env := map[string]any{"header": ""}
	for i, r := range rules {
		if _, err := ParseField(string(r.Field)); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		program, err := expr.Compile(r.Expr, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile rule %d (%s) %q: %w", i, r.Field, r.Expr, err)
		}
		rs.rules = append(rs.rules, compiledRule{field: r.Field, program: program})
	}
	return rs, nil
}

// MustRuleSet is like NewRuleSet but panics on a bad rule. It is meant for
// package-level tables.
func MustRuleSet(rules []HeaderRule) *RuleSet {
	rs, err := NewRuleSet(rules)
	if err != nil {
		panic(err)
	}
	return rs
}

var defaultRuleSet = MustRuleSet(DefaultRules())

// Classify returns the field of the first rule matching header.
func (rs *RuleSet) Classify(header string) (Field, bool) {
	h := foldHeader(header)
	if h == "" {
		return FieldNone, false
	}
	env := map[string]any{"header": h}
	for _, r := range rs.rules {
		out, err := expr.Run(r.program, env)
		if err != nil {
			continue
		}
		if ok, _ := out.(bool); ok {
			return r.field, true
		}
	}
	return FieldNone, false
}

// Matches reports whether header classifies as field.
func (rs *RuleSet) Matches(header string, field Field) bool {
	f, ok := rs.Classify(header)
	return ok && f == field
}

// foldHeader trims and case-folds header text. A Caser is stateful, so
// each call gets its own.
func foldHeader(header string) string {
	return strings.TrimSpace(cases.Fold().String(header))
}

// headersEqual compares two headers case-insensitively after trimming.
func headersEqual(a, b string) bool {
	return foldHeader(a) == foldHeader(b)
}
