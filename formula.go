package xlform

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/efp"
)

// FormulaEngine evaluates the small formula language used by template
// formula columns against one row of uploaded data.
//
// Supported: numbers, TRUE/FALSE, quoted text, cell references, the
// operators + - * / ^ % and = <> < > <= >=, parentheses, and the functions
// SUM, AVERAGE and IF. A reference resolves to the value of its column in
// the current row; its row part is ignored. Unmapped or non-numeric values
// read as 0.
type FormulaEngine struct {
	logger *slog.Logger
}

// NewFormulaEngine creates a FormulaEngine.
func NewFormulaEngine(opts ...Option) *FormulaEngine {
	o := buildOptions(opts)
	return &FormulaEngine{logger: o.logger}
}

// Evaluate computes formula for one row and never panics. A formula that
// cannot be evaluated yields (0, false) and a debug log record.
// columns maps column index to header name; row is the 1-based sheet row
// and is used for diagnostics only.
func (fe *FormulaEngine) Evaluate(formula string, raw RowData, columns map[int]string, row int) (float64, bool) {
	v, err := fe.Compute(formula, raw, columns, row)
	if err != nil {
		fe.logger.Debug("formula not evaluated",
			slog.String("formula", formula),
			slog.Int("row", row),
			slog.String("error", err.Error()))
		return 0, false
	}
	return v, true
}

// Compute is Evaluate returning the failure. Errors are *FormulaError
// wrapping ErrFormulaEvaluation.
func (fe *FormulaEngine) Compute(formula string, raw RowData, columns map[int]string, row int) (result float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = 0, &FormulaError{Formula: formula, Row: row, Err: fmt.Errorf("%w: %v", ErrFormulaEvaluation, r)}
		}
	}()

	n, err := parseFormula(formula)
	if err == nil {
		ctx := &evalContext{raw: raw, columns: columns}
		result, err = n.eval(ctx)
	}
	if err == nil && (math.IsNaN(result) || math.IsInf(result, 0)) {
		err = fmt.Errorf("%w: result is not a number", ErrFormulaEvaluation)
	}
	if err != nil {
		if !errors.Is(err, ErrFormulaEvaluation) {
			err = fmt.Errorf("%w: %v", ErrFormulaEvaluation, err)
		}
		return 0, &FormulaError{Formula: formula, Row: row, Err: err}
	}
	return result, nil
}

// tokenize splits formula text with the efp tokenizer, dropping whitespace
// and the leading "=".
func tokenize(formula string) []efp.Token {
	ps := efp.ExcelParser()
	var out []efp.Token
	for _, tok := range ps.Parse(strings.TrimPrefix(strings.TrimSpace(formula), "=")) {
		switch tok.TType {
		case efp.TokenTypeWhitespace, efp.TokenTypeNoop:
			continue
		case efp.TokenTypeOperatorInfix:
			if len(out) == 0 && tok.TValue == "=" {
				continue
			}
		}
		out = append(out, tok)
	}
	return out
}

func parseFormula(formula string) (node, error) {
	tokens := tokenize(formula)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty formula", ErrFormulaEvaluation)
	}
	return parseTokens(tokens)
}

func parseTokens(tokens []efp.Token) (node, error) {
	p := &formulaParser{tokens: tokens}
	n, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("%w: unexpected %q", ErrFormulaEvaluation, p.peek().TValue)
	}
	return n, nil
}

// formulaParser is a recursive-descent parser over efp tokens.
//
//	comparison := additive (("=" | "<>" | "<" | ">" | "<=" | ">=") additive)*
//	additive   := term (("+" | "-") term)*
//	term       := power (("*" | "/") power)*
//	power      := unary ("^" unary)*
//	unary      := "-" unary | postfix
//	postfix    := primary "%"*
//	primary    := number | bool | text | reference | "(" comparison ")" | call
type formulaParser struct {
	tokens []efp.Token
	pos    int
}

func (p *formulaParser) eof() bool { return p.pos >= len(p.tokens) }

func (p *formulaParser) peek() efp.Token {
	if p.eof() {
		return efp.Token{}
	}
	return p.tokens[p.pos]
}

func (p *formulaParser) infix(ops ...string) (string, bool) {
	t := p.peek()
	if t.TType != efp.TokenTypeOperatorInfix {
		return "", false
	}
	for _, op := range ops {
		if t.TValue == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *formulaParser) parseComparison() (node, error) {
	return p.binary(p.parseAdditive, "=", "<>", "<", ">", "<=", ">=")
}

func (p *formulaParser) parseAdditive() (node, error) {
	return p.binary(p.parseTerm, "+", "-")
}

func (p *formulaParser) parseTerm() (node, error) {
	return p.binary(p.parsePower, "*", "/")
}

func (p *formulaParser) parsePower() (node, error) {
	return p.binary(p.parseUnary, "^")
}

func (p *formulaParser) binary(next func() (node, error), ops ...string) (node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.infix(ops...)
		if !ok {
			return left, nil
		}
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseUnary() (node, error) {
	t := p.peek()
	if t.TType == efp.TokenTypeOperatorPrefix && t.TValue == "-" {
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negateNode{x: x}, nil
	}
	return p.parsePostfix()
}

func (p *formulaParser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().TType == efp.TokenTypeOperatorPostfix && p.peek().TValue == "%" {
		p.pos++
		n = percentNode{x: n}
	}
	return n, nil
}

func (p *formulaParser) parsePrimary() (node, error) {
	if p.eof() {
		return nil, fmt.Errorf("%w: unexpected end of formula", ErrFormulaEvaluation)
	}
	t := p.peek()
	switch t.TType {
	case efp.TokenTypeOperand:
		p.pos++
		return operandNode(t)
	case efp.TokenTypeSubexpression:
		if t.TSubType != efp.TokenSubTypeStart {
			break
		}
		p.pos++
		n, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if end := p.peek(); end.TType != efp.TokenTypeSubexpression || end.TSubType != efp.TokenSubTypeStop {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrFormulaEvaluation)
		}
		p.pos++
		return n, nil
	case efp.TokenTypeFunction:
		if t.TSubType != efp.TokenSubTypeStart {
			break
		}
		return p.parseCall()
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrFormulaEvaluation, t.TValue)
}

// parseCall parses a function call. Each argument is parsed on its own so a
// malformed argument only poisons itself.
func (p *formulaParser) parseCall() (node, error) {
	name := strings.ToUpper(p.peek().TValue)
	p.pos++

	var args [][]efp.Token
	start, depth := p.pos, 0
	for ; p.pos < len(p.tokens); p.pos++ {
		t := p.tokens[p.pos]
		switch {
		case isGroup(t) && t.TSubType == efp.TokenSubTypeStart:
			depth++
		case isGroup(t) && t.TSubType == efp.TokenSubTypeStop:
			if depth > 0 {
				depth--
				continue
			}
			if t.TType != efp.TokenTypeFunction {
				return nil, fmt.Errorf("%w: unbalanced parentheses in %s", ErrFormulaEvaluation, name)
			}
			if p.pos > start || len(args) > 0 {
				args = append(args, p.tokens[start:p.pos])
			}
			p.pos++
			return newCallNode(name, args), nil
		case t.TType == efp.TokenTypeArgument && depth == 0:
			args = append(args, p.tokens[start:p.pos])
			start = p.pos + 1
		}
	}
	return nil, fmt.Errorf("%w: missing closing parenthesis in %s", ErrFormulaEvaluation, name)
}

func isGroup(t efp.Token) bool {
	return t.TType == efp.TokenTypeFunction || t.TType == efp.TokenTypeSubexpression
}

func newCallNode(name string, args [][]efp.Token) node {
	call := callNode{name: name}
	for _, toks := range args {
		if len(toks) == 1 && toks[0].TType == efp.TokenTypeOperand && strings.Contains(toks[0].TValue, ":") {
			if r, err := parseRange(toks[0].TValue); err == nil {
				call.args = append(call.args, r)
				continue
			}
		}
		if len(toks) == 0 {
			call.args = append(call.args, errNode{err: fmt.Errorf("%w: empty argument to %s", ErrFormulaEvaluation, name)})
			continue
		}
		n, err := parseTokens(toks)
		if err != nil {
			n = errNode{err: err}
		}
		call.args = append(call.args, n)
	}
	return call
}

func operandNode(t efp.Token) (node, error) {
	switch t.TSubType {
	case efp.TokenSubTypeNumber:
		v, err := strconv.ParseFloat(t.TValue, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrFormulaEvaluation, t.TValue)
		}
		return numberNode(v), nil
	case efp.TokenSubTypeLogical:
		return boolNode(t.TValue), nil
	case efp.TokenSubTypeText:
		return textNode(t.TValue), nil
	case efp.TokenSubTypeError:
		return nil, fmt.Errorf("%w: error value %s", ErrFormulaEvaluation, t.TValue)
	}

	text := strings.TrimSpace(t.TValue)
	switch strings.ToUpper(text) {
	case "TRUE", "FALSE":
		return boolNode(text), nil
	}
	if strings.Contains(text, "!") {
		return nil, fmt.Errorf("%w: cross-sheet reference %q", ErrFormulaEvaluation, text)
	}
	if strings.Contains(text, ":") {
		return nil, fmt.Errorf("%w: range %q outside SUM or AVERAGE", ErrFormulaEvaluation, text)
	}
	ref, err := ParseCellAddress(strings.ReplaceAll(text, "$", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: unknown name %q", ErrFormulaEvaluation, text)
	}
	return refNode{col: ref.Col}, nil
}

func parseRange(text string) (rangeNode, error) {
	from, to, ok := strings.Cut(strings.ReplaceAll(text, "$", ""), ":")
	if !ok {
		return rangeNode{}, fmt.Errorf("%w: bad range %q", ErrFormulaEvaluation, text)
	}
	a, err := ParseCellAddress(from)
	if err != nil {
		return rangeNode{}, err
	}
	b, err := ParseCellAddress(to)
	if err != nil {
		return rangeNode{}, err
	}
	return rangeNode{from: min(a.Col, b.Col), to: max(a.Col, b.Col)}, nil
}

// evalContext is the row a formula is evaluated against.
type evalContext struct {
	raw     RowData
	columns map[int]string
}

// value reads a column of the current row as a number, 0 when unmapped,
// absent or non-numeric.
func (c *evalContext) value(col int) float64 {
	header, ok := c.columns[col]
	if !ok {
		return 0
	}
	fv, ok := c.raw.Get(header)
	if !ok {
		return 0
	}
	n, ok := toNumber(fv.Resolved())
	if !ok || math.IsNaN(n) {
		return 0
	}
	return n
}

type node interface {
	eval(ctx *evalContext) (float64, error)
}

type numberNode float64

func (n numberNode) eval(*evalContext) (float64, error) { return float64(n), nil }

func boolNode(s string) node {
	if strings.EqualFold(s, "TRUE") {
		return numberNode(1)
	}
	return numberNode(0)
}

// textNode is a quoted literal. Text that reads as a number is that number;
// other text is NaN, so comparisons with it are false (except "<>") and
// arithmetic on it fails.
type textNode string

func (n textNode) eval(*evalContext) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	if err != nil {
		return math.NaN(), nil
	}
	return v, nil
}

type refNode struct{ col int }

func (n refNode) eval(ctx *evalContext) (float64, error) { return ctx.value(n.col), nil }

// rangeNode spans columns from..to of the current row.
type rangeNode struct{ from, to int }

func (n rangeNode) eval(*evalContext) (float64, error) {
	return 0, fmt.Errorf("%w: range outside SUM or AVERAGE", ErrFormulaEvaluation)
}

func (n rangeNode) values(ctx *evalContext) []float64 {
	vals := make([]float64, 0, n.to-n.from+1)
	for col := n.from; col <= n.to; col++ {
		vals = append(vals, ctx.value(col))
	}
	return vals
}

type errNode struct{ err error }

func (n errNode) eval(*evalContext) (float64, error) { return 0, n.err }

type negateNode struct{ x node }

func (n negateNode) eval(ctx *evalContext) (float64, error) {
	v, err := n.x.eval(ctx)
	return -v, err
}

type percentNode struct{ x node }

func (n percentNode) eval(ctx *evalContext) (float64, error) {
	v, err := n.x.eval(ctx)
	return v / 100, err
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval(ctx *evalContext) (float64, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, fmt.Errorf("%w: division by zero", ErrFormulaEvaluation)
		}
		return l / r, nil
	case "^":
		return math.Pow(l, r), nil
	case "=":
		return truth(l == r), nil
	case "<>":
		return truth(l != r), nil
	case "<":
		return truth(l < r), nil
	case ">":
		return truth(l > r), nil
	case "<=":
		return truth(l <= r), nil
	case ">=":
		return truth(l >= r), nil
	}
	return 0, fmt.Errorf("%w: unsupported operator %q", ErrFormulaEvaluation, n.op)
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

type callNode struct {
	name string
	args []node
}

func (n callNode) eval(ctx *evalContext) (float64, error) {
	switch n.name {
	case "SUM":
		sum := 0.0
		for _, v := range n.argValues(ctx) {
			sum += v
		}
		return sum, nil
	case "AVERAGE":
		vals := n.argValues(ctx)
		if len(vals) == 0 {
			return 0, fmt.Errorf("%w: AVERAGE of no values", ErrFormulaEvaluation)
		}
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals)), nil
	case "IF":
		return n.evalIf(ctx), nil
	}
	return 0, fmt.Errorf("%w: unsupported function %s", ErrFormulaEvaluation, n.name)
}

// argValues flattens the arguments of SUM and AVERAGE. Ranges contribute
// one value per column; a failing or non-numeric argument counts as 0.
func (n callNode) argValues(ctx *evalContext) []float64 {
	var vals []float64
	for _, arg := range n.args {
		if r, ok := arg.(rangeNode); ok {
			vals = append(vals, r.values(ctx)...)
			continue
		}
		v, err := arg.eval(ctx)
		if err != nil || math.IsNaN(v) {
			v = 0
		}
		vals = append(vals, v)
	}
	return vals
}

// evalIf selects a branch by the condition. Any failure inside yields 0.
// A non-numeric text branch evaluates to NaN, not a failure, so it fails
// the whole formula and leaves the cell without a computed value.
func (n callNode) evalIf(ctx *evalContext) float64 {
	if len(n.args) < 2 || len(n.args) > 3 {
		return 0
	}
	cond, err := n.args[0].eval(ctx)
	if err != nil || math.IsNaN(cond) {
		return 0
	}
	branch := 1
	if cond == 0 {
		branch = 2
	}
	if branch >= len(n.args) {
		return 0
	}
	v, err := n.args[branch].eval(ctx)
	if err != nil {
		return 0
	}
	return v
}
