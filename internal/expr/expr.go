// Package expr evaluates arithmetic formulas over a fixed numeric
// namespace. It supports +, -, *, /, parentheses, numeric literals,
// named variables, and a small function whitelist. Formulas are parsed
// into an AST once and evaluated per row, so a bad formula fails at
// definition time rather than mid-report.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrDivisionByZero is returned when evaluation divides by zero.
// Callers typically render it as a null cell rather than failing the
// whole calculation.
var ErrDivisionByZero = fmt.Errorf("division by zero")

// Expr is a compiled formula.
type Expr struct {
	root node
	src  string
}

// Compile parses a formula. Unknown functions and malformed syntax are
// rejected here; unknown variables are rejected at Eval time so the
// caller controls the namespace.
func Compile(src string) (*Expr, error) {
	p := &parser{tokens: lex(src)}
	root, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", src, err)
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("parsing %q: unexpected token %q", src, p.peek().text)
	}
	return &Expr{root: root, src: src}, nil
}

// Eval evaluates the formula against the given variables.
func (e *Expr) Eval(vars map[string]float64) (float64, error) {
	return e.root.eval(vars)
}

// String returns the original formula source.
func (e *Expr) String() string { return e.src }

// Variables returns the distinct variable names the formula references.
func (e *Expr) Variables() []string {
	seen := map[string]bool{}
	var names []string
	e.root.collectVars(seen, &names)
	return names
}

type node interface {
	eval(vars map[string]float64) (float64, error)
	collectVars(seen map[string]bool, out *[]string)
}

type numberNode float64

func (n numberNode) eval(map[string]float64) (float64, error) { return float64(n), nil }
func (n numberNode) collectVars(map[string]bool, *[]string)   {}

type varNode string

func (n varNode) eval(vars map[string]float64) (float64, error) {
	v, ok := vars[string(n)]
	if !ok {
		return 0, fmt.Errorf("unknown variable %q", string(n))
	}
	return v, nil
}

func (n varNode) collectVars(seen map[string]bool, out *[]string) {
	if !seen[string(n)] {
		seen[string(n)] = true
		*out = append(*out, string(n))
	}
}

type binaryNode struct {
	op          rune
	left, right node
}

func (n *binaryNode) eval(vars map[string]float64) (float64, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return l / r, nil
	}
	return 0, fmt.Errorf("unknown operator %q", n.op)
}

func (n *binaryNode) collectVars(seen map[string]bool, out *[]string) {
	n.left.collectVars(seen, out)
	n.right.collectVars(seen, out)
}

type negNode struct{ child node }

func (n *negNode) eval(vars map[string]float64) (float64, error) {
	v, err := n.child.eval(vars)
	return -v, err
}

func (n *negNode) collectVars(seen map[string]bool, out *[]string) {
	n.child.collectVars(seen, out)
}

type callNode struct {
	name string
	args []node
}

// function whitelist; arity -1 means variadic with at least one arg
var functions = map[string]int{
	"abs":   1,
	"round": 1,
	"sqrt":  1,
	"min":   -1,
	"max":   -1,
}

func (n *callNode) eval(vars map[string]float64) (float64, error) {
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(vars)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	switch n.name {
	case "abs":
		return math.Abs(args[0]), nil
	case "round":
		return math.Round(args[0]), nil
	case "sqrt":
		if args[0] < 0 {
			return 0, fmt.Errorf("sqrt of negative value")
		}
		return math.Sqrt(args[0]), nil
	case "min":
		out := args[0]
		for _, v := range args[1:] {
			out = math.Min(out, v)
		}
		return out, nil
	case "max":
		out := args[0]
		for _, v := range args[1:] {
			out = math.Max(out, v)
		}
		return out, nil
	}
	return 0, fmt.Errorf("unknown function %q", n.name)
}

func (n *callNode) collectVars(seen map[string]bool, out *[]string) {
	for _, a := range n.args {
		a.collectVars(seen, out)
	}
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokEOF
	tokInvalid
)

type token struct {
	kind tokenKind
	text string
}

func lex(src string) []token {
	var tokens []token
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case r == ',':
			tokens = append(tokens, token{tokComma, ","})
			i++
		case strings.ContainsRune("+-*/", r):
			tokens = append(tokens, token{tokOp, string(r)})
			i++
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, token{tokIdent, string(runes[i:j])})
			i = j
		default:
			tokens = append(tokens, token{tokInvalid, string(r)})
			i++
		}
	}
	tokens = append(tokens, token{tokEOF, ""})
	return tokens
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) atEnd() bool { return p.peek().kind == tokEOF }

// parseExpr handles + and - at the lowest precedence.
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: rune(t.text[0]), left: left, right: right}
	}
}

// parseTerm handles * and /.
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: rune(t.text[0]), left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind == tokOp && t.text == "-" {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{child: child}, nil
	}
	if t.kind == tokOp && t.text == "+" {
		p.next()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return numberNode(f), nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t.text)
		}
		return varNode(t.text), nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of formula")
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

func (p *parser) parseCall(name string) (node, error) {
	arity, ok := functions[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	p.next() // consume '('

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if p.next().kind != tokRParen {
		return nil, fmt.Errorf("missing closing parenthesis in %s()", name)
	}

	if arity >= 0 && len(args) != arity {
		return nil, fmt.Errorf("%s() takes %d argument(s), got %d", name, arity, len(args))
	}
	if arity < 0 && len(args) < 1 {
		return nil, fmt.Errorf("%s() needs at least one argument", name)
	}
	return &callNode{name: name, args: args}, nil
}
