package convert

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Formula is a compiled conversion expression over the single variable
// `value`. The grammar is closed on purpose: numeric literals, + - * /,
// unary minus, parentheses and a fixed function table. Anything else is
// rejected at parse time rather than filtered by pattern matching.
type Formula struct {
	root node
	src  string
}

func (f *Formula) String() string { return f.src }

// Eval computes the formula. Division by zero and non-finite results are
// reported as errors so callers can fall back to the unconverted input.
func (f *Formula) Eval(value float64) (float64, error) {
	out, err := f.root.eval(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("formula: non-finite result")
	}
	return out, nil
}

// Parse compiles src, rejecting anything outside the grammar.
func Parse(src string) (*Formula, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("formula: unexpected %q", p.peek().text)
	}
	return &Formula{root: root, src: src}, nil
}

type node interface {
	eval(value float64) (float64, error)
}

type numNode float64

func (n numNode) eval(float64) (float64, error) { return float64(n), nil }

type valueNode struct{}

func (valueNode) eval(value float64) (float64, error) { return value, nil }

type negNode struct{ x node }

func (n negNode) eval(value float64) (float64, error) {
	x, err := n.x.eval(value)
	return -x, err
}

type binNode struct {
	op   byte
	l, r node
}

func (n binNode) eval(value float64) (float64, error) {
	l, err := n.l.eval(value)
	if err != nil {
		return 0, err
	}
	r, err := n.r.eval(value)
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
			return 0, fmt.Errorf("formula: division by zero")
		}
		return l / r, nil
	}
	return 0, fmt.Errorf("formula: bad operator %q", n.op)
}

type callNode struct {
	name string
	args []node
}

func (n callNode) eval(value float64) (float64, error) {
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		x, err := a.eval(value)
		if err != nil {
			return 0, err
		}
		args[i] = x
	}
	switch n.name {
	case "abs":
		return math.Abs(args[0]), nil
	case "round":
		return math.Round(args[0]), nil
	case "pow":
		return math.Pow(args[0], args[1]), nil
	case "min":
		return math.Min(args[0], args[1]), nil
	case "max":
		return math.Max(args[0], args[1]), nil
	}
	return 0, fmt.Errorf("formula: bad function %q", n.name)
}

// arity of the allowed functions; membership in this table is the whole
// function allow-list.
var funcArity = map[string]int{
	"abs":   1,
	"round": 1,
	"pow":   2,
	"min":   2,
	"max":   2,
}

type tokKind uint8

const (
	tokNum tokKind = iota
	tokIdent
	tokOp // one of + - * / ( ) ,
	tokEOF
)

type token struct {
	kind tokKind
	text string
	num  float64
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '(' || c == ')' || c == ',':
			toks = append(toks, token{kind: tokOp, text: string(c)})
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("formula: bad number %q", src[i:j])
			}
			toks = append(toks, token{kind: tokNum, text: src[i:j], num: n})
			i = j
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
			j := i
			for j < len(src) && (src[j] >= 'a' && src[j] <= 'z' || src[j] >= 'A' && src[j] <= 'Z' ||
				src[j] >= '0' && src[j] <= '9' || src[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: strings.ToLower(src[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("formula: bad character %q", c)
		}
	}
	return append(toks, token{kind: tokEOF}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) eof() bool   { return p.peek().kind == tokEOF }

func (p *parser) expect(text string) error {
	t := p.next()
	if t.kind != tokOp || t.text != text {
		return fmt.Errorf("formula: expected %q got %q", text, t.text)
	}
	return nil
}

func (p *parser) parseExpr() (node, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return l, nil
		}
		p.next()
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = binNode{op: t.text[0], l: l, r: r}
	}
}

func (p *parser) parseTerm() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return l, nil
		}
		p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = binNode{op: t.text[0], l: l, r: r}
	}
}

func (p *parser) parseUnary() (node, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "-" {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch {
	case t.kind == tokNum:
		return numNode(t.num), nil

	case t.kind == tokIdent && t.text == "value":
		return valueNode{}, nil

	case t.kind == tokIdent:
		arity, ok := funcArity[t.text]
		if !ok {
			return nil, fmt.Errorf("formula: unknown identifier %q", t.text)
		}
		if err := p.expect("("); err != nil {
			return nil, err
		}
		call := callNode{name: t.text}
		for i := 0; i < arity; i++ {
			if i > 0 {
				if err := p.expect(","); err != nil {
					return nil, err
				}
			}
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, arg)
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return call, nil

	case t.kind == tokOp && t.text == "(":
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return x, nil
	}
	return nil, fmt.Errorf("formula: unexpected %q", t.text)
}
