package transform

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"flowforge/internal/errors"
	"flowforge/internal/table"
)

// Expression evaluation for derived columns. Expressions reference
// existing columns by name and support +, -, *, /, % with the usual
// precedence, unary minus, parentheses, numeric and quoted string
// literals, and string concatenation with +. The expression is parsed
// and type-checked once against the table schema; evaluation then runs
// once per row with no side effects across rows. A null operand yields a
// null result.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	input []rune
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case strings.ContainsRune("+-*/%", c):
		l.pos++
		return token{kind: tokOp, text: string(c), pos: start}, nil
	case c == '\'' || c == '"':
		quote := c
		l.pos++
		var b strings.Builder
		for l.pos < len(l.input) && l.input[l.pos] != quote {
			b.WriteRune(l.input[l.pos])
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{}, errors.NewExpressionError("unterminated string literal at position %d", start).WithParameter("expression")
		}
		l.pos++
		return token{kind: tokString, text: b.String(), pos: start}, nil
	case unicode.IsDigit(c):
		for l.pos < len(l.input) && (unicode.IsDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: string(l.input[start:l.pos]), pos: start}, nil
	case unicode.IsLetter(c) || c == '_':
		for l.pos < len(l.input) && (unicode.IsLetter(l.input[l.pos]) || unicode.IsDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.input[start:l.pos]), pos: start}, nil
	}
	return token{}, errors.NewExpressionError("unexpected character %q at position %d", string(c), start).WithParameter("expression")
}

// exprNode is a type-checked expression tree node. eval receives the
// current row's cells keyed by column index.
type exprNode struct {
	typ  table.Type
	eval func(row []any) any
}

type exprParser struct {
	lex  *lexer
	tok  token
	cols map[string]int // column name -> index
	typs map[string]table.Type
}

// compileExpression parses and type-checks an expression against the
// table schema. The returned node evaluates against rows materialized in
// column order.
func compileExpression(expr string, t *table.Table) (*exprNode, error) {
	cols := make(map[string]int)
	typs := make(map[string]table.Type)
	for i, c := range t.Columns() {
		cols[c.Name] = i
		typs[c.Name] = c.Type
	}
	p := &exprParser{lex: &lexer{input: []rune(expr)}, cols: cols, typs: typs}
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, errors.NewExpressionError("unexpected %q at position %d", p.tok.text, p.tok.pos).WithParameter("expression")
	}
	return node, nil
}

func (p *exprParser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *exprParser) parseAdditive() (*exprNode, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left, err = combine(op, left, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *exprParser) parseMultiplicative() (*exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/" || p.tok.text == "%") {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left, err = combine(op, left, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (*exprNode, error) {
	if p.tok.kind == tokOp && p.tok.text == "-" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !operand.typ.Numeric() {
			return nil, errors.NewExpressionError("unary minus requires a numeric operand, got %s", operand.typ).WithParameter("expression")
		}
		inner := operand.eval
		typ := operand.typ
		return &exprNode{typ: typ, eval: func(row []any) any {
			v := inner(row)
			if v == nil {
				return nil
			}
			if typ == table.TypeInt {
				return -v.(int64)
			}
			return -v.(float64)
		}}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (*exprNode, error) {
	tok := p.tok
	switch tok.kind {
	case tokNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if strings.Contains(tok.text, ".") {
			f, err := strconv.ParseFloat(tok.text, 64)
			if err != nil {
				return nil, errors.NewExpressionError("bad numeric literal %q", tok.text).WithParameter("expression")
			}
			return &exprNode{typ: table.TypeFloat, eval: func([]any) any { return f }}, nil
		}
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, errors.NewExpressionError("bad numeric literal %q", tok.text).WithParameter("expression")
		}
		return &exprNode{typ: table.TypeInt, eval: func([]any) any { return n }}, nil

	case tokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		s := tok.text
		return &exprNode{typ: table.TypeString, eval: func([]any) any { return s }}, nil

	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		idx, ok := p.cols[tok.text]
		if !ok {
			return nil, errors.NewExpressionError("unknown identifier %q", tok.text).WithParameter("expression")
		}
		typ := p.typs[tok.text]
		switch typ {
		case table.TypeBool, table.TypeDatetime:
			return nil, errors.NewExpressionError("column %q has type %s, not usable in expressions", tok.text, typ).WithParameter("expression")
		case table.TypeCategorical:
			typ = table.TypeString
		}
		return &exprNode{typ: typ, eval: func(row []any) any { return row[idx] }}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, errors.NewExpressionError("missing closing parenthesis at position %d", p.tok.pos).WithParameter("expression")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil
	}
	return nil, errors.NewExpressionError("unexpected %q at position %d", tok.text, tok.pos).WithParameter("expression")
}

// combine type-checks a binary operation and builds its evaluator.
func combine(op string, left, right *exprNode) (*exprNode, error) {
	if op == "+" && left.typ == table.TypeString && right.typ == table.TypeString {
		le, re := left.eval, right.eval
		return &exprNode{typ: table.TypeString, eval: func(row []any) any {
			l, r := le(row), re(row)
			if l == nil || r == nil {
				return nil
			}
			return l.(string) + r.(string)
		}}, nil
	}
	if !left.typ.Numeric() || !right.typ.Numeric() {
		return nil, errors.NewExpressionError("operator %s requires numeric operands, got %s and %s", op, left.typ, right.typ).WithParameter("expression")
	}
	if op == "%" && (left.typ != table.TypeInt || right.typ != table.TypeInt) {
		return nil, errors.NewExpressionError("operator %% requires int operands").WithParameter("expression")
	}

	// Division always yields float; other operators stay int when both
	// sides are int.
	resultType := table.TypeFloat
	if op != "/" && left.typ == table.TypeInt && right.typ == table.TypeInt {
		resultType = table.TypeInt
	}
	le, re := left.eval, right.eval

	if resultType == table.TypeInt {
		return &exprNode{typ: table.TypeInt, eval: func(row []any) any {
			l, r := le(row), re(row)
			if l == nil || r == nil {
				return nil
			}
			a, b := l.(int64), r.(int64)
			switch op {
			case "+":
				return a + b
			case "-":
				return a - b
			case "*":
				return a * b
			case "%":
				if b == 0 {
					return nil
				}
				return a % b
			}
			return nil
		}}, nil
	}

	return &exprNode{typ: table.TypeFloat, eval: func(row []any) any {
		l, r := le(row), re(row)
		if l == nil || r == nil {
			return nil
		}
		a, b := toFloat(l), toFloat(r)
		switch op {
		case "+":
			return a + b
		case "-":
			return a - b
		case "*":
			return a * b
		case "/":
			if b == 0 {
				return nil
			}
			return a / b
		}
		return nil
	}}, nil
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	panic(fmt.Sprintf("non-numeric operand %T", v))
}
