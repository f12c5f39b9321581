package expr

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/stcorp/muninn/pkg/values"
)

// Parser is a one-token-lookahead recursive-descent parser mirroring
// the grammar's precedence chain (low to high): or, and, not,
// comparison, additive/multiplicative, unary, function call, atom.
type Parser struct {
	lex *Lexer
}

// Parse parses a complete expression and reports an error if trailing
// input remains.
func Parse(text string) (Node, error) {
	lex, err := NewLexer(text)
	if err != nil {
		return nil, AsExpressionError("expr.parse", err)
	}
	p := &Parser{lex: lex}
	node, err := p.parseOrExpression()
	if err != nil {
		return nil, AsExpressionError("expr.parse", err)
	}
	if p.lex.Current().Type != TokenEnd {
		return nil, AsExpressionError("expr.parse", &SyntaxError{
			Pos:     p.lex.Current().Pos + 1,
			Message: fmt.Sprintf("extra characters after expression: %v", p.lex.Current()),
		})
	}
	return node, nil
}

func (p *Parser) test(t TokenType, vals ...string) bool {
	cur := p.lex.Current()
	if cur.Type != t {
		return false
	}
	if len(vals) == 0 {
		return true
	}
	sv, ok := cur.Value.(string)
	if !ok {
		return false
	}
	for _, v := range vals {
		if sv == v {
			return true
		}
	}
	return false
}

func (p *Parser) accept(t TokenType, vals ...string) (bool, error) {
	if !p.test(t, vals...) {
		return false, nil
	}
	if _, err := p.lex.Next(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Parser) expect(t TokenType, vals ...string) (Token, error) {
	if !p.test(t, vals...) {
		cur := p.lex.Current()
		if cur.Type == TokenEnd {
			return Token{}, &SyntaxError{Pos: cur.Pos + 1, Message: "unexpected end of input"}
		}
		return Token{}, &SyntaxError{Pos: cur.Pos + 1, Message: fmt.Sprintf("unexpected token %v", cur)}
	}
	tok := p.lex.Current()
	if _, err := p.lex.Next(); err != nil {
		return Token{}, err
	}
	return tok, nil
}

func (p *Parser) parseSequence(start, end string, item func() (Node, error)) ([]Node, error) {
	if _, err := p.expect(TokenOperator, start); err != nil {
		return nil, err
	}
	if ok, err := p.accept(TokenOperator, end); err != nil {
		return nil, err
	} else if ok {
		return nil, nil
	}
	n, err := item()
	if err != nil {
		return nil, err
	}
	seq := []Node{n}
	for {
		ok, err := p.accept(TokenOperator, ",")
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		n, err := item()
		if err != nil {
			return nil, err
		}
		seq = append(seq, n)
	}
	if _, err := p.expect(TokenOperator, end); err != nil {
		return nil, err
	}
	return seq, nil
}

func (p *Parser) parseGeometrySequence(item func() (values.Point, error)) ([]values.Point, error) {
	if ok, err := p.accept(TokenName, "EMPTY"); err != nil {
		return nil, err
	} else if ok {
		return nil, nil
	}
	if _, err := p.expect(TokenOperator, "("); err != nil {
		return nil, err
	}
	pt, err := item()
	if err != nil {
		return nil, err
	}
	seq := []values.Point{pt}
	for {
		ok, err := p.accept(TokenOperator, ",")
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		pt, err := item()
		if err != nil {
			return nil, err
		}
		seq = append(seq, pt)
	}
	if _, err := p.expect(TokenOperator, ")"); err != nil {
		return nil, err
	}
	return seq, nil
}

func (p *Parser) parseSignedCoordinate() (float64, error) {
	if ok, err := p.accept(TokenOperator, "-"); err != nil {
		return 0, err
	} else if ok {
		tok, err := p.expect(TokenInteger)
		if err != nil {
			if tok2, err2 := p.expect(TokenReal); err2 == nil {
				return -toFloat(tok2.Value), nil
			}
			return 0, err
		}
		return -toFloat(tok.Value), nil
	}
	_, _ = p.accept(TokenOperator, "+")
	if p.test(TokenReal) {
		tok, err := p.expect(TokenReal)
		if err != nil {
			return 0, err
		}
		return toFloat(tok.Value), nil
	}
	tok, err := p.expect(TokenInteger)
	if err != nil {
		return 0, err
	}
	return toFloat(tok.Value), nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func (p *Parser) parsePointRaw() (values.Point, error) {
	x, err := p.parseSignedCoordinate()
	if err != nil {
		return values.Point{}, err
	}
	y, err := p.parseSignedCoordinate()
	if err != nil {
		return values.Point{}, err
	}
	return values.Point{X: x, Y: y}, nil
}

func (p *Parser) parsePoint() (values.Point, error) {
	if _, err := p.expect(TokenOperator, "("); err != nil {
		return values.Point{}, err
	}
	pt, err := p.parsePointRaw()
	if err != nil {
		return values.Point{}, err
	}
	if _, err := p.expect(TokenOperator, ")"); err != nil {
		return values.Point{}, err
	}
	return pt, nil
}

func (p *Parser) parseLineString() (values.LineString, error) {
	pts, err := p.parseGeometrySequence(p.parsePointRaw)
	if err != nil {
		return values.LineString{}, err
	}
	return values.LineString{Points: pts}, nil
}

func (p *Parser) parseLinearRing() (values.LinearRing, error) {
	pts, err := p.parseGeometrySequence(p.parsePointRaw)
	if err != nil {
		return values.LinearRing{}, err
	}
	if len(pts) == 0 {
		return values.LinearRing{}, nil
	}
	if len(pts) < 4 {
		return values.LinearRing{}, &SyntaxError{Pos: p.lex.Current().Pos, Message: "linear ring should be empty or should contain >= 4 points"}
	}
	if pts[len(pts)-1] != pts[0] {
		return values.LinearRing{}, &SyntaxError{Pos: p.lex.Current().Pos, Message: "linear ring should be closed"}
	}
	return values.LinearRing{Points: pts}, nil
}

func (p *Parser) parsePolygon() (values.Polygon, error) {
	if ok, err := p.peekEmpty(); err != nil {
		return values.Polygon{}, err
	} else if ok {
		return values.Polygon{}, nil
	}
	if _, err := p.expect(TokenOperator, "("); err != nil {
		return values.Polygon{}, err
	}
	ring, err := p.parseLinearRing()
	if err != nil {
		return values.Polygon{}, err
	}
	rings := []values.LinearRing{ring}
	for {
		ok, err := p.accept(TokenOperator, ",")
		if err != nil {
			return values.Polygon{}, err
		}
		if !ok {
			break
		}
		r, err := p.parseLinearRing()
		if err != nil {
			return values.Polygon{}, err
		}
		rings = append(rings, r)
	}
	if _, err := p.expect(TokenOperator, ")"); err != nil {
		return values.Polygon{}, err
	}
	return values.Polygon{Exterior: rings[0], Interior: rings[1:]}, nil
}

func (p *Parser) peekEmpty() (bool, error) {
	if p.test(TokenName, "EMPTY") {
		if _, err := p.lex.Next(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (p *Parser) parseMultiPoint() (values.MultiPoint, error) {
	pts, err := p.parseGeometrySequenceOf(p.parsePoint)
	if err != nil {
		return values.MultiPoint{}, err
	}
	return values.MultiPoint{Points: pts}, nil
}

func (p *Parser) parseGeometrySequenceOf(item func() (values.Point, error)) ([]values.Point, error) {
	return p.parseGeometrySequence(item)
}

func (p *Parser) parseMultiLineString() (values.MultiLineString, error) {
	if ok, err := p.peekEmpty(); err != nil {
		return values.MultiLineString{}, err
	} else if ok {
		return values.MultiLineString{}, nil
	}
	if _, err := p.expect(TokenOperator, "("); err != nil {
		return values.MultiLineString{}, err
	}
	ls, err := p.parseLineString()
	if err != nil {
		return values.MultiLineString{}, err
	}
	lines := []values.LineString{ls}
	for {
		ok, err := p.accept(TokenOperator, ",")
		if err != nil {
			return values.MultiLineString{}, err
		}
		if !ok {
			break
		}
		l, err := p.parseLineString()
		if err != nil {
			return values.MultiLineString{}, err
		}
		lines = append(lines, l)
	}
	if _, err := p.expect(TokenOperator, ")"); err != nil {
		return values.MultiLineString{}, err
	}
	return values.MultiLineString{Lines: lines}, nil
}

func (p *Parser) parseMultiPolygon() (values.MultiPolygon, error) {
	if ok, err := p.peekEmpty(); err != nil {
		return values.MultiPolygon{}, err
	} else if ok {
		return values.MultiPolygon{}, nil
	}
	if _, err := p.expect(TokenOperator, "("); err != nil {
		return values.MultiPolygon{}, err
	}
	poly, err := p.parsePolygon()
	if err != nil {
		return values.MultiPolygon{}, err
	}
	polys := []values.Polygon{poly}
	for {
		ok, err := p.accept(TokenOperator, ",")
		if err != nil {
			return values.MultiPolygon{}, err
		}
		if !ok {
			break
		}
		pg, err := p.parsePolygon()
		if err != nil {
			return values.MultiPolygon{}, err
		}
		polys = append(polys, pg)
	}
	if _, err := p.expect(TokenOperator, ")"); err != nil {
		return values.MultiPolygon{}, err
	}
	return values.MultiPolygon{Polygons: polys}, nil
}

func (p *Parser) parseAtom() (Node, error) {
	if ok, err := p.accept(TokenOperator, "("); err != nil {
		return nil, err
	} else if ok {
		sub, err := p.parseOrExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenOperator, ")"); err != nil {
			return nil, err
		}
		return sub, nil
	}

	if ok, err := p.accept(TokenOperator, "@"); err != nil {
		return nil, err
	} else if ok {
		tok, err := p.expect(TokenName)
		if err != nil {
			return nil, err
		}
		return &ParameterReference{Name: tok.Value.(string)}, nil
	}

	if p.test(TokenName) {
		tok, err := p.expect(TokenName)
		if err != nil {
			return nil, err
		}
		name := tok.Value.(string)

		switch name {
		case "POINT":
			pt, err := p.parsePoint()
			if err != nil {
				return nil, err
			}
			return &Literal{Value: values.NewGeometry(values.Point(pt))}, nil
		case "LINESTRING":
			ls, err := p.parseLineString()
			if err != nil {
				return nil, err
			}
			return &Literal{Value: values.NewGeometry(ls)}, nil
		case "POLYGON":
			pg, err := p.parsePolygon()
			if err != nil {
				return nil, err
			}
			return &Literal{Value: values.NewGeometry(pg)}, nil
		case "MULTIPOINT":
			mp, err := p.parseMultiPoint()
			if err != nil {
				return nil, err
			}
			return &Literal{Value: values.NewGeometry(mp)}, nil
		case "MULTILINESTRING":
			mls, err := p.parseMultiLineString()
			if err != nil {
				return nil, err
			}
			return &Literal{Value: values.NewGeometry(mls)}, nil
		case "MULTIPOLYGON":
			mpg, err := p.parseMultiPolygon()
			if err != nil {
				return nil, err
			}
			return &Literal{Value: values.NewGeometry(mpg)}, nil
		}

		if p.test(TokenOperator, "(") {
			args, err := p.parseSequence("(", ")", p.parseOrExpression)
			if err != nil {
				return nil, err
			}
			return &FunctionCall{Name: name, Arguments: args}, nil
		}

		parts := []string{name}
		for {
			ok, err := p.accept(TokenOperator, ".")
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			tok, err := p.expect(TokenName)
			if err != nil {
				return nil, err
			}
			parts = append(parts, tok.Value.(string))
		}
		full := parts[0]
		for _, part := range parts[1:] {
			full += "." + part
		}
		return &Name{Value: full}, nil
	}

	if p.test(TokenOperator, "[") {
		items, err := p.parseSequence("[", "]", p.parseOrExpression)
		if err != nil {
			return nil, err
		}
		return &List{Items: items}, nil
	}

	tok, err := p.expect(TokenText)
	if err == nil {
		return &Literal{Value: values.NewText(tok.Value.(string))}, nil
	}
	if tok, err := p.expect(TokenTimestamp); err == nil {
		return &Literal{Value: values.NewTimestamp(tok.Value.(values.Timestamp))}, nil
	}
	if tok, err := p.expect(TokenUUID); err == nil {
		return &Literal{Value: values.NewUUID(tok.Value.(uuid.UUID))}, nil
	}
	if tok, err := p.expect(TokenReal); err == nil {
		return &Literal{Value: values.NewReal(tok.Value.(float64))}, nil
	}
	if tok, err := p.expect(TokenInteger); err == nil {
		return &Literal{Value: integerLiteralValue(tok.Value.(int64))}, nil
	}
	if tok, err := p.expect(TokenBoolean); err == nil {
		return &Literal{Value: values.NewBoolean(tok.Value.(bool))}, nil
	}

	cur := p.lex.Current()
	return nil, &SyntaxError{Pos: cur.Pos + 1, Message: fmt.Sprintf("unexpected token %v", cur)}
}

// integerLiteralValue stores a lexed integer literal as Integer when it
// fits in 32 bits and as Long otherwise (field comparisons resolve
// exact/compatible overloads either way).
func integerLiteralValue(v int64) values.Value {
	if v >= -2147483648 && v <= 2147483647 {
		return values.NewInteger(int32(v))
	}
	return values.NewLong(v)
}

func (p *Parser) parseTerm() (Node, error) {
	if p.test(TokenOperator, "+", "-") {
		tok, err := p.expect(TokenOperator, "+", "-")
		if err != nil {
			return nil, err
		}
		operand, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: tok.Value.(string), Arguments: []Node{operand}}, nil
	}
	return p.parseAtom()
}

func (p *Parser) parseArithmeticExpression() (Node, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if p.test(TokenOperator, "+", "-", "*", "/") {
		tok, err := p.expect(TokenOperator, "+", "-", "*", "/")
		if err != nil {
			return nil, err
		}
		rhs, err := p.parseArithmeticExpression()
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: tok.Value.(string), Arguments: []Node{lhs, rhs}}, nil
	}
	return lhs, nil
}

var comparisonOps = []string{"<", ">", "==", ">=", "<=", "!=", "~=", "in", "not in"}

func (p *Parser) parseComparison() (Node, error) {
	lhs, err := p.parseArithmeticExpression()
	if err != nil {
		return nil, err
	}
	if p.test(TokenOperator, comparisonOps...) {
		tok, err := p.expect(TokenOperator, comparisonOps...)
		if err != nil {
			return nil, err
		}
		rhs, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: tok.Value.(string), Arguments: []Node{lhs, rhs}}, nil
	}
	return lhs, nil
}

func (p *Parser) parseNotExpression() (Node, error) {
	if ok, err := p.accept(TokenName, "not"); err != nil {
		return nil, err
	} else if ok {
		operand, err := p.parseNotExpression()
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: "not", Arguments: []Node{operand}}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseAndExpression() (Node, error) {
	lhs, err := p.parseNotExpression()
	if err != nil {
		return nil, err
	}
	if ok, err := p.accept(TokenName, "and"); err != nil {
		return nil, err
	} else if ok {
		rhs, err := p.parseAndExpression()
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: "and", Arguments: []Node{lhs, rhs}}, nil
	}
	return lhs, nil
}

func (p *Parser) parseOrExpression() (Node, error) {
	lhs, err := p.parseAndExpression()
	if err != nil {
		return nil, err
	}
	if ok, err := p.accept(TokenName, "or"); err != nil {
		return nil, err
	} else if ok {
		rhs, err := p.parseOrExpression()
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: "or", Arguments: []Node{lhs, rhs}}, nil
	}
	return lhs, nil
}
