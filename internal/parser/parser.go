// Package parser compiles formula text into an AST.
//
// The grammar is a small Python-like expression language: arithmetic,
// comparisons, and/or/not, list literals, and calls with positional and
// keyword arguments. The special top-level form u(<expr>, <name>) marks an
// advance-on-trigger dependency and is unwrapped here; the trigger name is
// reported alongside the inner expression.
package parser

import (
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bburan/pyexperiment/internal/expr"
	"github.com/bburan/pyexperiment/internal/scanner"
	"github.com/bburan/pyexperiment/internal/token"
)

// Compiled is the result of parsing one formula.
type Compiled struct {
	// Root is the executable expression. When the formula used the
	// u(<expr>, <trigger>) wrapper, Root is the inner expression.
	Root expr.Node
	// Trigger is the advance-trigger parameter name, or "" if none.
	Trigger string
}

// Formulas repeat across paradigm clones and reloads, so compiled ASTs are
// memoized by source text. ASTs are immutable after parse.
var cache, _ = lru.New[string, *Compiled](256)

// Parse compiles formula text, returning the AST and any advance trigger.
func Parse(src string) (*Compiled, error) {
	if c, ok := cache.Get(src); ok {
		return c, nil
	}
	p := &parser{s: scanner.New(src), src: src}
	node, err := p.parse()
	if err != nil {
		return nil, err
	}
	c := unwrapTrigger(node)
	cache.Add(src, c)
	return c, nil
}

// unwrapTrigger recognizes the top-level u(<expr>, <name>) form.
func unwrapTrigger(node expr.Node) *Compiled {
	call, ok := node.(expr.Call)
	if !ok || call.Func != "u" || len(call.Args) != 2 || len(call.Kwargs) != 0 {
		return &Compiled{Root: node}
	}
	name, ok := call.Args[1].(expr.Name)
	if !ok {
		return &Compiled{Root: node}
	}
	return &Compiled{Root: call.Args[0], Trigger: name.Ident}
}

type parser struct {
	s   *scanner.Scanner
	src string
}

func (p *parser) parse() (expr.Node, error) {
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if item := p.s.Next(); item.Token != token.EOF {
		return nil, p.errorf("unexpected %q after expression", item.Value)
	}
	if err := p.s.Err(); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", p.src, err)
	}
	return node, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("parsing %q: %s", p.src, fmt.Sprintf(format, args...))
}

func (p *parser) parseOr() (expr.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.s.Peek().Token == token.OR {
		p.s.Next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: token.OR, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (expr.Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.s.Peek().Token == token.AND {
		p.s.Next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: token.AND, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (expr.Node, error) {
	if p.s.Peek().Token == token.NOT {
		p.s.Next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return expr.Unary{Op: token.NOT, Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (expr.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op := p.s.Peek().Token
		switch op {
		case token.LT, token.LE, token.GT, token.GE, token.EQ, token.NE:
			p.s.Next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = expr.Binary{Op: op, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseAdditive() (expr.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op := p.s.Peek().Token
		if op != token.PLUS && op != token.MINUS {
			return left, nil
		}
		p.s.Next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (expr.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.s.Peek().Token
		switch op {
		case token.STAR, token.SLASH, token.FLOORDIV, token.PERCENT:
			p.s.Next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = expr.Binary{Op: op, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (expr.Node, error) {
	if p.s.Peek().Token == token.MINUS {
		p.s.Next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expr.Unary{Op: token.MINUS, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (expr.Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.s.Peek().Token == token.POWER {
		p.s.Next()
		// Right-associative; the exponent may carry its own unary minus.
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expr.Binary{Op: token.POWER, Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (expr.Node, error) {
	item := p.s.Next()
	switch item.Token {
	case token.NUMBER:
		value, err := strconv.ParseFloat(item.Value, 64)
		if err != nil {
			return nil, p.errorf("bad number %q", item.Value)
		}
		return expr.Number{Value: value, Text: item.Value}, nil
	case token.STRING:
		return expr.String_{Value: item.Value}, nil
	case token.TRUE:
		return expr.Bool{Value: true}, nil
	case token.FALSE:
		return expr.Bool{Value: false}, nil
	case token.NONE:
		return expr.None{}, nil
	case token.IDENT:
		if p.s.Peek().Token == token.LPAREN {
			return p.parseCall(item.Value)
		}
		return expr.Name{Ident: item.Value}, nil
	case token.LPAREN:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if item := p.s.Next(); item.Token != token.RPAREN {
			return nil, p.errorf("expected ')', got %q", item.Value)
		}
		return node, nil
	case token.LBRACKET:
		return p.parseList()
	case token.EOF:
		return nil, p.errorf("unexpected end of expression")
	default:
		return nil, p.errorf("unexpected %q", item.Value)
	}
}

func (p *parser) parseList() (expr.Node, error) {
	list := expr.List{}
	if p.s.Peek().Token == token.RBRACKET {
		p.s.Next()
		return list, nil
	}
	for {
		elem, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		list.Elems = append(list.Elems, elem)
		switch item := p.s.Next(); item.Token {
		case token.COMMA:
			continue
		case token.RBRACKET:
			return list, nil
		default:
			return nil, p.errorf("expected ',' or ']' in list, got %q", item.Value)
		}
	}
}

func (p *parser) parseCall(name string) (expr.Node, error) {
	p.s.Next() // consume '('
	call := expr.Call{Func: name}
	if p.s.Peek().Token == token.RPAREN {
		p.s.Next()
		return call, nil
	}
	for {
		// A keyword argument is IDENT '=' value; anything else is
		// positional.
		if p.s.Peek().Token == token.IDENT {
			ident := p.s.Next()
			if p.s.Peek().Token == token.ASSIGN {
				p.s.Next()
				value, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				call.Kwargs = append(call.Kwargs, expr.Kwarg{Name: ident.Value, Value: value})
			} else {
				arg, err := p.continueExpr(ident.Value)
				if err != nil {
					return nil, err
				}
				if len(call.Kwargs) > 0 {
					return nil, p.errorf("positional argument after keyword argument in call to %s", name)
				}
				call.Args = append(call.Args, arg)
			}
		} else {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if len(call.Kwargs) > 0 {
				return nil, p.errorf("positional argument after keyword argument in call to %s", name)
			}
			call.Args = append(call.Args, arg)
		}
		switch item := p.s.Next(); item.Token {
		case token.COMMA:
			continue
		case token.RPAREN:
			return call, nil
		default:
			return nil, p.errorf("expected ',' or ')' in call to %s, got %q", name, item.Value)
		}
	}
}

// continueExpr finishes parsing an expression whose leading identifier has
// already been consumed while probing for a keyword argument.
func (p *parser) continueExpr(ident string) (expr.Node, error) {
	var left expr.Node
	if p.s.Peek().Token == token.LPAREN {
		call, err := p.parseCall(ident)
		if err != nil {
			return nil, err
		}
		left = call
	} else {
		left = expr.Name{Ident: ident}
	}
	return p.continueFrom(left)
}

// continueFrom resumes precedence climbing with an already-parsed primary
// on the left.
func (p *parser) continueFrom(left expr.Node) (expr.Node, error) {
	node := left
	for {
		op := p.s.Peek().Token
		switch op {
		case token.POWER:
			p.s.Next()
			exp, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			node = expr.Binary{Op: token.POWER, Left: node, Right: exp}
		case token.STAR, token.SLASH, token.FLOORDIV, token.PERCENT:
			p.s.Next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			node = expr.Binary{Op: op, Left: node, Right: right}
		case token.PLUS, token.MINUS:
			p.s.Next()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			node = expr.Binary{Op: op, Left: node, Right: right}
		case token.LT, token.LE, token.GT, token.GE, token.EQ, token.NE:
			p.s.Next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			node = expr.Binary{Op: op, Left: node, Right: right}
		case token.AND:
			p.s.Next()
			right, err := p.parseNot()
			if err != nil {
				return nil, err
			}
			node = expr.Binary{Op: token.AND, Left: node, Right: right}
		case token.OR:
			p.s.Next()
			right, err := p.parseAnd()
			if err != nil {
				return nil, err
			}
			node = expr.Binary{Op: token.OR, Left: node, Right: right}
		default:
			return node, nil
		}
	}
}
