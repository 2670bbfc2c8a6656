// Package expr defines the AST for the parameter formula language.
package expr

import (
	"strconv"
	"strings"

	"github.com/bburan/pyexperiment/internal/token"
)

// Node is the interface all formula AST nodes implement.
type Node interface {
	// String returns a canonical textual representation of the node. Note
	// that a parameter expression keeps its original source text; this form
	// is for diagnostics.
	String() string
}

// Number is a numeric literal. All numbers evaluate to float64.
type Number struct {
	Value float64
	Text  string // Literal text as written
}

func (n Number) String() string {
	if n.Text != "" {
		return n.Text
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// String_ is a string literal.
type String_ struct {
	Value string
}

func (s String_) String() string { return "'" + s.Value + "'" }

// Bool is a True/False literal.
type Bool struct {
	Value bool
}

func (b Bool) String() string {
	if b.Value {
		return "True"
	}
	return "False"
}

// None is the None literal.
type None struct{}

func (None) String() string { return "None" }

// Name is a reference to a parameter, context variable, or builtin.
type Name struct {
	Ident string
}

func (n Name) String() string { return n.Ident }

// List is a list literal.
type List struct {
	Elems []Node
}

func (l List) String() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Unary is a prefix operation (- or not).
type Unary struct {
	Op      token.Token
	Operand Node
}

func (u Unary) String() string {
	if u.Op == token.NOT {
		return "not " + u.Operand.String()
	}
	return u.Op.String() + u.Operand.String()
}

// Binary is an infix operation: arithmetic, comparison, or and/or.
type Binary struct {
	Op    token.Token
	Left  Node
	Right Node
}

func (b Binary) String() string {
	op := b.Op.String()
	switch b.Op {
	case token.AND, token.OR:
		op = " " + op + " "
	}
	return "(" + b.Left.String() + op + b.Right.String() + ")"
}

// Kwarg is a keyword argument in a call.
type Kwarg struct {
	Name  string
	Value Node
}

// Call is a function call into the builtin table: positional arguments
// followed by keyword arguments.
type Call struct {
	Func   string
	Args   []Node
	Kwargs []Kwarg
}

func (c Call) String() string {
	parts := make([]string, 0, len(c.Args)+len(c.Kwargs))
	for _, a := range c.Args {
		parts = append(parts, a.String())
	}
	for _, k := range c.Kwargs {
		parts = append(parts, k.Name+"="+k.Value.String())
	}
	return c.Func + "(" + strings.Join(parts, ", ") + ")"
}

// Names returns every identifier referenced by the node, including called
// function names, in first-appearance order without duplicates. The
// resolver decides which of these are parameters and which belong to the
// builtin table.
func Names(n Node) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Name:
			add(v.Ident)
		case List:
			for _, e := range v.Elems {
				walk(e)
			}
		case Unary:
			walk(v.Operand)
		case Binary:
			walk(v.Left)
			walk(v.Right)
		case Call:
			add(v.Func)
			for _, a := range v.Args {
				walk(a)
			}
			for _, k := range v.Kwargs {
				walk(k.Value)
			}
		}
	}
	walk(n)
	return out
}
