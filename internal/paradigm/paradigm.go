// Package paradigm defines the experiment parameter schema: an explicit
// declaration of each parameter's name, label, loggability, and defining
// expression, plus JSON persistence of parameter values.
package paradigm

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bburan/pyexperiment/internal/eval"
)

// Declaration describes one context-bearing parameter. Sources other than
// the paradigm (e.g. a data log) declare fields with a nil Expr.
type Declaration struct {
	Name  string
	Label string
	Log   bool
	Expr  *eval.Expression
}

// Source exposes context declarations to the controller. Paradigms, data
// logs, and free-standing context variables all implement it.
type Source interface {
	ContextDeclarations() []Declaration
}

// Paradigm is an immutable-schema parameter set. The set of declared
// parameters is fixed at build time; only the expressions bound to them
// change, via Set.
type Paradigm struct {
	decls []Declaration
	index map[string]int
}

// Builder accumulates parameter declarations and produces a Paradigm.
type Builder struct {
	decls []Declaration
	index map[string]int
	err   error
}

// NewBuilder creates an empty paradigm builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Add declares a parameter with a literal or formula default. The label
// defaults to the parameter name.
func (b *Builder) Add(name, label string, logged bool, value any) *Builder {
	if b.err != nil {
		return b
	}
	e, err := eval.NewExpression(value)
	if err != nil {
		b.err = fmt.Errorf("parameter %s: %w", name, err)
		return b
	}
	return b.AddExpression(name, label, logged, e)
}

// AddExpression declares a parameter with an explicit expression.
func (b *Builder) AddExpression(name, label string, logged bool, e *eval.Expression) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" {
		b.err = fmt.Errorf("parameter name must not be empty")
		return b
	}
	if _, exists := b.index[name]; exists {
		b.err = fmt.Errorf("parameter %s declared twice", name)
		return b
	}
	if label == "" {
		label = name
	}
	b.index[name] = len(b.decls)
	b.decls = append(b.decls, Declaration{Name: name, Label: label, Log: logged, Expr: e})
	return b
}

// Build produces the Paradigm, or the first error encountered while
// declaring parameters.
func (b *Builder) Build() (*Paradigm, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := &Paradigm{
		decls: make([]Declaration, len(b.decls)),
		index: make(map[string]int, len(b.index)),
	}
	copy(p.decls, b.decls)
	for k, v := range b.index {
		p.index[k] = v
	}
	return p, nil
}

// ContextDeclarations implements Source.
func (p *Paradigm) ContextDeclarations() []Declaration {
	out := make([]Declaration, len(p.decls))
	copy(out, p.decls)
	return out
}

// Parameters returns the declared parameter names in sorted order.
func (p *Paradigm) Parameters() []string {
	names := make([]string, len(p.decls))
	for i, d := range p.decls {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

// ParameterInfo returns the declared parameters and their human-readable
// labels.
func (p *Paradigm) ParameterInfo() map[string]string {
	info := make(map[string]string, len(p.decls))
	for _, d := range p.decls {
		info[d.Name] = d.Label
	}
	return info
}

// InvalidParameters returns the subset of names not declared by this
// paradigm.
func (p *Paradigm) InvalidParameters(names []string) []string {
	var invalid []string
	for _, n := range names {
		if _, ok := p.index[n]; !ok {
			invalid = append(invalid, n)
		}
	}
	return invalid
}

// Expression returns the expression bound to the named parameter.
func (p *Paradigm) Expression(name string) (*eval.Expression, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.decls[i].Expr, true
}

// Expressions returns the name → expression mapping consumed by the
// namespace.
func (p *Paradigm) Expressions() map[string]any {
	out := make(map[string]any, len(p.decls))
	for _, d := range p.decls {
		out[d.Name] = d.Expr
	}
	return out
}

// Set rebinds the named parameter to a new literal or formula. It reports
// whether the definition actually changed; assigning an identical
// expression is not a change.
func (p *Paradigm) Set(name string, value any) (bool, error) {
	i, ok := p.index[name]
	if !ok {
		return false, fmt.Errorf("parameter %s is not declared", name)
	}
	e, err := eval.NewExpression(value)
	if err != nil {
		return false, err
	}
	if e.Equal(p.decls[i].Expr) {
		return false, nil
	}
	p.decls[i].Expr = e
	return true, nil
}

// Clone returns a deep copy with freshly compiled expressions and no
// generator state, suitable for a shadow paradigm.
func (p *Paradigm) Clone() (*Paradigm, error) {
	c := &Paradigm{
		decls: make([]Declaration, len(p.decls)),
		index: make(map[string]int, len(p.index)),
	}
	copy(c.decls, p.decls)
	for k, v := range p.index {
		c.index[k] = v
	}
	for i, d := range c.decls {
		e, err := d.Expr.Clone()
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", d.Name, err)
		}
		c.decls[i].Expr = e
	}
	return c, nil
}

// WriteJSON writes the parameter values as a JSON document with sorted
// keys: formulas as strings, constants as their literal values. Formula
// text is preserved byte-for-byte.
func (p *Paradigm) WriteJSON(w io.Writer) error {
	values := make(map[string]any, len(p.decls))
	for _, d := range p.decls {
		if d.Expr.IsLiteral() {
			values[d.Name] = d.Expr.Value()
		} else {
			values[d.Name] = d.Expr.Source()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(values)
}

// ReadJSON reads a parameter-value document and rebinds the declared
// parameters it names. Undeclared names are skipped; expressions are
// recompiled from their stored text.
func (p *Paradigm) ReadJSON(r io.Reader) error {
	var values map[string]any
	if err := json.NewDecoder(r).Decode(&values); err != nil {
		return err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := p.index[name]; !ok {
			continue
		}
		if _, err := p.Set(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile saves the parameter values to a JSON file.
func (p *Paradigm) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.WriteJSON(f)
}

// ReadFile loads parameter values from a JSON file.
func (p *Paradigm) ReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.ReadJSON(f)
}

// FormatParameters pretty-prints the parameter table (variable name and
// label) for command-line listings.
func (p *Paradigm) FormatParameters() string {
	rows := [][2]string{{"Variable Name", "Label"}, {"-------------", "-----"}}
	info := p.ParameterInfo()
	for _, name := range p.Parameters() {
		rows = append(rows, [2]string{name, info[name]})
	}
	var w0, w1 int
	for _, r := range rows {
		if len(r[0]) > w0 {
			w0 = len(r[0])
		}
		if len(r[1]) > w1 {
			w1 = len(r[1])
		}
	}
	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%*s  %-*s\n", w0+2, r[0], w1, r[1])
	}
	return sb.String()
}
