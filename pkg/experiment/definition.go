package experiment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bburan/pyexperiment/internal/eval"
	"github.com/bburan/pyexperiment/internal/paradigm"
)

// ParameterDef is one parameter in a YAML experiment definition. Exactly
// one of Expr (formula text) or Value (literal) defines the parameter;
// When names an optional advance trigger, equivalent to wrapping the
// formula in u(..., when).
type ParameterDef struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	Log   bool   `yaml:"log"`
	Expr  string `yaml:"expr"`
	Value any    `yaml:"value"`
	When  string `yaml:"when"`
}

// Definition is a YAML experiment definition: a named set of parameter
// declarations.
type Definition struct {
	Name       string         `yaml:"name"`
	Parameters []ParameterDef `yaml:"parameters"`
}

// LoadDefinition reads a YAML experiment definition from a file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &def, nil
}

// Paradigm compiles the definition into a paradigm, surfacing any formula
// definition errors with the failing parameter named.
func (d *Definition) Paradigm() (*paradigm.Paradigm, error) {
	b := paradigm.NewBuilder()
	for _, p := range d.Parameters {
		var value any = p.Value
		if p.Expr != "" {
			value = p.Expr
		}
		var opts []eval.ExpressionOption
		if p.When != "" {
			opts = append(opts, eval.EvaluateWhen(p.When))
		}
		e, err := eval.NewExpression(value, opts...)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		b.AddExpression(p.Name, p.Label, p.Log, e)
	}
	return b.Build()
}
