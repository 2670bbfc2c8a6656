package eval

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/bburan/pyexperiment/internal/expr"
	"github.com/bburan/pyexperiment/internal/token"
)

// ErrUndefinedName is returned when a formula references a name that is
// neither in the evaluation context nor in the builtin table. During the
// definition-time pre-check this is the one failure that is swallowed,
// since the name may be supplied by runtime context.
var ErrUndefinedName = errors.New("name is not defined")

// evalNode executes a formula AST against the supplied local context.
// Names resolve against locals first, then the builtin table.
func evalNode(n expr.Node, locals map[string]any) (any, error) {
	switch v := n.(type) {
	case expr.Number:
		return v.Value, nil
	case expr.String_:
		return v.Value, nil
	case expr.Bool:
		return v.Value, nil
	case expr.None:
		return nil, nil
	case expr.Name:
		if val, ok := locals[v.Ident]; ok {
			return val, nil
		}
		if val, ok := Globals[v.Ident]; ok {
			return val, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUndefinedName, v.Ident)
	case expr.List:
		out := make([]any, len(v.Elems))
		for i, e := range v.Elems {
			val, err := evalNode(e, locals)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case expr.Unary:
		return evalUnary(v, locals)
	case expr.Binary:
		return evalBinary(v, locals)
	case expr.Call:
		return evalCall(v, locals)
	default:
		return nil, fmt.Errorf("cannot evaluate %T", n)
	}
}

func evalUnary(u expr.Unary, locals map[string]any) (any, error) {
	operand, err := evalNode(u.Operand, locals)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case token.MINUS:
		f, ok := operand.(float64)
		if !ok {
			return nil, fmt.Errorf("bad operand type for unary -: %T", operand)
		}
		return -f, nil
	case token.NOT:
		return !truthy(operand), nil
	default:
		return nil, fmt.Errorf("unknown unary operator %s", u.Op)
	}
}

func evalBinary(b expr.Binary, locals map[string]any) (any, error) {
	left, err := evalNode(b.Left, locals)
	if err != nil {
		return nil, err
	}

	// and/or short-circuit and yield an operand value rather than a bool.
	switch b.Op {
	case token.AND:
		if !truthy(left) {
			return left, nil
		}
		return evalNode(b.Right, locals)
	case token.OR:
		if truthy(left) {
			return left, nil
		}
		return evalNode(b.Right, locals)
	}

	right, err := evalNode(b.Right, locals)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case token.EQ:
		return ValuesEqual(left, right), nil
	case token.NE:
		return !ValuesEqual(left, right), nil
	case token.LT, token.LE, token.GT, token.GE:
		return compareOrdered(b.Op, left, right)
	}

	// Remaining operators are arithmetic; + also concatenates strings.
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok && b.Op == token.PLUS {
			return ls + rs, nil
		}
	}
	lf, lok := left.(float64)
	rf, rok := right.(float64)
	if !lok || !rok {
		return nil, fmt.Errorf("unsupported operand types for %s: %T and %T", b.Op, left, right)
	}
	switch b.Op {
	case token.PLUS:
		return lf + rf, nil
	case token.MINUS:
		return lf - rf, nil
	case token.STAR:
		return lf * rf, nil
	case token.SLASH:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case token.FLOORDIV:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Floor(lf / rf), nil
	case token.PERCENT:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	case token.POWER:
		return math.Pow(lf, rf), nil
	default:
		return nil, fmt.Errorf("unknown operator %s", b.Op)
	}
}

func compareOrdered(op token.Token, left, right any) (any, error) {
	var cmp int
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot compare %T with %T", left, right)
		}
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	case string:
		r, ok := right.(string)
		if !ok {
			return nil, fmt.Errorf("cannot compare %T with %T", left, right)
		}
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	default:
		return nil, fmt.Errorf("cannot compare %T with %T", left, right)
	}
	switch op {
	case token.LT:
		return cmp < 0, nil
	case token.LE:
		return cmp <= 0, nil
	case token.GT:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func evalCall(c expr.Call, locals map[string]any) (any, error) {
	var callee any
	if v, ok := locals[c.Func]; ok {
		callee = v
	} else if v, ok := Globals[c.Func]; ok {
		callee = v
	} else {
		return nil, fmt.Errorf("%w: %s", ErrUndefinedName, c.Func)
	}
	fn, ok := callee.(Builtin)
	if !ok {
		return nil, fmt.Errorf("%s is not callable", c.Func)
	}

	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := evalNode(a, locals)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	var kwargs map[string]any
	if len(c.Kwargs) > 0 {
		kwargs = make(map[string]any, len(c.Kwargs))
		for _, k := range c.Kwargs {
			v, err := evalNode(k.Value, locals)
			if err != nil {
				return nil, err
			}
			kwargs[k.Name] = v
		}
	}
	return fn(args, kwargs)
}

// truthy follows the formula language's notion of truth: False, zero, the
// empty string, the empty list, and None are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

// ValuesEqual reports whether two resolved values are equal. Used both by
// the == operator and by per-round change detection.
func ValuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
