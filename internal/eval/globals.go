package eval

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/bburan/pyexperiment/internal/choice"
)

// Builtin is a function callable from a formula.
type Builtin func(args []any, kwargs map[string]any) (any, error)

// Helper functions draw from their own source so that formula evaluation
// does not disturb the generators' replay behavior.
var helperRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// Globals is the table of functions available to every formula: the
// sequence generator constructors plus a handful of convenience helpers.
var Globals = map[string]any{
	"ascending":       Builtin(builtinCycled(choice.Ascending)),
	"descending":      Builtin(builtinCycled(choice.Descending)),
	"exact_order":     Builtin(builtinCycled(choice.ExactOrder)),
	"shuffled_set":    Builtin(builtinShuffledSet),
	"pseudorandom":    Builtin(builtinPseudorandom),
	"counterbalanced": Builtin(builtinCounterbalanced),
	"toss":            Builtin(builtinToss),
	"h_uniform":       Builtin(builtinHUniform),
	"choice":          Builtin(builtinChoice),
	"imul":            Builtin(builtinImul),
	"octave_space":    Builtin(builtinOctaveSpace),
	"range":           Builtin(builtinRange),
	"uniform":         Builtin(builtinUniform),
	"randint":         Builtin(builtinRandint),
	"time":            Builtin(builtinTime),
}

func wantList(name string, v any) ([]any, error) {
	if l, ok := v.([]any); ok {
		return l, nil
	}
	return nil, fmt.Errorf("%s: expected a sequence, got %T", name, v)
}

func wantNumber(name string, v any) (float64, error) {
	if f, ok := v.(float64); ok {
		return f, nil
	}
	return 0, fmt.Errorf("%s: expected a number, got %T", name, v)
}

func wantInt(name string, v any) (int, error) {
	f, err := wantNumber(name, v)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// cyclesAndSeed pulls the trailing arguments shared by the generator
// constructors, which accept cycles= and seed= keywords.
func cyclesAndSeed(name string, args []any, kwargs map[string]any, pos int) (cycles int, seed int64, err error) {
	cycles = choice.Unbounded
	if len(args) > pos {
		if cycles, err = wantInt(name, args[pos]); err != nil {
			return
		}
	}
	if v, ok := kwargs["cycles"]; ok {
		if cycles, err = wantInt(name, v); err != nil {
			return
		}
	}
	if v, ok := kwargs["seed"]; ok {
		var s int
		if s, err = wantInt(name, v); err != nil {
			return
		}
		seed = int64(s)
	}
	return
}

func builtinCycled(ctor func([]any, int) (choice.Sequence, error)) func([]any, map[string]any) (any, error) {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("generator takes a sequence and an optional cycle count")
		}
		seq, err := wantList("generator", args[0])
		if err != nil {
			return nil, err
		}
		cycles, _, err := cyclesAndSeed("generator", args, kwargs, 1)
		if err != nil {
			return nil, err
		}
		return ctor(seq, cycles)
	}
}

func builtinShuffledSet(args []any, kwargs map[string]any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("shuffled_set takes a sequence and an optional cycle count")
	}
	seq, err := wantList("shuffled_set", args[0])
	if err != nil {
		return nil, err
	}
	cycles, seed, err := cyclesAndSeed("shuffled_set", args, kwargs, 1)
	if err != nil {
		return nil, err
	}
	return choice.ShuffledSet(seq, cycles, seed)
}

func builtinPseudorandom(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("pseudorandom takes a sequence")
	}
	seq, err := wantList("pseudorandom", args[0])
	if err != nil {
		return nil, err
	}
	_, seed, err := cyclesAndSeed("pseudorandom", args, kwargs, 1)
	if err != nil {
		return nil, err
	}
	return choice.Pseudorandom(seq, seed)
}

func builtinCounterbalanced(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("counterbalanced takes a sequence and a set size")
	}
	seq, err := wantList("counterbalanced", args[0])
	if err != nil {
		return nil, err
	}
	n, err := wantInt("counterbalanced", args[1])
	if err != nil {
		return nil, err
	}
	cycles, seed, err := cyclesAndSeed("counterbalanced", args, kwargs, 2)
	if err != nil {
		return nil, err
	}
	return choice.Counterbalanced(seq, n, cycles, seed)
}

// builtinToss flips a coin weighted by x (default 0.5).
func builtinToss(args []any, kwargs map[string]any) (any, error) {
	x := 0.5
	if len(args) > 0 {
		var err error
		if x, err = wantNumber("toss", args[0]); err != nil {
			return nil, err
		}
	}
	return helperRand.Float64() <= x, nil
}

// builtinHUniform returns the hazard probability of an event at sample x
// assuming a uniform distribution over [lb, ub).
func builtinHUniform(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("h_uniform takes x, lb, ub")
	}
	x, err := wantNumber("h_uniform", args[0])
	if err != nil {
		return nil, err
	}
	lb, err := wantNumber("h_uniform", args[1])
	if err != nil {
		return nil, err
	}
	ub, err := wantNumber("h_uniform", args[2])
	if err != nil {
		return nil, err
	}
	switch {
	case x < lb:
		return 0.0, nil
	case x >= ub:
		return 1.0, nil
	default:
		return 1.0 / (ub - x), nil
	}
}

// builtinChoice randomly returns a single value, with replacement, from
// the sequence. For more sophisticated selection see the generators.
func builtinChoice(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("choice takes a sequence")
	}
	seq, err := wantList("choice", args[0])
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, choice.ErrEmptySequence
	}
	return seq[helperRand.Intn(len(seq))], nil
}

// builtinImul coerces x to be an integer multiple of y.
func builtinImul(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("imul takes x and y")
	}
	x, err := wantNumber("imul", args[0])
	if err != nil {
		return nil, err
	}
	y, err := wantNumber("imul", args[1])
	if err != nil {
		return nil, err
	}
	return math.Round(x/y) * y, nil
}

// builtinOctaveSpace returns frequencies from start to end (Hz) spaced at
// the given fraction of an octave, re 1 kHz.
func builtinOctaveSpace(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("octave_space takes start, end, spacing")
	}
	start, err := wantNumber("octave_space", args[0])
	if err != nil {
		return nil, err
	}
	end, err := wantNumber("octave_space", args[1])
	if err != nil {
		return nil, err
	}
	spacing, err := wantNumber("octave_space", args[2])
	if err != nil {
		return nil, err
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("octave_space: spacing must be positive")
	}
	// Snap the endpoints to the closest requested octave.
	lo := math.Round(math.Log2(start/1e3)/spacing) * spacing
	hi := math.Round(math.Log2(end/1e3)/spacing) * spacing
	var out []any
	for i := lo; i <= hi+spacing/2; i += spacing {
		out = append(out, math.Pow(2, i)*1e3)
	}
	return out, nil
}

func builtinRange(args []any, kwargs map[string]any) (any, error) {
	var start, stop, step float64 = 0, 0, 1
	var err error
	switch len(args) {
	case 1:
		if stop, err = wantNumber("range", args[0]); err != nil {
			return nil, err
		}
	case 2, 3:
		if start, err = wantNumber("range", args[0]); err != nil {
			return nil, err
		}
		if stop, err = wantNumber("range", args[1]); err != nil {
			return nil, err
		}
		if len(args) == 3 {
			if step, err = wantNumber("range", args[2]); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("range takes 1 to 3 arguments")
	}
	if step == 0 {
		return nil, fmt.Errorf("range: step must be nonzero")
	}
	var out []any
	if step > 0 {
		for v := start; v < stop; v += step {
			out = append(out, v)
		}
	} else {
		for v := start; v > stop; v += step {
			out = append(out, v)
		}
	}
	return out, nil
}

func builtinUniform(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("uniform takes lo and hi")
	}
	lo, err := wantNumber("uniform", args[0])
	if err != nil {
		return nil, err
	}
	hi, err := wantNumber("uniform", args[1])
	if err != nil {
		return nil, err
	}
	return lo + helperRand.Float64()*(hi-lo), nil
}

// builtinRandint returns an integer-valued draw from [lo, hi).
func builtinRandint(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("randint takes lo and hi")
	}
	lo, err := wantInt("randint", args[0])
	if err != nil {
		return nil, err
	}
	hi, err := wantInt("randint", args[1])
	if err != nil {
		return nil, err
	}
	if hi <= lo {
		return nil, fmt.Errorf("randint: hi must be greater than lo")
	}
	return float64(lo + helperRand.Intn(hi-lo)), nil
}

func builtinTime(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("time takes no arguments")
	}
	return float64(time.Now().UnixNano()) / 1e9, nil
}
