// Package choice implements the trial sequence generators.
//
// Each generator is constructed from a non-empty collection and yields one
// element per call to Next. The order depends on the algorithm. Generators
// never modify the caller's collection; every constructor works on a
// shallow copy. Bounded generators return ErrExhausted once the declared
// number of cycles has been consumed; a generator restarts only by
// reconstruction.
package choice

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ErrExhausted is returned by Next when a bounded sequence has no further
// elements. Callers distinguish it from ordinary errors to decide between
// catch-and-reset and ending the run.
var ErrExhausted = errors.New("sequence exhausted")

// ErrEmptySequence is returned when a generator is constructed from an
// empty collection.
var ErrEmptySequence = errors.New("cannot use an empty sequence")

// Sequence produces one value per call. It is not safe for concurrent use;
// exactly one round is ever active.
type Sequence interface {
	Next() (any, error)
}

// Unbounded requests an unlimited number of cycles.
const Unbounded = 0

// newRand returns an independent random source so that replaying one
// generator cannot be perturbed by other randomness in the system. A zero
// seed selects an arbitrary seed.
func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewSource(rand.Int63()))
	}
	return rand.New(rand.NewSource(seed))
}

func checkSequence(values []any) ([]any, error) {
	if len(values) == 0 {
		return nil, ErrEmptySequence
	}
	out := make([]any, len(values))
	copy(out, values)
	return out, nil
}

// cycler yields a prepared ordering of the collection for up to cycles
// passes, rebuilding the ordering at each cycle boundary when reorder is
// set.
type cycler struct {
	values  []any
	cycles  int // Unbounded means no limit
	cycle   int
	idx     int
	reorder func([]any)
}

func (c *cycler) Next() (any, error) {
	if c.idx >= len(c.values) {
		c.cycle++
		if c.cycles != Unbounded && c.cycle >= c.cycles {
			return nil, fmt.Errorf("%w after %d cycles", ErrExhausted, c.cycles)
		}
		c.idx = 0
		if c.reorder != nil {
			c.reorder(c.values)
		}
	}
	v := c.values[c.idx]
	c.idx++
	return v, nil
}

func newCycler(values []any, cycles int, reorder func([]any)) (*cycler, error) {
	values, err := checkSequence(values)
	if err != nil {
		return nil, err
	}
	if cycles < 0 {
		return nil, fmt.Errorf("invalid cycle count %d", cycles)
	}
	if reorder != nil {
		reorder(values)
	}
	return &cycler{values: values, cycles: cycles, reorder: reorder}, nil
}

// Ascending yields the collection in ascending order, looping back to the
// beginning at the end of each cycle.
func Ascending(values []any, cycles int) (Sequence, error) {
	return newCycler(values, cycles, func(v []any) { sortValues(v, false) })
}

// Descending yields the collection in descending order each cycle.
func Descending(values []any, cycles int) (Sequence, error) {
	return newCycler(values, cycles, func(v []any) { sortValues(v, true) })
}

// ExactOrder yields the collection in the exact order provided each cycle.
func ExactOrder(values []any, cycles int) (Sequence, error) {
	return newCycler(values, cycles, nil)
}

// ShuffledSet yields each element of the collection exactly once per
// cycle, independently permuting the full collection at every cycle
// boundary.
func ShuffledSet(values []any, cycles int, seed int64) (Sequence, error) {
	rng := newRand(seed)
	return newCycler(values, cycles, func(v []any) {
		rng.Shuffle(len(v), func(i, j int) { v[i], v[j] = v[j], v[i] })
	})
}

// pseudorandomSeq samples uniformly at random with replacement, forever.
type pseudorandomSeq struct {
	values []any
	rng    *rand.Rand
}

func (p *pseudorandomSeq) Next() (any, error) {
	return p.values[p.rng.Intn(len(p.values))], nil
}

// Pseudorandom yields a randomly selected element of the collection, with
// replacement, indefinitely. The optional seed makes the draw sequence
// reproducible.
func Pseudorandom(values []any, seed int64) (Sequence, error) {
	values, err := checkSequence(values)
	if err != nil {
		return nil, err
	}
	return &pseudorandomSeq{values: values, rng: newRand(seed)}, nil
}

// Counterbalanced presents each value of the collection an equal number of
// times over a set of n draws, as equally as integer division allows. At
// the end of a set, a fresh set is built and shuffled. Drawing a number of
// times that is not a multiple of n leaves the current set unbalanced.
func Counterbalanced(values []any, n, cycles int, seed int64) (Sequence, error) {
	values, err := checkSequence(values)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("invalid set size %d", n)
	}
	rng := newRand(seed)
	build := func(set []any) {
		// Split the n slots into one chunk per value; the first n%k
		// chunks absorb the remainder.
		k := len(values)
		pos := 0
		for i, v := range values {
			size := n / k
			if i < n%k {
				size++
			}
			for j := 0; j < size; j++ {
				set[pos] = v
				pos++
			}
		}
		rng.Shuffle(len(set), func(i, j int) { set[i], set[j] = set[j], set[i] })
	}
	set := make([]any, n)
	build(set)
	return &cycler{values: set, cycles: cycles, reorder: build}, nil
}

// sortValues orders numbers numerically and strings lexically, numbers
// before strings. Other value kinds keep their relative order.
func sortValues(values []any, reverse bool) {
	sort.SliceStable(values, func(i, j int) bool {
		if reverse {
			i, j = j, i
		}
		return lessValue(values[i], values[j])
	})
}

func lessValue(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	if aok != bok {
		return aok // numbers sort before strings
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}
