// internal/tick/scale.go

package tick

import "golang.org/x/exp/constraints"

// Scale turns scale ticks of one unit into a single tick of the next,
// coarser unit. C is the accumulator width, A the incoming amount width
// and N the width of the downstream chain.
//
// At most one tick is emitted per Advance. An amount larger than the scale
// factor leaves the excess in the accumulator, where later calls carry it
// out one period at a time.
type Scale[C, A, N constraints.Unsigned] struct {
	accumulator[C, A]
	Link[N]
	scale C
}

// NewScale returns a scale node at zero forwarding to the terminator.
func NewScale[C, A, N constraints.Unsigned](scale C) (*Scale[C, A, N], error) {
	if scale == 0 {
		return nil, ErrZeroScale
	}
	return &Scale[C, A, N]{scale: scale}, nil
}

// MustScale is NewScale for fixed wiring; it panics on a zero scale.
func MustScale[C, A, N constraints.Unsigned](scale C) *Scale[C, A, N] {
	s, err := NewScale[C, A, N](scale)
	if err != nil {
		panic(err)
	}
	return s
}

// Scale returns the number of incoming ticks per outgoing tick.
func (s *Scale[C, A, N]) Scale() C { return s.scale }

func (s *Scale[C, A, N]) Advance(amount A) {
	s.increment(amount)
	if s.Elapsed(s.scale) {
		s.Next().Advance(1)
	}
}
