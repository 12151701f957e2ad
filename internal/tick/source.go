// internal/tick/source.go

package tick

import (
	"time"

	"golang.org/x/exp/constraints"
)

// Source is a free running, wrapping counter such as a hardware
// millisecond timer.
type Source[T constraints.Unsigned] interface {
	Now() T
}

// SourceFunc adapts a plain function to Source.
type SourceFunc[T constraints.Unsigned] func() T

func (f SourceFunc[T]) Now() T { return f() }

// Manual is a source that only moves when told to. Used for simulation
// and tests.
type Manual[T constraints.Unsigned] struct {
	now T
}

func (m *Manual[T]) Now() T { return m.now }

// Set jumps the source to v.
func (m *Manual[T]) Set(v T) { m.now = v }

// Add moves the source forward by d, wrapping at the width of T.
func (m *Manual[T]) Add(d T) { m.now += d }

// Millis returns a 32 bit millisecond counter that starts at zero when
// called and wraps after about 49.7 days, like an Arduino millis().
func Millis() Source[uint32] {
	boot := time.Now()
	return SourceFunc[uint32](func() uint32 {
		return uint32(time.Since(boot).Milliseconds())
	})
}
