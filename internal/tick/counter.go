// internal/tick/counter.go

package tick

import "golang.org/x/exp/constraints"

// accumulator holds the running count of a node. C is the storage width,
// A the width of the amounts it is advanced by.
type accumulator[C, A constraints.Unsigned] struct {
	counter C
}

func (a *accumulator[C, A]) increment(amount A) {
	a.counter += C(amount)
}

// Value returns the accumulated count.
func (a *accumulator[C, A]) Value() C { return a.counter }

// Reset clears the accumulated count.
func (a *accumulator[C, A]) Reset() { a.counter = 0 }

// Elapsed reports whether at least period ticks have accumulated. When it
// does, period ticks are consumed; otherwise the count is left alone.
func (a *accumulator[C, A]) Elapsed(period C) bool {
	if a.counter < period {
		return false
	}
	a.counter -= period
	return true
}

// Counter accumulates what it is advanced by and passes the same amount
// on. Spliced in after another node it works as a tap that callers can
// poll with Elapsed.
type Counter[C, A constraints.Unsigned] struct {
	accumulator[C, A]
	Link[A]
}

// NewCounter returns a counter at zero that forwards to the terminator.
func NewCounter[C, A constraints.Unsigned]() *Counter[C, A] {
	return &Counter[C, A]{}
}

func (c *Counter[C, A]) Advance(amount A) {
	c.increment(amount)
	c.Next().Advance(amount)
}
