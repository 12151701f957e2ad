// internal/tick/root.go

package tick

import "golang.org/x/exp/constraints"

// Root samples a Source and feeds the elapsed ticks into its chain. R is
// the width of the source, A the (usually narrower) width of the deltas.
//
// Update must be called at least once per wrap period of A, otherwise the
// elapsed time is silently undercounted.
type Root[R, A constraints.Unsigned] struct {
	Counter[R, A]
	source Source[R]
	last   R
}

// NewRoot returns a root reading src whose last sample is zero.
func NewRoot[R, A constraints.Unsigned](src Source[R]) (*Root[R, A], error) {
	if src == nil {
		return nil, ErrNilSource
	}
	return &Root[R, A]{source: src}, nil
}

// Update samples the source, advances the chain by the ticks elapsed
// since the previous sample and returns that delta.
func (r *Root[R, A]) Update() A {
	now := r.source.Now()
	// unsigned subtraction is correct across a wrap of the source
	delta := A(now - r.last)
	r.last = now
	r.Advance(delta)
	return delta
}

// Sync takes a sample without advancing, so the next Update only counts
// time from here.
func (r *Root[R, A]) Sync() {
	r.last = r.source.Now()
}

// Last returns the most recent raw sample.
func (r *Root[R, A]) Last() R { return r.last }
