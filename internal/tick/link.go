// internal/tick/link.go

package tick

import (
	"errors"

	"golang.org/x/exp/constraints"
)

var (
	ErrAlreadyBound = errors.New("tick: downstream link already bound")
	ErrCycle        = errors.New("tick: link would close a cycle")
	ErrFanIn        = errors.New("tick: node already has an upstream")
	ErrNilNode      = errors.New("tick: nil node")
	ErrNilSource    = errors.New("tick: nil tick source")
	ErrZeroScale    = errors.New("tick: scale factor must be positive")
)

// Advancer is anything in a chain that can be told that time has passed.
// Advance must not block and may call at most one downstream Advance.
type Advancer[A constraints.Unsigned] interface {
	Advance(amount A)
}

// terminator absorbs every notification. It has no state, so every value
// of it is the same sink.
type terminator[A constraints.Unsigned] struct{}

func (terminator[A]) Advance(A) {}

// Terminator returns the sink that caps every chain.
func Terminator[A constraints.Unsigned]() Advancer[A] {
	return terminator[A]{}
}

// Chainable is a node that both accepts ticks of width N and owns a link
// of the same width, so it can be spliced into an existing chain.
type Chainable[N constraints.Unsigned] interface {
	Advancer[N]
	link() *Link[N]
}

// walker lets cycle detection follow links across nodes of different
// widths.
type walker interface {
	linkID() any
	successor() any
	fed() bool
	feed()
}

// Link is the downstream reference held by a node. The zero value points
// at the terminator.
type Link[N constraints.Unsigned] struct {
	next     Advancer[N]
	bound    bool
	upstream bool // some other link points at the node owning this one
}

// Next returns the downstream node, never nil.
func (l *Link[N]) Next() Advancer[N] {
	if l.next == nil {
		return Terminator[N]()
	}
	return l.next
}

// Bound reports whether Bind or Prepend has set this link.
func (l *Link[N]) Bound() bool { return l.bound }

// Bind sets the downstream node. It may be called once, and a node from
// this package can only be the downstream of one link.
func (l *Link[N]) Bind(node Advancer[N]) error {
	if node == nil {
		return ErrNilNode
	}
	if l.bound {
		return ErrAlreadyBound
	}
	if reaches(node, l) {
		return ErrCycle
	}
	w, tracked := any(node).(walker)
	if tracked && w.fed() {
		return ErrFanIn
	}
	if tracked {
		w.feed()
	}
	l.next = node
	l.bound = true
	return nil
}

// Prepend splices node in directly after this link: node inherits the
// current downstream and this link then points at node.
func (l *Link[N]) Prepend(node Chainable[N]) error {
	if node == nil {
		return ErrNilNode
	}
	nl := node.link()
	if nl == l || reaches(l.Next(), nl) {
		return ErrCycle
	}
	if nl.bound {
		return ErrAlreadyBound
	}
	if nl.upstream {
		return ErrFanIn
	}
	nl.upstream = true
	nl.next = l.next
	nl.bound = l.bound
	l.next = node
	l.bound = true
	return nil
}

func (l *Link[N]) link() *Link[N] { return l }

func (l *Link[N]) linkID() any { return l }

func (l *Link[N]) fed() bool { return l.upstream }

func (l *Link[N]) feed() { l.upstream = true }

func (l *Link[N]) successor() any {
	if l.next == nil {
		return nil
	}
	return l.next
}

// reaches walks from node along its links and reports whether target is
// one of them.
func reaches[N constraints.Unsigned](node any, target *Link[N]) bool {
	for node != nil {
		w, ok := node.(walker)
		if !ok {
			return false
		}
		if w.linkID() == any(target) {
			return true
		}
		node = w.successor()
	}
	return false
}
