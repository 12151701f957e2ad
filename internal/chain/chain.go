// internal/chain/chain.go

package chain

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/lists/arraylist"

	"tickchain/internal/tick"
)

var (
	ErrDuplicateStage = errors.New("chain: duplicate stage name")
	ErrEmptyStageName = errors.New("chain: empty stage name")
	ErrNoSuchStage    = errors.New("chain: no such stage")
	ErrPollTooSlow    = errors.New("chain: poll interval exceeds the finest stage's scale")
)

type (
	rootNode  = tick.Root[uint32, uint16]
	scaleNode = tick.Scale[uint16, uint16, uint16]
	tapNode   = tick.Counter[uint32, uint16]
)

// Stage is one scale node of a built chain together with the tap that
// counts what it hands downstream.
type Stage struct {
	name  string
	index int
	node  *scaleNode
	tap   *tapNode
}

// Name returns the unit this stage emits.
func (s *Stage) Name() string { return s.name }

// Index is the position of the stage, 0 being the finest.
func (s *Stage) Index() int { return s.index }

// Scale returns how many incoming ticks make one outgoing tick.
func (s *Stage) Scale() uint16 { return s.node.Scale() }

// Pending returns the ticks accumulated towards the next carry.
func (s *Stage) Pending() uint16 { return s.node.Value() }

// Emitted returns the number of ticks this stage has carried out, modulo
// 2^32.
func (s *Stage) Emitted() uint32 { return s.tap.Value() }

// Elapsed reports whether at least period incoming ticks are pending and,
// if so, consumes them. Consuming ticks here delays this stage's own
// carries by the same amount.
func (s *Stage) Elapsed(period uint16) bool { return s.node.Elapsed(period) }

// Chain is a root counter followed by an ordered list of scale stages,
// built once and then polled from a single goroutine.
type Chain struct {
	rootName string
	root     *rootNode
	stages   *arraylist.List // of *Stage, finest first
	byName   map[string]*Stage
}

// Build wires a chain from cfg, coarsest stage first, and binds the root
// to the finest stage. The root is synced to src so the first Update only
// counts time from the build.
func Build(src tick.Source[uint32], cfg Config) (*Chain, error) {
	root, err := tick.NewRoot[uint32, uint16](src)
	if err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, ErrEmptyStageName
	}
	if cfg.PollMS > cfg.MaxStep() {
		return nil, fmt.Errorf("%w: %d > %d", ErrPollTooSlow, cfg.PollMS, cfg.MaxStep())
	}

	c := &Chain{
		rootName: cfg.Root,
		root:     root,
		stages:   arraylist.New(),
		byName:   make(map[string]*Stage, len(cfg.Stages)),
	}

	built := make([]*Stage, len(cfg.Stages))
	for i, sc := range cfg.Stages {
		if sc.Name == "" {
			return nil, ErrEmptyStageName
		}
		if _, dup := c.byName[sc.Name]; dup || sc.Name == cfg.Root {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStage, sc.Name)
		}
		node, err := tick.NewScale[uint16, uint16, uint16](sc.Scale)
		if err != nil {
			return nil, fmt.Errorf("chain: stage %q: %w", sc.Name, err)
		}
		built[i] = &Stage{
			name:  sc.Name,
			index: i,
			node:  node,
			tap:   tick.NewCounter[uint32, uint16](),
		}
		c.byName[sc.Name] = built[i]
	}

	// bottom-up: each stage binds to the one below it
	for i := len(built) - 1; i >= 0; i-- {
		s := built[i]
		if i+1 < len(built) {
			if err := s.node.Bind(built[i+1].node); err != nil {
				return nil, err
			}
		}
		if err := s.node.Prepend(s.tap); err != nil {
			return nil, err
		}
	}
	if len(built) > 0 {
		if err := root.Bind(built[0].node); err != nil {
			return nil, err
		}
	}

	for _, s := range built {
		c.stages.Add(s)
	}
	root.Sync()
	return c, nil
}

// Update polls the source once and returns the milliseconds (or whatever
// the root unit is) that were fed into the chain.
func (c *Chain) Update() uint16 { return c.root.Update() }

// RootName returns the name of the finest unit.
func (c *Chain) RootName() string { return c.rootName }

// Total returns the root ticks fed in so far, modulo 2^32.
func (c *Chain) Total() uint32 { return c.root.Value() }

// Len returns the number of scale stages.
func (c *Chain) Len() int { return c.stages.Size() }

// Stage looks a stage up by name.
func (c *Chain) Stage(name string) (*Stage, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// StageAt returns the i-th stage, 0 being the finest.
func (c *Chain) StageAt(i int) (*Stage, bool) {
	v, ok := c.stages.Get(i)
	if !ok {
		return nil, false
	}
	return v.(*Stage), true
}

// Stages returns all stages, finest first.
func (c *Chain) Stages() []*Stage {
	out := make([]*Stage, 0, c.stages.Size())
	it := c.stages.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*Stage))
	}
	return out
}

// Attach splices node in directly after the named stage, or after the
// root when name is the root's name, so it sees every tick that unit
// emits. Attach is for startup wiring only.
func (c *Chain) Attach(name string, node tick.Chainable[uint16]) error {
	if name == c.rootName {
		return c.root.Prepend(node)
	}
	s, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchStage, name)
	}
	return s.tap.Prepend(node)
}

// Rank orders units finest first: the root is -1, stages their index.
func (c *Chain) Rank(name string) (int, bool) {
	if name == c.rootName {
		return -1, true
	}
	s, ok := c.byName[name]
	if !ok {
		return 0, false
	}
	return s.index, true
}

// StageSnapshot is a point-in-time view of a stage.
type StageSnapshot struct {
	Name    string
	Pending uint16
	Emitted uint32
}

// Snapshot captures every stage, finest first.
func (c *Chain) Snapshot() []StageSnapshot {
	out := make([]StageSnapshot, 0, c.stages.Size())
	c.stages.Each(func(_ int, v interface{}) {
		s := v.(*Stage)
		out = append(out, StageSnapshot{Name: s.name, Pending: s.Pending(), Emitted: s.Emitted()})
	})
	return out
}
