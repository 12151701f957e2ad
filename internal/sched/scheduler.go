// internal/sched/scheduler.go

package sched

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/emirpasic/gods/trees/redblacktree"

	"tickchain/internal/chain"
	"tickchain/internal/tick"
)

var (
	ErrDuplicateTask = errors.New("sched: task already exists")
	ErrNilWork       = errors.New("sched: task has no work function")
	ErrNoSuchTask    = errors.New("sched: no such task")
	ErrSealed        = errors.New("sched: chain already running")
)

// Scheduler drives a chain from a single goroutine and runs periodic
// tasks off the ticks its stages emit.
type Scheduler struct {
	// chain-related
	mu       sync.Mutex         // protects the chain and the task queue
	chain    *chain.Chain       // the counters being polled
	interval time.Duration      // time between polls in Run
	rbt      *redblacktree.Tree // tasks ordered by stage rank and task ID
	tasks    map[TaskID]*Task   // map of all tasks by ID
	runs     map[TaskID]uint64  // cumulative runs per task
	emitted  []uint32           // stage Emitted() at the previous poll
	sealed   bool               // set by the first poll; no wiring after it
	polls    atomic.Int64       // polls performed so far
	dropped  atomic.Int64       // events lost to a full status channel
	statusCh chan StatusEvent   // channel for status events
	chMu     sync.Mutex         // guards sends against the close in loop
	closed   bool

	// logging-related
	log       *logger.L
	csvFile   *os.File
	csvWriter *csv.Writer
}

// New creates a scheduler over c polling every interval.
func New(c *chain.Chain, interval time.Duration, log *logger.L) *Scheduler {
	return &Scheduler{
		chain:    c,
		interval: interval,
		rbt:      redblacktree.NewWith(cmp),
		tasks:    make(map[TaskID]*Task),
		runs:     make(map[TaskID]uint64),
		emitted:  make([]uint32, c.Len()),
		statusCh: make(chan StatusEvent, 256), // buffered channel for status events
		log:      log,
	}
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (s *Scheduler) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"timestamp", "total", "event", "stage", "task_id", "count", "error"}); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	s.csvFile = f
	s.csvWriter = w
	return nil
}

// StatusChannel exposes read-only stream (optional consumers).
func (s *Scheduler) StatusChannel() <-chan StatusEvent { return s.statusCh }

// Polls returns the number of polls performed.
func (s *Scheduler) Polls() int64 { return s.polls.Load() }

// Dropped returns the number of events lost because nobody was reading.
func (s *Scheduler) Dropped() int64 { return s.dropped.Load() }

// Runs returns how many times the task has run.
func (s *Scheduler) Runs(id TaskID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

// Add wires a tap for the task after its stage and queues it. Tasks can
// only be added before the first poll.
func (s *Scheduler) Add(t *Task) error {
	s.mu.Lock()

	if s.sealed {
		s.mu.Unlock()
		return ErrSealed
	}
	if t.Run == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNilWork, t.ID)
	}
	if _, dup := s.tasks[t.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDuplicateTask, t.ID)
	}
	rank, ok := s.chain.Rank(t.Stage)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", chain.ErrNoSuchStage, t.Stage)
	}

	tap := tick.NewCounter[uint32, uint16]()
	if err := s.chain.Attach(t.Stage, tap); err != nil {
		s.mu.Unlock()
		return err
	}
	t.tap = tap
	t.rank = rank
	s.rbt.Put(nodeKey{rank, t.ID}, t)
	s.tasks[t.ID] = t
	s.runs[t.ID] = 0

	ev := StatusEvent{
		Time:   time.Now(),
		Kind:   StatusAdd,
		Stage:  t.Stage,
		TaskID: t.ID,
		Total:  s.chain.Total(),
	}
	s.mu.Unlock()
	s.emit(ev)
	return nil
}

// Cancel removes a task. Its tap stays in the chain and keeps counting,
// nothing reads it any more.
func (s *Scheduler) Cancel(id TaskID) error {
	s.mu.Lock()

	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSuchTask, id)
	}
	s.rbt.Remove(nodeKey{t.rank, t.ID})
	delete(s.tasks, id)

	ev := StatusEvent{
		Time:   time.Now(),
		Kind:   StatusCancel,
		Stage:  t.Stage,
		TaskID: id,
		Count:  s.runs[id],
		Total:  s.chain.Total(),
	}
	s.mu.Unlock()
	s.emit(ev)
	return nil
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rbt.Size()
}

// Step polls the chain once, reports stages that carried and runs every
// task whose period has passed, finest stage first.
func (s *Scheduler) Step(ctx context.Context) {
	// 1) advance the chain
	s.mu.Lock()
	s.sealed = true
	s.chain.Update()
	s.polls.Add(1)
	total := s.chain.Total()

	var events []StatusEvent
	for i, st := range s.chain.Stages() {
		e := st.Emitted()
		if e == s.emitted[i] {
			continue
		}
		s.emitted[i] = e
		events = append(events, StatusEvent{
			Time:  time.Now(),
			Kind:  StatusCarry,
			Stage: st.Name(),
			Count: uint64(e),
			Total: total,
		})
	}

	// 2) collect due tasks in queue order; once ctx is done periods are
	// left on the taps for a later poll
	var due []*Task
	if ctx.Err() == nil {
		it := s.rbt.Iterator()
		for it.Next() {
			t := it.Value().(*Task)
			if t.due() {
				due = append(due, t)
			}
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.emit(ev)
	}

	// 3) run them outside the lock; a collected task always runs
	for _, t := range due {
		err := t.Run(ctx)

		s.mu.Lock()
		s.runs[t.ID]++
		ev := StatusEvent{
			Time:   time.Now(),
			Kind:   StatusRun,
			Stage:  t.Stage,
			TaskID: t.ID,
			Count:  s.runs[t.ID],
			Total:  total,
			Err:    err,
		}
		switch {
		case errors.Is(err, ErrDone):
			ev.Kind = StatusDone
			ev.Err = nil
			if _, live := s.tasks[t.ID]; live {
				s.rbt.Remove(nodeKey{t.rank, t.ID})
				delete(s.tasks, t.ID)
			}
		case err != nil:
			ev.Kind = StatusFail
		}
		s.mu.Unlock()
		s.emit(ev)
	}
}

// Run polls the chain every interval until ctx is done, logging events as
// they arrive. It returns once all events have been handled.
func (s *Scheduler) Run(ctx context.Context) error {
	// start loop
	go s.loop(ctx)

	// consume events
	for ev := range s.statusCh {
		s.handleEvent(ev)
	}

	if s.csvFile != nil {
		s.csvWriter.Flush()
		if err := s.csvWriter.Error(); err != nil {
			s.csvFile.Close()
			return err
		}
		return s.csvFile.Close()
	}

	return nil
}

// Drain handles every event queued so far without blocking. It is the
// consumer for callers that drive Step themselves.
func (s *Scheduler) Drain() {
	for {
		select {
		case ev, ok := <-s.statusCh:
			if !ok {
				return
			}
			s.handleEvent(ev)
		default:
			if s.csvWriter != nil {
				s.csvWriter.Flush()
			}
			return
		}
	}
}

// loop is the only goroutine touching the chain while Run is active.
func (s *Scheduler) loop(ctx context.Context) {
	clock := newPollClock(s.interval)
	defer func() {
		// release the ticker and end the consumer
		clock.stop()
		s.chMu.Lock()
		s.closed = true
		close(s.statusCh)
		s.chMu.Unlock()
	}()

	for clock.wait(ctx) {
		s.Step(ctx)
	}
}

// emit never blocks the poll loop; events are dropped when the channel is
// full.
func (s *Scheduler) emit(ev StatusEvent) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.statusCh <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Scheduler) handleEvent(ev StatusEvent) {
	total := ev.Total

	switch ev.Kind {
	case StatusCarry:
		// carries happen every decisecond or so, keep them out of info
		s.log.Debugf("total: %d  stage: %s  emitted: %d", total, ev.Stage, ev.Count)
	case StatusFail:
		s.log.Warnf("total: %d  task: %d (%s) failed on run %d: %v", total, ev.TaskID, ev.Stage, ev.Count, ev.Err)
	default:
		s.log.Infof("total: %d  %s  task: %d (%s)  runs: %d", total, ev.Kind, ev.TaskID, ev.Stage, ev.Count)
	}

	// CSV output
	if s.csvWriter != nil {
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			strconv.FormatUint(uint64(total), 10),
			ev.Kind.String(),
			ev.Stage,
			strconv.FormatUint(uint64(ev.TaskID), 10),
			strconv.FormatUint(ev.Count, 10),
			errText,
		}
		if err := s.csvWriter.Write(rec); err != nil {
			s.log.Errorf("csv write: %v", err)
		}
	}
}

// nodeKey is used as a key in the red-black tree.
type nodeKey struct {
	rank int
	id   TaskID
}

// cmp orders tasks finest stage first, then by ID.
func cmp(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	switch {
	case ka.rank < kb.rank:
		return -1
	case ka.rank > kb.rank:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}
