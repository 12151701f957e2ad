package sched

import (
	"context"
	"errors"

	"tickchain/internal/tick"
)

// ErrDone is returned by a task's work function to retire the task.
var ErrDone = errors.New("sched: task done")

// MinPeriod is the shortest period a task can ask for.
const MinPeriod = 1

// TaskID uniquely identifies a task in the scheduler.
type TaskID uint64

// Task is an action run every Period ticks of the Stage unit.
type Task struct {
	ID     TaskID
	Stage  string                          // unit the period is counted in, e.g. "second" or the root's name
	Period uint32                          // ticks of Stage between runs
	Run    func(ctx context.Context) error // work function; return ErrDone to stop being scheduled

	tap  *tick.Counter[uint32, uint16] // counts Stage ticks since the task was added
	rank int                           // position of Stage in the chain, finest first
}

// NewTask creates a task. The tap is wired when the task is added.
func NewTask(id TaskID, stage string, period uint32, work func(ctx context.Context) error) *Task {
	// clamp period within the legal region.
	if period < MinPeriod {
		period = MinPeriod
	}

	return &Task{
		ID:     id,
		Stage:  stage,
		Period: period,
		Run:    work,
	}
}

// due consumes one period from the tap if it has passed. A task falling
// more than one period behind catches up one run per poll.
func (t *Task) due() bool {
	return t.tap.Elapsed(t.Period)
}
