package sched_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickchain/internal/chain"
	"tickchain/internal/sched"
	"tickchain/internal/tick"
)

func newScheduler(t *testing.T) (*sched.Scheduler, *tick.Manual[uint32]) {
	t.Helper()
	cfg, err := chain.Load("")
	require.NoError(t, err)
	src := &tick.Manual[uint32]{}
	c, err := chain.Build(src, cfg)
	require.NoError(t, err)
	return sched.New(c, time.Millisecond, logger.New("sched")), src
}

// advance moves the source by total in steps, polling after each one.
func advance(s *sched.Scheduler, src *tick.Manual[uint32], total, step uint32) {
	for fed := uint32(0); fed < total; fed += step {
		src.Add(step)
		s.Step(context.Background())
	}
}

func counting(n *int) func(context.Context) error {
	return func(context.Context) error {
		*n++
		return nil
	}
}

func TestTaskRunsEveryPeriod(t *testing.T) {
	s, src := newScheduler(t)

	var tenths, seconds, fives int
	require.NoError(t, s.Add(sched.NewTask(1, "decisecond", 1, counting(&tenths))))
	require.NoError(t, s.Add(sched.NewTask(2, "second", 1, counting(&seconds))))
	require.NoError(t, s.Add(sched.NewTask(3, "second", 5, counting(&fives))))
	assert.Equal(t, 3, s.Len())

	advance(s, src, 12000, 20)

	assert.Equal(t, 120, tenths)
	assert.Equal(t, 12, seconds)
	assert.Equal(t, 2, fives)
	assert.Equal(t, uint64(2), s.Runs(3))
	assert.Equal(t, int64(600), s.Polls())
}

func TestTaskOnRootUnit(t *testing.T) {
	s, src := newScheduler(t)

	var n int
	require.NoError(t, s.Add(sched.NewTask(1, "millisecond", 250, counting(&n))))
	advance(s, src, 1000, 50)
	assert.Equal(t, 4, n)
}

func TestPeriodClamped(t *testing.T) {
	task := sched.NewTask(9, "second", 0, nil)
	assert.Equal(t, uint32(sched.MinPeriod), task.Period)
}

func TestAddRejects(t *testing.T) {
	s, _ := newScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(sched.NewTask(1, "second", 1, noop)))
	assert.ErrorIs(t, s.Add(sched.NewTask(1, "minute", 1, noop)), sched.ErrDuplicateTask)
	assert.ErrorIs(t, s.Add(sched.NewTask(2, "hour", 1, noop)), chain.ErrNoSuchStage)

	s.Step(context.Background())
	assert.ErrorIs(t, s.Add(sched.NewTask(3, "second", 1, noop)), sched.ErrSealed)
}

func TestAddRejectsNilWork(t *testing.T) {
	s, _ := newScheduler(t)
	assert.ErrorIs(t, s.Add(sched.NewTask(1, "second", 1, nil)), sched.ErrNilWork)
	assert.Equal(t, 0, s.Len())
}

func TestCancelledStepKeepsPeriods(t *testing.T) {
	s, src := newScheduler(t)

	var n int
	require.NoError(t, s.Add(sched.NewTask(1, "decisecond", 1, counting(&n))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src.Add(100)
	s.Step(ctx)
	assert.Equal(t, 0, n)

	// the decisecond owed from the cancelled poll is still there
	s.Step(context.Background())
	assert.Equal(t, 1, n)
	s.Step(context.Background())
	assert.Equal(t, 1, n)
}

func TestStepRunsEveryCollectedTask(t *testing.T) {
	s, src := newScheduler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var second int
	require.NoError(t, s.Add(sched.NewTask(1, "decisecond", 1, func(context.Context) error {
		cancel()
		return nil
	})))
	require.NoError(t, s.Add(sched.NewTask(2, "decisecond", 1, counting(&second))))

	src.Add(100)
	s.Step(ctx)
	assert.Equal(t, 1, second, "a cancel during the poll does not drop a consumed period")
}

func TestTaskDoneAndFail(t *testing.T) {
	s, src := newScheduler(t)

	runs := 0
	require.NoError(t, s.Add(sched.NewTask(1, "decisecond", 1, func(context.Context) error {
		runs++
		if runs == 3 {
			return sched.ErrDone
		}
		return nil
	})))
	boom := errors.New("boom")
	fails := 0
	require.NoError(t, s.Add(sched.NewTask(2, "decisecond", 2, func(context.Context) error {
		fails++
		return boom
	})))

	advance(s, src, 1000, 100)

	assert.Equal(t, 3, runs)
	assert.Equal(t, 5, fails, "a failing task stays scheduled")
	assert.Equal(t, 1, s.Len())
}

func TestCancel(t *testing.T) {
	s, src := newScheduler(t)

	var n int
	require.NoError(t, s.Add(sched.NewTask(1, "decisecond", 1, counting(&n))))
	advance(s, src, 300, 100)
	require.NoError(t, s.Cancel(1))
	advance(s, src, 300, 100)

	assert.Equal(t, 3, n)
	assert.Equal(t, 0, s.Len())
	assert.ErrorIs(t, s.Cancel(1), sched.ErrNoSuchTask)
}

func TestTasksRunFinestFirst(t *testing.T) {
	s, src := newScheduler(t)

	var order []sched.TaskID
	record := func(id sched.TaskID) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, id)
			return nil
		}
	}
	require.NoError(t, s.Add(sched.NewTask(1, "second", 1, record(1))))
	require.NoError(t, s.Add(sched.NewTask(7, "decisecond", 10, record(7))))
	require.NoError(t, s.Add(sched.NewTask(3, "decisecond", 10, record(3))))
	require.NoError(t, s.Add(sched.NewTask(5, "millisecond", 1000, record(5))))

	advance(s, src, 1000, 100)
	assert.Equal(t, []sched.TaskID{5, 3, 7, 1}, order)
}

func TestStepEmitsEvents(t *testing.T) {
	s, src := newScheduler(t)

	var n int
	require.NoError(t, s.Add(sched.NewTask(4, "second", 1, counting(&n))))
	advance(s, src, 1000, 100)

	var kinds []sched.StatusKind
	var carries = map[string]uint64{}
	for done := false; !done; {
		select {
		case ev := <-s.StatusChannel():
			kinds = append(kinds, ev.Kind)
			if ev.Kind == sched.StatusCarry {
				carries[ev.Stage] = ev.Count
			}
		default:
			done = true
		}
	}

	assert.Equal(t, sched.StatusAdd, kinds[0])
	assert.Equal(t, sched.StatusRun, kinds[len(kinds)-1])
	assert.Equal(t, map[string]uint64{"decisecond": 10, "second": 1}, carries)
	assert.Equal(t, int64(0), s.Dropped())
}

func TestRunLogsToCSV(t *testing.T) {
	s, src := newScheduler(t)
	path := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, s.EnableCSVLogging(path))

	var n int
	require.NoError(t, s.Add(sched.NewTask(1, "millisecond", 1, counting(&n))))
	src.Add(5)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.GreaterOrEqual(t, s.Polls(), int64(1))
	assert.GreaterOrEqual(t, n, 1)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, []string{"timestamp", "total", "event", "stage", "task_id", "count", "error"}, rows[0])
	assert.Equal(t, "Add", rows[1][2])
	assert.Equal(t, "Run", rows[2][2])
	assert.Equal(t, "5", rows[2][1])

	// the channel is closed once Run returns
	assert.NoError(t, s.Cancel(1))
	assert.Equal(t, int64(1), s.Dropped())
}

func TestDrain(t *testing.T) {
	s, src := newScheduler(t)
	var n int
	require.NoError(t, s.Add(sched.NewTask(1, "decisecond", 1, counting(&n))))
	advance(s, src, 500, 100)

	s.Drain()
	select {
	case ev := <-s.StatusChannel():
		t.Fatalf("unexpected event left after drain: %+v", ev)
	default:
	}
	assert.Equal(t, 5, n)
}
