package job

import (
	"context"
	"fmt"
	"io"

	"github.com/bitmark-inc/logger"

	"tickchain/internal/sched"
)

// Work runs inside the poll loop, so it should return quickly.
type Work = func(ctx context.Context) error

// Print returns a runnable that writes one line per run.
func Print(w io.Writer, format string, args ...interface{}) Work {
	return func(ctx context.Context) error {
		_, err := fmt.Fprintf(w, format+"\n", args...)
		return err
	}
}

// Log returns a runnable that logs msg at info level.
func Log(log *logger.L, msg string) Work {
	return func(ctx context.Context) error {
		log.Infof("%s", msg)
		return nil
	}
}

// Toggle flips *state on every run, like blinking an LED.
func Toggle(state *bool) Work {
	return func(ctx context.Context) error {
		*state = !*state
		return nil
	}
}

// Limit wraps work so the task retires itself after n successful runs.
func Limit(n int, work Work) Work {
	remaining := n
	return func(ctx context.Context) error {
		if remaining <= 0 {
			return sched.ErrDone
		}
		if err := work(ctx); err != nil {
			return err
		}
		remaining--
		if remaining == 0 {
			return sched.ErrDone
		}
		return nil
	}
}
