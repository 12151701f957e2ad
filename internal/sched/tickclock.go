// internal/sched/tickclock.go

package sched

import (
	"context"
	"time"
)

// pollClock paces the driver loop.
type pollClock struct {
	ticker *time.Ticker
}

func newPollClock(interval time.Duration) *pollClock {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &pollClock{ticker: time.NewTicker(interval)}
}

// wait blocks until the next poll is due. It returns false once ctx is
// done. Ticks missed while the loop was busy are dropped, the root counter
// picks the time up on the next poll anyway.
func (c *pollClock) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.ticker.C:
		return true
	}
}

func (c *pollClock) stop() {
	c.ticker.Stop()
}
