package realtime

import (
	"context"
	"time"

	"github.com/lumenquant/coreengine/service"
)

// IdleWaiter is satisfied by the live feed driver's hand-off queue: it lets
// the clock confirm no datum is in flight before it advances (spec §4.1's
// linearization invariant — a heartbeat tick never preempts a pending
// WaitIdle rendezvous, carried over from the backtest/live parity decision).
type IdleWaiter interface {
	WaitIdle(ctx context.Context) error
}

// LiveClock drives handler.SetTime once per tick, waiting for the feed
// driver's hand-off queue to quiesce before each advance, and runs a
// Scheduler of wall-clock-triggered events.
type LiveClock struct {
	handler   service.RealTimeHandler
	idle      IdleWaiter
	scheduler *Scheduler
	interval  time.Duration
}

// NewLiveClock builds a clock ticking every interval (spec default: one
// second).
func NewLiveClock(handler service.RealTimeHandler, idle IdleWaiter, scheduler *Scheduler, interval time.Duration) *LiveClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &LiveClock{handler: handler, idle: idle, scheduler: scheduler, interval: interval}
}

// Run ticks until ctx is cancelled. Each tick waits for the feed to drain,
// advances the handler's clock, then evaluates scheduled events.
func (c *LiveClock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if c.idle != nil {
				if err := c.idle.WaitIdle(ctx); err != nil {
					return err
				}
			}
			c.handler.SetTime(now)
			if c.scheduler != nil {
				c.scheduler.Update(now)
			}
		}
	}
}

// BacktestClock drives handler.SetTime synchronously from the slice times
// the backtest driver produces; no wall-clock wait is needed since data
// arrives in strict historical order already.
type BacktestClock struct {
	handler   service.RealTimeHandler
	scheduler *Scheduler
}

// NewBacktestClock builds a clock driven by explicit Advance calls.
func NewBacktestClock(handler service.RealTimeHandler, scheduler *Scheduler) *BacktestClock {
	return &BacktestClock{handler: handler, scheduler: scheduler}
}

// Advance sets the handler's time to t and evaluates scheduled events.
func (c *BacktestClock) Advance(t time.Time) {
	c.handler.SetTime(t)
	if c.scheduler != nil {
		c.scheduler.Update(t)
	}
}
