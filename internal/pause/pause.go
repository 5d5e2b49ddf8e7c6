// Package pause sleeps in short steps so that cancellation is noticed within
// one step.
package pause

import (
	"context"
	"time"
)

// DefaultTick is the cancellation granularity used when none is given.
const DefaultTick = time.Second

// For blocks for d, checking ctx before every tick. It returns ctx.Err() as
// soon as cancellation is observed, nil once d has elapsed.
func For(ctx context.Context, d, tick time.Duration) error {
	if tick <= 0 {
		tick = DefaultTick
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for remaining := d; remaining > 0; remaining -= tick {
		step := tick
		if remaining < tick {
			step = remaining
		}
		timer.Reset(step)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ctx.Err()
}

// Ticks sleeps n whole ticks.
func Ticks(ctx context.Context, n int, tick time.Duration) error {
	if tick <= 0 {
		tick = DefaultTick
	}
	return For(ctx, time.Duration(n)*tick, tick)
}
