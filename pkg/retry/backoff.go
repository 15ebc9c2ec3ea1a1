package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff implements exponential backoff with jitter.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	base    time.Duration
	rand    func() float64
}

// NewBackoff creates a new backoff with the given initial and max durations.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		initial: initial,
		max:     max,
		base:    initial,
		rand:    rand.Float64,
	}
}

// Next returns the delay before the next retry and doubles the base.
// The delay is uniform in [d, 2d) where d = min(base, max).
func (b *Backoff) Next() time.Duration {
	d := b.base
	if d > b.max {
		d = b.max
	}
	delay := d + time.Duration(b.rand()*float64(d))

	b.base *= 2
	if b.base > b.max {
		b.base = b.max
	}
	return delay
}

// Wait sleeps for Next() or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	return sleepContext(ctx, b.Next())
}

// Reset resets the backoff to the initial duration.
func (b *Backoff) Reset() {
	b.base = b.initial
}

// Current returns the current base duration.
func (b *Backoff) Current() time.Duration {
	return b.base
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
