package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/evlink-labs/evlink/internal/adapters/ws"
	"github.com/evlink-labs/evlink/internal/ports"
)

// Dial retry backoff bounds.
const (
	dialBackoffInitial = 500 * time.Millisecond
	dialBackoffMax     = 10 * time.Second
)

// backoff implements exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{
		initial: initial,
		max:     max,
		current: initial,
	}
}

// Wait sleeps for the current backoff duration and increases it.
// Returns early with the context error if the context ends first.
func (b *backoff) Wait(ctx context.Context) error {
	// Add jitter: ±20%
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	sleep := time.Duration(float64(b.current) + jitter)

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	// Increase for next time
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return nil
}

// Current returns the current backoff duration.
func (b *backoff) Current() time.Duration {
	return b.current
}

// dialWithRetry keeps dialing until the endpoint answers or the
// context ends. The last dial error is returned when the context wins.
func dialWithRetry(ctx context.Context, url string, opts ws.Options, logger ports.Logger) (*ws.Conn, error) {
	bo := newBackoff(dialBackoffInitial, dialBackoffMax)
	for {
		conn, err := ws.Dial(ctx, url, opts)
		if err == nil {
			return conn, nil
		}
		logger.Warn("dial failed, retrying",
			ports.Err(err),
			ports.Duration("backoff", bo.Current()),
		)
		if werr := bo.Wait(ctx); werr != nil {
			return nil, err
		}
	}
}
