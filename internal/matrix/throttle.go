package matrix

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	minRetryDelay = 500 * time.Millisecond
	maxRetryDelay = 30 * time.Second
)

// backoff spaces out retries of a failing request. Every consecutive failure
// doubles the delay up to maxRetryDelay; a success resets it.
type backoff struct {
	limiter *rate.Limiter

	mu    sync.Mutex
	delay time.Duration
}

func newBackoff() *backoff {
	return &backoff{
		limiter: rate.NewLimiter(rate.Every(minRetryDelay), 1),
		delay:   minRetryDelay,
	}
}

// fail records a failure and blocks until the next attempt is allowed.
func (b *backoff) fail(ctx context.Context) error {
	b.mu.Lock()
	b.limiter.SetLimit(rate.Every(b.delay))
	b.delay *= 2
	if b.delay > maxRetryDelay {
		b.delay = maxRetryDelay
	}
	b.mu.Unlock()
	return b.limiter.Wait(ctx)
}

func (b *backoff) reset() {
	b.mu.Lock()
	b.delay = minRetryDelay
	b.limiter.SetLimit(rate.Every(minRetryDelay))
	b.mu.Unlock()
}

// current returns the delay the next failure will wait for.
func (b *backoff) current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delay
}
