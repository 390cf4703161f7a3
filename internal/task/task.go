// Package task runs cancellable background goroutines. Every goroutine the
// client starts on behalf of a room (timeline feeders, pagination, status
// expiry) is owned by a Handle so it can be aborted at a well defined point.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/getsentry/sentry-go"

	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/atomicstack/multiverse/internal/metrics"
)

// Handle owns one running goroutine.
type Handle struct {
	kind   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Spawn starts fn in a new goroutine with a context derived from parent. The
// goroutine's context is cancelled by Cancel or when parent is done. A panic
// inside fn is recovered, logged and reported instead of crashing the
// process.
func Spawn(parent context.Context, kind string, fn func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{kind: kind, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		defer recoverPanic(ctx, kind)
		fn(ctx)
	}()
	return h
}

func recoverPanic(ctx context.Context, kind string) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("task %s panicked: %v", kind, r)
	metrics.TaskPanics.WithLabelValues(kind).Inc()
	log := logging.Logger("task")
	log.Error().Err(err).Str("stack", string(debug.Stack())).Msg("recovered")
	hubFromContext(ctx).CaptureException(err)
}

// hubFromContext returns the sentry hub attached to ctx, falling back to the
// process-wide hub. The result is never nil.
func hubFromContext(ctx context.Context) *sentry.Hub {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return hub
}

// Cancel aborts the task. It does not wait for the goroutine to return.
// Calling Cancel more than once, or on a nil Handle, is a no-op.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		select {
		case <-h.done:
		default:
			metrics.TasksCancelled.WithLabelValues(h.kind).Inc()
		}
		h.cancel()
	})
}

// Done is closed once the goroutine has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the goroutine has returned.
func (h *Handle) Wait() {
	if h == nil {
		return
	}
	<-h.done
}

// Finished reports whether the goroutine has returned.
func (h *Handle) Finished() bool {
	if h == nil {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Slot holds at most one Handle. Storing a new handle cancels the previous
// one, which is how the client keeps a single pending status expiry and a
// single in-flight pagination.
type Slot struct {
	mu      sync.Mutex
	current *Handle
}

// Replace cancels the held task, if any, and stores h in its place.
func (s *Slot) Replace(h *Handle) {
	s.mu.Lock()
	prev := s.current
	s.current = h
	s.mu.Unlock()
	prev.Cancel()
}

// Cancel cancels and forgets the held task.
func (s *Slot) Cancel() {
	s.Replace(nil)
}

// Current returns the held task, which may be nil.
func (s *Slot) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
