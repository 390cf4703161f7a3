package backend

import (
	"context"
	"sync"

	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/logging/events"
)

// Kind represents the type of notification emitted by the watcher.
type Kind int

const (
	KindRoomList Kind = iota
)

// Event reports the outcome of one reconciled batch.
type Event struct {
	Kind Kind
	Data interface{}
	Err  error
}

// BatchHandler reconciles one room-list diff batch into local state.
type BatchHandler func(ctx context.Context, batch []diff.Op[Room]) (interface{}, error)

// Watcher consumes the client's room-list stream for the lifetime of the
// application, handing every batch to a BatchHandler in arrival order.
type Watcher struct {
	ctx    context.Context
	cancel context.CancelFunc

	events chan Event
	wg     sync.WaitGroup
}

// NewWatcher starts consuming client.RoomList(). Batches are handled
// sequentially on a single goroutine.
func NewWatcher(parent context.Context, client Client, handle BatchHandler) *Watcher {
	ctx, cancel := context.WithCancel(parent)
	w := &Watcher{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
	}

	w.wg.Add(1)
	go w.consume(client.RoomList(), handle)

	go func() {
		w.wg.Wait()
		close(w.events)
	}()

	return w
}

// Events returns a channel of reconciliation notifications. Notifications
// are dropped while the channel is full; state is always read from the
// stores, never from the notification.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop cancels the watcher. A batch being handled is completed first; use
// Wait if a clean drain is required (e.g. in tests).
func (w *Watcher) Stop() {
	w.cancel()
}

// Wait blocks until the consumer goroutine has exited and the events channel
// is closed. Call after Stop when a clean shutdown is required.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) consume(stream <-chan []diff.Op[Room], handle BatchHandler) {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case batch, ok := <-stream:
			if !ok {
				events.RoomList.Closed()
				return
			}
			data, err := handle(w.ctx, batch)
			w.publish(Event{Kind: KindRoomList, Data: data, Err: err})
		}
	}
}

func (w *Watcher) publish(evt Event) {
	select {
	case w.events <- evt:
	default:
	}
}
