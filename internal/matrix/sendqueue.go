package matrix

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/atomicstack/multiverse/internal/tracing"
)

// outgoing is a message waiting for the homeserver.
type outgoing struct {
	timeline *roomTimeline
	txnID    string
	text     string
}

// sendQueue sends messages in submission order. While disabled, messages are
// held with their local echo visible and sent once the queue is re-enabled.
type sendQueue struct {
	send    func(ctx context.Context, msg outgoing) (string, error)
	enabled atomic.Bool

	// mu serialises sends so held messages go out before new ones.
	mu      sync.Mutex
	pending []outgoing
}

func newSendQueue(send func(ctx context.Context, msg outgoing) (string, error)) *sendQueue {
	q := &sendQueue{send: send}
	q.enabled.Store(true)
	return q
}

func (q *sendQueue) Enabled() bool {
	return q.enabled.Load()
}

// submit sends msg now, or holds it while the queue is disabled. A failed
// send drops the local echo.
func (q *sendQueue) submit(ctx context.Context, msg outgoing) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.enabled.Load() || len(q.pending) > 0 {
		q.pending = append(q.pending, msg)
		return nil
	}
	return q.deliver(ctx, msg)
}

func (q *sendQueue) deliver(ctx context.Context, msg outgoing) error {
	eventID, err := q.send(ctx, msg)
	if err != nil {
		msg.timeline.dropLocal(msg.txnID)
		return err
	}
	msg.timeline.confirmLocal(msg.txnID, eventID)
	return nil
}

// setEnabled toggles the queue. Enabling flushes held messages in order. A
// failed flush disables the queue again and keeps the rest held, so new
// messages are never stuck behind them while the queue reports enabled.
func (q *sendQueue) setEnabled(ctx context.Context, enabled bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled.Store(enabled)
	if !enabled {
		return nil
	}
	for len(q.pending) > 0 {
		msg := q.pending[0]
		q.pending = q.pending[1:]
		if err := q.deliver(ctx, msg); err != nil {
			q.enabled.Store(false)
			return fmt.Errorf("flushing send queue: %w", err)
		}
	}
	return nil
}

// Len returns the number of held messages.
func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// sendMessage is the queue's send function for a real client.
func (c *Client) sendMessage(ctx context.Context, msg outgoing) (string, error) {
	_, span := tracing.StartSpan(ctx, "send_message", attribute.String("room_id", msg.timeline.room.id))
	defer span.End()
	resp, err := c.api.SendMessageEvent(id.RoomID(msg.timeline.room.id), event.EventMessage, &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    msg.text,
	})
	if err != nil {
		span.Fail(err)
		return "", err
	}
	return resp.EventID.String(), nil
}
