// Package testutil provides an in-memory backend for tests. Rooms, timelines
// and the room-list stream are driven explicitly by the test, and every
// command the client issues is recorded.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/timeline"
)

// Recorder collects command names in call order.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *Recorder) record(format string, args ...interface{}) {
	r.mu.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Client is a fake backend.Client.
type Client struct {
	Recorder

	stream    chan []diff.Op[backend.Room]
	closeOnce sync.Once

	mu        sync.Mutex
	sendQueue bool
	syncing   bool
	// SyncErr is returned by StartSync when set.
	SyncErr error
}

func NewClient() *Client {
	return &Client{stream: make(chan []diff.Op[backend.Room], 64), sendQueue: true}
}

// Push queues a room-list batch for the reconciliation loop.
func (c *Client) Push(ops ...diff.Op[backend.Room]) {
	c.stream <- ops
}

// Close ends the room-list stream.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.stream) })
}

func (c *Client) RoomList() <-chan []diff.Op[backend.Room] {
	return c.stream
}

func (c *Client) SubscribeRooms(ids ...string) {
	for _, id := range ids {
		c.record("subscribe %s", id)
	}
}

func (c *Client) UnsubscribeRooms(ids ...string) {
	for _, id := range ids {
		c.record("unsubscribe %s", id)
	}
}

func (c *Client) SendQueueEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendQueue
}

func (c *Client) SetSendQueueEnabled(_ context.Context, enabled bool) error {
	c.mu.Lock()
	c.sendQueue = enabled
	c.mu.Unlock()
	c.record("send_queue %v", enabled)
	return nil
}

func (c *Client) StartSync(context.Context) error {
	c.record("start_sync")
	if c.SyncErr != nil {
		return c.SyncErr
	}
	c.mu.Lock()
	c.syncing = true
	c.mu.Unlock()
	return nil
}

func (c *Client) StopSync(context.Context) error {
	c.record("stop_sync")
	c.mu.Lock()
	c.syncing = false
	c.mu.Unlock()
	return nil
}

// Syncing reports whether StartSync was called more recently than StopSync.
func (c *Client) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncing
}

// Room is a fake backend.Room.
type Room struct {
	RoomID   string
	RawName  string
	Display  string
	Direct   bool
	Receipts backend.Receipts
	Events   []string
	Chunks   []string

	// DirectErr is returned by IsDirect when set.
	DirectErr error
	// TimelineFailures makes the first n Timeline calls fail.
	TimelineFailures int

	mu             sync.Mutex
	timelineCalls  int
	TimelineHandle *Timeline
}

// NewRoom returns a room with an empty fake timeline.
func NewRoom(id string) *Room {
	return &Room{RoomID: id, TimelineHandle: NewTimeline()}
}

func (r *Room) ID() string { return r.RoomID }
func (r *Room) Name() string { return r.RawName }
func (r *Room) DisplayName() string { return r.Display }

func (r *Room) IsDirect(context.Context) (bool, error) {
	if r.DirectErr != nil {
		return false, r.DirectErr
	}
	return r.Direct, nil
}

func (r *Room) ReadReceipts() backend.Receipts {
	return r.Receipts
}

func (r *Room) Timeline(context.Context) (backend.Timeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timelineCalls++
	if r.timelineCalls <= r.TimelineFailures {
		return nil, backend.ErrNoTimeline
	}
	return r.TimelineHandle, nil
}

// TimelineCalls returns how many times Timeline was called.
func (r *Room) TimelineCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timelineCalls
}

func (r *Room) RawEvents(context.Context) ([]string, error) {
	return append([]string(nil), r.Events...), nil
}

func (r *Room) StorageDebug(context.Context) ([]string, error) {
	return append([]string(nil), r.Chunks...), nil
}

// Timeline is a fake backend.Timeline.
type Timeline struct {
	Recorder

	Initial []timeline.Item
	updates chan []diff.Op[timeline.Item]

	SendErr  error
	ReactErr error
	ReadErr  error
	// ReadSent is the value MarkAsRead reports.
	ReadSent bool
	// Paginate, when set, runs instead of the default no-op pagination.
	Paginate func(ctx context.Context, count int) error
}

func NewTimeline(initial ...timeline.Item) *Timeline {
	return &Timeline{Initial: initial, updates: make(chan []diff.Op[timeline.Item], 64), ReadSent: true}
}

// Push queues a timeline batch for the room's feeder.
func (t *Timeline) Push(ops ...diff.Op[timeline.Item]) {
	t.updates <- ops
}

func (t *Timeline) Subscribe(context.Context) ([]timeline.Item, <-chan []diff.Op[timeline.Item]) {
	t.record("subscribe")
	return append([]timeline.Item(nil), t.Initial...), t.updates
}

func (t *Timeline) Send(_ context.Context, text string) error {
	t.record("send %s", text)
	return t.SendErr
}

func (t *Timeline) ToggleReaction(_ context.Context, itemID, key string) error {
	t.record("react %s %s", itemID, key)
	return t.ReactErr
}

func (t *Timeline) MarkAsRead(context.Context) (bool, error) {
	t.record("mark_read")
	if t.ReadErr != nil {
		return false, t.ReadErr
	}
	return t.ReadSent, nil
}

func (t *Timeline) PaginateBackwards(ctx context.Context, count int) error {
	t.record("paginate %d", count)
	if t.Paginate != nil {
		return t.Paginate(ctx, count)
	}
	return nil
}

// ErrFake is a generic failure tests can inject.
var ErrFake = errors.New("fake failure")

// TextEvent builds a text message item.
func TextEvent(id, sender, body string) *timeline.Event {
	return &timeline.Event{
		ID:      id,
		EventID: "$" + id,
		Sender:  sender,
		Content: timeline.Message{MsgType: timeline.MsgTypeText, Body: body},
	}
}

var (
	_ backend.Client   = (*Client)(nil)
	_ backend.Room     = (*Room)(nil)
	_ backend.Timeline = (*Timeline)(nil)
)
