// Package backend declares the collaborators the client reconciles against:
// a chat client producing a room-list diff stream, rooms, and per-room
// timelines producing item diff streams. The Matrix adapter implements these
// interfaces; tests use the in-memory fake from internal/testutil.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/timeline"
)

// ErrNoTimeline is returned when a room's timeline cannot be built yet.
var ErrNoTimeline = errors.New("backend: timeline not available")

// Client is the chat client.
type Client interface {
	// RoomList returns the room-list diff stream. The channel is closed when
	// the client shuts down.
	RoomList() <-chan []diff.Op[Room]
	SubscribeRooms(ids ...string)
	UnsubscribeRooms(ids ...string)
	SendQueueEnabled() bool
	SetSendQueueEnabled(ctx context.Context, enabled bool) error
	StartSync(ctx context.Context) error
	StopSync(ctx context.Context) error
}

// Room is a handle shared between the room list and the projection store.
type Room interface {
	ID() string
	// Name is the raw m.room.name value, empty when unset.
	Name() string
	// DisplayName is the computed display name, empty when unknown.
	DisplayName() string
	IsDirect(ctx context.Context) (bool, error)
	ReadReceipts() Receipts
	Timeline(ctx context.Context) (Timeline, error)
	// RawEvents returns the JSON of every cached event of the room.
	RawEvents(ctx context.Context) ([]string, error)
	// StorageDebug describes the room's cached chunks, one line each.
	StorageDebug(ctx context.Context) ([]string, error)
}

// Timeline is a room's live timeline.
type Timeline interface {
	// Subscribe returns the current items and a stream of diff batches. The
	// stream is closed when ctx is done or the timeline is dropped.
	Subscribe(ctx context.Context) ([]timeline.Item, <-chan []diff.Op[timeline.Item])
	Send(ctx context.Context, text string) error
	ToggleReaction(ctx context.Context, itemID, key string) error
	// MarkAsRead sends a read receipt for the latest event and reports whether
	// one was actually sent.
	MarkAsRead(ctx context.Context) (bool, error)
	PaginateBackwards(ctx context.Context, count int) error
}

// Receipts summarises a room's unread state.
type Receipts struct {
	NumUnread        uint64
	NumNotifications uint64
	NumMentions      uint64
	LatestReadEvent  string
	PendingEvents    []string
}

func (r Receipts) String() string {
	return fmt.Sprintf("RoomReadReceipts { num_unread: %d, num_notifications: %d, num_mentions: %d, latest_active: %q, pending: %q }",
		r.NumUnread, r.NumNotifications, r.NumMentions, r.LatestReadEvent, r.PendingEvents)
}
