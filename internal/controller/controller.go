// Package controller owns the client's session state: the room list and its
// selection, the current room subscription, the transient status message,
// the details mode and the single in-flight back-pagination. Every user
// operation triggered from the UI goes through a Controller method.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/data/dispatcher"
	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/atomicstack/multiverse/internal/logging/events"
	"github.com/atomicstack/multiverse/internal/state"
	"github.com/atomicstack/multiverse/internal/task"
	"github.com/atomicstack/multiverse/internal/timeline"
	uistate "github.com/atomicstack/multiverse/internal/ui/state"
)

const (
	// DefaultStatusTTL is how long a status message stays visible.
	DefaultStatusTTL = 4 * time.Second
	// PaginationBatch is the number of events requested per back-pagination.
	PaginationBatch = 20
	// ReactionKey is the reaction toggled on the latest message.
	ReactionKey = "🥰"
)

const (
	statusMissingRoom     = "missing room or nothing to show"
	statusMissingTimeline = "missing timeline for room"
	statusNoReactionItem  = "no item to react to"
)

// Options tunes a Controller.
type Options struct {
	StatusTTL time.Duration
}

// Controller coordinates user operations with the backend.
type Controller struct {
	client backend.Client

	ctx    context.Context
	cancel context.CancelFunc

	rooms     *state.List[backend.Room]
	infos     state.RoomInfoStore
	timelines *state.TimelineRegistry
	selection *uistate.Selection[backend.Room]
	watcher   *backend.Watcher

	statusTTL  time.Duration
	statusMu   sync.Mutex
	status     string
	statusSeq  uint64
	statusTask task.Slot

	pagination task.Slot

	mu      sync.Mutex
	current backend.Room
	mode    DetailsMode
}

// New builds a controller and starts reconciling client's room list in the
// background. Call Shutdown to stop every task it started.
func New(parent context.Context, client backend.Client, opts Options) *Controller {
	ctx, cancel := context.WithCancel(parent)
	rooms := state.NewList[backend.Room]()
	c := &Controller{
		client:    client,
		ctx:       ctx,
		cancel:    cancel,
		rooms:     rooms,
		infos:     state.NewRoomInfoStore(),
		timelines: state.NewTimelineRegistry(),
		selection: uistate.NewSelection(rooms),
		statusTTL: opts.StatusTTL,
		mode:      TimelineItems,
	}
	if c.statusTTL <= 0 {
		c.statusTTL = DefaultStatusTTL
	}
	d := dispatcher.New(ctx, c.rooms, c.infos, c.timelines)
	c.watcher = backend.NewWatcher(ctx, client, d.Handle)
	return c
}

// Watcher exposes the reconciliation loop's notifications.
func (c *Controller) Watcher() *backend.Watcher { return c.watcher }

// Rooms returns the shared room list.
func (c *Controller) Rooms() *state.List[backend.Room] { return c.rooms }

// Infos returns the room projection store.
func (c *Controller) Infos() state.RoomInfoStore { return c.infos }

// Timelines returns the timeline registry.
func (c *Controller) Timelines() *state.TimelineRegistry { return c.timelines }

// Selection returns the room list cursor.
func (c *Controller) Selection() *uistate.Selection[backend.Room] { return c.selection }

// SetStatus shows text in the footer until it expires. A pending expiry from
// an earlier message is cancelled first so it cannot clear the new one.
func (c *Controller) SetStatus(text string) {
	c.statusTask.Cancel()

	c.statusMu.Lock()
	c.statusSeq++
	seq := c.statusSeq
	c.status = text
	c.statusMu.Unlock()
	events.Status.Set(text)

	ttl := c.statusTTL
	c.statusTask.Replace(task.Spawn(c.ctx, "status_expiry", func(ctx context.Context) {
		timer := time.NewTimer(ttl)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		c.statusMu.Lock()
		defer c.statusMu.Unlock()
		if c.statusSeq == seq {
			c.status = ""
			events.Status.Expire(text)
		}
	}))
}

// Status returns the current status message.
func (c *Controller) Status() (string, bool) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status, c.status != ""
}

// DetailsMode returns what the room view shows.
func (c *Controller) DetailsMode() DetailsMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetDetailsMode switches what the room view shows.
func (c *Controller) SetDetailsMode(mode DetailsMode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	events.UI.DetailsMode(mode.String())
}

// SelectNext moves the selection down and switches the room subscription
// when the selection actually changed.
func (c *Controller) SelectNext() {
	if i, changed := c.selection.Next(); changed {
		c.SubscribeToRoom(i)
	}
}

// SelectPrevious moves the selection up and switches the room subscription
// when the selection actually changed.
func (c *Controller) SelectPrevious() {
	if i, changed := c.selection.Previous(); changed {
		c.SubscribeToRoom(i)
	}
}

// SelectIndex selects the room at i and subscribes to it.
func (c *Controller) SelectIndex(i int) {
	if c.selection.Select(i) {
		c.SubscribeToRoom(i)
	}
}

// SelectedRoom returns the selected room.
func (c *Controller) SelectedRoom() (backend.Room, int, bool) {
	room, i, ok := c.selection.SelectedItem()
	if !ok || room == nil {
		return nil, -1, false
	}
	return room, i, true
}

// CurrentSubscription returns the room currently subscribed to.
func (c *Controller) CurrentSubscription() (backend.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != nil
}

// SubscribeToRoom drops the current room subscription and subscribes to
// the room at index. When index does not resolve to a room the client ends
// up with no subscription.
func (c *Controller) SubscribeToRoom(index int) {
	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.mu.Unlock()
	if prev != nil {
		c.client.UnsubscribeRooms(prev.ID())
		events.Room.Unsubscribe(prev.ID())
	}

	room, ok := c.rooms.At(index)
	if !ok || room == nil {
		return
	}
	events.Room.Select(index, room.ID())
	c.client.SubscribeRooms(room.ID())
	events.Room.Subscribe(room.ID())

	c.mu.Lock()
	c.current = room
	c.mu.Unlock()
}

// SelectedTimeline returns the timeline entry of the selected room.
func (c *Controller) SelectedTimeline() (state.TimelineEntry, bool) {
	room, _, ok := c.SelectedRoom()
	if !ok {
		return state.TimelineEntry{}, false
	}
	return c.timelines.Get(room.ID())
}

// MarkAsRead sends a read receipt for the selected room's latest event.
func (c *Controller) MarkAsRead(ctx context.Context) {
	entry, ok := c.SelectedTimeline()
	if !ok {
		c.SetStatus(statusMissingRoom)
		return
	}
	sent, err := entry.Timeline.MarkAsRead(ctx)
	switch {
	case err != nil:
		logging.Error(fmt.Errorf("marking %s as read: %w", entry.RoomID, err))
		events.Action.Error(err)
		c.SetStatus(fmt.Sprintf("error when marking a room as read: %v", err))
	case sent:
		c.SetStatus("did send a read receipt!")
	default:
		c.SetStatus("did not send a read receipt!")
	}
}

// ToggleReactionToLatest toggles ReactionKey on the most recent message of
// the selected room.
func (c *Controller) ToggleReactionToLatest(ctx context.Context) {
	entry, ok := c.SelectedTimeline()
	if !ok {
		c.SetStatus(statusMissingTimeline)
		return
	}
	ev, ok := timeline.LatestMessage(entry.Items.Snapshot())
	if !ok {
		c.SetStatus(statusNoReactionItem)
		return
	}
	events.Timeline.React(entry.RoomID, ev.EventID, ReactionKey)
	if err := entry.Timeline.ToggleReaction(ctx, ev.UniqueID(), ReactionKey); err != nil {
		logging.Error(fmt.Errorf("reacting in %s: %w", entry.RoomID, err))
		events.Action.Error(err)
		c.SetStatus(fmt.Sprintf("error when reacting: %v", err))
		return
	}
	c.SetStatus("reaction sent!")
}

// SendMessage sends text to the selected room.
func (c *Controller) SendMessage(ctx context.Context, text string) {
	entry, ok := c.SelectedTimeline()
	if !ok {
		c.SetStatus(statusMissingTimeline)
		return
	}
	if err := entry.Timeline.Send(ctx, text); err != nil {
		logging.Error(fmt.Errorf("sending to %s: %w", entry.RoomID, err))
		events.Action.Error(err)
		c.SetStatus(fmt.Sprintf("error when sending event: %v", err))
		return
	}
	c.SetStatus("message sent!")
}

// SendGreeting sends the "hey <unix millis>" test message.
func (c *Controller) SendGreeting(ctx context.Context) {
	c.SendMessage(ctx, fmt.Sprintf("hey %d", time.Now().UnixMilli()))
}

// BackPaginate starts loading older events for the selected room. A
// pagination still running, for this or any other room, is cancelled first.
// Failures are logged only.
func (c *Controller) BackPaginate() {
	entry, ok := c.SelectedTimeline()
	if !ok {
		c.SetStatus(statusMissingTimeline)
		return
	}
	if prev := c.pagination.Current(); prev != nil && !prev.Finished() {
		events.Timeline.PaginateCancelled(entry.RoomID)
	}
	c.pagination.Cancel()

	roomID, tl := entry.RoomID, entry.Timeline
	events.Timeline.Paginate(roomID, PaginationBatch)
	c.pagination.Replace(task.Spawn(c.ctx, "pagination", func(ctx context.Context) {
		if err := tl.PaginateBackwards(ctx, PaginationBatch); err != nil && ctx.Err() == nil {
			logging.Error(fmt.Errorf("back-paginating %s: %w", roomID, err))
			events.Action.Error(err)
		}
	}))
}

// Pagination returns the in-flight pagination task, if any.
func (c *Controller) Pagination() *task.Handle {
	return c.pagination.Current()
}

// ToggleSendQueue flips the backend's send queue.
func (c *Controller) ToggleSendQueue(ctx context.Context) {
	enabled := !c.client.SendQueueEnabled()
	if err := c.client.SetSendQueueEnabled(ctx, enabled); err != nil {
		logging.Error(fmt.Errorf("toggling send queue: %w", err))
		events.Action.Error(err)
		c.SetStatus(fmt.Sprintf("error when toggling the send queue: %v", err))
		return
	}
	if enabled {
		c.SetStatus("send queue enabled")
	} else {
		c.SetStatus("send queue disabled")
	}
}

// StartSync starts the backend sync loop.
func (c *Controller) StartSync(ctx context.Context) {
	events.Sync.Start()
	if err := c.client.StartSync(ctx); err != nil {
		logging.Error(fmt.Errorf("starting sync: %w", err))
		events.Action.Error(err)
		c.SetStatus(fmt.Sprintf("error when starting sync: %v", err))
	}
}

// StopSync stops the backend sync loop.
func (c *Controller) StopSync(ctx context.Context) {
	events.Sync.Stop()
	if err := c.client.StopSync(ctx); err != nil {
		logging.Error(fmt.Errorf("stopping sync: %w", err))
		events.Action.Error(err)
		c.SetStatus(fmt.Sprintf("error when stopping sync: %v", err))
	}
}

// Shutdown stops syncing and cancels every background task.
func (c *Controller) Shutdown(ctx context.Context) {
	if err := c.client.StopSync(ctx); err != nil {
		logging.Error(fmt.Errorf("stopping sync: %w", err))
		events.Action.Error(err)
	}
	c.watcher.Stop()
	c.timelines.CancelAll()
	c.statusTask.Cancel()
	c.pagination.Cancel()
	c.cancel()
	c.watcher.Wait()
}
