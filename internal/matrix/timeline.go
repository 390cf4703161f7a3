package matrix

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"maunium.net/go/mautrix/id"

	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/atomicstack/multiverse/internal/store"
	"github.com/atomicstack/multiverse/internal/timeline"
	"github.com/atomicstack/multiverse/internal/tracing"
)

const (
	readMarkerID    = "read_marker"
	timelineStartID = "timeline_start"
	localEchoPrefix = "txn:"

	// minPaginatedItems is how many new items one back-pagination tries to
	// load before returning.
	minPaginatedItems     = 10
	maxPaginationRequests = 5
)

var (
	errNoItem       = errors.New("no such timeline item")
	errNotReactable = errors.New("item cannot be reacted to")
)

type itemBatch = []diff.Op[timeline.Item]

// subscriber relays batches to one consumer. The queue is unbounded so a
// slow consumer never blocks the sync loop.
type subscriber struct {
	mu    sync.Mutex
	queue []itemBatch
	wake  chan struct{}
	out   chan itemBatch
}

func newSubscriber() *subscriber {
	return &subscriber{wake: make(chan struct{}, 1), out: make(chan itemBatch)}
}

func (s *subscriber) push(batch itemBatch) {
	s.mu.Lock()
	s.queue = append(s.queue, batch)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump(ctx context.Context, detach func()) {
	defer close(s.out)
	defer detach()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, batch := range pending {
			select {
			case <-ctx.Done():
				return
			case s.out <- batch:
			}
		}
	}
}

// roomTimeline builds a room's timeline items from sync responses,
// back-pagination pages and local commands, and broadcasts every change as
// a diff batch.
type roomTimeline struct {
	room *Room

	mu      sync.Mutex
	items   []timeline.Item
	pending itemBatch
	subs    map[*subscriber]struct{}
	// reactions maps a target event to reaction key, then sender, then the
	// reaction's own event id.
	reactions       map[string]map[string]map[string]string
	reactionTargets map[string]string
	readEventID     string
	prevBatch       string
	atStart         bool
}

func newRoomTimeline(room *Room) *roomTimeline {
	return &roomTimeline{
		room:            room,
		subs:            make(map[*subscriber]struct{}),
		reactions:       make(map[string]map[string]map[string]string),
		reactionTargets: make(map[string]string),
	}
}

func (t *roomTimeline) Subscribe(ctx context.Context) ([]timeline.Item, <-chan []diff.Op[timeline.Item]) {
	s := newSubscriber()
	t.mu.Lock()
	initial := append([]timeline.Item(nil), t.items...)
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	go s.pump(ctx, func() {
		t.mu.Lock()
		delete(t.subs, s)
		t.mu.Unlock()
	})
	return initial, s.out
}

// Items returns a copy of the current items.
func (t *roomTimeline) Items() []timeline.Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]timeline.Item(nil), t.items...)
}

// emitLocked applies op to the items and queues it for the next broadcast.
func (t *roomTimeline) emitLocked(op diff.Op[timeline.Item]) {
	items, err := diff.Apply(t.items, []diff.Op[timeline.Item]{op})
	t.items = items
	if err != nil {
		logging.Error(fmt.Errorf("timeline %s: %w", t.room.id, err))
		return
	}
	t.pending = append(t.pending, op)
}

func (t *roomTimeline) flushLocked() {
	if len(t.pending) == 0 {
		return
	}
	batch := t.pending
	t.pending = nil
	for s := range t.subs {
		s.push(batch)
	}
}

func (t *roomTimeline) indexOfIDLocked(itemID string) int {
	for i, item := range t.items {
		if item.UniqueID() == itemID {
			return i
		}
	}
	return -1
}

func (t *roomTimeline) indexOfEventLocked(eventID string) int {
	if eventID == "" {
		return -1
	}
	for i, item := range t.items {
		if ev, ok := item.(*timeline.Event); ok && ev.EventID == eventID {
			return i
		}
	}
	return -1
}

func (t *roomTimeline) lastEventLocked() (*timeline.Event, bool) {
	for i := len(t.items) - 1; i >= 0; i-- {
		if ev, ok := t.items[i].(*timeline.Event); ok {
			return ev, true
		}
	}
	return nil, false
}

func (t *roomTimeline) hasEventAfterLocked(i int) bool {
	for _, item := range t.items[i+1:] {
		if _, ok := item.(*timeline.Event); ok {
			return true
		}
	}
	return false
}

// handleSync applies a sync response's timeline chunk. A reset (initial or
// limited chunk) replaces every item; otherwise events are appended.
func (t *roomTimeline) handleSync(events []gjson.Result, reset bool, prevBatch string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if reset {
		redacted, _ := t.collectRelationsLocked(events)
		t.prevBatch = prevBatch
		t.atStart = false
		t.emitLocked(diff.Reset(t.buildItemsLocked(events, redacted)...))
	} else {
		for _, ev := range events {
			t.appendEventLocked(ev)
		}
		if t.prevBatch == "" {
			t.prevBatch = prevBatch
		}
	}
	t.placeReadMarkerLocked()
	t.flushLocked()
}

// collectRelationsLocked records the reactions in events and applies the
// redactions of known reactions. It returns the other redacted event ids
// and the targets whose reactions changed.
func (t *roomTimeline) collectRelationsLocked(events []gjson.Result) (map[string]bool, []string) {
	redacted := make(map[string]bool)
	var touched []string
	for _, ev := range events {
		switch ev.Get("type").Str {
		case evReaction:
			if target, key, ok := annotation(ev); ok {
				t.addReactionLocked(target, key, ev.Get("sender").Str, ev.Get("event_id").Str)
				touched = append(touched, target)
			}
		case evRedaction:
			redactedID := redacts(ev)
			if target, ok := t.reactionTargets[redactedID]; ok {
				t.removeReactionLocked(redactedID)
				touched = append(touched, target)
				continue
			}
			redacted[redactedID] = true
		}
	}
	return redacted, touched
}

// buildItemsLocked turns chronological events into items, inserting a date
// divider before the first event of every day.
func (t *roomTimeline) buildItemsLocked(events []gjson.Result, redacted map[string]bool) []timeline.Item {
	var items []timeline.Item
	var last time.Time
	for _, ev := range events {
		if !isItemEvent(ev) {
			continue
		}
		item := eventItem(ev, t.reactions[ev.Get("event_id").Str])
		if redacted[item.EventID] {
			item.Content = timeline.Redacted{}
			item.Reactions = nil
		}
		if last.IsZero() || !sameDay(last, item.Timestamp) {
			items = append(items, dividerFor(item.Timestamp))
		}
		last = item.Timestamp
		items = append(items, item)
	}
	return items
}

func isItemEvent(ev gjson.Result) bool {
	switch ev.Get("type").Str {
	case evReaction, evRedaction:
		return false
	}
	return ev.Get("event_id").Str != ""
}

func (t *roomTimeline) appendEventLocked(ev gjson.Result) {
	switch ev.Get("type").Str {
	case evReaction:
		if target, key, ok := annotation(ev); ok {
			t.addReactionLocked(target, key, ev.Get("sender").Str, ev.Get("event_id").Str)
			t.refreshEventLocked(target)
		}
		return
	case evRedaction:
		t.redactLocked(redacts(ev))
		return
	}
	if !isItemEvent(ev) {
		return
	}
	item := eventItem(ev, t.reactions[ev.Get("event_id").Str])
	if i := t.indexOfEventLocked(item.EventID); i >= 0 {
		item.ID = t.items[i].UniqueID()
		t.emitLocked(diff.Set[timeline.Item](i, item))
		return
	}
	t.pushEventLocked(item)
}

func (t *roomTimeline) pushEventLocked(item *timeline.Event) {
	if last, ok := t.lastEventLocked(); !ok || !sameDay(last.Timestamp, item.Timestamp) {
		t.emitLocked(diff.PushBack[timeline.Item](dividerFor(item.Timestamp)))
	}
	t.emitLocked(diff.PushBack[timeline.Item](item))
}

func (t *roomTimeline) redactLocked(eventID string) {
	if target, ok := t.reactionTargets[eventID]; ok {
		t.removeReactionLocked(eventID)
		t.refreshEventLocked(target)
		return
	}
	i := t.indexOfEventLocked(eventID)
	if i < 0 {
		return
	}
	ev := *t.items[i].(*timeline.Event)
	ev.Content = timeline.Redacted{}
	ev.Reactions = nil
	t.emitLocked(diff.Set[timeline.Item](i, &ev))
}

// refreshEventLocked replaces the item of eventID with a copy carrying the
// current reactions.
func (t *roomTimeline) refreshEventLocked(eventID string) {
	i := t.indexOfEventLocked(eventID)
	if i < 0 {
		return
	}
	ev := *t.items[i].(*timeline.Event)
	ev.Reactions = reactionSenders(t.reactions[eventID])
	t.emitLocked(diff.Set[timeline.Item](i, &ev))
}

func (t *roomTimeline) addReactionLocked(target, key, sender, reactionID string) {
	byKey := t.reactions[target]
	if byKey == nil {
		byKey = make(map[string]map[string]string)
		t.reactions[target] = byKey
	}
	senders := byKey[key]
	if senders == nil {
		senders = make(map[string]string)
		byKey[key] = senders
	}
	senders[sender] = reactionID
	if reactionID != "" {
		t.reactionTargets[reactionID] = target
	}
}

func (t *roomTimeline) removeReactionLocked(reactionID string) {
	target := t.reactionTargets[reactionID]
	delete(t.reactionTargets, reactionID)
	for key, senders := range t.reactions[target] {
		for sender, id := range senders {
			if id == reactionID {
				delete(senders, sender)
			}
		}
		if len(senders) == 0 {
			delete(t.reactions[target], key)
		}
	}
}

// placeReadMarkerLocked keeps the read marker right after the user's read
// event, and only while newer events follow it.
func (t *roomTimeline) placeReadMarkerLocked() {
	want := -1
	if i := t.indexOfEventLocked(t.readEventID); i >= 0 && t.hasEventAfterLocked(i) {
		want = i + 1
	}
	cur := t.indexOfIDLocked(readMarkerID)
	if cur >= 0 {
		if cur == want {
			return
		}
		t.emitLocked(diff.Remove[timeline.Item](cur))
		if want > cur {
			want--
		}
	}
	if want >= 0 {
		t.emitLocked(diff.Insert[timeline.Item](want, timeline.ReadMarker{ID: readMarkerID}))
	}
}

// setReadReceipt records the user's latest read event and moves the marker.
func (t *roomTimeline) setReadReceipt(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readEventID = eventID
	t.placeReadMarkerLocked()
	t.flushLocked()
}

// unread returns the message events sent by others after the read event.
func (t *roomTimeline) unread(own string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := t.indexOfEventLocked(t.readEventID) + 1
	var pending []string
	for _, item := range t.items[from:] {
		ev, ok := item.(*timeline.Event)
		if !ok || ev.Local || ev.Sender == own || !timeline.IsMessage(ev) {
			continue
		}
		pending = append(pending, ev.EventID)
	}
	return pending
}

func (t *roomTimeline) readReceipt() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readEventID
}

// Send adds a local echo and hands the message to the send queue.
func (t *roomTimeline) Send(ctx context.Context, text string) error {
	txnID := localEchoPrefix + uuid.New().String()
	t.mu.Lock()
	t.pushEventLocked(&timeline.Event{
		ID:        txnID,
		Sender:    t.room.client.userID,
		Timestamp: time.Now(),
		Content:   timeline.Message{MsgType: timeline.MsgTypeText, Body: text},
		Local:     true,
	})
	t.flushLocked()
	t.mu.Unlock()
	return t.room.client.queue.submit(ctx, outgoing{timeline: t, txnID: txnID, text: text})
}

// confirmLocal turns the local echo txnID into the remote event eventID, or
// drops it when sync already delivered that event.
func (t *roomTimeline) confirmLocal(txnID, eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOfIDLocked(txnID)
	if i < 0 {
		return
	}
	if t.indexOfEventLocked(eventID) >= 0 {
		t.emitLocked(diff.Remove[timeline.Item](i))
	} else {
		ev := *t.items[i].(*timeline.Event)
		ev.EventID = eventID
		ev.Local = false
		t.emitLocked(diff.Set[timeline.Item](i, &ev))
	}
	t.placeReadMarkerLocked()
	t.flushLocked()
}

func (t *roomTimeline) dropLocal(txnID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOfIDLocked(txnID)
	if i < 0 {
		return
	}
	t.emitLocked(diff.Remove[timeline.Item](i))
	// Drop the divider that only introduced the echo.
	if i > 0 {
		if _, ok := t.items[i-1].(timeline.DateDivider); ok && (i == len(t.items) || !isEvent(t.items[i])) {
			t.emitLocked(diff.Remove[timeline.Item](i - 1))
		}
	}
	t.flushLocked()
}

// ToggleReaction sends key as a reaction to itemID, or redacts the user's
// own reaction with that key when there is one.
func (t *roomTimeline) ToggleReaction(ctx context.Context, itemID, key string) error {
	ctx, span := tracing.StartSpan(ctx, "toggle_reaction", attribute.String("room_id", t.room.id))
	defer span.End()
	me := t.room.client.userID

	t.mu.Lock()
	i := t.indexOfIDLocked(itemID)
	if i < 0 {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", errNoItem, itemID)
	}
	ev, ok := t.items[i].(*timeline.Event)
	if !ok || ev.EventID == "" || ev.Local {
		t.mu.Unlock()
		return errNotReactable
	}
	eventID := ev.EventID
	own := t.reactions[eventID][key][me]
	t.mu.Unlock()

	api := t.room.client.api
	if own != "" {
		tracing.Logf(ctx, "reaction", "redacting %s", own)
		if _, err := api.RedactEvent(id.RoomID(t.room.id), id.EventID(own)); err != nil {
			span.Fail(err)
			return err
		}
		t.mu.Lock()
		t.removeReactionLocked(own)
		t.refreshEventLocked(eventID)
		t.flushLocked()
		t.mu.Unlock()
		return nil
	}
	resp, err := api.SendReaction(id.RoomID(t.room.id), id.EventID(eventID), key)
	if err != nil {
		span.Fail(err)
		return err
	}
	t.mu.Lock()
	t.addReactionLocked(eventID, key, me, resp.EventID.String())
	t.refreshEventLocked(eventID)
	t.flushLocked()
	t.mu.Unlock()
	return nil
}

// MarkAsRead sends a read receipt for the latest remote event. It reports
// false when there is no such event or it is already read.
func (t *roomTimeline) MarkAsRead(ctx context.Context) (bool, error) {
	_, span := tracing.StartSpan(ctx, "mark_as_read", attribute.String("room_id", t.room.id))
	defer span.End()

	t.mu.Lock()
	latest := ""
	for i := len(t.items) - 1; i >= 0 && latest == ""; i-- {
		if ev, ok := t.items[i].(*timeline.Event); ok && !ev.Local && ev.EventID != "" {
			latest = ev.EventID
		}
	}
	already := latest == t.readEventID
	t.mu.Unlock()
	if latest == "" || already {
		return false, nil
	}
	if err := t.room.client.api.MarkRead(id.RoomID(t.room.id), id.EventID(latest)); err != nil {
		span.Fail(err)
		return false, err
	}
	t.setReadReceipt(latest)
	return true, nil
}

// PaginateBackwards loads older events page by page until at least
// minPaginatedItems new items arrived or the room's start was reached.
func (t *roomTimeline) PaginateBackwards(ctx context.Context, count int) error {
	ctx, span := tracing.StartSpan(ctx, "paginate_backwards", attribute.String("room_id", t.room.id))
	defer span.End()

	added := 0
	for req := 0; req < maxPaginationRequests && added < minPaginatedItems; req++ {
		t.mu.Lock()
		from, done := t.prevBatch, t.atStart
		t.mu.Unlock()
		if done {
			return nil
		}
		page, err := t.room.client.messages(ctx, t.room.id, from, count)
		if err != nil {
			span.Fail(err)
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if cache := t.room.client.cache; cache != nil && len(page.events) > 0 {
			raw := make([]string, len(page.events))
			for i, ev := range page.events {
				raw[i] = ev.Raw
			}
			if _, err := cache.InsertEvents(ctx, t.room.id, store.Backwards, from, raw); err != nil {
				logging.Error(fmt.Errorf("caching paginated events for %s: %w", t.room.id, err))
			}
		}
		added += t.prepend(page.events, page.end)
	}
	return nil
}

// prepend adds a chronological page of older events in front of the items.
// An empty end token means the page reached the room's creation.
func (t *roomTimeline) prepend(events []gjson.Result, end string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	redacted, touched := t.collectRelationsLocked(events)
	for _, target := range touched {
		t.refreshEventLocked(target)
	}
	fresh := make([]gjson.Result, 0, len(events))
	for _, ev := range events {
		if t.indexOfEventLocked(ev.Get("event_id").Str) < 0 {
			fresh = append(fresh, ev)
		}
	}
	items := t.buildItemsLocked(fresh, redacted)
	if end == "" {
		items = append([]timeline.Item{timeline.TimelineStart{ID: timelineStartID}}, items...)
		t.atStart = true
	}
	t.prevBatch = end

	if len(items) > 0 && len(t.items) > 0 {
		// The page's own divider replaces a leading divider for the same day.
		if d, ok := t.items[0].(timeline.DateDivider); ok && containsItem(items, d.ID) {
			t.emitLocked(diff.Remove[timeline.Item](0))
		}
	}
	for i := len(items) - 1; i >= 0; i-- {
		t.emitLocked(diff.PushFront(items[i]))
	}
	t.flushLocked()
	return len(items)
}

func isEvent(item timeline.Item) bool {
	_, ok := item.(*timeline.Event)
	return ok
}

func containsItem(items []timeline.Item, itemID string) bool {
	for _, item := range items {
		if item.UniqueID() == itemID {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
