package matrix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/atomicstack/multiverse/internal/logging/events"
	"github.com/atomicstack/multiverse/internal/metrics"
	"github.com/atomicstack/multiverse/internal/store"
	"github.com/atomicstack/multiverse/internal/tracing"
)

const (
	syncPath = "/_matrix/client/unstable/org.matrix.msc3575/sync"

	listRangeEnd              = 49999
	listTimelineLimit         = 1
	subscriptionTimelineLimit = 20

	listRequiredState         = `[["m.room.name",""],["m.room.canonical_alias",""],["m.room.create",""],["m.room.member","$ME"]]`
	subscriptionRequiredState = `[["m.room.name",""],["m.room.canonical_alias",""],["m.room.create",""],["m.room.member","*"]]`
	requestExtensions         = `{"receipts":{"enabled":true},"account_data":{"enabled":true}}`
)

var (
	errUnknownPos  = errors.New("sliding sync: unknown pos")
	errInterrupted = errors.New("sliding sync: request interrupted")
)

// escapePath escapes the characters gjson and sjson treat specially so a
// room or user id can be used as a single path component.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '@', '!', '#', '|', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// jsonBuilder chains sjson edits and keeps the first error.
type jsonBuilder struct {
	doc string
	err error
}

func (b *jsonBuilder) set(path string, value interface{}) {
	if b.err == nil {
		b.doc, b.err = sjson.Set(b.doc, path, value)
	}
}

func (b *jsonBuilder) setRaw(path, raw string) {
	if b.err == nil {
		b.doc, b.err = sjson.SetRaw(b.doc, path, raw)
	}
}

// syncRequest is one prepared long-poll.
type syncRequest struct {
	body   string
	pos    string
	unsubs []string
	subs   int
}

// buildRequestLocked renders the request body for the current
// subscriptions.
func (c *Client) buildRequestLocked() (syncRequest, error) {
	list := &jsonBuilder{doc: `{}`}
	list.setRaw("ranges", fmt.Sprintf("[[0,%d]]", listRangeEnd))
	list.set("sort", []string{"by_recency", "by_name"})
	list.set("timeline_limit", listTimelineLimit)
	list.setRaw("required_state", listRequiredState)
	if list.err != nil {
		return syncRequest{}, list.err
	}

	subs := sortedSet(c.subs)
	unsubs := sortedSet(c.unsubs)
	body := &jsonBuilder{doc: `{}`}
	body.set("conn_id", c.connID)
	body.setRaw("lists", "["+list.doc+"]")
	body.setRaw("room_subscriptions", `{}`)
	for _, roomID := range subs {
		body.setRaw("room_subscriptions."+escapePath(roomID), fmt.Sprintf(
			`{"timeline_limit":%d,"required_state":%s}`, subscriptionTimelineLimit, subscriptionRequiredState))
	}
	body.set("unsubscribe_rooms", unsubs)
	body.setRaw("extensions", requestExtensions)
	if body.err != nil {
		return syncRequest{}, body.err
	}
	return syncRequest{body: body.doc, pos: c.pos, unsubs: unsubs, subs: len(subs)}, nil
}

func (c *Client) syncLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	retry := newBackoff()
	for ctx.Err() == nil {
		err := c.syncOnce(ctx)
		switch {
		case err == nil:
			metrics.SyncRequests.WithLabelValues("ok").Inc()
			retry.reset()
		case ctx.Err() != nil:
			return
		case errors.Is(err, errInterrupted):
			metrics.SyncRequests.WithLabelValues("interrupted").Inc()
		case errors.Is(err, errUnknownPos):
			metrics.SyncRequests.WithLabelValues("unknown_pos").Inc()
			logging.Warn(err, "resetting sliding sync connection")
			c.resetPos()
		default:
			metrics.SyncRequests.WithLabelValues("error").Inc()
			logging.Warn(err, fmt.Sprintf("sliding sync failed, retrying in %s", retry.current()))
			events.Sync.Backoff(err)
			if retry.fail(ctx) != nil {
				return
			}
		}
	}
}

// resetPos forgets the connection position and the server's list order so
// the next response rebuilds them.
func (c *Client) resetPos() {
	c.mu.Lock()
	c.pos = ""
	c.order = nil
	c.mu.Unlock()
}

func (c *Client) syncOnce(ctx context.Context) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	req, err := c.buildRequestLocked()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("sliding sync: building request: %w", err)
	}
	c.interrupt = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.interrupt = nil
		c.mu.Unlock()
	}()

	events.Sync.Request(req.pos, req.subs)
	spanCtx, span := tracing.StartSpan(reqCtx, "sliding_sync", attribute.String("pos", req.pos))
	defer span.End()
	raw, err := c.doSync(spanCtx, req)
	if err != nil {
		if ctx.Err() == nil && reqCtx.Err() != nil {
			return errInterrupted
		}
		span.Fail(err)
		return err
	}

	c.mu.Lock()
	for _, roomID := range req.unsubs {
		delete(c.unsubs, roomID)
	}
	c.mu.Unlock()
	return c.handleResponse(ctx, gjson.ParseBytes(raw))
}

func (c *Client) doSync(ctx context.Context, sr syncRequest) ([]byte, error) {
	qs := url.Values{}
	if sr.pos != "" {
		qs.Set("pos", sr.pos)
	}
	qs.Set("timeout", strconv.FormatInt(c.opts.PollTimeout.Milliseconds(), 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.SlidingSyncURL+syncPath+"?"+qs.Encode(), strings.NewReader(sr.body))
	if err != nil {
		return nil, fmt.Errorf("sliding sync: NewRequest failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sliding sync: request failed: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("sliding sync: reading body: %w", err)
	}
	switch {
	case res.StatusCode == http.StatusOK:
		return body, nil
	case res.StatusCode == http.StatusBadRequest && (sr.pos != "" || gjson.GetBytes(body, "errcode").Str == "M_UNKNOWN_POS"):
		return nil, errUnknownPos
	default:
		return nil, fmt.Errorf("sliding sync: HTTP %d %s", res.StatusCode, gjson.GetBytes(body, "errcode").Str)
	}
}

// timelineChunk is one room's timeline from a response.
type timelineChunk struct {
	room      *Room
	events    []gjson.Result
	reset     bool
	limited   bool
	prevBatch string
}

// handleResponse applies a response: room data, list operations, timelines,
// then the extensions. The resulting room-list batch is emitted last.
func (c *Client) handleResponse(ctx context.Context, resp gjson.Result) error {
	var chunks []timelineChunk
	updated := make(map[string]bool)

	c.mu.Lock()
	c.pos = resp.Get("pos").Str
	resp.Get("rooms").ForEach(func(key, data gjson.Result) bool {
		room := c.roomLocked(key.Str)
		room.update(data)
		updated[key.Str] = true
		initial, limited := data.Get("initial").Bool(), data.Get("limited").Bool()
		tl := data.Get("timeline").Array()
		if len(tl) > 0 || initial || limited {
			chunks = append(chunks, timelineChunk{
				room:      room,
				events:    tl,
				reset:     initial || limited,
				limited:   limited,
				prevBatch: data.Get("prev_batch").Str,
			})
		}
		return true
	})
	listOps := 0
	if list := resp.Get("lists.0"); list.Exists() {
		ops := list.Get("ops").Array()
		listOps = len(ops)
		c.order = applyListOps(c.order, int(list.Get("count").Int()), ops)
	}
	next := visibleRooms(c.order, func(roomID string) bool {
		r, ok := c.rooms[roomID]
		return !ok || !r.left()
	})
	batch := c.roomOpsLocked(diffRoomIDs(c.visible, next, updated))
	if len(batch) == 0 {
		c.visible = next
	}
	c.mu.Unlock()

	for _, chunk := range chunks {
		c.cacheChunk(ctx, chunk)
		chunk.room.timeline.handleSync(chunk.events, chunk.reset, chunk.prevBatch)
	}
	for _, ev := range resp.Get("extensions.account_data.global").Array() {
		if ev.Get("type").Str == directEventType {
			c.direct.update(ev.Get("content"))
		}
	}
	resp.Get("extensions.receipts.rooms").ForEach(func(key, receipt gjson.Result) bool {
		if room, ok := c.Room(key.Str); ok && receipt.Get("type").Str == evReceipt {
			room.applyReceipts(receipt)
		}
		return true
	})
	events.Sync.Response(c.pos, listOps, len(updated))

	if len(batch) == 0 {
		return nil
	}
	// visible tracks what the consumer has received. An undelivered batch
	// drops the position so the next response rebuilds the list.
	select {
	case c.roomList <- batch:
		c.mu.Lock()
		c.visible = next
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		c.resetPos()
		return ctx.Err()
	}
}

func (c *Client) cacheChunk(ctx context.Context, chunk timelineChunk) {
	if c.cache == nil {
		return
	}
	roomID := chunk.room.id
	if chunk.limited {
		if err := c.cache.AppendChunk(ctx, roomID, chunk.prevBatch, 0, true); err != nil {
			logging.Error(fmt.Errorf("caching gap for %s: %w", roomID, err))
		}
	}
	if len(chunk.events) == 0 {
		return
	}
	raw := make([]string, len(chunk.events))
	for i, ev := range chunk.events {
		raw[i] = ev.Raw
	}
	if _, err := c.cache.InsertEvents(ctx, roomID, store.Forwards, chunk.prevBatch, raw); err != nil {
		logging.Error(fmt.Errorf("caching events for %s: %w", roomID, err))
	}
}

func (c *Client) roomOpsLocked(edits []listEdit) []diff.Op[backend.Room] {
	if len(edits) == 0 {
		return nil
	}
	ops := make([]diff.Op[backend.Room], 0, len(edits))
	for _, e := range edits {
		switch e.kind {
		case editRemove:
			ops = append(ops, diff.Remove[backend.Room](e.from))
		case editMove:
			ops = append(ops, diff.Move[backend.Room](e.from, e.to))
		case editInsert:
			ops = append(ops, diff.Insert[backend.Room](e.from, c.roomLocked(e.id)))
		case editSet:
			ops = append(ops, diff.Set[backend.Room](e.from, c.roomLocked(e.id)))
		}
	}
	return ops
}
