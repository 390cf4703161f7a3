package matrix

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/atomicstack/multiverse/internal/backend"
)

// Room is a room known from sliding sync. Handles are created once per room
// id and updated in place.
type Room struct {
	id       string
	client   *Client
	timeline *roomTimeline

	mu             sync.Mutex
	serverName     string
	name           string
	canonicalAlias string
	members        map[string]string
	joined         int
	invited        int
	membership     string
	notifications  uint64
	highlights     uint64
}

func newRoom(client *Client, roomID string) *Room {
	r := &Room{id: roomID, client: client, members: make(map[string]string)}
	r.timeline = newRoomTimeline(r)
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// DisplayName prefers the name computed by the server and falls back to the
// heroes algorithm over the members seen so far.
func (r *Room) DisplayName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.serverName != "" {
		return r.serverName
	}
	var heroes []hero
	for _, userID := range sortedKeys(r.members) {
		if userID == r.client.userID {
			continue
		}
		heroes = append(heroes, hero{ID: userID, Name: r.members[userID]})
	}
	if r.name == "" && r.canonicalAlias == "" && len(heroes) == 0 && r.joined == 0 {
		return ""
	}
	return calculateRoomName(r.name, r.canonicalAlias, maxHeroNames, heroInfo{
		Heroes:      heroes,
		JoinCount:   r.joined,
		InviteCount: r.invited,
	})
}

func (r *Room) IsDirect(ctx context.Context) (bool, error) {
	return r.client.direct.isDirect(ctx, r.id)
}

// left reports whether the user's own membership is leave.
func (r *Room) left() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membership == membershipLeave
}

func (r *Room) ReadReceipts() backend.Receipts {
	r.mu.Lock()
	receipts := backend.Receipts{
		NumNotifications: r.notifications,
		NumMentions:      r.highlights,
	}
	r.mu.Unlock()
	pending := r.timeline.unread(r.client.userID)
	receipts.NumUnread = uint64(len(pending))
	receipts.PendingEvents = pending
	receipts.LatestReadEvent = r.timeline.readReceipt()
	return receipts
}

func (r *Room) Timeline(context.Context) (backend.Timeline, error) {
	return r.timeline, nil
}

func (r *Room) RawEvents(ctx context.Context) ([]string, error) {
	if r.client.cache == nil {
		return nil, nil
	}
	return r.client.cache.Events(ctx, r.id)
}

func (r *Room) StorageDebug(ctx context.Context) ([]string, error) {
	if r.client.cache == nil {
		return nil, nil
	}
	return r.client.cache.DebugString(ctx, r.id)
}

// update applies a room object from a sync response: required state,
// counts, and the state events found in the timeline.
func (r *Room) update(data gjson.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name := data.Get("name"); name.Exists() {
		r.serverName = name.Str
	}
	if n := data.Get("notification_count"); n.Exists() {
		r.notifications = n.Uint()
	}
	if n := data.Get("highlight_count"); n.Exists() {
		r.highlights = n.Uint()
	}
	if n := data.Get("joined_count"); n.Exists() {
		r.joined = int(n.Int())
	}
	if n := data.Get("invited_count"); n.Exists() {
		r.invited = int(n.Int())
	}
	for _, ev := range data.Get("required_state").Array() {
		r.applyStateLocked(ev)
	}
	for _, ev := range data.Get("timeline").Array() {
		if ev.Get("state_key").Exists() {
			r.applyStateLocked(ev)
		}
	}
}

func (r *Room) applyStateLocked(ev gjson.Result) {
	switch ev.Get("type").Str {
	case evName:
		r.name = ev.Get("content.name").Str
	case evAlias:
		r.canonicalAlias = ev.Get("content.alias").Str
	case evMember:
		userID := ev.Get("state_key").Str
		membership := ev.Get("content.membership").Str
		if userID == r.client.userID {
			r.membership = membership
		}
		switch membership {
		case "join", "invite":
			name := ev.Get("content.displayname").Str
			if name == "" {
				name = userID
			}
			r.members[userID] = name
		default:
			delete(r.members, userID)
		}
	}
}

// applyReceipts reads the user's own m.read receipt out of an m.receipt
// event and moves the read marker to it.
func (r *Room) applyReceipts(receipt gjson.Result) {
	latest := ""
	var latestTS int64 = -1
	receipt.Get("content").ForEach(func(eventID, types gjson.Result) bool {
		own := types.Get(escapePath(receiptRead)).Get(escapePath(r.client.userID))
		if own.Exists() {
			if ts := own.Get("ts").Int(); ts > latestTS {
				latest, latestTS = eventID.Str, ts
			}
		}
		return true
	})
	if latest != "" {
		r.timeline.setReadReceipt(latest)
	}
}
