// Package matrix implements the backend interfaces on top of a Matrix
// homeserver reached through a sliding sync proxy. Room commands (send,
// react, redact, receipts, account data) use mautrix; the sync connection and
// back-pagination are plain HTTP with gjson/sjson so the raw event JSON can
// be kept in the event cache.
package matrix

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/matrix-org/util"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/store"
	"github.com/atomicstack/multiverse/internal/tracing"
)

const defaultPollTimeout = 30 * time.Second

// EventCache stores the events the client receives. *store.Store implements
// it.
type EventCache interface {
	InsertEvents(ctx context.Context, roomID string, dir store.Direction, prevBatch string, events []string) (int, error)
	AppendChunk(ctx context.Context, roomID, prevBatch string, numEvents int, gap bool) error
	Events(ctx context.Context, roomID string) ([]string, error)
	DebugString(ctx context.Context, roomID string) ([]string, error)
}

// Options configures a Client.
type Options struct {
	// Homeserver is the client-server API base URL.
	Homeserver string
	// SlidingSyncURL is the sliding sync proxy base URL. Empty means the
	// homeserver serves sliding sync itself.
	SlidingSyncURL string
	UserID         string
	AccessToken    string
	// HTTPClient carries every request. Nil means a client with the
	// tracing transport.
	HTTPClient *http.Client
	Cache      EventCache
	// PollTimeout is the long-poll timeout sent with each sync request.
	PollTimeout time.Duration
}

// Client is the Matrix implementation of backend.Client.
type Client struct {
	opts   Options
	api    *mautrix.Client
	http   *http.Client
	userID string
	cache  EventCache
	direct *directRooms
	queue  *sendQueue
	connID string

	ctx       context.Context
	cancel    context.CancelFunc
	roomList  chan []diff.Op[backend.Room]
	closeOnce sync.Once

	syncMu     sync.Mutex
	syncCancel context.CancelFunc
	syncDone   chan struct{}

	mu        sync.Mutex
	rooms     map[string]*Room
	order     []string
	visible   []string
	subs      map[string]bool
	unsubs    map[string]bool
	pos       string
	interrupt context.CancelFunc
}

var _ backend.Client = (*Client)(nil)

// New builds a client. Nothing is requested until StartSync.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Homeserver == "" {
		return nil, fmt.Errorf("matrix: missing homeserver URL")
	}
	if opts.SlidingSyncURL == "" {
		opts.SlidingSyncURL = opts.Homeserver
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: tracing.Transport(nil)}
	}
	api, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: creating client: %w", err)
	}
	api.Client = httpClient

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		opts:     opts,
		api:      api,
		http:     httpClient,
		userID:   opts.UserID,
		cache:    opts.Cache,
		connID:   util.RandomString(8),
		ctx:      ctx,
		cancel:   cancel,
		roomList: make(chan []diff.Op[backend.Room], 16),
		rooms:    make(map[string]*Room),
		subs:     make(map[string]bool),
		unsubs:   make(map[string]bool),
	}
	c.direct = newDirectRooms(c.fetchDirect)
	c.queue = newSendQueue(c.sendMessage)
	return c, nil
}

// UserID returns the logged-in user.
func (c *Client) UserID() string { return c.userID }

func (c *Client) RoomList() <-chan []diff.Op[backend.Room] {
	return c.roomList
}

// SubscribeRooms adds room subscriptions and interrupts the current
// long-poll so they are requested right away.
func (c *Client) SubscribeRooms(ids ...string) {
	c.mu.Lock()
	for _, roomID := range ids {
		c.subs[roomID] = true
		delete(c.unsubs, roomID)
	}
	c.interruptLocked()
	c.mu.Unlock()
}

func (c *Client) UnsubscribeRooms(ids ...string) {
	c.mu.Lock()
	for _, roomID := range ids {
		if c.subs[roomID] {
			delete(c.subs, roomID)
			c.unsubs[roomID] = true
		}
	}
	c.interruptLocked()
	c.mu.Unlock()
}

func (c *Client) interruptLocked() {
	if c.interrupt != nil {
		c.interrupt()
		c.interrupt = nil
	}
}

// Subscriptions returns the subscribed room ids in order.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedSet(c.subs)
}

func (c *Client) SendQueueEnabled() bool {
	return c.queue.Enabled()
}

func (c *Client) SetSendQueueEnabled(ctx context.Context, enabled bool) error {
	return c.queue.setEnabled(ctx, enabled)
}

// StartSync starts the sync loop. It is a no-op while the loop runs.
func (c *Client) StartSync(context.Context) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	if c.syncCancel != nil {
		return nil
	}
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("matrix: client closed: %w", err)
	}
	loopCtx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.syncCancel, c.syncDone = cancel, done
	go c.syncLoop(loopCtx, done)
	return nil
}

// StopSync stops the sync loop and waits for it to exit.
func (c *Client) StopSync(ctx context.Context) error {
	c.syncMu.Lock()
	cancel, done := c.syncCancel, c.syncDone
	c.syncCancel, c.syncDone = nil, nil
	c.syncMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops syncing and ends the room-list stream.
func (c *Client) Close() error {
	err := c.StopSync(context.Background())
	c.cancel()
	c.closeOnce.Do(func() { close(c.roomList) })
	return err
}

// Room returns the handle for roomID, if the room is known.
func (c *Client) Room(roomID string) (*Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	return r, ok
}

func (c *Client) roomLocked(roomID string) *Room {
	r, ok := c.rooms[roomID]
	if !ok {
		r = newRoom(c, roomID)
		c.rooms[roomID] = r
	}
	return r
}

func (c *Client) fetchDirect(context.Context) (map[string]bool, error) {
	var content event.DirectChatsEventContent
	if err := c.api.GetAccountData(directEventType, &content); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", directEventType, err)
	}
	rooms := make(map[string]bool)
	for _, roomIDs := range content {
		for _, roomID := range roomIDs {
			rooms[roomID.String()] = true
		}
	}
	return rooms, nil
}

func sortedSet(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
