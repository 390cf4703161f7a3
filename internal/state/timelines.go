package state

import (
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/task"
	"github.com/atomicstack/multiverse/internal/timeline"
)

// TimelineEntry bundles a room's timeline, the projection of its items and
// the task feeding that projection.
type TimelineEntry struct {
	RoomID   string
	Timeline backend.Timeline
	Items    *List[timeline.Item]
	Task     *task.Handle
}

// TimelineRegistry holds at most one entry per room. Entries are never
// replaced once created.
type TimelineRegistry struct {
	mu      sync.Mutex
	entries map[string]TimelineEntry
}

func NewTimelineRegistry() *TimelineRegistry {
	return &TimelineRegistry{entries: make(map[string]TimelineEntry)}
}

// Get returns the entry for roomID.
func (r *TimelineRegistry) Get(roomID string) (TimelineEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[roomID]
	return e, ok
}

// Has reports whether roomID already has an entry.
func (r *TimelineRegistry) Has(roomID string) bool {
	_, ok := r.Get(roomID)
	return ok
}

// RoomIDs returns the known room identifiers in sorted order.
func (r *TimelineRegistry) RoomIDs() []string {
	r.mu.Lock()
	ids := maps.Keys(r.entries)
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Merge inserts entries for rooms that have none yet and returns the entries
// that were rejected because the room was already registered. Callers own
// the rejected entries' tasks.
func (r *TimelineRegistry) Merge(entries []TimelineEntry) []TimelineEntry {
	var rejected []TimelineEntry
	r.mu.Lock()
	for _, e := range entries {
		if _, exists := r.entries[e.RoomID]; exists {
			rejected = append(rejected, e)
			continue
		}
		r.entries[e.RoomID] = e
	}
	r.mu.Unlock()
	return rejected
}

// Len returns the number of registered timelines.
func (r *TimelineRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CancelAll cancels every feeder task. The entries stay registered.
func (r *TimelineRegistry) CancelAll() {
	r.mu.Lock()
	handles := make([]*task.Handle, 0, len(r.entries))
	for _, e := range r.entries {
		handles = append(handles, e.Task)
	}
	r.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}
