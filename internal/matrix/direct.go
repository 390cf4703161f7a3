package matrix

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/tidwall/gjson"
)

const (
	directEventType = "m.direct"
	directCacheTTL  = 10 * time.Minute
	// directErrorTTL keeps a failed lookup from being retried on every
	// room-list batch.
	directErrorTTL = 30 * time.Second
)

// directRooms caches the set of direct-chat rooms taken from the user's
// m.direct account data.
type directRooms struct {
	cache *ttlcache.Cache[string, map[string]bool]
	fetch func(ctx context.Context) (map[string]bool, error)
}

func newDirectRooms(fetch func(ctx context.Context) (map[string]bool, error)) *directRooms {
	return &directRooms{
		cache: ttlcache.New[string, map[string]bool](
			ttlcache.WithTTL[string, map[string]bool](directCacheTTL),
		),
		fetch: fetch,
	}
}

// isDirect reports whether roomID is listed in m.direct. The account data is
// fetched on a cache miss; a failed fetch is reported once and then treated
// as an empty set until it expires.
func (d *directRooms) isDirect(ctx context.Context, roomID string) (bool, error) {
	if item := d.cache.Get(directEventType); item != nil {
		return item.Value()[roomID], nil
	}
	rooms, err := d.fetch(ctx)
	if err != nil {
		d.cache.Set(directEventType, map[string]bool{}, directErrorTTL)
		return false, err
	}
	d.cache.Set(directEventType, rooms, ttlcache.DefaultTTL)
	return rooms[roomID], nil
}

// update replaces the cached set with an m.direct content object received
// through sync.
func (d *directRooms) update(content gjson.Result) {
	d.cache.Set(directEventType, parseDirect(content), ttlcache.DefaultTTL)
}

// parseDirect turns {"@user": ["!room", ...]} into a room set.
func parseDirect(content gjson.Result) map[string]bool {
	rooms := make(map[string]bool)
	content.ForEach(func(_, ids gjson.Result) bool {
		for _, id := range ids.Array() {
			rooms[id.Str] = true
		}
		return true
	})
	return rooms
}
