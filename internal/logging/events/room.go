package events

import "github.com/atomicstack/multiverse/internal/logging"

type RoomTracer struct{}

type RoomListTracer struct{}

var (
	Room     = RoomTracer{}
	RoomList = RoomListTracer{}
)

func (RoomTracer) Select(index int, roomID string) {
	logging.Trace("room.select", map[string]interface{}{"index": index, "room": roomID})
}

func (RoomTracer) Subscribe(roomID string) {
	logging.Trace("room.subscribe", map[string]interface{}{"room": roomID})
}

func (RoomTracer) Unsubscribe(roomID string) {
	logging.Trace("room.unsubscribe", map[string]interface{}{"room": roomID})
}

func (RoomTracer) Jump(query, roomID string) {
	logging.Trace("room.jump", map[string]interface{}{"query": query, "room": roomID})
}

func (RoomListTracer) Batch(ops, rooms, newTimelines, failed int) {
	logging.Trace("room_list.batch", map[string]interface{}{
		"ops":           ops,
		"rooms":         rooms,
		"new_timelines": newTimelines,
		"failed":        failed,
	})
}

func (RoomListTracer) Closed() {
	logging.Trace("room_list.closed", nil)
}
