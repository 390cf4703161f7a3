package events

import "github.com/atomicstack/multiverse/internal/logging"

type TimelineTracer struct{}

var Timeline = TimelineTracer{}

func (TimelineTracer) Created(roomID string, initial int) {
	logging.Trace("timeline.created", map[string]interface{}{"room": roomID, "initial": initial})
}

func (TimelineTracer) Batch(roomID string, ops int) {
	logging.Trace("timeline.batch", map[string]interface{}{"room": roomID, "ops": ops})
}

func (TimelineTracer) Closed(roomID string) {
	logging.Trace("timeline.closed", map[string]interface{}{"room": roomID})
}

func (TimelineTracer) Paginate(roomID string, count int) {
	logging.Trace("timeline.paginate", map[string]interface{}{"room": roomID, "count": count})
}

func (TimelineTracer) PaginateCancelled(roomID string) {
	logging.Trace("timeline.paginate.cancel", map[string]interface{}{"room": roomID})
}

func (TimelineTracer) React(roomID, eventID, key string) {
	logging.Trace("timeline.react", map[string]interface{}{"room": roomID, "event": eventID, "key": key})
}
