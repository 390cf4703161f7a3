package events

import "github.com/atomicstack/multiverse/internal/logging"

type UITracer struct{}

type StatusTracer struct{}

type ActionTracer struct{}

type CommandTracer struct{}

type SyncTracer struct{}

var (
	UI      = UITracer{}
	Status  = StatusTracer{}
	Action  = ActionTracer{}
	Command = CommandTracer{}
	Sync    = SyncTracer{}
)

func (UITracer) Key(key string) {
	logging.Trace("ui.key", map[string]interface{}{"key": key})
}

func (UITracer) DetailsMode(mode string) {
	logging.Trace("ui.details_mode", map[string]interface{}{"mode": mode})
}

func (UITracer) Resize(width, height int) {
	logging.Trace("ui.resize", map[string]interface{}{"width": width, "height": height})
}

func (StatusTracer) Set(text string) {
	logging.Trace("status.set", map[string]interface{}{"text": text})
}

func (StatusTracer) Expire(text string) {
	logging.Trace("status.expire", map[string]interface{}{"text": text})
}

func (ActionTracer) Error(err error) {
	if err == nil {
		return
	}
	logging.Trace("action.error", map[string]interface{}{"error": err.Error()})
}

func (ActionTracer) Success(info string) {
	logging.Trace("action.success", map[string]interface{}{"info": info})
}

func (CommandTracer) Queue(id, label string) {
	logging.Trace("command.queue", map[string]interface{}{"id": id, "label": label})
}

func (CommandTracer) Skip(id, label string) {
	logging.Trace("command.skip", map[string]interface{}{"id": id, "label": label})
}

func (CommandTracer) NoOp(id, label string) {
	logging.Trace("command.noop", map[string]interface{}{"id": id, "label": label})
}

func (CommandTracer) Result(id, label, msgType string) {
	logging.Trace("command.result", map[string]interface{}{"id": id, "label": label, "msg": msgType})
}

func (SyncTracer) Start() {
	logging.Trace("sync.start", nil)
}

func (SyncTracer) Stop() {
	logging.Trace("sync.stop", nil)
}

func (SyncTracer) Request(pos string, rooms int) {
	logging.Trace("sync.request", map[string]interface{}{"pos": pos, "subscriptions": rooms})
}

func (SyncTracer) Response(pos string, listOps, rooms int) {
	logging.Trace("sync.response", map[string]interface{}{"pos": pos, "list_ops": listOps, "rooms": rooms})
}

func (SyncTracer) Backoff(err error) {
	logging.Trace("sync.backoff", map[string]interface{}{"error": err.Error()})
}
