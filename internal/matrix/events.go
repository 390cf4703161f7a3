package matrix

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/atomicstack/multiverse/internal/timeline"
)

const (
	evMessage       = "m.room.message"
	evEncrypted     = "m.room.encrypted"
	evReaction      = "m.reaction"
	evRedaction     = "m.room.redaction"
	evName          = "m.room.name"
	evAlias         = "m.room.canonical_alias"
	evMember        = "m.room.member"
	evReceipt       = "m.receipt"
	relAnnotation   = "m.annotation"
	receiptRead     = "m.read"
	membershipLeave = "leave"
)

// eventTime converts origin_server_ts to a local time.
func eventTime(ev gjson.Result) time.Time {
	return time.UnixMilli(ev.Get("origin_server_ts").Int())
}

// eventContent maps an event to the content of its timeline item.
func eventContent(ev gjson.Result) timeline.Content {
	switch ev.Get("type").Str {
	case evMessage:
		content := ev.Get("content")
		if !content.Exists() || len(content.Map()) == 0 {
			return timeline.Redacted{}
		}
		return timeline.Message{
			MsgType: content.Get("msgtype").Str,
			Body:    content.Get("body").Str,
		}
	case evEncrypted:
		return timeline.UnableToDecrypt{}
	default:
		return timeline.Other{Type: ev.Get("type").Str}
	}
}

// eventItem builds the timeline item for a room event, with reactions taken
// from reactions (keyed by reaction key, then sender).
func eventItem(ev gjson.Result, reactions map[string]map[string]string) *timeline.Event {
	eventID := ev.Get("event_id").Str
	return &timeline.Event{
		ID:        eventID,
		EventID:   eventID,
		Sender:    ev.Get("sender").Str,
		Timestamp: eventTime(ev),
		Content:   eventContent(ev),
		Reactions: reactionSenders(reactions),
	}
}

func reactionSenders(reactions map[string]map[string]string) map[string][]string {
	out := make(map[string][]string, len(reactions))
	for key, senders := range reactions {
		if len(senders) > 0 {
			out[key] = sortedKeys(senders)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// annotation returns the target and key of an m.reaction event.
func annotation(ev gjson.Result) (target, key string, ok bool) {
	rel := ev.Get("content.m\\.relates_to")
	if rel.Get("rel_type").Str != relAnnotation {
		return "", "", false
	}
	target, key = rel.Get("event_id").Str, rel.Get("key").Str
	return target, key, target != "" && key != ""
}

// redacts returns the event a redaction removes. Newer room versions carry it
// in content, older ones at the top level.
func redacts(ev gjson.Result) string {
	if id := ev.Get("content.redacts").Str; id != "" {
		return id
	}
	return ev.Get("redacts").Str
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dividerFor(t time.Time) timeline.DateDivider {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return timeline.DateDivider{ID: "divider:" + day.Format("2006-01-02"), Day: day}
}
