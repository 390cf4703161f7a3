package timeline

import (
	"fmt"
	"sort"
	"strings"
)

const (
	MsgTypeText = "m.text"

	startBanner = "🥳 Timeline start! 🥳"
)

// Lines renders items as display lines. Items with nothing to show (state
// events, non-text messages) produce no line.
func Lines(items []Item) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if line, ok := Line(item); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// Line renders a single item.
func Line(item Item) (string, bool) {
	switch it := item.(type) {
	case *Event:
		switch c := it.Content.(type) {
		case Message:
			if c.MsgType != MsgTypeText {
				return "", false
			}
			return it.Sender + ": " + c.Body + reactionSuffix(it.Reactions), true
		case Redacted:
			return it.Sender + ": -- redacted --", true
		case UnableToDecrypt:
			return it.Sender + ": (UTD)", true
		default:
			return "", false
		}
	case DateDivider:
		return "Date: " + it.Day.Format("2006-01-02"), true
	case ReadMarker:
		return "Read marker", true
	case TimelineStart:
		return startBanner, true
	default:
		return "", false
	}
}

func reactionSuffix(reactions map[string][]string) string {
	if len(reactions) == 0 {
		return ""
	}
	keys := make([]string, 0, len(reactions))
	for k, senders := range reactions {
		if len(senders) > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, len(reactions[k]))
	}
	return " [" + strings.Join(parts, ", ") + "]"
}
