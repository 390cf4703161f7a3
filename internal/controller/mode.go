package controller

// DetailsMode selects what the room view panel shows.
type DetailsMode int

const (
	// ReadReceipts shows the selected room's unread counts.
	ReadReceipts DetailsMode = iota
	// TimelineItems shows the rendered timeline.
	TimelineItems
	// Events shows the raw cached events.
	Events
	// StorageInternals shows the event cache's chunk and event layout.
	StorageInternals
)

func (m DetailsMode) String() string {
	switch m {
	case ReadReceipts:
		return "read_receipts"
	case TimelineItems:
		return "timeline_items"
	case Events:
		return "events"
	case StorageInternals:
		return "storage_internals"
	default:
		return "unknown"
	}
}

// AllowsPagination reports whether back-pagination is offered in this mode.
func (m DetailsMode) AllowsPagination() bool {
	return m == TimelineItems || m == StorageInternals
}

// AllowsMarkAsRead reports whether marking as read is offered in this mode.
func (m DetailsMode) AllowsMarkAsRead() bool {
	return m == ReadReceipts
}

// Help is the footer text shown when no status message is set.
func (m DetailsMode) Help() string {
	switch m {
	case ReadReceipts:
		return "Use j/k to move, s/S to start/stop the sync service, m to mark as read, t to show the timeline, e to show events."
	case TimelineItems:
		return "Use j/k to move, s/S to start/stop the sync service, r to show read receipts, e to show events, Q to enable/disable the send queue, M to send a message, L to like the last message."
	case Events:
		return "Use j/k to move, s/S to start/stop the sync service, r to show read receipts, t to show the timeline"
	case StorageInternals:
		return "Use j/k to move, s/S to start/stop the sync service, r to show read receipts, t to show the timeline, e to show events"
	default:
		return ""
	}
}
