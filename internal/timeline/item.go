// Package timeline defines the items shown in a room's timeline. The set of
// item kinds is closed: every Item is one of the types declared here, and
// Lines renders them in a single type switch.
package timeline

import "time"

// Item is a timeline entry. Items are immutable once produced; updates arrive
// as replacement items through diff batches.
type Item interface {
	// UniqueID identifies the item across updates.
	UniqueID() string
	isItem()
}

// Content is the payload of an Event item.
type Content interface {
	isContent()
}

// Event is a timeline item backed by a room event.
type Event struct {
	ID        string
	EventID   string
	Sender    string
	Timestamp time.Time
	Content   Content
	// Local marks an echo of a message that has not reached the server yet.
	Local bool
	// Reactions maps a reaction key to the users who sent it.
	Reactions map[string][]string
}

// Message is a room message. Only text-like message types are rendered.
type Message struct {
	MsgType string
	Body    string
}

// Redacted replaces the content of a redacted event.
type Redacted struct{}

// UnableToDecrypt is an encrypted event the client cannot read.
type UnableToDecrypt struct{}

// Other covers every event type the client does not render (state events,
// membership changes, stickers, polls, calls).
type Other struct {
	Type string
}

// DateDivider separates events from different days.
type DateDivider struct {
	ID  string
	Day time.Time
}

// ReadMarker shows the position of the user's fully-read marker.
type ReadMarker struct {
	ID string
}

// TimelineStart is emitted once back-pagination reaches the room's creation.
type TimelineStart struct {
	ID string
}

func (e *Event) UniqueID() string { return e.ID }
func (d DateDivider) UniqueID() string { return d.ID }
func (r ReadMarker) UniqueID() string { return r.ID }
func (s TimelineStart) UniqueID() string { return s.ID }

func (*Event) isItem() {}
func (DateDivider) isItem() {}
func (ReadMarker) isItem() {}
func (TimelineStart) isItem() {}

func (Message) isContent() {}
func (Redacted) isContent() {}
func (UnableToDecrypt) isContent() {}
func (Other) isContent() {}

// IsMessage reports whether item is an event carrying a message.
func IsMessage(item Item) bool {
	ev, ok := item.(*Event)
	if !ok {
		return false
	}
	_, ok = ev.Content.(Message)
	return ok
}

// LatestMessage returns the most recent event whose content is a message,
// scanning items from the end.
func LatestMessage(items []Item) (*Event, bool) {
	for i := len(items) - 1; i >= 0; i-- {
		if IsMessage(items[i]) {
			return items[i].(*Event), true
		}
	}
	return nil, false
}

// ReactedBy reports whether user has reacted to ev with key.
func (e *Event) ReactedBy(key, user string) bool {
	for _, sender := range e.Reactions[key] {
		if sender == user {
			return true
		}
	}
	return false
}
