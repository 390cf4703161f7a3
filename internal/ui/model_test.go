package ui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/controller"
	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/atomicstack/multiverse/internal/testutil"
	"github.com/atomicstack/multiverse/internal/timeline"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func newTestHarness(t *testing.T, rooms ...*testutil.Room) (*Harness, *testutil.Client) {
	t.Helper()
	logging.Configure(filepath.Join(t.TempDir(), "ui.log"))
	client := testutil.NewClient()
	ctrl := controller.New(context.Background(), client, controller.Options{})
	t.Cleanup(func() {
		ctrl.Shutdown(context.Background())
		logging.Configure("")
	})
	if len(rooms) > 0 {
		batch := make([]backend.Room, len(rooms))
		for i, r := range rooms {
			batch[i] = r
		}
		client.Push(diff.Append(batch...))
		eventually(t, func() bool {
			return ctrl.Rooms().Len() == len(rooms) && ctrl.Timelines().Len() == len(rooms)
		}, "rooms never reconciled")
	}
	return NewHarness(NewModel(context.Background(), ctrl, 120, 24)), client
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func plainView(h *Harness) string {
	return ansi.Strip(h.View())
}

func TestViewListsRooms(t *testing.T) {
	a := testutil.NewRoom("!a:x")
	a.Display = "Alpha"
	b := testutil.NewRoom("!b:x")
	b.RawName = "bee"
	b.Direct = true
	c := testutil.NewRoom("!c:x")
	h, _ := newTestHarness(t, a, b, c)

	view := plainView(h)
	for _, want := range []string{
		"Multiverse",
		"Room list",
		"Room view",
		"#0 Alpha (!a:x)",
		"#1🤫 m.room.name:bee (!b:x)",
		"#2 !c:x",
		"Nothing to see here...",
		"Use j/k to move",
	} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestViewSkipsMissingRooms(t *testing.T) {
	h, client := newTestHarness(t)
	ctrl := h.Model().ctrl
	var missing backend.Room
	client.Push(diff.Append[backend.Room](testutil.NewRoom("!a:x"), missing))
	eventually(t, func() bool { return ctrl.Rooms().Len() == 2 }, "rooms never reconciled")

	view := plainView(h)
	if !strings.Contains(view, "#0 !a:x") {
		t.Fatalf("expected the known room in view:\n%s", view)
	}
	if strings.Contains(view, "#1") {
		t.Fatalf("expected the missing room to be skipped:\n%s", view)
	}
}

func TestAppendedMessageIsRendered(t *testing.T) {
	room := testutil.NewRoom("!a:x")
	h, client := newTestHarness(t, room)

	h.Send(keyMsg("j"))
	if got := client.Calls(); len(got) != 1 || got[0] != "subscribe !a:x" {
		t.Fatalf("unexpected calls %v", got)
	}
	room.TimelineHandle.Push(diff.Append[timeline.Item](testutil.TextEvent("e1", "u1", "hi")))
	eventually(t, func() bool { return strings.Contains(plainView(h), "u1: hi") }, "message never rendered")
}

func TestMarkAsReadOnlyInReadReceiptsMode(t *testing.T) {
	room := testutil.NewRoom("!a:x")
	room.Receipts = backend.Receipts{NumUnread: 3, NumNotifications: 2, NumMentions: 1}
	h, _ := newTestHarness(t, room)
	h.Send(keyMsg("j"))

	h.Send(keyMsg("m"))
	for _, call := range room.TimelineHandle.Calls() {
		if call == "mark_read" {
			t.Fatalf("mark as read must be ignored in timeline mode")
		}
	}

	h.Send(keyMsg("r"))
	view := plainView(h)
	for _, want := range []string{"Read receipts:", "- unread:", "RoomReadReceipts { num_unread: 3"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
	h.Send(keyMsg("m"))
	calls := room.TimelineHandle.Calls()
	if calls[len(calls)-1] != "mark_read" {
		t.Fatalf("expected mark_read, got %v", calls)
	}
	if !strings.Contains(plainView(h), "did send a read receipt!") {
		t.Fatalf("expected status in footer:\n%s", plainView(h))
	}
}

func TestPaginationOnlyInTimelineModes(t *testing.T) {
	room := testutil.NewRoom("!a:x")
	h, _ := newTestHarness(t, room)
	h.Send(keyMsg("j"))

	h.Send(keyMsg("e"))
	h.Send(keyMsg("b"))
	time.Sleep(20 * time.Millisecond)
	for _, call := range room.TimelineHandle.Calls() {
		if strings.HasPrefix(call, "paginate") {
			t.Fatalf("pagination must be ignored in events mode")
		}
	}

	h.Send(keyMsg("l"))
	h.Send(keyMsg("b"))
	eventually(t, func() bool {
		for _, call := range room.TimelineHandle.Calls() {
			if call == "paginate 20" {
				return true
			}
		}
		return false
	}, "pagination never requested")
}

func TestSendMessageShowsStatus(t *testing.T) {
	room := testutil.NewRoom("!a:x")
	h, _ := newTestHarness(t, room)
	h.Send(keyMsg("j"))
	h.Send(keyMsg("M"))
	if !strings.Contains(plainView(h), "message sent!") {
		t.Fatalf("expected status in footer:\n%s", plainView(h))
	}
}

func TestEventsModeShowsRawEvents(t *testing.T) {
	room := testutil.NewRoom("!a:x")
	room.Events = []string{`{"type":"m.room.message"}`}
	h, _ := newTestHarness(t, room)
	h.Send(keyMsg("j"))
	h.Send(keyMsg("e"))
	view := plainView(h)
	if !strings.Contains(view, "Events:") || !strings.Contains(view, `{"type":"m.room.message"}`) {
		t.Fatalf("expected raw events in view:\n%s", view)
	}
}

func TestJumpSelectsBestMatch(t *testing.T) {
	a := testutil.NewRoom("!a:x")
	a.Display = "Alpha"
	b := testutil.NewRoom("!b:x")
	b.Display = "Beta"
	h, client := newTestHarness(t, a, b)

	h.Send(keyMsg("/"))
	h.Send(keyMsg("bet"))
	if view := plainView(h); !strings.Contains(view, "jump to: bet") {
		t.Fatalf("expected jump prompt in view:\n%s", view)
	}
	h.Send(keyMsg("enter"))

	if room, i, ok := h.Model().Controller().SelectedRoom(); !ok || i != 1 || room.ID() != "!b:x" {
		t.Fatalf("expected !b:x selected")
	}
	if got := client.Calls(); got[len(got)-1] != "subscribe !b:x" {
		t.Fatalf("unexpected calls %v", got)
	}
	if strings.Contains(plainView(h), "jump to:") {
		t.Fatalf("jump prompt must close after confirming")
	}
}

func TestJumpWithoutMatch(t *testing.T) {
	a := testutil.NewRoom("!a:x")
	a.Display = "Alpha"
	h, _ := newTestHarness(t, a)
	h.Send(keyMsg("/"))
	h.Send(keyMsg("zzz"))
	h.Send(keyMsg("enter"))
	if got, _ := h.Model().Controller().Status(); got != `no room matches "zzz"` {
		t.Fatalf("unexpected status %q", got)
	}
	if _, _, ok := h.Model().Controller().SelectedRoom(); ok {
		t.Fatalf("expected no selection")
	}
}

func TestEscapeClosesJumpWithoutQuitting(t *testing.T) {
	h, _ := newTestHarness(t)
	h.Send(keyMsg("/"))
	_, cmd := h.Model().Update(keyMsg("esc"))
	if cmd != nil {
		if _, quit := cmd().(tea.QuitMsg); quit {
			t.Fatalf("esc in the jump prompt must not quit")
		}
	}
	if h.Model().jumping {
		t.Fatalf("expected the prompt to close")
	}
}

func TestQuitKey(t *testing.T) {
	h, _ := newTestHarness(t)
	_, cmd := h.Model().Update(keyMsg("q"))
	if cmd == nil {
		t.Fatalf("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestBackendErrorIsShown(t *testing.T) {
	h, _ := newTestHarness(t)
	h.Model().Update(backendEventMsg{event: backend.Event{Kind: backend.KindRoomList, Err: errors.New("boom")}})
	if !strings.Contains(plainView(h), "room list: boom") {
		t.Fatalf("expected backend error in view:\n%s", plainView(h))
	}
	h.Model().Update(backendEventMsg{event: backend.Event{Kind: backend.KindRoomList}})
	if strings.Contains(plainView(h), "room list: boom") {
		t.Fatalf("expected backend error to clear")
	}
}

func TestResizeIgnoredForFixedDimensions(t *testing.T) {
	h, _ := newTestHarness(t)
	h.Send(tea.WindowSizeMsg{Width: 40, Height: 10})
	if h.Model().width != 120 || h.Model().height != 24 {
		t.Fatalf("fixed dimensions must not change, got %dx%d", h.Model().width, h.Model().height)
	}
	lines := strings.Split(plainView(h), "\n")
	if len(lines) != 24 {
		t.Fatalf("expected 24 rows, got %d", len(lines))
	}
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		h, _ := newTestHarness(t)
		h.Send(keyMsg(k))
		if !h.Quit() {
			t.Fatalf("expected %q to quit", k)
		}
	}
}
