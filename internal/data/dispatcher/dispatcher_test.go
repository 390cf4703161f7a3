package dispatcher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/atomicstack/multiverse/internal/state"
	"github.com/atomicstack/multiverse/internal/testutil"
	"github.com/atomicstack/multiverse/internal/timeline"
)

type fixture struct {
	rooms     *state.List[backend.Room]
	infos     state.RoomInfoStore
	timelines *state.TimelineRegistry
	d         *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logging.Configure(filepath.Join(t.TempDir(), "dispatcher.log"))
	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		rooms:     state.NewList[backend.Room](),
		infos:     state.NewRoomInfoStore(),
		timelines: state.NewTimelineRegistry(),
	}
	f.d = New(ctx, f.rooms, f.infos, f.timelines)
	t.Cleanup(func() {
		cancel()
		logging.Configure("")
	})
	return f
}

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

func TestReconcileAppendsRoomsAndCreatesTimelines(t *testing.T) {
	f := newFixture(t)
	a := testutil.NewRoom("!a:x")
	a.Display = "Alpha"
	a.RawName = "alpha"
	b := testutil.NewRoom("!b:x")
	b.Direct = true

	res := f.d.Reconcile(context.Background(), []diff.Op[backend.Room]{diff.Append[backend.Room](a)})
	if res.Rooms != 1 || res.NewTimelines != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	res = f.d.Reconcile(context.Background(), []diff.Op[backend.Room]{diff.Append[backend.Room](b)})
	if res.Rooms != 2 || res.NewTimelines != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	ids := []string{}
	for _, r := range f.rooms.Snapshot() {
		ids = append(ids, r.ID())
	}
	if len(ids) != 2 || ids[0] != "!a:x" || ids[1] != "!b:x" {
		t.Fatalf("unexpected room order %v", ids)
	}
	info, ok := f.infos.Get("!a:x")
	if !ok || info.DisplayName != "Alpha" || info.RawName != "alpha" || info.IsDirect() {
		t.Fatalf("unexpected projection %+v", info)
	}
	if info, _ := f.infos.Get("!b:x"); !info.IsDirect() {
		t.Fatalf("expected !b:x to be a DM")
	}
	if f.timelines.Len() != 2 {
		t.Fatalf("expected two timelines, got %d", f.timelines.Len())
	}
	if a.TimelineCalls() != 1 {
		t.Fatalf("timeline must be created once per room, got %d calls", a.TimelineCalls())
	}
}

func TestReconcileRefreshesProjectionForKnownRooms(t *testing.T) {
	f := newFixture(t)
	a := testutil.NewRoom("!a:x")
	a.Display = "Old"
	f.d.Reconcile(context.Background(), []diff.Op[backend.Room]{diff.Append[backend.Room](a)})

	renamed := testutil.NewRoom("!a:x")
	renamed.Display = "New"
	f.d.Reconcile(context.Background(), []diff.Op[backend.Room]{diff.Set[backend.Room](0, renamed)})

	info, _ := f.infos.Get("!a:x")
	if info.DisplayName != "New" {
		t.Fatalf("expected overwritten display name, got %q", info.DisplayName)
	}
	if renamed.TimelineCalls() != 0 {
		t.Fatalf("known rooms must not get a second timeline")
	}
}

func TestReconcileRetriesFailedTimelines(t *testing.T) {
	f := newFixture(t)
	a := testutil.NewRoom("!a:x")
	a.TimelineFailures = 1

	res := f.d.Reconcile(context.Background(), []diff.Op[backend.Room]{diff.Append[backend.Room](a)})
	if res.Failed != 1 || f.timelines.Has("!a:x") {
		t.Fatalf("expected failed init, got %+v", res)
	}
	res = f.d.Reconcile(context.Background(), nil)
	if res.NewTimelines != 1 || !f.timelines.Has("!a:x") {
		t.Fatalf("expected retry on next batch, got %+v", res)
	}
}

func TestReconcileLeavesDMUnknownOnError(t *testing.T) {
	f := newFixture(t)
	a := testutil.NewRoom("!a:x")
	a.DirectErr = errors.New("account data unavailable")
	a.Display = "Alpha"

	f.d.Reconcile(context.Background(), []diff.Op[backend.Room]{diff.Append[backend.Room](a)})
	info, ok := f.infos.Get("!a:x")
	if !ok || info.IsDM != nil || info.DisplayName != "Alpha" {
		t.Fatalf("expected unknown DM flag with names kept, got %+v", info)
	}
}

func TestFeederAppliesTimelineBatches(t *testing.T) {
	f := newFixture(t)
	a := testutil.NewRoom("!a:x")
	f.d.Reconcile(context.Background(), []diff.Op[backend.Room]{diff.Append[backend.Room](a)})

	entry, ok := f.timelines.Get("!a:x")
	if !ok {
		t.Fatalf("expected timeline entry")
	}
	if entry.Items.Len() != 0 {
		t.Fatalf("expected empty initial items")
	}
	a.TimelineHandle.Push(diff.Append[timeline.Item](testutil.TextEvent("e1", "u1", "hi")))

	eventually(t, func() bool { return entry.Items.Len() == 1 }, "feeder never applied the batch")
	lines := timeline.Lines(entry.Items.Snapshot())
	if len(lines) != 1 || lines[0] != "u1: hi" {
		t.Fatalf("unexpected lines %q", lines)
	}

	entry.Task.Cancel()
	entry.Task.Wait()
}

func TestHandleReportsApplyErrors(t *testing.T) {
	f := newFixture(t)
	data, err := f.d.Handle(context.Background(), []diff.Op[backend.Room]{diff.Remove[backend.Room](3)})
	if !errors.Is(err, diff.ErrOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	if res, ok := data.(Result); !ok || res.Ops != 1 {
		t.Fatalf("unexpected result %#v", data)
	}
}
