package dispatcher

import (
	"context"
	"fmt"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/diff"
	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/atomicstack/multiverse/internal/logging/events"
	"github.com/atomicstack/multiverse/internal/metrics"
	"github.com/atomicstack/multiverse/internal/state"
	"github.com/atomicstack/multiverse/internal/task"
	"github.com/atomicstack/multiverse/internal/timeline"
)

// Result summarises one reconciled room-list batch.
type Result struct {
	Ops          int
	Rooms        int
	NewTimelines int
	Failed       int
	ApplyErr     error
}

// Dispatcher reconciles room-list batches into the room list, the projection
// store and the timeline registry.
type Dispatcher struct {
	rooms     *state.List[backend.Room]
	infos     state.RoomInfoStore
	timelines *state.TimelineRegistry
	// feeders derive from this context so they outlive the batch that
	// created them.
	feederCtx context.Context
}

func New(ctx context.Context, rooms *state.List[backend.Room], infos state.RoomInfoStore, timelines *state.TimelineRegistry) *Dispatcher {
	return &Dispatcher{rooms: rooms, infos: infos, timelines: timelines, feederCtx: ctx}
}

// Handle reconciles one batch. It is the backend.BatchHandler for the
// watcher.
func (d *Dispatcher) Handle(ctx context.Context, batch []diff.Op[backend.Room]) (interface{}, error) {
	res := d.Reconcile(ctx, batch)
	return res, res.ApplyErr
}

// Reconcile applies batch to the room list, refreshes every room's
// projection and starts a timeline feeder for rooms seen for the first time.
// Rooms whose timeline cannot be created are skipped and retried on the
// next batch.
func (d *Dispatcher) Reconcile(ctx context.Context, batch []diff.Op[backend.Room]) Result {
	res := Result{Ops: len(batch)}

	res.ApplyErr = d.rooms.ApplyBatch(batch)
	metrics.ObserveBatch("room_list", len(batch), res.ApplyErr)
	if res.ApplyErr != nil {
		logging.Error(fmt.Errorf("applying room list batch: %w", res.ApplyErr))
	}

	rooms := d.rooms.Snapshot()
	known := make(map[string]struct{})
	for _, id := range d.timelines.RoomIDs() {
		known[id] = struct{}{}
	}
	res.Rooms = len(rooms)

	var created []state.TimelineEntry
	for _, room := range rooms {
		if room == nil {
			continue
		}
		d.infos.Update(room.ID(), d.project(ctx, room))

		if _, ok := known[room.ID()]; ok {
			continue
		}
		// A room can appear twice in one snapshot while the list settles.
		known[room.ID()] = struct{}{}

		entry, err := d.startTimeline(ctx, room)
		if err != nil {
			res.Failed++
			metrics.TimelineInitFailures.Inc()
			logging.Error(fmt.Errorf("creating timeline for %s: %w", room.ID(), err))
			continue
		}
		created = append(created, entry)
	}

	for _, dup := range d.timelines.Merge(created) {
		dup.Task.Cancel()
	}
	res.NewTimelines = len(created)
	metrics.Timelines.Set(float64(d.timelines.Len()))
	events.RoomList.Batch(res.Ops, res.Rooms, res.NewTimelines, res.Failed)
	return res
}

func (d *Dispatcher) project(ctx context.Context, room backend.Room) state.ExtraRoomInfo {
	info := state.ExtraRoomInfo{
		RawName:     room.Name(),
		DisplayName: room.DisplayName(),
	}
	isDM, err := room.IsDirect(ctx)
	if err != nil {
		logging.Warn(err, fmt.Sprintf("couldn't figure whether %s is a DM or not", room.ID()))
		return info
	}
	info.IsDM = &isDM
	return info
}

func (d *Dispatcher) startTimeline(ctx context.Context, room backend.Room) (state.TimelineEntry, error) {
	tl, err := room.Timeline(ctx)
	if err != nil {
		return state.TimelineEntry{}, err
	}
	roomID := room.ID()
	subCtx, unsubscribe := context.WithCancel(d.feederCtx)
	initial, stream := tl.Subscribe(subCtx)
	items := state.NewList(initial...)
	events.Timeline.Created(roomID, len(initial))
	h := task.Spawn(subCtx, "timeline_feeder", func(ctx context.Context) {
		defer unsubscribe()
		feed(ctx, roomID, items, stream)
	})
	return state.TimelineEntry{RoomID: roomID, Timeline: tl, Items: items, Task: h}, nil
}

// feed applies timeline batches to items until the stream closes or ctx is
// cancelled. Cancellation is observed between batches only.
func feed(ctx context.Context, roomID string, items *state.List[timeline.Item], stream <-chan []diff.Op[timeline.Item]) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-stream:
			if !ok {
				events.Timeline.Closed(roomID)
				return
			}
			err := items.ApplyBatch(batch)
			metrics.ObserveBatch("timeline", len(batch), err)
			if err != nil {
				logging.Error(fmt.Errorf("applying timeline batch for %s: %w", roomID, err))
			}
			events.Timeline.Batch(roomID, len(batch))
		}
	}
}
