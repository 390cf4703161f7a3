package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/jmoiron/sqlx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	logging.Configure(filepath.Join(dir, "store.log"))
	s, err := Open(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		logging.Configure("")
	})
	return s
}

func ev(id string) string {
	return fmt.Sprintf(`{"event_id":"%s","type":"m.room.message","content":{"body":"%s"}}`, id, id)
}

func TestInsertEventsKeepsTimelineOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if n, err := s.InsertEvents(ctx, "!a:x", Forwards, "", []string{ev("$3"), ev("$4")}); err != nil || n != 2 {
		t.Fatalf("insert live: %d %v", n, err)
	}
	if n, err := s.InsertEvents(ctx, "!a:x", Backwards, "p1", []string{ev("$1"), ev("$2")}); err != nil || n != 2 {
		t.Fatalf("insert paginated: %d %v", n, err)
	}
	if n, err := s.InsertEvents(ctx, "!a:x", Forwards, "", []string{ev("$4"), ev("$5")}); err != nil || n != 1 {
		t.Fatalf("duplicates must be skipped: %d %v", n, err)
	}
	if _, err := s.InsertEvents(ctx, "!b:x", Forwards, "", []string{ev("$other")}); err != nil {
		t.Fatalf("insert other room: %v", err)
	}

	got, err := s.Events(ctx, "!a:x")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []string{ev("$1"), ev("$2"), ev("$3"), ev("$4"), ev("$5")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order\n got: %v\nwant: %v", got, want)
	}
}

func TestInsertEventsSkipsEventsWithoutID(t *testing.T) {
	s := openTestStore(t)
	n, err := s.InsertEvents(context.Background(), "!a:x", Forwards, "", []string{`{"type":"m.room.message"}`, ev("$1")})
	if err != nil || n != 1 {
		t.Fatalf("unexpected insert result %d %v", n, err)
	}
}

func TestDebugStringListsChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.InsertEvents(ctx, "!a:x", Forwards, "", []string{ev("$1"), ev("$2")}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.AppendChunk(ctx, "!a:x", "batch_7", 0, true); err != nil {
		t.Fatalf("append chunk: %v", err)
	}

	lines, err := s.DebugString(ctx, "!a:x")
	if err != nil {
		t.Fatalf("debug string: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected header and two chunks, got %q", lines)
	}
	if lines[0] != "!a:x: 2 events in 2 chunks" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "#1") || !strings.Contains(lines[1], "events") || !strings.HasSuffix(lines[1], "-") {
		t.Fatalf("unexpected first chunk %q", lines[1])
	}
	if !strings.Contains(lines[2], "gap") || !strings.HasSuffix(lines[2], "batch_7") {
		t.Fatalf("unexpected gap chunk %q", lines[2])
	}

	chunks, err := s.Chunks(ctx, "!a:x")
	if err != nil || len(chunks) != 2 || chunks[0].NumEvents != 2 || !chunks[1].Gap {
		t.Fatalf("unexpected chunks %+v %v", chunks, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	logging.Configure(filepath.Join(dir, "store.log"))
	t.Cleanup(func() { logging.Configure("") })
	path := filepath.Join(dir, FileName)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.InsertEvents(context.Background(), "!a:x", Forwards, "", []string{ev("$1")}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Events(context.Background(), "!a:x")
	if err != nil || len(got) != 1 {
		t.Fatalf("expected the cached event after reopening, got %v %v", got, err)
	}
}

func TestWithTransactionRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := WithTransaction(ctx, s.DB, func(txn *sqlx.Tx) error {
		if _, err := txn.Exec(`INSERT INTO chunks (room_id, prev_batch, num_events) VALUES ('!a:x', '', 1)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	err = WithTransaction(ctx, s.DB, func(txn *sqlx.Tx) error {
		panic("kaboom")
	})
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
	chunks, err := s.Chunks(ctx, "!a:x")
	if err != nil || len(chunks) != 0 {
		t.Fatalf("expected rolled back chunks, got %+v %v", chunks, err)
	}
}
