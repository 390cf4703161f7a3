// Package store is the on-disk event cache: every event the client receives
// is kept per room in sync order, together with the chunks (sync batches and
// back-pagination pages) they arrived in.
package store

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/atomicstack/multiverse/internal/format/table"
	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// FileName is the cache database's name inside the session directory.
const FileName = "cache.db"

// Direction says where inserted events go relative to the cached ones.
type Direction int

const (
	// Forwards appends live events after the newest cached event.
	Forwards Direction = iota
	// Backwards places paginated events before the oldest cached event.
	Backwards
)

// Chunk is one batch of events as it was received.
type Chunk struct {
	ChunkID   int64  `db:"chunk_id"`
	RoomID    string `db:"room_id"`
	PrevBatch string `db:"prev_batch"`
	NumEvents int    `db:"num_events"`
	Gap       bool   `db:"gap"`
}

type eventRow struct {
	RoomID   string `db:"room_id"`
	EventID  string `db:"event_id"`
	Position int64  `db:"position"`
	JSON     string `db:"json"`
}

// Store wraps the cache database.
type Store struct {
	DB *sqlx.DB
}

// Open opens (creating if needed) the database at path and runs pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logging.Logger("store")})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("migrating cache: %w", err)
	}
	return nil
}

// gooseLogger routes migration output to the log file; goose would
// otherwise print to stdout underneath the TUI.
type gooseLogger struct {
	log zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info().Msgf(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error().Msgf(format, v...)
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// InsertEvents stores events (chronological JSON objects) for roomID and
// records them as one chunk. Events already cached, or without an event_id,
// are skipped. It returns how many events were new.
func (s *Store) InsertEvents(ctx context.Context, roomID string, dir Direction, prevBatch string, events []string) (int, error) {
	inserted := 0
	err := WithTransaction(ctx, s.DB, func(txn *sqlx.Tx) error {
		var base int64
		var query string
		if dir == Backwards {
			query = `SELECT COALESCE(MIN(position), 1) FROM events WHERE room_id = ?`
		} else {
			query = `SELECT COALESCE(MAX(position), 0) FROM events WHERE room_id = ?`
		}
		if err := txn.GetContext(ctx, &base, query, roomID); err != nil {
			return fmt.Errorf("reading position: %w", err)
		}
		pos := base + 1
		if dir == Backwards {
			pos = base - int64(len(events))
		}
		for _, ev := range events {
			eventID := gjson.Get(ev, "event_id").Str
			if eventID == "" {
				pos++
				continue
			}
			res, err := txn.ExecContext(ctx,
				`INSERT OR IGNORE INTO events (room_id, event_id, position, json) VALUES (?, ?, ?, ?)`,
				roomID, eventID, pos, ev)
			if err != nil {
				return fmt.Errorf("inserting %s: %w", eventID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
			pos++
		}
		return appendChunk(ctx, txn, roomID, prevBatch, inserted, false)
	})
	return inserted, err
}

// AppendChunk records a chunk without events. A gap chunk marks a limited
// sync where events between the cached ones and the new ones are missing.
func (s *Store) AppendChunk(ctx context.Context, roomID, prevBatch string, numEvents int, gap bool) error {
	return WithTransaction(ctx, s.DB, func(txn *sqlx.Tx) error {
		return appendChunk(ctx, txn, roomID, prevBatch, numEvents, gap)
	})
}

func appendChunk(ctx context.Context, txn *sqlx.Tx, roomID, prevBatch string, numEvents int, gap bool) error {
	_, err := txn.ExecContext(ctx,
		`INSERT INTO chunks (room_id, prev_batch, num_events, gap) VALUES (?, ?, ?, ?)`,
		roomID, prevBatch, numEvents, gap)
	if err != nil {
		return fmt.Errorf("appending chunk: %w", err)
	}
	return nil
}

// Events returns the cached events of roomID in timeline order.
func (s *Store) Events(ctx context.Context, roomID string) ([]string, error) {
	var rows []eventRow
	err := s.DB.SelectContext(ctx, &rows,
		`SELECT room_id, event_id, position, json FROM events WHERE room_id = ? ORDER BY position ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("selecting events: %w", err)
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.JSON
	}
	return out, nil
}

// Chunks returns the chunks of roomID in arrival order.
func (s *Store) Chunks(ctx context.Context, roomID string) ([]Chunk, error) {
	var chunks []Chunk
	err := s.DB.SelectContext(ctx, &chunks,
		`SELECT chunk_id, room_id, prev_batch, num_events, gap FROM chunks WHERE room_id = ? ORDER BY chunk_id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("selecting chunks: %w", err)
	}
	return chunks, nil
}

// DebugString describes the cache layout of roomID, one line per chunk.
func (s *Store) DebugString(ctx context.Context, roomID string) ([]string, error) {
	chunks, err := s.Chunks(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var count int
	if err := s.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM events WHERE room_id = ?`, roomID); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	lines := []string{fmt.Sprintf("%s: %d events in %d chunks", roomID, count, len(chunks))}
	rows := make([][]string, 0, len(chunks))
	for _, c := range chunks {
		kind := "events"
		if c.Gap {
			kind = "gap"
		}
		prev := c.PrevBatch
		if prev == "" {
			prev = "-"
		}
		rows = append(rows, []string{"#" + strconv.FormatInt(c.ChunkID, 10), kind, strconv.Itoa(c.NumEvents), prev})
	}
	return append(lines, table.Format(rows, []table.Alignment{table.AlignLeft, table.AlignLeft, table.AlignRight})...), nil
}
