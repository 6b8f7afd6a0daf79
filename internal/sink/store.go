// Package sink implements the Sink (JSONL archive writer + crash-resume
// bookmark) and Replay (selective republish from the archive) (§4.5).
package sink

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OffsetStore wraps a small SQLite side-index, one row per room, recording
// the byte offset and last envelope id/ts successfully flushed to the
// JSONL archive. This is explicitly not the event-sourcing persistence
// layer the Non-goals forbid — the JSONL file remains the source of
// truth; SQLite here is a crash-resume bookmark, nothing is read back out
// of it except on startup (§4.5 expansion note).
type OffsetStore struct {
	db *sql.DB
}

// NewOffsetStore opens (creating if absent) the SQLite bookmark database at
// dbPath and runs any pending migrations.
func NewOffsetStore(dbPath string) (*OffsetStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sink: open offset store: %w", err)
	}

	// SQLite is single-writer by design; one shared connection serializes
	// callers through database/sql instead of fighting for write locks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sink: set pragma: %w", err)
		}
	}

	s := &OffsetStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *OffsetStore) Close() error {
	return s.db.Close()
}

// Offset is the last successfully flushed position for one room.
type Offset struct {
	RoomID     string
	LastID     string
	LastTS     int64
	ByteOffset int64
}

// Get returns the recorded offset for roomID, if any.
func (s *OffsetStore) Get(roomID string) (Offset, bool, error) {
	var o Offset
	row := s.db.QueryRow(`SELECT room_id, last_id, last_ts, byte_offset FROM sink_offsets WHERE room_id = ?`, roomID)
	if err := row.Scan(&o.RoomID, &o.LastID, &o.LastTS, &o.ByteOffset); err != nil {
		if err == sql.ErrNoRows {
			return Offset{}, false, nil
		}
		return Offset{}, false, fmt.Errorf("sink: get offset: %w", err)
	}
	return o, true, nil
}

// Put upserts the offset for o.RoomID.
func (s *OffsetStore) Put(o Offset) error {
	_, err := s.db.Exec(`
		INSERT INTO sink_offsets (room_id, last_id, last_ts, byte_offset)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET last_id = excluded.last_id, last_ts = excluded.last_ts, byte_offset = excluded.byte_offset
	`, o.RoomID, o.LastID, o.LastTS, o.ByteOffset)
	if err != nil {
		return fmt.Errorf("sink: put offset: %w", err)
	}
	return nil
}

func (s *OffsetStore) runMigrations() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("get current schema version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		description := strings.TrimSuffix(parts[1], ".sql")

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			version, time.Now(), description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
		slog.Info("sink: applied migration", "version", fmt.Sprintf("%04d", version), "description", description)
	}
	return nil
}
