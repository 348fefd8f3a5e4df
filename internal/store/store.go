// Package store provides persistent operational state backed by an
// embedded SQLite database: a stream-lifecycle audit log and an index of
// completed archival recordings. It deliberately does not persist chat,
// poll, or room state — that stays in-memory only, per the collaboration
// room's non-durability requirement.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"classroom-stream/origin/internal/domain"
)

var migrations = []string{
	// v1 — stream lifecycle audit log
	`CREATE TABLE IF NOT EXISTS audit_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		stream_key   TEXT NOT NULL,
		event        TEXT NOT NULL,
		details      TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — completed recordings index
	`CREATE TABLE IF NOT EXISTS recordings (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		stream_key  TEXT NOT NULL,
		path        TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		stopped_at  INTEGER NOT NULL,
		size_bytes  INTEGER NOT NULL DEFAULT 0
	)`,
	// v3, v4 — indexes for status-endpoint queries
	`CREATE INDEX IF NOT EXISTS idx_audit_log_stream ON audit_log(stream_key, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_recordings_stream ON recordings(stream_key, started_at)`,
	// v5 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes audit-log and recordings-index
// operations.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[store] WAL mode: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[store] busy_timeout: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[store] applied migration v%d", v)
	}
	return nil
}

// LogEvent appends one row to the stream-lifecycle audit log.
func (s *Store) LogEvent(ctx context.Context, key domain.StreamKey, event, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(stream_key, event, details) VALUES (?, ?, ?)`,
		string(key), event, details,
	)
	return err
}

// AuditEntry is one row from the audit log, in API-friendly form.
type AuditEntry struct {
	StreamKey domain.StreamKey `json:"stream_key"`
	Event     string           `json:"event"`
	Details   string           `json:"details"`
	CreatedAt time.Time        `json:"created_at"`
}

// AuditLog returns the most recent audit entries for key, newest first.
func (s *Store) AuditLog(ctx context.Context, key domain.StreamKey, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stream_key, event, details, created_at FROM audit_log
		 WHERE stream_key = ? ORDER BY created_at DESC LIMIT ?`,
		string(key), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var key string
		var createdAt int64
		if err := rows.Scan(&key, &e.Event, &e.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.StreamKey = domain.StreamKey(key)
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertRecording indexes one completed archival recording.
func (s *Store) InsertRecording(ctx context.Context, entry domain.RecordingEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recordings(stream_key, path, started_at, stopped_at, size_bytes) VALUES (?, ?, ?, ?, ?)`,
		string(entry.StreamKey), entry.Path, entry.StartedAt.Unix(), entry.StoppedAt.Unix(), entry.SizeBytes,
	)
	return err
}

// ListRecordings returns all indexed recordings, most recent first.
func (s *Store) ListRecordings(ctx context.Context) ([]domain.RecordingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stream_key, path, started_at, stopped_at, size_bytes FROM recordings ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var out []domain.RecordingEntry
	for rows.Next() {
		var key, path string
		var startedAt, stoppedAt, size int64
		if err := rows.Scan(&key, &path, &startedAt, &stoppedAt, &size); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		out = append(out, domain.RecordingEntry{
			StreamKey: domain.StreamKey(key),
			Path:      path,
			StartedAt: time.Unix(startedAt, 0),
			StoppedAt: time.Unix(stoppedAt, 0),
			SizeBytes: size,
		})
	}
	return out, rows.Err()
}

// Backup writes a live copy of the database to outPath via SQLite's VACUUM
// INTO, matching the teacher's operator-triggered backup flow.
func (s *Store) Backup(outPath string) error {
	_, err := s.db.Exec(`VACUUM INTO ?`, outPath)
	return err
}
