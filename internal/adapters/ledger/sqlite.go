// Package ledger records downloads and export tasks in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/jobrunner/scenekit/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	state      TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	bands      TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (kind, name)
);
CREATE INDEX IF NOT EXISTS ledger_updated_at ON ledger (updated_at DESC);
`

// SQLiteLedger implements the Ledger port.
type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger database at path.
func Open(ctx context.Context, path string) (*SQLiteLedger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, &domain.StorageError{Operation: "migrate", Key: path, Err: err}
	}

	return &SQLiteLedger{db: db, now: time.Now}, nil
}

// Record inserts an entry, or updates state, message and bands of the
// entry with the same kind and name.
func (l *SQLiteLedger) Record(ctx context.Context, entry domain.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := l.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	bands, err := json.Marshal(nonNil(entry.Bands))
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO ledger (id, kind, name, state, message, bands, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, name) DO UPDATE SET
			state = excluded.state,
			message = excluded.message,
			bands = excluded.bands,
			updated_at = excluded.updated_at`,
		entry.ID, string(entry.Kind), entry.Name, entry.State, entry.Message, string(bands),
		entry.CreatedAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return &domain.StorageError{Operation: "record", Key: entry.Name, Err: err}
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (l *SQLiteLedger) Recent(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, kind, name, state, message, bands, created_at, updated_at
		FROM ledger
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e                domain.LedgerEntry
			kind, bands      string
			created, updated int64
		)
		if err := rows.Scan(&e.ID, &kind, &e.Name, &e.State, &e.Message, &bands, &created, &updated); err != nil {
			return nil, err
		}
		e.Kind = domain.LedgerKind(kind)
		if err := json.Unmarshal([]byte(bands), &e.Bands); err != nil {
			return nil, fmt.Errorf("decoding bands of %s: %w", e.Name, err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		e.UpdatedAt = time.UnixMilli(updated).UTC()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close releases the underlying database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
