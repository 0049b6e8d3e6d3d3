package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"harvester/internal/queue"
)

// ErrUnavailable marks failures of the index database.
var ErrUnavailable = errors.New("dedup index unavailable")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS completed (
    id TEXT PRIMARY KEY,
    completed_at TEXT NOT NULL
);
`

// Entry is one recorded identifier.
type Entry struct {
	ID          string
	CompletedAt time.Time
}

// Index is the persistent set of delivered identifiers.
type Index struct {
	db   *sql.DB
	path string
}

// Open connects to (or creates) the index at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", queue.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open dedup db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create dedup schema: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

// Close releases the database handle.
func (i *Index) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}

// Path returns the database file location.
func (i *Index) Path() string {
	return i.path
}

// Contains reports whether id was recorded.
func (i *Index) Contains(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	var one int
	err := i.db.QueryRowContext(ctx, `SELECT 1 FROM completed WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, unavailable("lookup "+id, err)
	}
	return true, nil
}

// Record adds id. Recording an id twice keeps the first timestamp.
func (i *Index) Record(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("record dedup entry: id is required")
	}
	_, err := i.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO completed (id, completed_at) VALUES (?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return unavailable("record "+id, err)
	}
	return nil
}

// List returns every entry, most recent first.
func (i *Index) List(ctx context.Context) ([]Entry, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT id, completed_at FROM completed ORDER BY completed_at DESC, id`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry Entry
			at    string
		)
		if err := rows.Scan(&entry.ID, &at); err != nil {
			return nil, unavailable("scan", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			entry.CompletedAt = parsed
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded identifiers.
func (i *Index) Count(ctx context.Context) (int, error) {
	var count int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM completed`).Scan(&count); err != nil {
		return 0, unavailable("count", err)
	}
	return count, nil
}

// Ping verifies the database is reachable.
func (i *Index) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := i.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// unavailable marks err as an index failure unless the caller's context
// ended it.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
