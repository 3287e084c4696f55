package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const createTablesSQL = `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		value INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		captured_at INTEGER NOT NULL
	);
`

// SQLiteStore persists readings in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and initializes the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	// Enable WAL mode so HTTP readers don't block the ingest writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %w", errFailedToInit, err)
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToInit, err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, value, threshold int) (Reading, error) {
	captured := s.now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (value, threshold, captured_at) VALUES (?, ?, ?)`,
		value, threshold, captured.UnixNano())
	if err != nil {
		return Reading{}, fmt.Errorf("%w reading: %w", errFailedToInsert, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Reading{}, fmt.Errorf("%w reading id: %w", errFailedToInsert, err)
	}

	return Reading{ID: id, Value: value, Threshold: threshold, CapturedAt: captured}, nil
}

func (s *SQLiteStore) Latest(ctx context.Context, n int) ([]Reading, error) {
	if n <= 0 {
		return []Reading{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, value, threshold, captured_at
		FROM readings
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("%w readings: %w", errFailedToQuery, err)
	}
	defer rows.Close()

	out := make([]Reading, 0, n)
	for rows.Next() {
		var (
			r  Reading
			ns int64
		)
		if err := rows.Scan(&r.ID, &r.Value, &r.Threshold, &ns); err != nil {
			return nil, fmt.Errorf("%w reading: %w", errFailedToScan, err)
		}
		r.CapturedAt = time.Unix(0, ns).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w readings: %w", errFailedToQuery, err)
	}

	return out, nil
}

func (s *SQLiteStore) AttachThreshold(ctx context.Context, threshold int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE readings
		SET threshold = ?
		WHERE id = (SELECT MAX(id) FROM readings)`, threshold)
	if err != nil {
		return fmt.Errorf("%w reading threshold: %w", errFailedToUpdate, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
