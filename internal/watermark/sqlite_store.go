package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS watermarks (
	stream     TEXT    NOT NULL,
	tag        TEXT    NOT NULL,
	millis     INTEGER NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (stream, tag)
)`

// SQLiteStore keeps every stream's cursors in one table.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure watermark db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create watermark schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Load returns all cursors recorded for stream.
func (s *SQLiteStore) Load(ctx context.Context, stream string) (State, error) {
	state := State{}
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT tag, millis FROM watermarks WHERE stream = ?`, stream)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				tag string
				ms  int64
			)
			if err := rows.Scan(&tag, &ms); err != nil {
				return err
			}
			state[tag] = fromMillis(ms)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load watermark %s: %w", stream, err)
	}
	return state, nil
}

// Save replaces every cursor of stream in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, stream string, state State) error {
	now := time.Now().UTC().Format(time.RFC3339)
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, `DELETE FROM watermarks WHERE stream = ?`, stream); err != nil {
			return err
		}
		for tag, t := range state {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO watermarks (stream, tag, millis, updated_at) VALUES (?, ?, ?, ?)`,
				stream, tag, t.UnixMilli(), now,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("save watermark %s: %w", stream, err)
	}
	return nil
}

// Claim advances tag with a single conditional upsert.
func (s *SQLiteStore) Claim(ctx context.Context, stream, tag string, at time.Time) (bool, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
INSERT INTO watermarks (stream, tag, millis, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (stream, tag) DO UPDATE
	SET millis = excluded.millis, updated_at = excluded.updated_at
	WHERE excluded.millis > watermarks.millis`,
			stream, tag, at.UnixMilli(), time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("claim watermark %s/%s: %w", stream, tag, err)
	}
	return affected > 0, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
