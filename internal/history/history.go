// Package history keeps a local SQLite ledger of finished capture sessions.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/session"
)

// Entry is one recorded session.
type Entry struct {
	SessionID    string
	State        string
	FileName     string
	Path         string
	MediaType    string
	Bytes        int
	ElapsedS     int
	Device       string
	ErrorKind    string
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store is the capture ledger.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS captures (
    session_id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    file_name TEXT,
    path TEXT,
    media_type TEXT,
    bytes INTEGER NOT NULL DEFAULT 0,
    elapsed_s INTEGER NOT NULL DEFAULT 0,
    device TEXT,
    error_kind TEXT,
    error_message TEXT,
    started_at INTEGER,
    finished_at INTEGER
);
CREATE INDEX IF NOT EXISTS captures_finished_at ON captures(finished_at);`

// Open opens (and creates when missing) the ledger at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores the outcome of one terminal session. Recording the same session twice replaces the row.
func (s *Store) Record(ctx context.Context, result session.Result) error {
	if strings.TrimSpace(result.SessionID) == "" {
		return errors.New("history record requires a session id")
	}

	var fileName, mediaType string
	bytes := 0
	if result.File != nil {
		fileName = result.File.Name
		mediaType = result.File.MediaType
		bytes = len(result.File.Data)
	}

	var errorKind, errorMessage string
	if result.Err != nil {
		errorKind = string(audio.KindOf(result.Err))
		errorMessage = result.Err.Error()
	} else if result.CommitErr != nil {
		errorMessage = result.CommitErr.Error()
	}

	const query = `
    INSERT OR REPLACE INTO captures
        (session_id, state, file_name, path, media_type, bytes, elapsed_s, device, error_kind, error_message, started_at, finished_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	_, err := s.db.ExecContext(ctx, query,
		result.SessionID,
		string(result.State),
		nullable(fileName),
		nullable(result.Path),
		nullable(mediaType),
		bytes,
		result.Elapsed,
		nullable(result.Device),
		nullable(errorKind),
		nullable(errorMessage),
		unixMilli(result.StartedAt),
		unixMilli(result.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", result.SessionID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
    SELECT session_id, state, file_name, path, media_type, bytes, elapsed_s, device, error_kind, error_message, started_at, finished_at
    FROM captures
    ORDER BY finished_at DESC, session_id DESC
    LIMIT ?;`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var fileName, path, mediaType, device, errorKind, errorMessage sql.NullString
		var startedAt, finishedAt sql.NullInt64
		if err := rows.Scan(
			&entry.SessionID,
			&entry.State,
			&fileName,
			&path,
			&mediaType,
			&entry.Bytes,
			&entry.ElapsedS,
			&device,
			&errorKind,
			&errorMessage,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.FileName = fileName.String
		entry.Path = path.String
		entry.MediaType = mediaType.String
		entry.Device = device.String
		entry.ErrorKind = errorKind.String
		entry.ErrorMessage = errorMessage.String
		entry.StartedAt = fromUnixMilli(startedAt)
		entry.FinishedAt = fromUnixMilli(finishedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func unixMilli(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromUnixMilli(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}
