package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Index records one row per note session in a sqlite database, so past
// notes can be listed without scanning the notes directory.
type Index struct {
	db *sql.DB
}

// SessionRecord is one row of the session index.
type SessionRecord struct {
	ID        string
	Title     string
	NotePath  string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is active
}

// OpenIndex opens (and if needed creates) the index database.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping index: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			notePath TEXT NOT NULL,
			startedAt INTEGER NOT NULL,
			endedAt INTEGER
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

// CreateSession inserts a new active session row.
func (x *Index) CreateSession(id, title, notePath string, startedAt time.Time) error {
	_, err := x.db.Exec(`
		INSERT INTO sessions (id, title, notePath, startedAt) VALUES (?, ?, ?, ?)
	`, id, title, notePath, startedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time.
func (x *Index) EndSession(id string, endedAt time.Time) error {
	_, err := x.db.Exec(`UPDATE sessions SET endedAt = ? WHERE id = ?`, endedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Sessions returns all sessions, most recent first.
func (x *Index) Sessions() ([]SessionRecord, error) {
	rows, err := x.db.Query(`
		SELECT id, title, notePath, startedAt, endedAt
		FROM sessions
		ORDER BY startedAt DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Title, &r.NotePath, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if ended.Valid {
			r.EndedAt = time.Unix(ended.Int64, 0)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
