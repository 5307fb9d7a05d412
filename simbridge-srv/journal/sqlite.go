package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stubmill/simbridge/simbridge-srv/logger"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id TEXT PRIMARY KEY,
	recorded_at TIMESTAMP NOT NULL,
	mode TEXT NOT NULL,
	latency_ns INTEGER NOT NULL,
	request_json TEXT NOT NULL,
	response_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_recorded_at ON journal_entries(recorded_at);
`

// SQLiteStore persists journal entries in a SQLite database, so captured
// runs survive across processes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initializes) a SQLite journal.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to SQLite journal: %w", err)
	}
	// WAL keeps concurrent readers from blocking the proxy's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	logger.Debug("Initialized SQLite journal at %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, entry Entry) error {
	reqJSON, respJSON, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, recorded_at, mode, latency_ns, request_json, response_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Time, entry.Mode, int64(entry.Latency), reqJSON, respJSON)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, mode, latency_ns, request_json, response_json
		 FROM journal_entries ORDER BY recorded_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logger.Error("Error closing journal rows: %v", closeErr)
		}
	}()
	return scanEntries(rows)
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries`); err != nil {
		return fmt.Errorf("failed to reset journal: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeEntry(entry Entry) (reqJSON, respJSON []byte, err error) {
	reqJSON, err = json.Marshal(entry.Request)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode journal request: %w", err)
	}
	respJSON, err = json.Marshal(entry.Response)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode journal response: %w", err)
	}
	return reqJSON, respJSON, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			recorded  time.Time
			latencyNs int64
			reqJSON   []byte
			respJSON  []byte
		)
		if err := rows.Scan(&entry.ID, &recorded, &entry.Mode, &latencyNs, &reqJSON, &respJSON); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.Time = recorded
		entry.Latency = time.Duration(latencyNs)
		var req simulation.Request
		if err := json.Unmarshal(reqJSON, &req); err != nil {
			return nil, fmt.Errorf("failed to decode journal request: %w", err)
		}
		var resp simulation.Response
		if err := json.Unmarshal(respJSON, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode journal response: %w", err)
		}
		entry.Request = req
		entry.Response = resp
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}
	return entries, nil
}
