package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/stubmill/simbridge/simbridge-srv/logger"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id TEXT PRIMARY KEY,
	recorded_at TIMESTAMPTZ NOT NULL,
	mode TEXT NOT NULL,
	latency_ns BIGINT NOT NULL,
	request_json JSONB NOT NULL,
	response_json JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_recorded_at ON journal_entries(recorded_at);
`

// PostgresStore persists journal entries in PostgreSQL. Used when capture
// runs from several machines feed one shared journal.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and initializes the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL journal: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	logger.Debug("Initialized PostgreSQL journal")
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Append(ctx context.Context, entry Entry) error {
	reqJSON, respJSON, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, recorded_at, mode, latency_ns, request_json, response_json)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Time, entry.Mode, int64(entry.Latency), reqJSON, respJSON)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx,
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

func (p *PostgresStore) Reset(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM journal_entries`); err != nil {
		return fmt.Errorf("failed to reset journal: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
