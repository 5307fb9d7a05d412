package journal

import (
	"fmt"

	"github.com/stubmill/simbridge/simbridge-srv/config"
)

// NewStore creates the journal backend selected by cfg.
func NewStore(cfg *config.JournalConfig) (Store, error) {
	switch cfg.Backend {
	case config.JournalMemory, "":
		return NewMemoryStore(cfg.BufferSize), nil
	case config.JournalSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("journal path is required for sqlite backend")
		}
		return NewSQLiteStore(cfg.Path)
	case config.JournalPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("journal dsn is required for postgres backend")
		}
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s", cfg.Backend)
	}
}
