// Package journal records every request that passes through the proxy,
// with pluggable persistence backends.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

// Entry is one observed request/response exchange.
type Entry struct {
	ID       string              `json:"id"`
	Time     time.Time           `json:"time"`
	Mode     string              `json:"mode"`
	Latency  time.Duration       `json:"latency-ns"`
	Request  simulation.Request  `json:"request"`
	Response simulation.Response `json:"response"`
}

// NewEntry stamps an exchange with a fresh ID and timestamp.
func NewEntry(mode string, req simulation.Request, resp simulation.Response, latency time.Duration) Entry {
	return Entry{
		ID:       uuid.NewString(),
		Time:     time.Now().UTC(),
		Mode:     mode,
		Latency:  latency,
		Request:  req,
		Response: resp,
	}
}

// Store persists journal entries for one proxy instance.
type Store interface {
	// Append records an entry.
	Append(ctx context.Context, entry Entry) error
	// Entries returns all recorded entries in insertion order.
	Entries(ctx context.Context) ([]Entry, error)
	// Reset discards all recorded entries.
	Reset(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
