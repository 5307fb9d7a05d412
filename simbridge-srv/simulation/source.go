package simulation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"
)

// SourceType enumerates where simulation data comes from.
type SourceType string

const (
	// SourceEmpty loads an empty simulation.
	SourceEmpty SourceType = "empty"
	// SourceFile loads from an explicit file path.
	SourceFile SourceType = "file"
	// SourceDefaultPath loads a file resolved against the configured
	// simulation directory.
	SourceDefaultPath SourceType = "default-path"
	// SourceURL fetches simulation data over HTTP.
	SourceURL SourceType = "url"
)

const urlFetchTimeout = 30 * time.Second

// Source is an immutable reference to simulation data. The zero value is
// the empty source.
type Source struct {
	typ   SourceType
	value string
}

// Empty returns a source that loads no pairs.
func Empty() Source {
	return Source{typ: SourceEmpty}
}

// File returns a source backed by an explicit file path.
func File(path string) Source {
	return Source{typ: SourceFile, value: path}
}

// DefaultPath returns a source for name resolved against dir.
func DefaultPath(dir, name string) Source {
	return Source{typ: SourceDefaultPath, value: filepath.Join(dir, name)}
}

// URL returns a source fetched from a remote endpoint.
func URL(rawURL string) Source {
	return Source{typ: SourceURL, value: rawURL}
}

// ForType builds a source of the given type from value. Used by callers
// that carry type and value separately.
func ForType(typ SourceType, value string) Source {
	return Source{typ: typ, value: value}
}

// Type returns the source kind.
func (s Source) Type() SourceType {
	if s.typ == "" {
		return SourceEmpty
	}
	return s.typ
}

// Path returns the backing file path for file-backed sources, or "".
func (s Source) Path() string {
	switch s.Type() {
	case SourceFile, SourceDefaultPath:
		return s.value
	}
	return ""
}

// Value returns the raw source value (path or URL).
func (s Source) Value() string {
	return s.value
}

func (s Source) String() string {
	if s.Type() == SourceEmpty {
		return "empty"
	}
	return fmt.Sprintf("%s(%s)", s.Type(), s.value)
}

// Load resolves the source into a simulation.
func (s Source) Load(ctx context.Context) (*Simulation, error) {
	switch s.Type() {
	case SourceEmpty:
		return New(), nil
	case SourceFile, SourceDefaultPath:
		return ReadFile(s.value)
	case SourceURL:
		return fetchURL(ctx, s.value)
	default:
		return nil, fmt.Errorf("unknown source type: %s", s.typ)
	}
}

func fetchURL(ctx context.Context, rawURL string) (*Simulation, error) {
	ctx, cancel := context.WithTimeout(ctx, urlFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("invalid simulation URL: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch simulation: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch simulation: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read simulation response: %w", err)
	}
	return Decode(data, rawURL)
}
