// Package simulation holds the recorded-traffic data model: request/response
// pairs, the sources they are loaded from, and response diffing.
package simulation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// SchemaVersion identifies the simulation file format produced by this
// package. Import accepts only this version.
const SchemaVersion = "v1"

// Simulation is a set of recorded request/response pairs plus metadata.
type Simulation struct {
	SchemaVersion string                `json:"schema-version" yaml:"schema-version"`
	Meta          Meta                  `json:"meta" yaml:"meta"`
	Pairs         []RequestResponsePair `json:"pairs" yaml:"pairs"`
}

// Meta records where and when a simulation was produced.
type Meta struct {
	ExportedAt time.Time `json:"exported-at,omitempty" yaml:"exported-at,omitempty"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
}

// RequestResponsePair is one recorded exchange.
type RequestResponsePair struct {
	Request  Request  `json:"request" yaml:"request"`
	Response Response `json:"response" yaml:"response"`
}

// Request describes a recorded request in matchable form.
type Request struct {
	Method  string      `json:"method" yaml:"method"`
	Scheme  string      `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Host    string      `json:"host" yaml:"host"`
	Path    string      `json:"path" yaml:"path"`
	Query   string      `json:"query,omitempty" yaml:"query,omitempty"`
	Headers http.Header `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string      `json:"body,omitempty" yaml:"body,omitempty"`
}

// Response is the stored reply for a recorded request. Binary bodies are
// base64-encoded with EncodedBody set.
type Response struct {
	Status      int         `json:"status" yaml:"status"`
	Headers     http.Header `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body        string      `json:"body,omitempty" yaml:"body,omitempty"`
	EncodedBody bool        `json:"encoded-body,omitempty" yaml:"encoded-body,omitempty"`
}

// New returns an empty simulation with the current schema version.
func New() *Simulation {
	return &Simulation{SchemaVersion: SchemaVersion}
}

// RequestFromHTTP converts an incoming proxied request. The body must
// already have been read by the caller.
func RequestFromHTTP(r *http.Request, body []byte) Request {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	return Request{
		Method:  r.Method,
		Scheme:  scheme,
		Host:    host,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    string(body),
	}
}

// ResponseFromHTTP converts an upstream response, consuming its body.
func ResponseFromHTTP(resp *http.Response) (Response, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read upstream response body: %w", err)
	}
	stored := Response{
		Status:  resp.StatusCode,
		Headers: resp.Header.Clone(),
	}
	if utf8.Valid(body) {
		stored.Body = string(body)
	} else {
		stored.Body = base64.StdEncoding.EncodeToString(body)
		stored.EncodedBody = true
	}
	return stored, nil
}

// BodyBytes returns the decoded response body.
func (r *Response) BodyBytes() ([]byte, error) {
	if !r.EncodedBody {
		return []byte(r.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return decoded, nil
}

// Write serves the stored response.
func (r *Response) Write(w http.ResponseWriter) error {
	for k, vs := range r.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	body, err := r.BodyBytes()
	if err != nil {
		return err
	}
	w.WriteHeader(r.Status)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write response body: %w", err)
	}
	return nil
}

// Decode parses simulation data. Format is chosen by the file extension of
// name: .yaml/.yml decode as YAML, everything else as JSON.
func Decode(data []byte, name string) (*Simulation, error) {
	sim := &Simulation{}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, sim); err != nil {
			return nil, fmt.Errorf("failed to decode YAML simulation: %w", err)
		}
	default:
		if err := json.Unmarshal(data, sim); err != nil {
			return nil, fmt.Errorf("failed to decode JSON simulation: %w", err)
		}
	}
	if sim.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported simulation schema version: %q", sim.SchemaVersion)
	}
	return sim, nil
}

// ReadFile loads a simulation from disk.
func ReadFile(path string) (*Simulation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read simulation file: %w", err)
	}
	return Decode(data, path)
}

// WriteFile exports a simulation as indented JSON, creating parent
// directories as needed.
func (s *Simulation) WriteFile(path string) error {
	s.SchemaVersion = SchemaVersion
	s.Meta.ExportedAt = time.Now().UTC()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode simulation: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create simulation directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write simulation file: %w", err)
	}
	return nil
}
