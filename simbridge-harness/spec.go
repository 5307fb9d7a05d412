// Package simbridge_harness integrates the simbridge proxy with
// testify suites. A suite embeds Harness and declares its proxy setup
// by implementing one of the mode provider interfaces; the harness
// starts the proxy before the suite, resets it between tests and tears
// it down afterwards.
package simbridge_harness

import (
	"github.com/stubmill/simbridge/simbridge-srv/config"
	"github.com/stubmill/simbridge/simbridge-srv/proxy"
)

// SourceType selects how a Source value is interpreted.
type SourceType int

const (
	// SourceDefaultPath resolves the value relative to the configured
	// simulation directory. An empty value derives the filename from
	// the suite's type name. This is the zero value.
	SourceDefaultPath SourceType = iota
	// SourceFile treats the value as an explicit file path.
	SourceFile
	// SourceURL fetches the simulation from an HTTP URL.
	SourceURL
	// SourceEmpty starts with no simulation data.
	SourceEmpty
)

// Source references simulation data for a suite. The zero value means
// "default path derived from the suite type name".
type Source struct {
	Value string
	Type  SourceType
}

// Simulate configures a suite that replays recorded traffic.
type Simulate struct {
	Config *config.Config
	Source Source
	// EnableAutoCapture switches the suite to capture mode when the
	// resolved source file does not exist yet, so a first run records
	// the traffic that later runs replay.
	EnableAutoCapture bool
}

// Core configures a suite with an explicit mode, bypassing the
// mode-specific specs.
type Core struct {
	Config *config.Config
	Mode   proxy.Mode
}

// Capture configures a suite that records live traffic to disk.
type Capture struct {
	Config *config.Config
	// Path is the directory captures are written to. Empty means the
	// configured simulation directory.
	Path string
	// Filename within Path. Empty derives it from the suite type name.
	Filename string
}

// Diff configures a suite that forwards traffic upstream while
// comparing responses against the given source.
type Diff struct {
	Config *config.Config
	Source Source
}

// Spy configures a suite that serves matching simulated responses and
// forwards everything else upstream.
type Spy struct {
	Config *config.Config
	Source Source
}

// Validate asks the harness to assert that no diffs were reported,
// after each test and at suite end.
type Validate struct {
	// Reset clears the recorded diffs after each assertion.
	Reset bool
}

// Provider interfaces a suite implements to declare its proxy setup.
// They are checked in a fixed order: simulate, core, capture, diff,
// spy. The first one implemented wins; a suite implementing none runs
// in simulate mode with no simulation data.
type (
	SimulateProvider interface {
		SimulateSpec() Simulate
	}
	CoreProvider interface {
		CoreSpec() Core
	}
	CaptureProvider interface {
		CaptureSpec() Capture
	}
	DiffProvider interface {
		DiffSpec() Diff
	}
	SpyProvider interface {
		SpySpec() Spy
	}
	ValidateProvider interface {
		ValidateSpec() Validate
	}
)
