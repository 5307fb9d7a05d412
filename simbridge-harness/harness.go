package simbridge_harness

import (
	"errors"

	"github.com/stubmill/simbridge/simbridge-srv/config"
	"github.com/stubmill/simbridge/simbridge-srv/logger"
	"github.com/stubmill/simbridge/simbridge-srv/proxy"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

var log = logger.WithComponent("harness")

// State tracks a suite's proxy through its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

var errNoSuite = errors.New("no suite value to resolve a proxy setup from")

// Extension owns one proxy for the duration of one suite. It is built
// from the suite's provider spec at suite start and discarded when the
// suite ends; a stopped extension is never restarted.
type Extension struct {
	cfg         *config.Config
	mode        proxy.Mode
	source      simulation.Source
	capturePath string
	validate    *Validate

	proxy    *proxy.Proxy
	state    State
	registry *Registry
}

// NewExtension resolves the suite's provider spec into an extension.
// Provider interfaces are checked in a fixed order and the first match
// determines config, mode and source; a suite implementing none gets
// simulate mode with no simulation data.
func NewExtension(suiteValue any) (*Extension, error) {
	if suiteValue == nil {
		return nil, errNoSuite
	}

	e := &Extension{
		cfg:      config.Default(),
		mode:     proxy.ModeSimulate,
		source:   simulation.Empty(),
		registry: NewRegistry(),
	}
	if v, ok := suiteValue.(ValidateProvider); ok {
		spec := v.ValidateSpec()
		e.validate = &spec
	}

	switch s := suiteValue.(type) {
	case SimulateProvider:
		spec := s.SimulateSpec()
		e.applyConfig(spec.Config)
		source, err := resolveSource(spec.Source, suiteValue, e.cfg.SimulationDir)
		if err != nil {
			return nil, err
		}
		e.source = source
		if spec.EnableAutoCapture {
			if auto, ok := simulation.NewAutoCaptureSource(source); ok {
				e.mode = proxy.ModeCapture
				e.capturePath = auto.CapturePath()
				log.Info("No simulation at %s, switching to capture", e.capturePath)
			}
		}
	case CoreProvider:
		spec := s.CoreSpec()
		e.applyConfig(spec.Config)
		e.mode = spec.Mode
	case CaptureProvider:
		spec := s.CaptureSpec()
		e.applyConfig(spec.Config)
		e.mode = proxy.ModeCapture
		path, err := resolveCapturePath(spec, suiteValue, e.cfg.SimulationDir)
		if err != nil {
			return nil, err
		}
		e.capturePath = path
	case DiffProvider:
		spec := s.DiffSpec()
		e.applyConfig(spec.Config)
		e.mode = proxy.ModeDiff
		source, err := resolveSource(spec.Source, suiteValue, e.cfg.SimulationDir)
		if err != nil {
			return nil, err
		}
		e.source = source
	case SpyProvider:
		spec := s.SpySpec()
		e.applyConfig(spec.Config)
		e.mode = proxy.ModeSpy
		source, err := resolveSource(spec.Source, suiteValue, e.cfg.SimulationDir)
		if err != nil {
			return nil, err
		}
		e.source = source
	}

	e.registry.Provide(proxyType, func() any { return e.proxy })
	return e, nil
}

func (e *Extension) applyConfig(cfg *config.Config) {
	if cfg != nil {
		e.cfg = cfg
	}
}

// State returns the extension's lifecycle state.
func (e *Extension) State() State {
	return e.state
}

// Proxy returns the live proxy, or nil outside an active lifecycle.
func (e *Extension) Proxy() *proxy.Proxy {
	return e.proxy
}

// Mode returns the mode resolved for the suite.
func (e *Extension) Mode() proxy.Mode {
	return e.mode
}

// CapturePath returns the export path, or "" outside capture modes.
func (e *Extension) CapturePath() string {
	return e.capturePath
}

// BeforeAll starts the proxy with the resolved config and mode and
// imports the simulation source when the mode permits it.
func (e *Extension) BeforeAll() error {
	if e.state == StateStopped {
		return errors.New("extension already stopped")
	}
	if e.state == StateRunning {
		return nil
	}

	p, err := proxy.New(e.cfg, e.mode)
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	e.proxy = p
	e.state = StateRunning
	log.Debug("Started proxy on %s in %s mode", p.Addr(), e.mode)

	if e.mode.AllowsSimulationImport() {
		if err := p.Simulate(e.source); err != nil {
			return err
		}
	}
	return nil
}

// BeforeEach resets the proxy to the suite's declared setup: the
// journal is cleared, the mode restored and the source re-imported.
// With incremental capture enabled, a readable file at the capture
// path is imported so a run extends earlier captures.
func (e *Extension) BeforeEach() error {
	if e.state != StateRunning {
		return nil
	}
	if err := e.proxy.ResetJournal(); err != nil {
		return err
	}
	if err := e.proxy.ResetMode(e.mode); err != nil {
		return err
	}
	if e.mode.AllowsSimulationImport() {
		if err := e.proxy.Simulate(e.source); err != nil {
			return err
		}
	}
	if e.cfg.IsIncrementalCapture() && simulation.IsReadableFile(e.capturePath) {
		if err := e.proxy.Simulate(simulation.File(e.capturePath)); err != nil {
			return err
		}
	}
	return nil
}

// AfterEach runs the validation hook when the suite declared one.
func (e *Extension) AfterEach() error {
	if e.state != StateRunning {
		return nil
	}
	return e.runValidation()
}

// AfterAll validates, exports the capture and stops the proxy. The
// proxy is closed on every path: a validation or export failure never
// leaves it running.
func (e *Extension) AfterAll() (err error) {
	if e.state != StateRunning {
		return nil
	}
	defer func() {
		closeErr := e.proxy.Close()
		e.proxy = nil
		e.state = StateStopped
		if err == nil {
			err = closeErr
		}
	}()

	if err = e.runValidation(); err != nil {
		return err
	}
	if e.capturePath != "" {
		if err = e.proxy.ExportSimulation(e.capturePath); err != nil {
			return err
		}
		log.Info("Exported captured traffic to %s", e.capturePath)
	}
	return nil
}

func (e *Extension) runValidation() error {
	if e.validate == nil {
		return nil
	}
	return e.proxy.VerifyNoDiff(e.validate.Reset)
}

// Inject fills the suite's injectable fields, see Registry.Inject.
func (e *Extension) Inject(suiteValue any) error {
	return e.registry.Inject(suiteValue)
}
