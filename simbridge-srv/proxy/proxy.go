// Package proxy implements the simulation/capture proxy: an HTTP forward
// proxy that either replays recorded traffic or records real traffic,
// with a JSON admin API on a second listener.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"
	xproxy "golang.org/x/net/proxy"

	"github.com/stubmill/simbridge/simbridge-srv/config"
	"github.com/stubmill/simbridge/simbridge-srv/journal"
	"github.com/stubmill/simbridge/simbridge-srv/logger"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

var log = logger.WithComponent("proxy")

const shutdownTimeout = 5 * time.Second

// Proxy is one simulation/capture proxy instance. It is created with a
// fixed configuration and an initial mode, started once, and closed once.
type Proxy struct {
	cfg *config.Config

	modeMu sync.RWMutex
	mode   Mode

	matcher *matcher
	store   journal.Store
	hub     *journalHub

	diffMu sync.Mutex
	diffs  simulation.Report

	metrics *Metrics
	client  *http.Client
	watcher *sourceWatcher

	lifecycleMu   sync.Mutex
	started       bool
	closed        bool
	server        *http.Server
	adminServer   *http.Server
	listener      net.Listener
	adminListener net.Listener

	journalCount atomic.Int64
}

// New creates a proxy with the given configuration and initial mode.
// The configuration is treated as immutable from here on.
func New(cfg *config.Config, mode Mode) (*Proxy, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewProxyError(ErrCodeInvalidConfig, err)
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, NewProxyError(ErrCodeInvalidConfig, err)
	}

	store, err := journal.NewStore(&cfg.Journal)
	if err != nil {
		return nil, NewProxyError(ErrCodeJournalInitFailed, err)
	}

	client, err := newUpstreamClient(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Proxy{
		cfg:     cfg,
		mode:    mode,
		matcher: newMatcher(),
		store:   store,
		hub:     newJournalHub(),
		metrics: NewMetrics(&cfg.Metrics),
		client:  client,
	}, nil
}

// newUpstreamClient builds the HTTP client used to reach real upstreams
// in capture, spy and diff modes.
func newUpstreamClient(cfg *config.Config) (*http.Client, error) {
	transport := &http.Transport{
		DisableKeepAlives: true,
	}
	if cfg.Upstream.Socks5Address != "" {
		var auth *xproxy.Auth
		if cfg.Upstream.Username != "" {
			auth = &xproxy.Auth{
				User:     cfg.Upstream.Username,
				Password: cfg.Upstream.Password,
			}
		}
		dialer, err := xproxy.SOCKS5("tcp", cfg.Upstream.Socks5Address, auth, xproxy.Direct)
		if err != nil {
			return nil, NewProxyError(ErrCodeSOCKS5DialerFailed, err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// The proxy relays redirects to the client instead of chasing them.
			return http.ErrUseLastResponse
		},
	}, nil
}

// Start binds the proxy and admin listeners and begins serving.
func (p *Proxy) Start() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.closed {
		return NewProxyError(ErrCodeNotStarted, errors.New("proxy already closed"))
	}
	if p.started {
		return NewProxyError(ErrCodeAlreadyStarted, nil)
	}

	listener, err := net.Listen("tcp", p.cfg.ListenAddress)
	if err != nil {
		return NewProxyError(ErrCodeListenerCreateFailed, err)
	}
	adminListener, err := net.Listen("tcp", p.cfg.AdminAddress)
	if err != nil {
		_ = listener.Close()
		return NewProxyError(ErrCodeListenerCreateFailed, err)
	}

	p.listener = listener
	p.adminListener = adminListener
	p.server = &http.Server{Handler: p}
	p.adminServer = &http.Server{Handler: p.adminHandler()}

	serveListener := net.Listener(listener)
	if p.cfg.MaxConcurrentConnections > 0 {
		serveListener = netutil.LimitListener(serveListener, p.cfg.MaxConcurrentConnections)
	}

	go func() {
		if serveErr := p.server.Serve(serveListener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("Proxy server exited: %v", serveErr)
		}
	}()
	go func() {
		if serveErr := p.adminServer.Serve(adminListener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("Admin server exited: %v", serveErr)
		}
	}()

	p.started = true
	log.Info("Proxy listening on %s (admin %s, mode %s)", listener.Addr(), adminListener.Addr(), p.Mode())
	return nil
}

// Close stops serving, releases the journal backend and discards
// simulation state. Safe to call more than once.
func (p *Proxy) Close() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if p.watcher != nil {
		p.watcher.Close()
		p.watcher = nil
	}
	if p.server != nil {
		if err := p.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("proxy shutdown: %w", err))
		}
	}
	if p.adminServer != nil {
		if err := p.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
	}
	p.hub.close()
	if err := p.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("journal close: %w", err))
	}

	log.Info("Proxy stopped")
	return errors.Join(errs...)
}

// Addr returns the proxy listener address, or "" before Start.
func (p *Proxy) Addr() string {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// AdminAddr returns the admin listener address, or "" before Start.
func (p *Proxy) AdminAddr() string {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.adminListener == nil {
		return ""
	}
	return p.adminListener.Addr().String()
}

// URL returns the proxy URL clients should use.
func (p *Proxy) URL() string {
	addr := p.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Client returns an HTTP client routed through this proxy.
func (p *Proxy) Client() *http.Client {
	proxyURL, err := url.Parse(p.URL())
	if err != nil || proxyURL.Host == "" {
		return http.DefaultClient
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			DisableKeepAlives: true,
		},
		Timeout: time.Duration(p.cfg.TimeoutSeconds) * time.Second,
	}
}

// Config returns the proxy configuration.
func (p *Proxy) Config() *config.Config {
	return p.cfg
}

// Mode returns the current mode.
func (p *Proxy) Mode() Mode {
	p.modeMu.RLock()
	defer p.modeMu.RUnlock()
	return p.mode
}

// ResetMode switches the proxy to the given mode.
func (p *Proxy) ResetMode(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return NewProxyError(ErrCodeInvalidConfig, err)
	}
	p.modeMu.Lock()
	defer p.modeMu.Unlock()
	if p.mode != mode {
		log.Debug("Mode reset: %s -> %s", p.mode, mode)
	}
	p.mode = mode
	return nil
}

// Simulate loads the source and installs its pairs, replacing any pairs
// installed before. With watch-sources enabled and a file-backed source,
// later file changes are re-imported automatically.
func (p *Proxy) Simulate(source simulation.Source) error {
	sim, err := source.Load(context.Background())
	if err != nil {
		return NewProxyError(ErrCodeSimulationLoadFailed, err)
	}
	p.matcher.Install(sim)
	log.Debug("Installed simulation %s with %d pair(s)", source, len(sim.Pairs))

	if p.cfg.WatchSources {
		if path := source.Path(); path != "" {
			p.watchSource(path, source)
		}
	}
	return nil
}

// ImportSimulation installs already-decoded simulation data, replacing
// installed pairs. Used by the admin API.
func (p *Proxy) ImportSimulation(sim *simulation.Simulation) {
	p.matcher.Install(sim)
}

// ExportSimulation writes the currently held pairs to path.
func (p *Proxy) ExportSimulation(path string) error {
	if err := p.matcher.Snapshot().WriteFile(path); err != nil {
		return NewProxyError(ErrCodeSimulationExportFailed, err)
	}
	log.Info("Exported simulation to %s", path)
	return nil
}

// Simulation returns a snapshot of the currently held pairs.
func (p *Proxy) Simulation() *simulation.Simulation {
	return p.matcher.Snapshot()
}

// ResetJournal discards all journal entries.
func (p *Proxy) ResetJournal() error {
	if err := p.store.Reset(context.Background()); err != nil {
		return err
	}
	p.journalCount.Store(0)
	p.metrics.setJournalEntries(0)
	return nil
}

// Journal returns all recorded journal entries.
func (p *Proxy) Journal() ([]journal.Entry, error) {
	return p.store.Entries(context.Background())
}

// DiffReport returns a copy of the diffs recorded in diff mode.
func (p *Proxy) DiffReport() simulation.Report {
	p.diffMu.Lock()
	defer p.diffMu.Unlock()
	report := simulation.Report{Entries: make([]simulation.DiffEntry, len(p.diffs.Entries))}
	copy(report.Entries, p.diffs.Entries)
	return report
}

// ClearDiffs discards all recorded diffs.
func (p *Proxy) ClearDiffs() {
	p.diffMu.Lock()
	defer p.diffMu.Unlock()
	p.diffs = simulation.Report{}
}

// VerifyNoDiff fails when diff mode recorded any mismatch between real
// and expected traffic. With reset set, recorded diffs are cleared
// whether or not the verification passed.
func (p *Proxy) VerifyNoDiff(reset bool) error {
	report := p.DiffReport()
	if reset {
		p.ClearDiffs()
	}
	if !report.Empty() {
		return NewProxyError(ErrCodeDiffsReported, errors.New(report.Summary()))
	}
	return nil
}

func (p *Proxy) recordDiff(entry simulation.DiffEntry) {
	p.diffMu.Lock()
	defer p.diffMu.Unlock()
	p.diffs.Entries = append(p.diffs.Entries, entry)
}

func (p *Proxy) appendJournal(entry journal.Entry) {
	if err := p.store.Append(context.Background(), entry); err != nil {
		log.Error("Failed to append journal entry: %v", err)
		return
	}
	p.metrics.setJournalEntries(int(p.journalCount.Add(1)))
	p.hub.publish(entry)
}

func (p *Proxy) watchSource(path string, source simulation.Source) {
	if p.watcher == nil {
		watcher, err := newSourceWatcher()
		if err != nil {
			log.Warn("Source watching disabled: %v", err)
			return
		}
		p.watcher = watcher
	}
	p.watcher.Watch(path, func() {
		sim, err := source.Load(context.Background())
		if err != nil {
			log.Error("Failed to re-import changed source %s: %v", source, err)
			return
		}
		p.matcher.Install(sim)
		log.Info("Re-imported changed source %s (%d pairs)", source, len(sim.Pairs))
	})
}
