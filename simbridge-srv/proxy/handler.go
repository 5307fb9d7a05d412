package proxy

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/stubmill/simbridge/simbridge-srv/journal"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

// hopHeaders are stripped before forwarding, per RFC 9110 section 7.6.1.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServeHTTP handles one proxied request according to the current mode.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}

	start := time.Now()
	mode := p.Mode()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, ErrCodeHTTPBodyReadFailed)
		p.metrics.observeRequest(mode, "error", time.Since(start).Seconds())
		return
	}
	_ = r.Body.Close()
	req := simulation.RequestFromHTTP(r, body)

	var (
		resp    simulation.Response
		outcome string
	)
	switch mode {
	case ModeSimulate:
		resp, outcome = p.serveSimulated(w, req)
	case ModeCapture:
		resp, outcome = p.serveForwarded(w, r, body)
		if outcome == "ok" {
			p.matcher.Add(simulation.RequestResponsePair{Request: req, Response: resp})
		}
	case ModeSpy:
		if pair, ok := p.matcher.Match(req); ok {
			resp, outcome = p.serveStored(w, pair.Response)
		} else {
			resp, outcome = p.serveForwarded(w, r, body)
		}
	case ModeDiff:
		resp, outcome = p.serveForwarded(w, r, body)
		if outcome == "ok" {
			p.diffAgainstExpectation(req, resp)
		}
	default:
		writeProxyError(w, http.StatusInternalServerError, ErrCodeInvalidConfig)
		resp = simulation.Response{Status: http.StatusInternalServerError}
		outcome = "error"
	}

	latency := time.Since(start)
	p.appendJournal(journal.NewEntry(string(mode), req, resp, latency))
	p.metrics.observeRequest(mode, outcome, latency.Seconds())
}

// serveSimulated answers from installed pairs only.
func (p *Proxy) serveSimulated(w http.ResponseWriter, req simulation.Request) (simulation.Response, string) {
	pair, ok := p.matcher.Match(req)
	if !ok {
		log.Debug("Simulation miss: %s %s%s", req.Method, req.Host, req.Path)
		writeProxyError(w, http.StatusBadGateway, ErrCodeSimulationMiss)
		return simulation.Response{Status: http.StatusBadGateway}, "miss"
	}
	return p.serveStored(w, pair.Response)
}

// serveForwarded performs the real upstream round trip and relays the
// response to the client.
func (p *Proxy) serveForwarded(w http.ResponseWriter, r *http.Request, body []byte) (simulation.Response, string) {
	upstream, err := p.roundTrip(r, body)
	if err != nil {
		log.Error("Upstream request failed: %v", err)
		writeProxyError(w, http.StatusBadGateway, ErrCodeUpstreamRequestFailed)
		return simulation.Response{Status: http.StatusBadGateway}, "error"
	}
	defer func() {
		_ = upstream.Body.Close()
	}()

	stored, err := simulation.ResponseFromHTTP(upstream)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, ErrCodeUpstreamRequestFailed)
		return simulation.Response{Status: http.StatusBadGateway}, "error"
	}
	return p.serveStored(w, stored)
}

// serveStored writes a stored response to the client.
func (p *Proxy) serveStored(w http.ResponseWriter, stored simulation.Response) (simulation.Response, string) {
	if stored.Headers != nil {
		stored.Headers = stored.Headers.Clone()
		for _, h := range hopHeaders {
			stored.Headers.Del(h)
		}
	}
	if err := stored.Write(w); err != nil {
		log.Error("Failed to write response: %v", err)
		return stored, "error"
	}
	return stored, "ok"
}

// diffAgainstExpectation records mismatches between the real response and
// the installed expectation, when one matches the request.
func (p *Proxy) diffAgainstExpectation(req simulation.Request, actual simulation.Response) {
	pair, ok := p.matcher.Match(req)
	if !ok {
		return
	}
	if diffs := simulation.CompareResponses(pair.Response, actual); len(diffs) > 0 {
		p.recordDiff(simulation.DiffEntry{Request: req, Diffs: diffs})
	}
}

// roundTrip rebuilds the proxied request as a client request upstream.
func (p *Proxy) roundTrip(r *http.Request, body []byte) (*http.Response, error) {
	target := *r.URL
	if target.Scheme == "" {
		target.Scheme = "http"
	}
	if target.Host == "" {
		target.Host = r.Host
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, NewProxyError(ErrCodeUpstreamRequestFailed, err)
	}
	req.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewProxyError(ErrCodeUpstreamRequestFailed, err)
	}
	return resp, nil
}
