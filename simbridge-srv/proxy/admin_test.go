package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubmill/simbridge/simbridge-srv/config"
	"github.com/stubmill/simbridge/simbridge-srv/journal"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

func adminURL(p *Proxy, path string) string {
	return fmt.Sprintf("http://%s%s", p.AdminAddr(), path)
}

func adminDo(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestAdminState(t *testing.T) {
	p := startProxy(t, nil, ModeSimulate)
	installPair(p, "svc.internal", "/a", "ok")

	resp := adminDo(t, http.MethodGet, adminURL(p, "/api/v2/state"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state stateResponse
	decodeBody(t, resp, &state)
	assert.Equal(t, "simulate", state.Mode)
	assert.Equal(t, 1, state.PairCount)
	assert.Equal(t, 0, state.JournalEntries)
}

func TestAdminSimulationRoundtrip(t *testing.T) {
	p := startProxy(t, nil, ModeSimulate)

	sim := simulation.New()
	sim.Pairs = append(sim.Pairs, simulation.RequestResponsePair{
		Request:  simulation.Request{Method: "GET", Scheme: "http", Host: "svc.internal", Path: "/admin-put"},
		Response: simulation.Response{Status: 200, Body: "uploaded"},
	})
	payload, err := json.Marshal(sim)
	require.NoError(t, err)

	putResp := adminDo(t, http.MethodPut, adminURL(p, "/api/v2/simulation"), bytes.NewReader(payload))
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	resp, err := p.Client().Get("http://svc.internal/admin-put")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "uploaded", string(body))

	getResp := adminDo(t, http.MethodGet, adminURL(p, "/api/v2/simulation"), nil)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var fetched simulation.Simulation
	decodeBody(t, getResp, &fetched)
	require.Len(t, fetched.Pairs, 1)
	assert.Equal(t, "/admin-put", fetched.Pairs[0].Request.Path)
}

func TestAdminSimulationRejectsInvalidPayload(t *testing.T) {
	p := startProxy(t, nil, ModeSimulate)
	resp := adminDo(t, http.MethodPut, adminURL(p, "/api/v2/simulation"), strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminJournalEndpoints(t *testing.T) {
	p := startProxy(t, nil, ModeSimulate)
	installPair(p, "svc.internal", "/j", "ok")

	resp, err := p.Client().Get("http://svc.internal/j")
	require.NoError(t, err)
	_ = resp.Body.Close()

	jResp := adminDo(t, http.MethodGet, adminURL(p, "/api/v2/journal"), nil)
	require.Equal(t, http.StatusOK, jResp.StatusCode)
	var entries []journal.Entry
	decodeBody(t, jResp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "/j", entries[0].Request.Path)

	delResp := adminDo(t, http.MethodDelete, adminURL(p, "/api/v2/journal"), nil)
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	jResp = adminDo(t, http.MethodGet, adminURL(p, "/api/v2/journal"), nil)
	decodeBody(t, jResp, &entries)
	assert.Empty(t, entries)
}

func TestAdminModeEndpoints(t *testing.T) {
	p := startProxy(t, nil, ModeSimulate)

	body, err := json.Marshal(modeRequest{Mode: "capture"})
	require.NoError(t, err)
	putResp := adminDo(t, http.MethodPut, adminURL(p, "/api/v2/mode"), bytes.NewReader(body))
	require.Equal(t, http.StatusOK, putResp.StatusCode)
	assert.Equal(t, ModeCapture, p.Mode())

	getResp := adminDo(t, http.MethodGet, adminURL(p, "/api/v2/mode"), nil)
	var current modeRequest
	decodeBody(t, getResp, &current)
	assert.Equal(t, "capture", current.Mode)

	badBody, err := json.Marshal(modeRequest{Mode: "bogus"})
	require.NoError(t, err)
	badResp := adminDo(t, http.MethodPut, adminURL(p, "/api/v2/mode"), bytes.NewReader(badBody))
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
	assert.Equal(t, ModeCapture, p.Mode())
}

func TestAdminDiffEndpoints(t *testing.T) {
	p := startProxy(t, nil, ModeDiff)
	p.recordDiff(simulation.DiffEntry{
		Request: simulation.Request{Method: "GET", Scheme: "http", Host: "svc.internal", Path: "/d"},
		Diffs:   []simulation.FieldDiff{{Field: "status", Expected: "200", Actual: "500"}},
	})

	getResp := adminDo(t, http.MethodGet, adminURL(p, "/api/v2/diff"), nil)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var report simulation.Report
	decodeBody(t, getResp, &report)
	require.Len(t, report.Entries, 1)

	delResp := adminDo(t, http.MethodDelete, adminURL(p, "/api/v2/diff"), nil)
	require.Equal(t, http.StatusOK, delResp.StatusCode)
	clearedReport := p.DiffReport()
	assert.True(t, clearedReport.Empty())
}

func TestAdminMetricsEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	p := startProxy(t, cfg, ModeSimulate)
	installPair(p, "svc.internal", "/m", "ok")

	resp, err := p.Client().Get("http://svc.internal/m")
	require.NoError(t, err)
	_ = resp.Body.Close()

	mResp := adminDo(t, http.MethodGet, adminURL(p, "/metrics"), nil)
	require.Equal(t, http.StatusOK, mResp.StatusCode)
	body, err := io.ReadAll(mResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "simbridge_requests_total")
	assert.Contains(t, string(body), "simbridge_journal_entries")
}

func TestAdminJournalStream(t *testing.T) {
	p := startProxy(t, nil, ModeSimulate)
	installPair(p, "svc.internal", "/stream", "ok")

	wsURL := fmt.Sprintf("ws://%s/api/v2/ws/journal", p.AdminAddr())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() {
		_ = conn.Close()
	}()

	resp, err := p.Client().Get("http://svc.internal/stream")
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var entry journal.Entry
	require.NoError(t, conn.ReadJSON(&entry))
	assert.Equal(t, "/stream", entry.Request.Path)
	assert.Equal(t, "simulate", entry.Mode)
}

func TestAdminAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Admin.AuthEnabled = true
	cfg.Admin.JWTSecret = "test-secret-test-secret-32-bytes"
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = "hunter2"
	p := startProxy(t, cfg, ModeSimulate)

	// Unauthenticated requests are rejected.
	resp := adminDo(t, http.MethodGet, adminURL(p, "/api/v2/state"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Bad credentials are rejected.
	badLogin, err := json.Marshal(loginRequest{Username: "admin", Password: "wrong"})
	require.NoError(t, err)
	resp = adminDo(t, http.MethodPost, adminURL(p, "/api/v2/login"), bytes.NewReader(badLogin))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid login yields a bearer token.
	goodLogin, err := json.Marshal(loginRequest{Username: "admin", Password: "hunter2"})
	require.NoError(t, err)
	resp = adminDo(t, http.MethodPost, adminURL(p, "/api/v2/login"), bytes.NewReader(goodLogin))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login loginResponse
	decodeBody(t, resp, &login)
	require.NotEmpty(t, login.Token)

	req, err := http.NewRequest(http.MethodGet, adminURL(p, "/api/v2/state"), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	authResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = authResp.Body.Close()
	}()
	assert.Equal(t, http.StatusOK, authResp.StatusCode)

	// A token signed with a different secret is rejected.
	req.Header.Set("Authorization", "Bearer not-a-valid-token")
	badResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = badResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, badResp.StatusCode)
}
