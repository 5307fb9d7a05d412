package proxy

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	gosocks5 "github.com/armon/go-socks5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubmill/simbridge/simbridge-srv/config"
)

// startSocks5Server runs a go-socks5 server on an ephemeral port and
// returns its address. With credentials set, only authenticated clients
// are accepted.
func startSocks5Server(t *testing.T, username, password string) string {
	t.Helper()
	socksCfg := &gosocks5.Config{}
	if username != "" {
		socksCfg.Credentials = gosocks5.StaticCredentials{username: password}
	}
	server, err := gosocks5.New(socksCfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})
	go func() {
		_ = server.Serve(ln)
	}()
	return ln.Addr().String()
}

func TestCaptureViaSocks5Upstream(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "from-backend")
	}))
	defer backend.Close()

	cfg := config.Default()
	cfg.Upstream.Socks5Address = startSocks5Server(t, "", "")

	p := startProxy(t, cfg, ModeCapture)
	resp, err := p.Client().Get(backend.URL + "/via-socks")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "from-backend", string(body))

	sim := p.Simulation()
	require.Len(t, sim.Pairs, 1)
	assert.Equal(t, "/via-socks", sim.Pairs[0].Request.Path)
}

func TestCaptureViaAuthenticatedSocks5Upstream(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "authed-backend")
	}))
	defer backend.Close()

	addr := startSocks5Server(t, "proxyuser", "proxypass")

	cfg := config.Default()
	cfg.Upstream.Socks5Address = addr
	cfg.Upstream.Username = "proxyuser"
	cfg.Upstream.Password = "proxypass"

	p := startProxy(t, cfg, ModeCapture)
	resp, err := p.Client().Get(backend.URL + "/authed")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "authed-backend", string(body))
}

func TestWrongSocks5CredentialsFailUpstream(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "unreachable")
	}))
	defer backend.Close()

	addr := startSocks5Server(t, "proxyuser", "proxypass")

	cfg := config.Default()
	cfg.Upstream.Socks5Address = addr
	cfg.Upstream.Username = "proxyuser"
	cfg.Upstream.Password = "wrong"

	p := startProxy(t, cfg, ModeCapture)
	resp, err := p.Client().Get(backend.URL + "/denied")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, ErrCodeUpstreamRequestFailed, resp.Header.Get("X-Proxy-Error"))
}
