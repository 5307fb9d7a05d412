package proxy

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

const tunnelDialTimeout = 10 * time.Second

// handleConnect establishes a blind CONNECT tunnel. Tunneled traffic is
// opaque to the proxy and is neither simulated nor journaled.
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	upstream, err := net.DialTimeout("tcp", r.Host, tunnelDialTimeout)
	if err != nil {
		log.Error("CONNECT dial to %s failed: %v", r.Host, err)
		writeProxyError(w, http.StatusBadGateway, ErrCodeUpstreamDialFailed)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		_ = upstream.Close()
		writeProxyError(w, http.StatusInternalServerError, ErrCodeHTTPHijackNotSupported)
		return
	}
	client, _, err := hj.Hijack()
	if err != nil {
		_ = upstream.Close()
		log.Error("CONNECT hijack failed: %v", err)
		writeProxyError(w, http.StatusInternalServerError, ErrCodeHTTPHijackFailed)
		return
	}

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		log.Error("CONNECT handshake write failed: %v", err)
		_ = client.Close()
		_ = upstream.Close()
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	pipe := func(dst, src net.Conn) {
		defer wg.Done()
		_, _ = io.Copy(dst, src)
		// Half-close so the peer sees EOF instead of hanging.
		if tc, ok := dst.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
	}
	go pipe(upstream, client)
	go pipe(client, upstream)
	wg.Wait()

	_ = client.Close()
	_ = upstream.Close()
}
