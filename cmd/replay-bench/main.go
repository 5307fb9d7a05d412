// replay-bench measures simulate-mode throughput. It captures a set of
// responses from a local data server through the proxy, switches the
// proxy to simulate mode and replays the captured traffic under
// concurrency, reporting requests per second for both phases.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/stubmill/simbridge/simbridge-srv/config"
	"github.com/stubmill/simbridge/simbridge-srv/logger"
	"github.com/stubmill/simbridge/simbridge-srv/proxy"
)

var (
	numRequests = flag.Int("numRequests", 1000, "Total number of replay requests to send")
	concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
	testTimeout = flag.Duration("timeout", 30*time.Second, "Overall benchmark timeout")
	numPaths    = flag.Int("numPaths", 16, "Number of distinct paths to capture and replay")
	dataSize    = flag.Int("dataSize", 4096, "Size of payload in bytes per response")
)

type result struct {
	bytes int64
	err   error
}

func dataHandler(buf []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write(buf); err != nil {
			logger.Error("failed to write data: %v", err)
		}
	}
}

func sendRequest(ctx context.Context, client *http.Client, targetURL string, wg *sync.WaitGroup, results chan<- result) {
	defer wg.Done()
	req, err := http.NewRequestWithContext(ctx, "GET", targetURL, http.NoBody)
	if err != nil {
		results <- result{0, fmt.Errorf("new request: %w", err)}
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		results <- result{0, fmt.Errorf("do request: %w", err)}
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("Error closing response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		results <- result{0, fmt.Errorf("status %d", resp.StatusCode)}
		return
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		results <- result{n, fmt.Errorf("read body: %w", err)}
		return
	}
	results <- result{n, nil}
}

func runPhase(ctx context.Context, client *http.Client, urls []string, requests int) (success, errors int, bytes int64, dur time.Duration) {
	var wg sync.WaitGroup
	results := make(chan result, requests)
	sem := make(chan struct{}, *concurrency)

	start := time.Now()
	for i := 0; i < requests; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(target string) {
			defer func() { <-sem }()
			sendRequest(ctx, client, target, &wg, results)
		}(urls[i%len(urls)])
	}
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			errors++
		} else {
			success++
			bytes += res.bytes
		}
	}
	return success, errors, bytes, time.Since(start)
}

func main() {
	flag.Parse()

	log.SetOutput(io.Discard)
	logger.SetLevel(logger.ERROR)

	ctx, cancel := context.WithTimeout(context.Background(), *testTimeout)
	defer cancel()

	buf := make([]byte, *dataSize)
	for i := range buf {
		buf[i] = 'a'
	}

	// Data server the capture phase records from.
	targetLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	targetAddr := targetLn.Addr().String()
	go func() {
		if serveErr := http.Serve(targetLn, dataHandler(buf)); serveErr != nil {
			logger.Error("Data server error: %v", serveErr)
		}
	}()

	cfg := config.Default()
	cfg.TimeoutSeconds = 10
	p, err := proxy.New(cfg, proxy.ModeCapture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create proxy: %v\n", err)
		os.Exit(1)
	}
	if err := p.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start proxy: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			logger.Error("Error closing proxy: %v", closeErr)
		}
	}()

	client := p.Client()
	urls := make([]string, *numPaths)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://%s/data/%d", targetAddr, i)
	}

	// Phase 1: capture each path once through the proxy.
	capSuccess, capErrors, _, capDur := runPhase(ctx, client, urls, len(urls))
	if capErrors > 0 {
		fmt.Fprintf(os.Stderr, "capture phase failed: %d errors\n", capErrors)
		os.Exit(1)
	}

	// Phase 2: replay from the recorded simulation, upstream out of
	// the picture.
	if err := targetLn.Close(); err != nil {
		logger.Error("Error closing data server: %v", err)
	}
	if err := p.ResetMode(proxy.ModeSimulate); err != nil {
		fmt.Fprintf(os.Stderr, "switch to simulate: %v\n", err)
		os.Exit(1)
	}
	success, errors, bytes, dur := runPhase(ctx, client, urls, *numRequests)

	fmt.Printf("Capture: %d paths in %.2f s\n", capSuccess, capDur.Seconds())
	fmt.Printf("Replay:  Duration: %.2f s, Success: %d, Errors: %d\n", dur.Seconds(), success, errors)
	fmt.Printf("Replay:  RPS: %.2f, Throughput: %.2f MB/s\n",
		float64(success)/dur.Seconds(), float64(bytes)/dur.Seconds()/1024/1024)

	if errors > 0 || ctx.Err() == context.DeadlineExceeded {
		fmt.Fprintln(os.Stderr, "Benchmark failed: timeout or errors")
		os.Exit(1)
	}
}
