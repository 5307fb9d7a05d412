package simbridge_harness

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stubmill/simbridge/simbridge-srv/proxy"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

// userAPISuite replays a recorded simulation for every test.
type userAPISuite struct {
	Harness

	// Filled by injection at suite start.
	Bridge *proxy.Proxy
}

var userAPISimulation string

func (s *userAPISuite) SimulateSpec() Simulate {
	return Simulate{Source: Source{Type: SourceFile, Value: userAPISimulation}}
}

func (s *userAPISuite) TestSimulatedResponse() {
	resp, err := s.Client().Get("http://users.internal/v1/users")
	s.Require().NoError(err)
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal(`[{"name":"ada"}]`, string(body))
}

func (s *userAPISuite) TestJournalIsFreshPerTest() {
	entries, err := s.Proxy().Journal()
	s.Require().NoError(err)
	s.Empty(entries, "the journal is reset before every test")

	resp, err := s.Client().Get("http://users.internal/v1/users")
	s.Require().NoError(err)
	_ = resp.Body.Close()

	entries, err = s.Proxy().Journal()
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *userAPISuite) TestProxyIsInjected() {
	s.Require().NotNil(s.Bridge)
	s.Same(s.Proxy(), s.Bridge)
}

func TestUserAPISuite(t *testing.T) {
	sim := simulation.New()
	sim.Pairs = append(sim.Pairs, simulation.RequestResponsePair{
		Request:  simulation.Request{Method: "GET", Scheme: "http", Host: "users.internal", Path: "/v1/users"},
		Response: simulation.Response{Status: 200, Body: `[{"name":"ada"}]`},
	})
	userAPISimulation = filepath.Join(t.TempDir(), "users.json")
	if err := sim.WriteFile(userAPISimulation); err != nil {
		t.Fatal(err)
	}

	Run(t, new(userAPISuite))
}

// captureRunSuite records live traffic and checks the export afterwards.
type captureRunSuite struct {
	Harness
}

var (
	captureRunUpstream *httptest.Server
	captureRunDir      string
)

func (s *captureRunSuite) CaptureSpec() Capture {
	return Capture{Path: captureRunDir, Filename: "orders.json"}
}

func (s *captureRunSuite) TestCapturesLiveTraffic() {
	resp, err := s.Client().Get(captureRunUpstream.URL + "/orders/7")
	s.Require().NoError(err)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	_ = resp.Body.Close()
	s.Equal("order 7", string(body))
}

func TestCaptureRunSuite(t *testing.T) {
	captureRunUpstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "order 7")
	}))
	defer captureRunUpstream.Close()
	captureRunDir = t.TempDir()

	Run(t, new(captureRunSuite))

	exported, err := simulation.ReadFile(filepath.Join(captureRunDir, "orders.json"))
	if err != nil {
		t.Fatalf("expected capture export after the suite: %v", err)
	}
	if len(exported.Pairs) != 1 {
		t.Fatalf("expected 1 captured pair, got %d", len(exported.Pairs))
	}
	if exported.Pairs[0].Request.Path != "/orders/7" {
		t.Errorf("unexpected captured path %q", exported.Pairs[0].Request.Path)
	}
}
