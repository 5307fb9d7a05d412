package simbridge_harness

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/stubmill/simbridge/simbridge-srv/proxy"
)

// Harness is embedded into a testify suite to manage the proxy around
// it. Run the suite through Run so the harness can see the embedding
// suite's provider spec:
//
//	type UserAPISuite struct {
//		simbridge_harness.Harness
//	}
//
//	func (s *UserAPISuite) SimulateSpec() simbridge_harness.Simulate {
//		return simbridge_harness.Simulate{}
//	}
//
//	func TestUserAPI(t *testing.T) {
//		simbridge_harness.Run(t, new(UserAPISuite))
//	}
//
// A suite that defines its own SetupSuite, SetupTest, TearDownTest or
// TearDownSuite must call the Harness method of the same name first.
type Harness struct {
	suite.Suite

	outer any
	ext   *Extension
}

type harnessHolder interface {
	harness() *Harness
}

func (h *Harness) harness() *Harness { return h }

// Run binds the harness to its embedding suite and runs the suite.
func Run(t *testing.T, s suite.TestingSuite) {
	holder, ok := s.(harnessHolder)
	if !ok {
		t.Fatalf("suite %T does not embed simbridge_harness.Harness", s)
	}
	holder.harness().outer = s
	suite.Run(t, s)
}

// Proxy returns the live proxy for the current suite.
func (h *Harness) Proxy() *proxy.Proxy {
	if h.ext == nil {
		return nil
	}
	return h.ext.Proxy()
}

// Client returns an HTTP client routing through the suite's proxy.
func (h *Harness) Client() *http.Client {
	return h.Proxy().Client()
}

func (h *Harness) SetupSuite() {
	require := h.Require()
	ext, err := NewExtension(h.outer)
	require.NoError(err, "resolving the suite's proxy setup")
	h.ext = ext
	require.NoError(ext.BeforeAll(), "starting the proxy")
	require.NoError(ext.Inject(h.outer), "injecting the proxy")
}

func (h *Harness) SetupTest() {
	h.Require().NoError(h.ext.BeforeEach(), "resetting the proxy")
}

func (h *Harness) TearDownTest() {
	h.Require().NoError(h.ext.AfterEach())
}

func (h *Harness) TearDownSuite() {
	h.Require().NoError(h.ext.AfterAll())
}
