package proxy

import (
	"sync"

	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

// matcher holds the installed request/response pairs and answers lookups
// for incoming requests. First installed match wins.
type matcher struct {
	mu    sync.RWMutex
	pairs []simulation.RequestResponsePair
}

func newMatcher() *matcher {
	return &matcher{}
}

// Install replaces all pairs with the given simulation's pairs.
func (m *matcher) Install(sim *simulation.Simulation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs = make([]simulation.RequestResponsePair, len(sim.Pairs))
	copy(m.pairs, sim.Pairs)
}

// Add appends a captured pair.
func (m *matcher) Add(pair simulation.RequestResponsePair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs = append(m.pairs, pair)
}

// Clear removes all pairs.
func (m *matcher) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs = nil
}

// Match returns the stored pair for req, if any.
func (m *matcher) Match(req simulation.Request) (simulation.RequestResponsePair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pair := range m.pairs {
		if matches(pair.Request, req) {
			return pair, true
		}
	}
	return simulation.RequestResponsePair{}, false
}

// Snapshot exports the current pairs as a simulation.
func (m *matcher) Snapshot() *simulation.Simulation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sim := simulation.New()
	sim.Pairs = make([]simulation.RequestResponsePair, len(m.pairs))
	copy(sim.Pairs, m.pairs)
	return sim
}

// Len returns the number of installed pairs.
func (m *matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pairs)
}

// matches compares a stored request against an incoming one. Method, host,
// path and query must be equal; a stored body only matters when non-empty.
// Headers are deliberately not matched, clients vary too much there.
func matches(stored, incoming simulation.Request) bool {
	if stored.Method != incoming.Method {
		return false
	}
	if stored.Host != incoming.Host {
		return false
	}
	if stored.Path != incoming.Path {
		return false
	}
	if stored.Query != incoming.Query {
		return false
	}
	if stored.Body != "" && stored.Body != incoming.Body {
		return false
	}
	return true
}
