package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

func pairFor(method, host, path string) simulation.RequestResponsePair {
	return simulation.RequestResponsePair{
		Request:  simulation.Request{Method: method, Host: host, Path: path},
		Response: simulation.Response{Status: 200, Body: method + " " + host + path},
	}
}

func TestMatcherInstallAndMatch(t *testing.T) {
	m := newMatcher()
	sim := simulation.New()
	sim.Pairs = []simulation.RequestResponsePair{
		pairFor("GET", "a.test", "/one"),
		pairFor("POST", "a.test", "/two"),
	}
	m.Install(sim)
	require.Equal(t, 2, m.Len())

	pair, ok := m.Match(simulation.Request{Method: "GET", Host: "a.test", Path: "/one"})
	require.True(t, ok)
	assert.Equal(t, "GET a.test/one", pair.Response.Body)

	_, ok = m.Match(simulation.Request{Method: "GET", Host: "a.test", Path: "/two"})
	assert.False(t, ok, "method must match")

	_, ok = m.Match(simulation.Request{Method: "GET", Host: "b.test", Path: "/one"})
	assert.False(t, ok, "host must match")
}

func TestMatcherFirstMatchWins(t *testing.T) {
	m := newMatcher()
	first := pairFor("GET", "a.test", "/dup")
	second := pairFor("GET", "a.test", "/dup")
	second.Response.Body = "second"
	m.Add(first)
	m.Add(second)

	pair, ok := m.Match(simulation.Request{Method: "GET", Host: "a.test", Path: "/dup"})
	require.True(t, ok)
	assert.Equal(t, "GET a.test/dup", pair.Response.Body)
}

func TestMatcherQueryAndBody(t *testing.T) {
	m := newMatcher()
	withQuery := pairFor("GET", "a.test", "/q")
	withQuery.Request.Query = "page=1"
	m.Add(withQuery)

	_, ok := m.Match(simulation.Request{Method: "GET", Host: "a.test", Path: "/q"})
	assert.False(t, ok, "query must match")
	_, ok = m.Match(simulation.Request{Method: "GET", Host: "a.test", Path: "/q", Query: "page=1"})
	assert.True(t, ok)

	withBody := pairFor("POST", "a.test", "/b")
	withBody.Request.Body = `{"x":1}`
	m.Add(withBody)

	_, ok = m.Match(simulation.Request{Method: "POST", Host: "a.test", Path: "/b", Body: "other"})
	assert.False(t, ok, "non-empty stored body must match")
	_, ok = m.Match(simulation.Request{Method: "POST", Host: "a.test", Path: "/b", Body: `{"x":1}`})
	assert.True(t, ok)
}

func TestMatcherEmptyStoredBodyMatchesAny(t *testing.T) {
	m := newMatcher()
	m.Add(pairFor("POST", "a.test", "/any"))

	_, ok := m.Match(simulation.Request{Method: "POST", Host: "a.test", Path: "/any", Body: "whatever"})
	assert.True(t, ok)
}

func TestMatcherSnapshotIsCopy(t *testing.T) {
	m := newMatcher()
	m.Add(pairFor("GET", "a.test", "/x"))

	snap := m.Snapshot()
	require.Len(t, snap.Pairs, 1)
	snap.Pairs[0].Response.Body = "mutated"

	pair, ok := m.Match(simulation.Request{Method: "GET", Host: "a.test", Path: "/x"})
	require.True(t, ok)
	assert.Equal(t, "GET a.test/x", pair.Response.Body)
}

func TestMatcherClear(t *testing.T) {
	m := newMatcher()
	m.Add(pairFor("GET", "a.test", "/x"))
	m.Clear()
	assert.Equal(t, 0, m.Len())
}
