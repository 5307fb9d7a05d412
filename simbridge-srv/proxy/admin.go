package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stubmill/simbridge/simbridge-srv/journal"
	"github.com/stubmill/simbridge/simbridge-srv/logger"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

var adminLog = logger.WithComponent("admin")

// journalHub fans out journal entries to live websocket subscribers.
type journalHub struct {
	mu     sync.Mutex
	subs   map[chan journal.Entry]struct{}
	closed bool
}

func newJournalHub() *journalHub {
	return &journalHub{subs: make(map[chan journal.Entry]struct{})}
}

func (h *journalHub) subscribe() chan journal.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan journal.Entry, 64)
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

func (h *journalHub) unsubscribe(ch chan journal.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// publish drops entries for slow subscribers rather than blocking the
// proxy's request path.
func (h *journalHub) publish(entry journal.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

func (h *journalHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan journal.Entry]struct{})
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		adminLog.Error("Failed to encode JSON response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// stateResponse is returned by GET /api/v2/state.
type stateResponse struct {
	Mode           string `json:"mode"`
	PairCount      int    `json:"pair-count"`
	JournalEntries int    `json:"journal-entries"`
}

// modeRequest is the body for PUT /api/v2/mode.
type modeRequest struct {
	Mode string `json:"mode"`
}

// adminHandler builds the admin API mux.
func (p *Proxy) adminHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v2/state", func(w http.ResponseWriter, r *http.Request) {
		entries, err := p.Journal()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, stateResponse{
			Mode:           string(p.Mode()),
			PairCount:      p.matcher.Len(),
			JournalEntries: len(entries),
		})
	})

	mux.HandleFunc("GET /api/v2/simulation", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, p.Simulation())
	})

	mux.HandleFunc("PUT /api/v2/simulation", func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		sim, err := simulation.Decode(data, "simulation.json")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.ImportSimulation(sim)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/v2/journal", func(w http.ResponseWriter, r *http.Request) {
		entries, err := p.Journal()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []journal.Entry{}
		}
		writeJSON(w, entries)
	})

	mux.HandleFunc("DELETE /api/v2/journal", func(w http.ResponseWriter, r *http.Request) {
		if err := p.ResetJournal(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/v2/mode", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, modeRequest{Mode: string(p.Mode())})
	})

	mux.HandleFunc("PUT /api/v2/mode", func(w http.ResponseWriter, r *http.Request) {
		var req modeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid mode request", http.StatusBadRequest)
			return
		}
		if err := p.ResetMode(Mode(req.Mode)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/v2/diff", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, p.DiffReport())
	})

	mux.HandleFunc("DELETE /api/v2/diff", func(w http.ResponseWriter, r *http.Request) {
		p.ClearDiffs()
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/v2/ws/journal", p.serveJournalStream)

	if p.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(p.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	auth := newAdminAuth(&p.cfg.Admin)
	auth.registerLogin(mux)
	return auth.wrap(mux)
}

var journalStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Admin listener is loopback-scoped in test setups.
		return true
	},
}

// serveJournalStream streams journal entries to a websocket client as
// they are recorded.
func (p *Proxy) serveJournalStream(w http.ResponseWriter, r *http.Request) {
	conn, err := journalStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		adminLog.Debug("Journal stream upgrade failed: %v", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	sub := p.hub.subscribe()
	defer p.hub.unsubscribe(sub)

	// Drain client frames so close handshakes are noticed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			return
		case entry, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				adminLog.Debug("Journal stream write failed: %v", err)
				return
			}
		}
	}
}
