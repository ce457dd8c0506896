// Package webserver is the local HTTP command surface: remote UIs post say
// texts and session triggers, and subscribe to a websocket stream of the
// satellite's indication state.
package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/domain"
	"github.com/perchlabs/perch/internal/history"
	"github.com/perchlabs/perch/internal/indication"
	"github.com/perchlabs/perch/internal/pipeline"
)

// Actions is the slice of user actions the web surface can trigger.
type Actions interface {
	// ListenForCommand starts a session as if the wake word had fired.
	ListenForCommand(ctx context.Context) error
}

// Handler serves the command endpoints and implements [domain.SayBus] for
// the Handle domain: a posted say is an answer surface like the broker.
type Handler struct {
	actions Actions
	states  *indication.Hub
	log     *history.Log

	mu   sync.Mutex
	says map[chan domain.SayCommand]struct{}
}

var _ domain.SayBus = (*Handler)(nil)

// New creates a Handler. states and log may be nil; the corresponding
// endpoints then serve empty data.
func New(actions Actions, states *indication.Hub, log *history.Log) *Handler {
	return &Handler{
		actions: actions,
		states:  states,
		log:     log,
		says:    make(map[chan domain.SayCommand]struct{}),
	}
}

// Register adds the command and event routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/say", h.handleSay)
	mux.HandleFunc("POST /api/listen-for-command", h.handleListenForCommand)
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/events", h.handleEvents)
}

// SubscribeSay implements [domain.SayBus].
func (h *Handler) SubscribeSay() (<-chan domain.SayCommand, func()) {
	ch := make(chan domain.SayCommand, 8)
	h.mu.Lock()
	h.says[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if _, ok := h.says[ch]; ok {
			delete(h.says, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

// sayRequest is the JSON body for the say endpoint.
type sayRequest struct {
	Text      string   `json:"text"`
	SessionID string   `json:"session_id,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
}

func (h *Handler) handleSay(w http.ResponseWriter, r *http.Request) {
	var req sayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	cmd := domain.SayCommand{SessionID: req.SessionID, Text: req.Text, Volume: req.Volume}
	h.mu.Lock()
	for ch := range h.says {
		select {
		case ch <- cmd:
		default:
		}
	}
	h.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListenForCommand(w http.ResponseWriter, r *http.Request) {
	err := h.actions.ListenForCommand(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrPipelineBusy):
		http.Error(w, "a session is already running", http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// historyEntry is the JSON shape of one logged stage outcome.
type historyEntry struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	At        time.Time `json:"at"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := []historyEntry{}
	if h.log != nil {
		for _, e := range h.log.Snapshot() {
			kind, text := history.Describe(e.Result)
			entries = append(entries, historyEntry{
				SessionID: e.SessionID,
				Kind:      kind,
				Text:      text,
				At:        e.At,
			})
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// stateEvent is one websocket frame on the event stream.
type stateEvent struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// handleEvents upgrades to a websocket and streams indication state changes
// until the client disconnects. The current state is sent first.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.states == nil {
		http.Error(w, "events not available", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	states, cancel := h.states.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case state, ok := <-states:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "state surface closed")
				return
			}
			if err := wsjson.Write(ctx, conn, stateEvent{Type: "state", State: string(state)}); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// Server runs the handler on the configured listen address.
type Server struct {
	srv *http.Server
}

// NewServer wires the handler (and any extra registrars, such as health
// endpoints) into an HTTP server on cfg.ListenAddr.
func NewServer(cfg config.WebServerConfig, h *Handler, extra ...func(*http.ServeMux)) *Server {
	mux := http.NewServeMux()
	h.Register(mux)
	for _, register := range extra {
		register(mux)
	}
	return &Server{
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
