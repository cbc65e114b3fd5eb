package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
	"github.com/Aegis-Wallet/aegis/pkg/dispatcher"
	"github.com/Aegis-Wallet/aegis/pkg/relay"
	"github.com/Aegis-Wallet/aegis/pkg/store"
)

type server struct {
	disp     *dispatcher.Dispatcher
	sessions store.SessionStore
	hub      *relay.Hub
	logger   *slog.Logger
}

func newServer(disp *dispatcher.Dispatcher, sessions store.SessionStore, hub *relay.Hub, logger *slog.Logger) *server {
	return &server{disp: disp, sessions: sessions, hub: hub, logger: logger.With("component", "http")}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/request", s.handleRequest)
	mux.HandleFunc("GET /v1/pending", s.handlePending)
	mux.HandleFunc("POST /v1/complete", s.handleComplete)
	mux.HandleFunc("POST /v1/sessions/revoke", s.handleRevoke)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// chanConn captures the single reply for one HTTP-relayed request.
type chanConn struct {
	ch chan contracts.ResponseEnvelope
}

func (c *chanConn) Deliver(resp contracts.ResponseEnvelope) error {
	select {
	case c.ch <- resp:
	default:
		// A second delivery for the same request would be a core bug;
		// drop rather than block.
	}
	return nil
}

// handleRequest plays the content-script relay: it registers a
// transient origin context, dispatches the envelope, and long-polls
// until the reply arrives or the page goes away.
func (s *server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var env contracts.RequestEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "malformed request envelope", http.StatusBadRequest)
		return
	}
	if env.ID == "" || env.Client.Host == "" {
		http.Error(w, "request id and client host are required", http.StatusBadRequest)
		return
	}

	conn := &chanConn{ch: make(chan contracts.ResponseEnvelope, 1)}
	env.OriginContextID = uuid.New().String()
	s.hub.Register(env.OriginContextID, conn)
	defer s.hub.Unregister(env.OriginContextID)

	s.disp.HandleRequest(r.Context(), env)

	select {
	case resp := <-conn.ch:
		writeJSON(w, http.StatusOK, resp)
	case <-r.Context().Done():
		// The page navigated away; any late reply is swallowed by the
		// hub once the context is unregistered.
	}
}

func (s *server) handlePending(w http.ResponseWriter, r *http.Request) {
	kind := contracts.Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}
	events, err := s.disp.ListPending(r.Context(), kind)
	if err != nil {
		s.logger.Error("list pending failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*contracts.QueuedEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueueID  string             `json:"queue_id"`
		Decision contracts.Decision `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QueueID == "" {
		http.Error(w, "queue_id and decision are required", http.StatusBadRequest)
		return
	}
	if err := s.disp.CompleteQueuedEvent(r.Context(), req.QueueID, req.Decision); err != nil {
		s.logger.Error("completion failed", "queue_id", req.QueueID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRevoke is the UI's explicit "revoke session" action outside
// the request/consent flow.
func (s *server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionIDs []string `json:"session_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "session_ids is required", http.StatusBadRequest)
		return
	}
	removed, err := s.sessions.RemoveByIDs(r.Context(), req.SessionIDs)
	if err != nil {
		s.logger.Error("revoke failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed_ids": removed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
