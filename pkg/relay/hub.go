// Package relay routes responses back to the exact page context that
// issued a request. Each page/tab context registers a connection
// under its origin context id; replies are never broadcast.
package relay

import (
	"log/slog"
	"sync"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
)

// Conn is one live reply destination, typically the content-script
// relay for a single tab.
type Conn interface {
	Deliver(resp contracts.ResponseEnvelope) error
}

// Hub is the response channel. It keeps the registry of live origin
// contexts and delivers one correlated response per request.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]Conn
	logger *slog.Logger
}

// NewHub builds an empty hub. logger may be nil.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]Conn),
		logger: logger.With("component", "relay"),
	}
}

// Register binds an origin context id to a live connection, replacing
// any previous binding (a page reload re-registers under the same id).
func (h *Hub) Register(originContextID string, c Conn) {
	h.mu.Lock()
	h.conns[originContextID] = c
	h.mu.Unlock()
}

// Unregister drops the binding. Pending replies for the context are
// swallowed from then on; there is no retry target.
func (h *Hub) Unregister(originContextID string) {
	h.mu.Lock()
	delete(h.conns, originContextID)
	h.mu.Unlock()
}

// IsLive reports whether the origin context can still receive a
// reply. Requests from dead contexts are dropped before validation,
// since no reply could ever be delivered.
func (h *Hub) IsLive(originContextID string) bool {
	h.mu.Lock()
	_, ok := h.conns[originContextID]
	h.mu.Unlock()
	return ok
}

// Reply delivers resp to the exact context that sent the original
// request. An unreachable context is logged and swallowed.
func (h *Hub) Reply(originContextID string, resp contracts.ResponseEnvelope) {
	h.mu.Lock()
	c, ok := h.conns[originContextID]
	h.mu.Unlock()

	if !ok {
		h.logger.Warn("dropping reply for vanished origin context",
			"origin_context_id", originContextID,
			"request_id", resp.RequestID)
		return
	}
	if err := c.Deliver(resp); err != nil {
		h.logger.Warn("reply delivery failed",
			"origin_context_id", originContextID,
			"request_id", resp.RequestID,
			"error", err)
	}
}
