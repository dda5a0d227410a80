package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades authenticated clients onto the tenant event feed.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleEventFeed upgrades the connection. RequireAuth must run first so
// the identity is on the context.
func (h *WebSocketHandler) HandleEventFeed(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, identity); err != nil {
		log.Error().
			Err(err).
			Str("tenant_id", identity.TenantID.String()).
			Msg("failed to upgrade WebSocket connection")
		// Upgrade writes its own error response on failure.
		return
	}
}

// HandleConnectionStats reports active feed connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, tenants := h.connectionManager.Stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"total_connections": total,
		"active_tenants":    tenants,
	})
}
