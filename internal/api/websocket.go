package api

import (
	"errors"
	"net/http"

	"github.com/sous-kitchen/edge-core/internal/auth"
	"github.com/sous-kitchen/edge-core/internal/realtime"
)

// handleWebSocket authenticates and upgrades a realtime connection.
//
// The same chain as the REST surface runs here, before the upgrade, so a
// rejected caller gets a clean 401 instead of a dropped socket. Browsers
// cannot set headers on WebSocket upgrades, which is why the bearer token
// may arrive as a ?token= query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "realtime hub not available")
		return
	}

	creds := auth.CredentialsFromRequest(r)
	principal, err := s.chain.Authenticate(r.Context(), creds)
	if err != nil {
		switch {
		case creds.BearerToken == "" && creds.HardwareID != "":
			// A factory-fresh unit has no device record and cannot know
			// its organisation; pairing delivers both over this very
			// connection. Admit it unverified. The empty organisation on
			// the principal keeps the connection out of org fan-out, so
			// it can only receive events targeted at its hardware ID.
			principal = auth.UnverifiedHardware(creds.HardwareID)
			s.logger.Debug("unverified hardware connection admitted",
				"hardware_id", creds.HardwareID,
			)
		case errors.Is(err, auth.ErrTokenInvalid):
			writeUnauthorized(w, "invalid or expired token")
			return
		default:
			writeUnauthorized(w, "authentication required")
			return
		}
	}

	conn, err := realtime.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := realtime.NewClient(s.hub, conn, principal)
	s.hub.Register(client)

	go client.WritePump(s.wsCfg)
	go client.ReadPump(s.wsCfg)
}
