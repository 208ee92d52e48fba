package websocket

import (
	"net/http"

	"towtrace-backend/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades an authenticated dispatcher connection to the
// duty-status feed. Browsers cannot set headers on the upgrade request, so
// the token is read from the query string when present.
func HandleWebSocket(hub *Hub, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var userClaims middleware.UserClaims

		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			if secret == "" {
				log.Error().Msg("❌ JWT secret not configured")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			claims, err := middleware.ParseToken(tokenString, secret)
			if err != nil {
				log.Warn().Err(err).Msg("❌ Invalid token in query parameter")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			userClaims = claims
		} else {
			// Fallback: Get user from context (set by Auth middleware)
			var ok bool
			userClaims, ok = middleware.GetUserFromContext(r)
			if !ok {
				log.Debug().Msg("❌ No user in context for WebSocket connection")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("❌ WebSocket upgrade failed")
			return
		}

		client := NewClient(userClaims.UserID, userClaims.TenantID, conn, hub)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
