package websocket

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/merelax/internal/credential"
	"github.com/dukerupert/merelax/internal/middleware"
)

// HandleWebSocket authenticates the access token and upgrades the
// connection. Browsers cannot set headers on a WebSocket handshake, so the
// token may also arrive as the access_token query parameter.
func HandleWebSocket(hub *Hub, a middleware.Authenticator, allowedOrigins []string, logger *slog.Logger) http.HandlerFunc {
	patterns := originPatterns(allowedOrigins)
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("access_token")
		if token == "" {
			token = middleware.BearerToken(r)
		}
		p, err := a.Authenticate(r.Context(), token)
		if errors.Is(err, credential.ErrInvalidToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil {
			logger.Error("websocket: authenticate", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: patterns})
		if err != nil {
			logger.Warn("websocket: accept", "error", err)
			return
		}

		NewClient(hub, conn, p.ID).Run(r.Context())
	}
}

// originPatterns turns CORS origins into the host patterns ws.Accept matches.
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
