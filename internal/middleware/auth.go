package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/merelax/internal/auth"
	"github.com/dukerupert/merelax/internal/credential"
	"github.com/dukerupert/merelax/internal/model"
)

// Authenticator resolves an access token to its parent.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.Parent, error)
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth validates the bearer access token and populates AuthContext.
func RequireAuth(a Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			p, err := a.Authenticate(r.Context(), token)
			if errors.Is(err, credential.ErrInvalidToken) {
				unauthorized(w)
				return
			}
			if err != nil {
				logger.Error("authenticate request", "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{ParentID: p.ID, Email: p.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, credential.ErrInvalidToken.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
