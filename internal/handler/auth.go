package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/merelax/internal/auth"
	"github.com/dukerupert/merelax/internal/credential"
	"github.com/dukerupert/merelax/internal/line"
	"github.com/dukerupert/merelax/internal/model"
	"github.com/dukerupert/merelax/internal/store"
)

type AuthHandler struct {
	engine  *credential.Engine
	line    *line.Client
	parents *store.ParentStore
	logger  *slog.Logger
}

func NewAuthHandler(e *credential.Engine, lc *line.Client, ps *store.ParentStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{engine: e, line: lc, parents: ps, logger: logger}
}

type parentResponse struct {
	ParentID      int64     `json:"parent_id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func newParentResponse(p *model.Parent) parentResponse {
	return parentResponse{
		ParentID:      p.ID,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		CreatedAt:     p.CreatedAt,
	}
}

type userSummary struct {
	ParentID int64  `json:"parent_id"`
	Email    string `json:"email"`
}

type grantResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         userSummary `json:"user"`
}

func newGrantResponse(g *credential.Grant) grantResponse {
	return grantResponse{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		TokenType:    g.TokenType,
		ExpiresIn:    g.ExpiresIn,
		User:         userSummary{ParentID: g.Parent.ID, Email: g.Parent.Email},
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.engine.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, newParentResponse(p))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ch, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":           "Verification code generated",
		"session_id":        ch.SessionID,
		"verification_code": ch.Code,
		"expires_in":        ch.ExpiresIn,
	})
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Code      string `json:"verification_code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	g, err := h.engine.VerifyCode(r.Context(), strings.TrimSpace(req.SessionID), strings.TrimSpace(req.Code))
	if err != nil {
		writeError(w, h.logger, "verify code", err)
		return
	}
	writeJSON(w, http.StatusOK, newGrantResponse(g))
}

// LineCallback consumes a LINE authorization code. The redirect that
// produced it is the client's business.
func (h *AuthHandler) LineCallback(w http.ResponseWriter, r *http.Request) {
	if !h.line.Configured() {
		writeError(w, h.logger, "line callback", line.ErrNotConfigured)
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeErr(w, http.StatusBadRequest, "code is required")
		return
	}

	tr, err := h.line.Exchange(r.Context(), req.Code)
	if err != nil {
		h.logger.Warn("line token exchange", "error", err)
		writeErr(w, http.StatusBadRequest, "failed to get LINE token")
		return
	}
	profile, err := h.line.Profile(r.Context(), tr.AccessToken)
	if err != nil {
		h.logger.Warn("line profile", "error", err)
		writeErr(w, http.StatusBadRequest, "failed to get LINE profile")
		return
	}

	g, err := h.engine.LoginWithLine(r.Context(), profile.UserID, h.line.EmailFromIDToken(tr.IDToken))
	if err != nil {
		writeError(w, h.logger, "line login", err)
		return
	}
	writeJSON(w, http.StatusOK, newGrantResponse(g))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ag, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, h.logger, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": ag.AccessToken,
		"token_type":   ag.TokenType,
		"expires_in":   ag.ExpiresIn,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, h.logger, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.parents.GetByID(r.Context(), auth.ParentID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "me", err)
		return
	}
	if p == nil {
		writeError(w, h.logger, "me", credential.ErrInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, newParentResponse(p))
}
