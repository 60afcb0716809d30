package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/merelax/internal/auth"
	"github.com/dukerupert/merelax/internal/screentime"
	"github.com/dukerupert/merelax/internal/store"
	"github.com/dukerupert/merelax/internal/websocket"
)

type ScreenTimeHandler struct {
	tracker  *screentime.Tracker
	children *store.ChildStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewScreenTimeHandler(t *screentime.Tracker, cs *store.ChildStore, hub *websocket.Hub, logger *slog.Logger) *ScreenTimeHandler {
	return &ScreenTimeHandler{tracker: t, children: cs, hub: hub, logger: logger}
}

type childRequest struct {
	ChildID int64 `json:"child_id"`
}

func (h *ScreenTimeHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	parentID := auth.ParentID(r.Context())
	if _, err := ownedChild(r.Context(), h.children, parentID, req.ChildID); err != nil {
		writeError(w, h.logger, "start screen time", err)
		return
	}

	st, err := h.tracker.Start(r.Context(), req.ChildID)
	if err != nil {
		writeError(w, h.logger, "start screen time", err)
		return
	}
	h.hub.BroadcastTo(parentID, websocket.NewMessage("screentime", "started", st.SessionID, req.ChildID, nil))
	writeJSON(w, http.StatusOK, st)
}

func (h *ScreenTimeHandler) Status(w http.ResponseWriter, r *http.Request) {
	childID, err := strconv.ParseInt(r.URL.Query().Get("child_id"), 10, 64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "child_id is required")
		return
	}
	if _, err := ownedChild(r.Context(), h.children, auth.ParentID(r.Context()), childID); err != nil {
		writeError(w, h.logger, "screen time status", err)
		return
	}

	st, err := h.tracker.Status(r.Context(), childID)
	if err != nil {
		writeError(w, h.logger, "screen time status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *ScreenTimeHandler) End(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	parentID := auth.ParentID(r.Context())
	if _, err := ownedChild(r.Context(), h.children, parentID, req.ChildID); err != nil {
		writeError(w, h.logger, "end screen time", err)
		return
	}

	session, err := h.tracker.End(r.Context(), req.ChildID)
	if err != nil {
		writeError(w, h.logger, "end screen time", err)
		return
	}
	h.hub.BroadcastTo(parentID, websocket.NewMessage("screentime", "ended", session.ID, req.ChildID, map[string]any{
		"total_minutes": session.TotalMinutes,
		"alert_flag":    session.AlertFlag,
	}))
	writeJSON(w, http.StatusOK, session)
}
