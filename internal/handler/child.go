package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/merelax/internal/auth"
	"github.com/dukerupert/merelax/internal/clock"
	"github.com/dukerupert/merelax/internal/model"
	"github.com/dukerupert/merelax/internal/store"
	"github.com/dukerupert/merelax/internal/websocket"
)

const maxChildNameLen = 100

type ChildHandler struct {
	store  *store.ChildStore
	clock  clock.Clock
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewChildHandler(s *store.ChildStore, c clock.Clock, hub *websocket.Hub, logger *slog.Logger) *ChildHandler {
	return &ChildHandler{store: s, clock: c, hub: hub, logger: logger}
}

func (h *ChildHandler) List(w http.ResponseWriter, r *http.Request) {
	children, err := h.store.ListByParent(r.Context(), auth.ParentID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list children", err)
		return
	}
	if children == nil {
		children = []model.Child{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *ChildHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}
	if utf8.RuneCountInString(req.Name) > maxChildNameLen {
		writeErr(w, http.StatusBadRequest, "name is too long")
		return
	}

	parentID := auth.ParentID(r.Context())
	child, err := h.store.Create(r.Context(), parentID, req.Name, h.clock.Now())
	if err != nil {
		writeError(w, h.logger, "create child", err)
		return
	}
	h.hub.BroadcastTo(parentID, websocket.NewMessage("child", "created", child.ID, child.ID, nil))
	writeJSON(w, http.StatusCreated, child)
}

// Delete removes a child together with its exercise logs and screen-time
// sessions.
func (h *ChildHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	parentID := auth.ParentID(r.Context())
	if _, err := ownedChild(r.Context(), h.store, parentID, id); err != nil {
		writeError(w, h.logger, "delete child", err)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, "delete child", err)
		return
	}
	h.hub.BroadcastTo(parentID, websocket.NewMessage("child", "deleted", id, id, nil))
	w.WriteHeader(http.StatusNoContent)
}
