package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/merelax/internal/auth"
	"github.com/dukerupert/merelax/internal/exercise"
	"github.com/dukerupert/merelax/internal/model"
	"github.com/dukerupert/merelax/internal/store"
	"github.com/dukerupert/merelax/internal/websocket"
)

type ExerciseHandler struct {
	tracker  *exercise.Tracker
	children *store.ChildStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewExerciseHandler(t *exercise.Tracker, cs *store.ChildStore, hub *websocket.Hub, logger *slog.Logger) *ExerciseHandler {
	return &ExerciseHandler{tracker: t, children: cs, hub: hub, logger: logger}
}

func (h *ExerciseHandler) List(w http.ResponseWriter, r *http.Request) {
	exercises, err := h.tracker.Exercises(r.Context())
	if err != nil {
		writeError(w, h.logger, "list exercises", err)
		return
	}
	if exercises == nil {
		exercises = []model.Exercise{}
	}
	writeJSON(w, http.StatusOK, exercises)
}

func (h *ExerciseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	if _, err := ownedChild(r.Context(), h.children, auth.ParentID(r.Context()), id); err != nil {
		writeError(w, h.logger, "exercise stats", err)
		return
	}

	stats, err := h.tracker.Stats(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "exercise stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Log records an exercise for the child. A repeat on the same day is
// answered with success=false rather than an error status.
func (h *ExerciseHandler) Log(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		ExerciseID   int64  `json:"exercise_id"`
		ExerciseDate string `json:"exercise_date"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ExerciseID <= 0 {
		writeErr(w, http.StatusBadRequest, "exercise_id is required")
		return
	}

	parentID := auth.ParentID(r.Context())
	if _, err := ownedChild(r.Context(), h.children, parentID, id); err != nil {
		writeError(w, h.logger, "log exercise", err)
		return
	}

	var date time.Time
	if s := strings.TrimSpace(req.ExerciseDate); s != "" {
		date, err = h.tracker.ParseDate(s)
		if err != nil {
			writeError(w, h.logger, "log exercise", err)
			return
		}
	}

	res, err := h.tracker.Log(r.Context(), id, req.ExerciseID, date)
	if err != nil {
		writeError(w, h.logger, "log exercise", err)
		return
	}
	if res.Success() {
		h.hub.BroadcastTo(parentID, websocket.NewMessage("exercise", "logged", res.Log.ID, id, map[string]any{
			"exercise_id":   res.Log.ExerciseID,
			"exercise_date": res.Log.ExerciseDate,
		}))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": res.Success(),
		"message": res.Message,
		"stats":   res.Stats,
	})
}
