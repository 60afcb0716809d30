package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/merelax/internal/credential"
	"github.com/dukerupert/merelax/internal/exercise"
	"github.com/dukerupert/merelax/internal/line"
	"github.com/dukerupert/merelax/internal/model"
	"github.com/dukerupert/merelax/internal/screentime"
	"github.com/dukerupert/merelax/internal/store"
)

const maxBodyBytes = 1 << 20

var errChildNotFound = errors.New("child not found")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into v, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// ownedChild loads a child and checks it belongs to parentID. A child of
// another parent is reported the same as a missing one.
func ownedChild(ctx context.Context, children *store.ChildStore, parentID, childID int64) (*model.Child, error) {
	c, err := children.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.ParentID != parentID {
		return nil, errChildNotFound
	}
	return c, nil
}

// writeError maps a domain error to its status. Anything unrecognised is
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, credential.ErrInvalidEmail),
		errors.Is(err, credential.ErrInvalidPassword),
		errors.Is(err, credential.ErrAlreadyRegistered),
		errors.Is(err, credential.ErrInvalidCredential),
		errors.Is(err, credential.ErrInvalidOrExpiredCode),
		errors.Is(err, exercise.ErrUnknownExercise),
		errors.Is(err, exercise.ErrInvalidDate):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, credential.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeErr(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, errChildNotFound),
		errors.Is(err, screentime.ErrNoActiveSession):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, line.ErrNotConfigured):
		writeErr(w, http.StatusInternalServerError, err.Error())
	default:
		logger.Error(op, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal server error")
	}
}
