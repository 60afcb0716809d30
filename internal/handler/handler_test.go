package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/merelax/internal/auth"
	"github.com/dukerupert/merelax/internal/clock"
	"github.com/dukerupert/merelax/internal/credential"
	"github.com/dukerupert/merelax/internal/database"
	"github.com/dukerupert/merelax/internal/exercise"
	"github.com/dukerupert/merelax/internal/line"
	"github.com/dukerupert/merelax/internal/screentime"
	"github.com/dukerupert/merelax/internal/store"
	"github.com/dukerupert/merelax/internal/websocket"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	mux      *http.ServeMux
	clock    *clock.Mock
	engine   *credential.Engine
	parents  *store.ParentStore
	children *store.ChildStore
	line     *line.Client
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "merelax.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.Default()
	clk := clock.NewMock(testNow)
	parents := store.NewParentStore(db)
	children := store.NewChildStore(db)
	engine := credential.NewEngine(credential.Options{
		Parents:    parents,
		Codes:      store.NewVerificationCodeStore(db),
		Tokens:     store.NewRefreshTokenStore(db),
		Codec:      credential.NewCodec("test-secret-0123456789", 30*time.Minute, 7*24*time.Hour, clk),
		Clock:      clk,
		BcryptCost: bcrypt.MinCost,
	})
	hub := websocket.NewHub(logger)
	lc := line.New("", "", "")

	authH := NewAuthHandler(engine, lc, parents, logger)
	childH := NewChildHandler(children, clk, hub, logger)
	exerciseH := NewExerciseHandler(exercise.NewTracker(store.NewExerciseStore(db), clk, time.UTC, logger, nil), children, hub, logger)
	screenH := NewScreenTimeHandler(screentime.NewTracker(store.NewScreenTimeStore(db), clk, logger, nil), children, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", authH.Register)
	mux.HandleFunc("POST /login", authH.Login)
	mux.HandleFunc("POST /verify-code", authH.VerifyCode)
	mux.HandleFunc("POST /line/callback", authH.LineCallback)
	mux.HandleFunc("POST /refresh", authH.Refresh)
	mux.HandleFunc("POST /logout", authH.Logout)
	mux.HandleFunc("GET /me", authH.Me)
	mux.HandleFunc("GET /exercises", exerciseH.List)
	mux.HandleFunc("GET /children", childH.List)
	mux.HandleFunc("POST /children", childH.Create)
	mux.HandleFunc("DELETE /children/{id}", childH.Delete)
	mux.HandleFunc("GET /children/{id}/exercise/stats", exerciseH.Stats)
	mux.HandleFunc("POST /children/{id}/exercise/log", exerciseH.Log)
	mux.HandleFunc("POST /screentime/start", screenH.Start)
	mux.HandleFunc("GET /screentime/status", screenH.Status)
	mux.HandleFunc("POST /screentime/end", screenH.End)

	return &testEnv{mux: mux, clock: clk, engine: engine, parents: parents, children: children, line: lc}
}

// do sends a request as parentID; zero means unauthenticated.
func (env *testEnv) do(t *testing.T, method, path string, body any, parentID int64) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if parentID != 0 {
		req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{ParentID: parentID}))
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func (env *testEnv) createParent(t *testing.T, email string) int64 {
	t.Helper()
	p, err := env.engine.Register(t.Context(), email, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return p.ID
}

func (env *testEnv) createChild(t *testing.T, parentID int64, name string) int64 {
	t.Helper()
	c, err := env.children.Create(t.Context(), parentID, name, testNow)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return c.ID
}
