package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/merelax/internal/clock"
	"github.com/dukerupert/merelax/internal/config"
	"github.com/dukerupert/merelax/internal/credential"
	"github.com/dukerupert/merelax/internal/exercise"
	"github.com/dukerupert/merelax/internal/handler"
	"github.com/dukerupert/merelax/internal/line"
	"github.com/dukerupert/merelax/internal/metrics"
	"github.com/dukerupert/merelax/internal/middleware"
	"github.com/dukerupert/merelax/internal/screentime"
	"github.com/dukerupert/merelax/internal/store"
	ws "github.com/dukerupert/merelax/internal/websocket"
)

const (
	authRateLimit  = 10
	authRatePeriod = time.Minute

	// Per-IP ceiling across the whole API.
	apiRateLimit = 100
)

type Server struct {
	hub            *ws.Hub
	engine         *credential.Engine
	authH          *handler.AuthHandler
	childH         *handler.ChildHandler
	exerciseH      *handler.ExerciseHandler
	screenTimeH    *handler.ScreenTimeHandler
	rateLimiter    *middleware.RateLimiter
	registry       *prometheus.Registry
	metrics        *metrics.Metrics
	allowedOrigins []string
	trustProxy     bool
	logger         *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*Server, error) {
	if clk == nil {
		clk = clock.Real{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New()
	if err := m.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	parentStore := store.NewParentStore(db)
	childStore := store.NewChildStore(db)

	engine := credential.NewEngine(credential.Options{
		Parents: parentStore,
		Codes:   store.NewVerificationCodeStore(db),
		Tokens:  store.NewRefreshTokenStore(db),
		Codec:   credential.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, clk),
		Clock:   clk,
		CodeTTL: cfg.VerificationCodeTTL,
		Logger:  logger.With("component", "credential"),
		Metrics: m,
	})
	exerciseTracker := exercise.NewTracker(store.NewExerciseStore(db), clk, cfg.Location(), logger.With("component", "exercise"), m)
	screenTracker := screentime.NewTracker(store.NewScreenTimeStore(db), clk, logger.With("component", "screentime"), m)
	lineClient := line.New(cfg.LineChannelID, cfg.LineChannelSecret, cfg.LineRedirectURI)

	return &Server{
		hub:            hub,
		engine:         engine,
		authH:          handler.NewAuthHandler(engine, lineClient, parentStore, logger.With("component", "auth")),
		childH:         handler.NewChildHandler(childStore, clk, hub, logger.With("component", "child")),
		exerciseH:      handler.NewExerciseHandler(exerciseTracker, childStore, hub, logger.With("component", "exercise")),
		screenTimeH:    handler.NewScreenTimeHandler(screenTracker, childStore, hub, logger.With("component", "screentime")),
		rateLimiter:    middleware.NewRateLimiter(clk),
		registry:       registry,
		metrics:        m,
		allowedOrigins: cfg.AllowedOrigins,
		trustProxy:     cfg.TrustedProxy,
		logger:         logger,
	}, nil
}

// Engine returns the credential engine for purge tasks.
func (s *Server) Engine() *credential.Engine {
	return s.engine
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	outerMux.HandleFunc("POST /api/v1/auth/register", s.authH.Register)
	outerMux.HandleFunc("POST /api/v1/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/v1/auth/verify-code", s.rateLimitedHandler(s.authH.VerifyCode))
	outerMux.HandleFunc("POST /api/v1/auth/line/callback", s.rateLimitedHandler(s.authH.LineCallback))
	outerMux.HandleFunc("POST /api/v1/auth/refresh", s.authH.Refresh)
	outerMux.HandleFunc("POST /api/v1/auth/logout", s.authH.Logout)

	// The handshake authenticates itself from the query string.
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.engine, s.allowedOrigins, s.logger.With("component", "websocket")))

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.engine, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	})

	limited := httprate.Limit(apiRateLimit, time.Minute, httprate.WithKeyFuncs(s.keyByClient))(outerMux)

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(corsHandler(limited))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) clientIP(r *http.Request) string {
	return middleware.ClientIP(r, s.trustProxy)
}

func (s *Server) keyByClient(r *http.Request) (string, error) {
	return s.clientIP(r), nil
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, s.clientIP, authRateLimit, authRatePeriod)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/auth/me", s.authH.Me)

	mux.HandleFunc("GET /api/v1/exercises", s.exerciseH.List)

	mux.HandleFunc("GET /api/v1/children", s.childH.List)
	mux.HandleFunc("POST /api/v1/children", s.childH.Create)
	mux.HandleFunc("DELETE /api/v1/children/{id}", s.childH.Delete)
	mux.HandleFunc("GET /api/v1/children/{id}/exercise/stats", s.exerciseH.Stats)
	mux.HandleFunc("POST /api/v1/children/{id}/exercise/log", s.exerciseH.Log)

	mux.HandleFunc("POST /api/v1/screentime/start", s.screenTimeH.Start)
	mux.HandleFunc("GET /api/v1/screentime/status", s.screenTimeH.Status)
	mux.HandleFunc("POST /api/v1/screentime/end", s.screenTimeH.End)
}
