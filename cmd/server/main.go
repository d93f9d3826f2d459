package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/triggers/actions"
	"github.com/liamcoop/triggers/conditions"
	"github.com/liamcoop/triggers/cooldown"
	"github.com/liamcoop/triggers/dispatcher"
	"github.com/liamcoop/triggers/event"
	"github.com/liamcoop/triggers/gateway"
	"github.com/liamcoop/triggers/internal/config"
	"github.com/liamcoop/triggers/internal/logger"
	"github.com/liamcoop/triggers/observer"
	"github.com/liamcoop/triggers/presets"
	"github.com/liamcoop/triggers/render"
	"github.com/liamcoop/triggers/rules"
)

const slowRequestThreshold = time.Second

// Server exposes rule authoring, event ingestion and execution history.
type Server struct {
	db         *sql.DB
	store      rules.RuleStore
	dispatcher *dispatcher.Dispatcher
	observer   *observer.Observer
	hub        *observer.WebSocketHub
	router     *chi.Mux
}

// Deps are the components a Server routes to. DB is optional and only used
// by the health check.
type Deps struct {
	DB         *sql.DB
	Store      rules.RuleStore
	Dispatcher *dispatcher.Dispatcher
	Observer   *observer.Observer
	Hub        *observer.WebSocketHub
}

func NewServer(deps Deps) *Server {
	s := &Server{
		db:         deps.DB,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		observer:   deps.Observer,
		hub:        deps.Hub,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// The live stream outlives the request timeout
	r.Get("/api/v1/executions/live", s.hub.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/api/v1/health", s.handleHealth)
		r.Handle("/metrics", promhttp.Handler())

		r.Get("/api/v1/executions", s.handleListExecutions)
		r.Delete("/api/v1/executions", s.handleClearExecutions)
		r.Get("/api/v1/placeholders", s.handlePlaceholders)

		r.Route("/api/v1/tenants/{tenantId}", func(r chi.Router) {
			r.Post("/events", s.handleEvent)

			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules", s.handleListRules)
			r.Get("/rules/{ruleId}", s.handleGetRule)
			r.Patch("/rules/{ruleId}", s.handleUpdateRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request and feeds the logger's status counters.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.CountStatus(status)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		}
		switch {
		case status >= 500:
			logger.Error("request failed", args...)
		case elapsed > slowRequestThreshold && r.URL.Path != "/api/v1/executions/live":
			logger.CountSlowRequest()
			logger.Warn("slow request", args...)
		default:
			logger.Debug("request", args...)
		}
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", LiveViewers: s.hub.Viewers(), Time: time.Now().UTC()}
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Event ingestion handler
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if !req.Type.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", req.Type), nil)
		return
	}

	payload, err := event.Decode(req.Type, req.Payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid event payload", err)
		return
	}

	// An accepted event runs every rule even if the caller goes away; presets
	// are bounded by the executor's own timeout.
	report := s.dispatcher.Dispatch(context.WithoutCancel(r.Context()), event.Event{
		Type:     req.Type,
		TenantID: tenantID,
		Payload:  payload,
	})
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ExecutionsResponse{Executions: s.observer.Buffer()})
}

func (s *Server) handleClearExecutions(w http.ResponseWriter, r *http.Request) {
	s.observer.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaceholders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, PlaceholdersResponse{Placeholders: render.Placeholders()})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.store.Create(r.Context(), req.toRule(tenantID))
	if err != nil {
		respondStoreError(w, "failed to create rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	list, err := s.store.List(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}

	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.store.Get(r.Context(), tenantID, ruleID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get rule", err)
		return
	}
	if rule == nil {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.store.Update(r.Context(), tenantID, ruleID, req.toPatch())
	if err != nil {
		respondStoreError(w, "failed to update rule", err)
		return
	}
	if rule == nil {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	deleted, err := s.store.Delete(r.Context(), tenantID, ruleID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete rule", err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// respondStoreError maps rule store errors: capacity to 409, validation to
// 400, anything else to 500.
func respondStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, rules.ErrRuleLimitExceeded), errors.Is(err, rules.ErrPresetLimitExceeded):
		respondError(w, http.StatusConflict, message, err)
	case errors.Is(err, rules.ErrInvalidRule):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

// openStore picks the PostgreSQL store when a database is configured and
// wraps either store in the tenant snapshot cache.
func openStore(cfg *config.Config) (*sql.DB, rules.RuleStore, error) {
	cacheCfg := rules.DefaultCacheConfig()
	cacheCfg.TTL = cfg.RulesCacheTTL
	cache := rules.NewInMemoryRulesCache(cacheCfg)

	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, keeping rules in memory")
		return nil, rules.NewCachedRuleStore(rules.NewInMemoryRuleStore(), cache), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, rules.NewCachedRuleStore(rules.NewPostgresRuleStore(db), cache), nil
}

func openCooldowns(ctx context.Context, cfg *config.Config) (cooldown.Tracker, func(), error) {
	if cfg.RedisURL == "" {
		return cooldown.NewMemTracker(time.Now), func() {}, nil
	}
	tracker, err := cooldown.NewRedisTracker(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return tracker, func() { tracker.Close() }, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "err", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	if cfg.Gateway.URL == "" {
		logger.Fatal("GATEWAY_URL is required")
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to open rule store", "err", err)
	}
	if db != nil {
		defer db.Close()
	}

	tracker, closeTracker, err := openCooldowns(context.Background(), cfg)
	if err != nil {
		logger.Fatal("failed to connect cooldown store", "err", err)
	}
	defer closeTracker()

	evaluator, err := conditions.NewEvaluator(logger.Component("conditions"))
	if err != nil {
		logger.Fatal("failed to create condition evaluator", "err", err)
	}

	platform := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, cfg.ActionTimeout, logger.Component("gateway"))
	cleanup := actions.NewScheduler(logger.Component("cleanup"), cfg.ActionTimeout)
	defer cleanup.Close()
	executor := actions.NewExecutor(platform, actions.NewHTTPCaller(cfg.ActionTimeout), cleanup, logger.Component("actions"))
	executor.Timeout = cfg.ActionTimeout

	obs := observer.New(cfg.ObserverCapacity)
	obs.Logger = logger.Component("observer")
	hub := observer.NewWebSocketHub(obs.Buffer, logger.Component("live"))
	defer hub.Close()
	obs.Subscribe(hub)

	server := NewServer(Deps{
		DB:    db,
		Store: store,
		Dispatcher: &dispatcher.Dispatcher{
			Rules:      store,
			Conditions: evaluator,
			Selector:   presets.NewSelector(nil),
			Cooldowns:  tracker,
			Executor:   executor,
			Observer:   obs,
			Logger:     logger.Component("dispatcher"),
		},
		Observer: obs,
		Hub:      hub,
	})

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     server,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "err", err)
	}
	logger.Info("server stopped")

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := logger.Shutdown(flushCtx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown error: %v\n", err)
	}
}
