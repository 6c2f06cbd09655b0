package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/events"
	"github.com/opsboard/opsboard/internal/platform/metrics"
	"github.com/opsboard/opsboard/internal/platform/middleware"
	"github.com/opsboard/opsboard/internal/platform/ratelimit"
	"github.com/opsboard/opsboard/internal/rbac"
	"github.com/opsboard/opsboard/internal/task"
	"github.com/opsboard/opsboard/internal/tenant"
)

// Dependencies holds all injected dependencies for the server. Nil
// handlers leave their routes unregistered.
type Dependencies struct {
	Pool              *pgxpool.Pool
	Auth              *auth.TokenService
	AuthHandler       *auth.Handler
	TaskHandler       *task.Handler
	EventHandler      *events.Handler
	UserHandler       *tenant.UserHandler
	DepartmentHandler *tenant.DepartmentHandler
	CompanyHandler    *tenant.CompanyHandler
	AuditHandler      *audit.Handler

	// AuditLogger receives best-effort access.denied entries.
	AuditLogger audit.Logger
	Metrics     *metrics.Metrics
	// Limiter throttles the routes that declare a RateLimit scope.
	Limiter        ratelimit.Limiter
	TrustedProxies middleware.TrustedProxies

	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	pool       *pgxpool.Pool
	handler    http.Handler

	tokenSvc *auth.TokenService
	metrics  *metrics.Metrics
	limiter  ratelimit.Limiter
	proxies  middleware.TrustedProxies
	rbacOpts []rbac.MiddlewareOption
}

func New(addr string, deps Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		mux:      mux,
		pool:     deps.Pool,
		tokenSvc: deps.Auth,
		metrics:  deps.Metrics,
		limiter:  deps.Limiter,
		proxies:  deps.TrustedProxies,
	}

	if deps.AuditLogger != nil {
		s.rbacOpts = append(s.rbacOpts, rbac.WithAuditLogger(deps.AuditLogger))
	}
	if deps.Metrics != nil {
		s.rbacOpts = append(s.rbacOpts, rbac.WithDecisionObserver(deps.Metrics))
	}

	// Operational endpoints stay outside instrumentation and auth
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	for _, route := range Routes(deps) {
		s.Handle(route)
	}

	// Wrap the mux with observability middleware
	var handler http.Handler = mux
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handle registers one route. Protected routes resolve the caller's
// identity and check the declared permissions before the handler runs.
func (s *Server) Handle(route Route) {
	var h http.Handler = route.Handler

	h = rbac.Require(route.Require, s.rbacOpts...)(h)
	if route.RateLimit != "" && s.limiter != nil {
		var observer middleware.RejectionObserver
		if s.metrics != nil {
			observer = s.metrics
		}
		h = middleware.RateLimit(s.limiter, route.RateLimit, s.proxies, observer)(h)
	}
	if len(route.Require) > 0 && s.tokenSvc != nil {
		h = auth.Middleware(s.tokenSvc)(h)
	}
	if s.metrics != nil {
		h = s.metrics.Instrument(route.Pattern, h)
	}

	s.mux.Handle(route.Pattern, h)
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
