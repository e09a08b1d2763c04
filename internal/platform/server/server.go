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

	"github.com/flavalia/avalia/internal/account"
	"github.com/flavalia/avalia/internal/assistant"
	"github.com/flavalia/avalia/internal/audit"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/exam"
	"github.com/flavalia/avalia/internal/platform/middleware"
	"github.com/flavalia/avalia/internal/platform/telemetry"
	"github.com/flavalia/avalia/internal/question"
	"github.com/flavalia/avalia/internal/rbac"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool               *pgxpool.Pool
	Auth               *auth.TokenService
	AuthHandler        *auth.Handler
	RBAC               *rbac.Evaluator
	UserHandler        *account.UserHandler
	SubjectHandler     *account.SubjectHandler
	QuestionHandler    *question.Handler
	ExamHandler        *exam.Handler
	AssistantHandler   *assistant.Handler
	AuditHandler       *audit.Handler
	Metrics            *telemetry.Metrics
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	pool         *pgxpool.Pool
	handler      http.Handler
}

func New(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logged := middleware.Logging(logger, deps.Metrics)

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: http.NewServeMux(),
		pool:         deps.Pool,
	}

	// Public routes (no auth required)
	publicMux := http.NewServeMux()
	publicMux.HandleFunc("GET /healthz", s.handleHealth)
	publicMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Metrics != nil {
		publicMux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(publicMux)
	}

	// Logging sits inside auth so the caller's id is recorded.
	var protected http.Handler = logged(s.protectedMux)
	if deps.Auth != nil {
		protected = auth.Middleware(deps.Auth)(protected)
	}
	public := logged(publicMux)

	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterProtectedRoutes(s.protectedMux)
	}
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(s.protectedMux)
	}
	if deps.SubjectHandler != nil {
		deps.SubjectHandler.RegisterRoutes(s.protectedMux)
	}
	if deps.QuestionHandler != nil {
		deps.QuestionHandler.RegisterRoutes(s.protectedMux)
	}
	if deps.ExamHandler != nil {
		deps.ExamHandler.RegisterRoutes(s.protectedMux)
	}
	if deps.AssistantHandler != nil {
		deps.AssistantHandler.RegisterRoutes(s.protectedMux)
	}

	// Audit routes
	if deps.AuditHandler != nil && deps.RBAC != nil {
		auditTrail := func(*http.Request) rbac.Resource { return rbac.AuditRef{} }
		s.protectedMux.Handle("GET /api/v1/audit/events",
			rbac.RequireAction(deps.RBAC, rbac.ActionList, auditTrail)(
				http.HandlerFunc(deps.AuditHandler.HandleListEvents),
			),
		)
	}

	// Everything the public mux does not match goes through auth.
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := publicMux.Handler(r); pattern != "" {
			public.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}
	handler = middleware.RequestID(handler)

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
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
