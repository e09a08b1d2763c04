package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flavalia/avalia/internal/account"
	"github.com/flavalia/avalia/internal/assistant"
	"github.com/flavalia/avalia/internal/audit"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/exam"
	"github.com/flavalia/avalia/internal/platform/config"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/platform/server"
	"github.com/flavalia/avalia/internal/platform/telemetry"
	"github.com/flavalia/avalia/internal/question"
	"github.com/flavalia/avalia/internal/rbac"
	"golang.org/x/sync/errgroup"
)

const version = "0.1.0"

var errNoDatabase = errors.New("database.url is required")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("avalia starting",
		"version", version,
		"port", cfg.Server.Port,
	)

	if cfg.Database.URL == "" {
		return errNoDatabase
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("connecting to database")
	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
	if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations complete")

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	if _, err := account.EnsureAdmin(ctx, pool, account.NewUserStore(), hasher, adminSeed(cfg)); err != nil {
		return fmt.Errorf("bootstrapping administrator: %w", err)
	}

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics()
	}

	auditLogger := audit.NewAsyncLogger(pool, audit.NewStore(), audit.LoggerConfig{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: time.Duration(cfg.Audit.FlushInterval) * time.Millisecond,
	})

	deps := newDependencies(cfg, pool, hasher, auditLogger, metrics, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return auditLogger.Run(gctx)
	})
	g.Go(func() error {
		// Stop the audit writer when the server exits on its own.
		defer auditLogger.Close()
		return srv.Start(gctx)
	})

	slog.Info("server ready", "addr", addr, "metrics", cfg.Metrics.Enabled)
	return g.Wait()
}

// newDependencies wires stores, the authorization engine and handlers.
func newDependencies(cfg *config.Config, pool *database.Pool, hasher auth.Hasher, auditLogger audit.Logger, metrics *telemetry.Metrics, logger *slog.Logger) server.Dependencies {
	tokens := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		time.Duration(cfg.Auth.JWT.ExpiryMinutes)*time.Minute,
	)

	directory := auth.NewStore(pool)
	verifier := auth.NewVerifier(directory, hasher, tokens,
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
	)

	engine := rbac.NewEvaluator(
		rbac.WithMetrics(metrics),
		rbac.WithAuditLogger(auditLogger),
	)

	users := account.NewUserStore()
	subjects := account.NewSubjectStore()
	questions := question.NewStore()
	visibility := rbac.NewVisibility(directory, questions.Lister(pool))

	var generator assistant.Generator
	if cfg.Assistant.APIKey != "" {
		generator = assistant.NewGeminiClient(cfg.Assistant, nil)
	}

	return server.Dependencies{
		Pool:               pool,
		Auth:               tokens,
		AuthHandler:        auth.NewHandler(verifier, directory),
		RBAC:               engine,
		UserHandler:        account.NewUserHandler(pool, users, hasher, engine, auditLogger),
		SubjectHandler:     account.NewSubjectHandler(pool, subjects, users, engine, auditLogger),
		QuestionHandler:    question.NewHandler(pool, questions, visibility, engine, auditLogger),
		ExamHandler:        exam.NewHandler(pool, exam.NewStore(), visibility, engine, auditLogger),
		AssistantHandler:   assistant.NewHandler(assistant.NewService(generator, cfg.Assistant.Model), engine),
		AuditHandler:       audit.NewHandler(pool, audit.NewStore()),
		Metrics:            metrics,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	}
}

func adminSeed(cfg *config.Config) account.AdminSeed {
	b := cfg.Auth.Bootstrap
	return account.AdminSeed{
		LoginName:   b.Login,
		Password:    b.Password,
		Email:       b.Email,
		DisplayName: b.Name,
	}
}
