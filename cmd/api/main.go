package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/analysis"
	"github.com/platform-factory/backend/internal/api"
	"github.com/platform-factory/backend/internal/api/handlers"
	"github.com/platform-factory/backend/internal/build"
	"github.com/platform-factory/backend/internal/llm"
	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/internal/middleware/auth"
	"github.com/platform-factory/backend/internal/middleware/ratelimit"
	"github.com/platform-factory/backend/internal/middleware/trace"
	"github.com/platform-factory/backend/internal/pipeline"
	"github.com/platform-factory/backend/internal/sector"
	"github.com/platform-factory/backend/internal/storage/sqlite"
	"github.com/platform-factory/backend/internal/synthesis"
	"github.com/platform-factory/backend/pkg/config"
	appLogger "github.com/platform-factory/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Platform Factory API Server",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("builds_store", cfg.Builds.Store),
	)

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	catalog := sector.DefaultCatalog()
	if cfg.Sectors.ProfilesPath != "" {
		catalog, err = sector.LoadCatalog(cfg.Sectors.ProfilesPath)
		if err != nil {
			appLogger.Fatal("Failed to load sector profiles", zap.Error(err))
		}
	}

	completer, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		appLogger.Fatal("Failed to create LLM client", zap.Error(err))
	}
	providerName := "none"
	if completer != nil {
		providerName = completer.Name()
	} else {
		appLogger.Warn("No LLM provider configured, every stage will use its heuristic")
	}

	var checks []api.Check

	var store build.Store
	switch cfg.Builds.Store {
	case "redis":
		redisStore, err := build.NewRedisStore(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Builds.TTL())
		if err != nil {
			appLogger.Fatal("Failed to create Redis build store", zap.Error(err))
		}
		defer redisStore.Close()
		store = redisStore
		checks = append(checks, api.Check{Name: "redis", Probe: redisStore.Ping})
	default:
		store = build.NewMemoryStore(cfg.Builds.MaxEntries, cfg.Builds.TTL())
	}
	builder := build.NewBuilder(store, "/api/v1/platforms/download/")

	// Left as nil interfaces when the audit trail is off.
	var recorder trace.Recorder
	var auditLog handlers.AuditLog
	if cfg.SQLite.Enabled {
		sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		defer sqliteClient.Close()

		if err := sqliteClient.InitSchema(); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}
		recorder = sqliteClient
		auditLog = sqliteClient
		checks = append(checks, api.Check{Name: "sqlite", Probe: sqliteClient.Ping})

		if cfg.SQLite.RetentionDays > 0 {
			go pruneAudit(ctx, sqliteClient, time.Duration(cfg.SQLite.RetentionDays)*24*time.Hour)
		}
	}

	timeout := cfg.Pipeline.LLMTimeout()
	p := pipeline.New(
		sector.NewClassifier(catalog),
		analysis.NewAnalyzer(completer, timeout),
		synthesis.NewSynthesizer(completer, timeout),
		builder,
	)

	rl := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      time.Duration(cfg.RateLimit.WindowSec) * time.Second,
		Logger:      appLogger.GetLogger(),
	})
	defer rl.Stop()

	app := api.NewApp(api.Dependencies{
		Config:   cfg,
		Pipeline: p,
		Builder:  builder,
		Authenticator: auth.New(auth.Config{
			Disabled:    cfg.Auth.Disabled,
			Secret:      []byte(cfg.Auth.JWTSecret),
			CookieName:  cfg.Auth.CookieName,
			OwnerUserID: cfg.Auth.OwnerUserID,
			OwnerEmail:  cfg.Auth.OwnerEmail,
			Logger:      appLogger.GetLogger(),
		}),
		RateLimiter:  rl,
		Auditor:      trace.NewAuditor(recorder),
		AuditLog:     auditLog,
		ProviderName: providerName,
		Checks:       checks,
		AccessLog:    cfg.Server.Development,
	})

	if cfg.Auth.Disabled {
		appLogger.Warn("Authentication is disabled, every caller is treated as the owner")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func pruneAudit(ctx context.Context, client *sqlite.Client, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := client.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			appLogger.Warn("Failed to prune audit trail", zap.Error(err))
		} else if n > 0 {
			appLogger.Info("Pruned audit trail", zap.Int64("requests", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
