// Command bingo-ledger is the entrypoint for the competition ledger service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the embedded store and runs idempotent migrations.
//   - Exposes the HTTP API: health, metrics, weeks, seeds, leaderboards, and
//     score submission.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/onnwee/bingo-ledger/catalog"
	"github.com/onnwee/bingo-ledger/config"
	"github.com/onnwee/bingo-ledger/db"
	"github.com/onnwee/bingo-ledger/player"
	"github.com/onnwee/bingo-ledger/score"
	"github.com/onnwee/bingo-ledger/server"
	"github.com/onnwee/bingo-ledger/submit"
	"github.com/onnwee/bingo-ledger/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging before anything else so startup failures are visible.
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stdout, nil)).Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	initLogging(cfg)

	// Metrics / telemetry init
	telemetry.Init()

	// Optional OpenTelemetry tracing; disabled without an OTLP endpoint.
	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, cfg.ServiceName, "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data directory", slog.Any("err", err))
			os.Exit(1)
		}
	}
	database, err := db.Connect(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// A store that cannot be migrated cleanly must not serve traffic.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()
	ledger := score.NewLedger(database, log)
	players := player.NewDirectory(database, log)
	cat := catalog.New(database, log)
	submitSvc := submit.NewService(ledger, players, cat, cfg.RetryTTL, cfg.MaxPoints, log)
	defer submitSvc.Close()

	deps := server.Deps{
		DB:      database,
		Catalog: cat,
		Ledger:  ledger,
		Players: players,
		Submit:  submitSvc,
		Cfg:     cfg,
	}

	go func() {
		if err := server.Start(ctx, deps); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()
	slog.Info("ledger serving", slog.String("addr", cfg.HTTPAddr), slog.String("db", cfg.DBPath))

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// initLogging configures the default slog handler from LOG_LEVEL and
// LOG_FORMAT. Defaults: level=info, format=text.
func initLogging(cfg *config.Config) {
	lvl := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", cfg.LogLevel))
	}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}
