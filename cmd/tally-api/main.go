package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tally/internal/api"
	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/identity"
	"tally/internal/ledger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.StartupMigrate {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Error("schema bootstrap failed", "err", err)
			os.Exit(1)
		}
	}

	var resolver identity.Resolver
	if cfg.DiscordBotToken != "" {
		resolver, err = identity.NewDiscordResolver(cfg.DiscordBotToken)
		if err != nil {
			logger.Error("discord resolver init failed", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Info("no discord token configured, leaderboards use fallback labels")
	}

	svc := ledger.NewService(pool, logger)
	server := api.New(cfg, logger, svc, resolver)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("tally api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
