package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/ledger"
)

// The auditor re-derives every balance from the audit log and reports users
// whose stored balance drifted from the replayed sum. Drift means a bug (or
// manual surgery) broke the adjust transaction invariant.
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

	svc := ledger.NewService(pool, logger)

	if cfg.AuditRunOnce {
		drifted, err := runAudit(ctx, svc, logger)
		if err != nil {
			logger.Error("audit failed", "err", err)
			os.Exit(1)
		}
		if drifted > 0 {
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(cfg.AuditEvery)
	defer ticker.Stop()

	logger.Info("auditor started", "every", cfg.AuditEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("auditor shutdown")
			return
		case <-ticker.C:
			if _, err := runAudit(ctx, svc, logger); err != nil {
				logger.Error("audit failed", "err", err)
			}
		}
	}
}

func runAudit(ctx context.Context, svc *ledger.Service, logger *slog.Logger) (int, error) {
	drifts, err := svc.VerifyLedger(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range drifts {
		logger.Error("ledger drift",
			"user_id", d.UserID,
			"balance", d.Balance,
			"replayed", d.Replayed)
	}
	logger.Info("audit pass complete", "drifted_users", len(drifts))
	return len(drifts), nil
}
