package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"firmledger/internal/audit"
	"firmledger/internal/config"
	"firmledger/internal/game"
	"firmledger/internal/store"
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
	st, err := store.Open(ctx, cfg.DBDialect, cfg.DSN())
	if err != nil {
		logger.Error("db open failed", "dialect", cfg.DBDialect, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := game.NewService(st, logger, game.WithSampler(game.NewRandSampler(cfg.SamplerSeed)))

	var auditLog *audit.SettlementLog
	if cfg.AuditDir != "" {
		auditLog = audit.NewSettlementLog(cfg.AuditDir)
		defer auditLog.Close()
	}

	settle := func() error {
		report, err := svc.NextMonth(ctx, game.NextMonthInput{})
		if err != nil {
			return err
		}
		if auditLog != nil {
			if err := auditLog.Record(report); err != nil {
				logger.Error("settlement audit write failed", "month", report.Month, "err", err)
			}
		}
		logger.Info("month settled",
			"month", report.Month,
			"players", report.Players,
			"producing", len(report.ProducingFirmIDs),
			"failed", len(report.FailedFirmIDs),
		)
		return nil
	}

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("FIRMLEDGER_WORKER_RUN_ONCE")), "true")
	if runOnce {
		if err := settle(); err != nil {
			logger.Error("settlement failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.MonthEvery)
	defer ticker.Stop()

	logger.Info("worker started", "month_every", cfg.MonthEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := settle(); err != nil {
				if errors.Is(err, game.ErrStateConflict) {
					logger.Warn("settlement skipped", "err", err)
					continue
				}
				logger.Error("settlement failed", "err", err)
			}
		}
	}
}
