package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firmledger/internal/api"
	"firmledger/internal/audit"
	"firmledger/internal/auth"
	"firmledger/internal/catalog"
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

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("catalog load failed", "path", cfg.CatalogPath, "err", err)
		os.Exit(1)
	}

	gameSvc := game.NewService(st, logger, game.WithSampler(game.NewRandSampler(cfg.SamplerSeed)))
	if cfg.SeedOnStartup {
		seed, err := cat.Seed()
		if err != nil {
			logger.Error("catalog seed failed", "err", err)
			os.Exit(1)
		}
		report, err := gameSvc.Init(ctx, seed)
		if err != nil {
			logger.Error("init failed", "err", err)
			os.Exit(1)
		}
		logger.Info("catalog applied", "firm_types_created", report.FirmTypesCreated, "config_keys_set", report.ConfigKeysSet)
	}

	var auditLog *audit.SettlementLog
	if cfg.AuditDir != "" {
		auditLog = audit.NewSettlementLog(cfg.AuditDir)
		defer auditLog.Close()
	}

	admin := auth.NewAdminGuard(cfg.AdminToken)
	if !admin.Enabled() {
		logger.Warn("admin routes are open; set FIRMLEDGER_ADMIN_TOKEN to protect them")
	}
	server, err := api.New(logger, admin, gameSvc, cat, auditLog)
	if err != nil {
		logger.Error("api init failed", "err", err)
		os.Exit(1)
	}
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

	logger.Info("firmledger api listening", "addr", cfg.Addr, "dialect", cfg.DBDialect)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
