package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/park285/nickguard/internal/builder"
	appcfg "github.com/park285/nickguard/internal/config"
	"github.com/park285/nickguard/internal/obslog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := builder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init_failed", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close_failed", zap.Error(err))
		}
	}()

	logger.Info("nickguard_starting",
		zap.String("server", cfg.MCHost),
		zap.Int("port", cfg.MCPort),
		zap.String("user", cfg.MCUser),
		zap.Bool("ai", deps.Pipeline.AIEnabled()),
		zap.Duration("autoscan", cfg.AutoScanInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Supervisor.Run(gctx) })
	g.Go(func() error { return deps.Scanner.RunAutoScan(gctx, cfg.AutoScanInterval) })
	g.Go(func() error { return deps.HTTP.Start(cfg.HTTPAddr) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.HTTP.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("nickguard_stopped", zap.Error(err))
		return
	}
	logger.Info("nickguard_stopped")
}
