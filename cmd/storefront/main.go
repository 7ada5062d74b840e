// Package main запускает HTTP-сервер сервиса выплат витрины.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront-payouts/internal/config"
	"github.com/mmeshcher/storefront-payouts/internal/handler"
	"github.com/mmeshcher/storefront-payouts/internal/lock"
	"github.com/mmeshcher/storefront-payouts/internal/logger"
	"github.com/mmeshcher/storefront-payouts/internal/repository"
	"github.com/mmeshcher/storefront-payouts/internal/service"
	"github.com/mmeshcher/storefront-payouts/internal/wallet"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := newRepository(cfg)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		sugar.Fatalw("lock initialization error", "error", err.Error())
	}
	defer closeLocker()

	policy := wallet.DefaultPolicy()
	policy.PendingHold = cfg.PendingHold
	policy.ReserveExtraHold = cfg.ReserveExtraHold

	svc := service.NewService(repo, locker, policy, log)
	defer svc.Close()

	h := handler.NewHandler(svc, log)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое освобождение созревших удержаний
	g.Go(func() error {
		svc.StartReleaseSweeper(ctx, cfg.ReleaseInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting storefront payouts server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}

func newLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (lock.Locker, func(), error) {
	if cfg.RedisAddress == "" {
		return lock.NewMemoryLocker(), func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rdb, err := lock.Dial(dialCtx, cfg.RedisAddress)
	if err != nil {
		return nil, nil, err
	}

	locker := lock.NewRedisLocker(rdb, "storefront:", cfg.LockTTL, cfg.LockTTL, log)
	return locker, func() { _ = rdb.Close() }, nil
}
