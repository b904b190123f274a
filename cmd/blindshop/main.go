// Package main запускает HTTP-сервер магазина с блайндбоксами.
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

	"github.com/mmeshcher/blindbox-shop/internal/config"
	"github.com/mmeshcher/blindbox-shop/internal/handler"
	"github.com/mmeshcher/blindbox-shop/internal/middleware"
	"github.com/mmeshcher/blindbox-shop/internal/payment"
	"github.com/mmeshcher/blindbox-shop/internal/repository"
	"github.com/mmeshcher/blindbox-shop/internal/service"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	opts := service.Options{
		Logger:       logger.Named("service"),
		ReturnURL:    cfg.PaymentReturnURL,
		PollInterval: cfg.PaymentPollInterval,
	}
	if cfg.PaymentGatewayAddress != "" {
		signer := payment.NewSigner(cfg.PaymentSecret)
		opts.Gateway = payment.NewClient(cfg.PaymentGatewayAddress, signer)
		if cfg.PaymentSecret != "" {
			opts.Verifier = signer
		} else {
			sugar.Warn("PAYMENT_SECRET is empty, gateway callbacks are disabled")
		}
	}

	svc := service.NewService(repo, opts)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.EnsureAdmin(ctx, cfg.AdminLogin, cfg.AdminPassword); err != nil {
		sugar.Fatalw("admin bootstrap error", "error", err.Error())
	}

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, cfg.SessionTTL)
	h := handler.NewHandler(svc, logger.Named("http"), authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Опрос шлюза по заказам, ожидающим оплаты
	g.Go(func() error {
		svc.RunPaymentUpdates(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting blindbox shop", "addr", cfg.RunAddress)
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
