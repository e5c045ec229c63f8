package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/padi-gateway/internal/api"
	"github.com/RichardoC/padi-gateway/internal/auth"
	"github.com/RichardoC/padi-gateway/internal/chat"
	"github.com/RichardoC/padi-gateway/internal/config"
	"github.com/RichardoC/padi-gateway/internal/db"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

func runServe(ctx context.Context, flags *pflag.FlagSet) error {
	cfg, logger, err := bootstrap(config.Load, flags)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DatabasePath))
		return err
	}

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize completion client",
			zap.Error(err),
			zap.String("provider", cfg.CompletionProvider))
		return multierr.Append(err, database.Close())
	}

	verifier := auth.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseAnonKey, 10*time.Second)
	chatService := chat.NewService(database, completer, logger, cfg.HistoryLimit, cfg.DefaultModel)
	handler := api.NewHandler(chatService, verifier, logger, api.ServiceStatus{
		Completion: cfg.CompletionConfigured(),
		Identity:   cfg.SupabaseURL != "",
	}, cfg.DefaultModel)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.Routes(api.RouterOptions{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			RequestTimeout: cfg.RequestTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(sigCtx)

	eg.Go(func() error {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return multierr.Combine(server.Shutdown(shutdownCtx), database.Close())
	})

	if err := eg.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
