package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/storefront/internal/config"
	"github.com/R3E-Network/storefront/internal/crypto"
	"github.com/R3E-Network/storefront/internal/logging"
	"github.com/R3E-Network/storefront/internal/metrics"
	"github.com/R3E-Network/storefront/internal/store"
	"github.com/R3E-Network/storefront/internal/store/memory"
	"github.com/R3E-Network/storefront/internal/store/postgres"
	"github.com/R3E-Network/storefront/internal/store/supabase"
	"github.com/R3E-Network/storefront/internal/storefront"
	"github.com/R3E-Network/storefront/internal/token"
)

const limiterCleanupInterval = 5 * time.Minute

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var noClose io.Closer = closerFunc(func() error { return nil })

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}

// openStore builds the configured backend. The returned closer is never nil.
func openStore(ctx context.Context, cfg config.Config, m *metrics.Metrics) (store.Store, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendSupabase:
		st, err := supabase.New(supabase.Config{
			URL:       cfg.SupabaseURL,
			APIKey:    cfg.SupabaseKey,
			Timeout:   cfg.StoreTimeout,
			Transport: m.InstrumentStoreTransport(nil),
		})
		if err != nil {
			return nil, nil, err
		}
		return st, noClose, nil
	case config.BackendPostgres:
		st, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case config.BackendMemory:
		return memory.New(), noClose, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func newService(ctx context.Context, cfg config.Config, logger *logging.Logger) (*storefront.Service, io.Closer, error) {
	m := metrics.New(true)

	st, closer, err := openStore(ctx, cfg, m)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := token.NewService(cfg.SecretKey, cfg.TokenTTL)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	svc, err := storefront.New(storefront.Config{
		Store:   st,
		Hasher:  crypto.NewBcryptHasher(0),
		Tokens:  tokens,
		Logger:  logger,
		Metrics: m,
		Options: storefront.Options{
			EnableDebugRoutes:     cfg.EnableDebugRoutes,
			EnforcePrincipalTypes: cfg.EnforcePrincipalTypes,
			AllowedOrigins:        cfg.AllowedOrigins(),
			RateLimitRPS:          cfg.RateLimitRPS,
			RateLimitBurst:        cfg.RateLimitBurst,
			TrustProxyHeaders:     cfg.TrustProxyHeaders,
		},
	})
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return svc, closer, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.New(storefront.ServiceName, cfg.LogLevel, cfg.LogFormat)

	svc, closer, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	if limiter := svc.RateLimiter(); limiter != nil {
		stopCleanup := make(chan struct{})
		defer close(stopCleanup)
		limiter.StartCleanup(limiterCleanupInterval, stopCleanup)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    cfg.HTTPAddr,
			"backend": cfg.StoreBackend,
			"debug":   cfg.EnableDebugRoutes,
		}).Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Service stopped")
	return nil
}
