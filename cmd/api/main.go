package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storefront-cart/internal/config"
	"storefront-cart/internal/db"
	"storefront-cart/internal/httpserver"
	"storefront-cart/internal/logging"
	"storefront-cart/internal/migrate"
	"storefront-cart/internal/repository/identity"
	sessionrepo "storefront-cart/internal/repository/session"
	cartsvc "storefront-cart/internal/service/cart"
	sessionsvc "storefront-cart/internal/service/session"
	"storefront-cart/internal/storefront"
)

const sweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting cart api",
		zap.String("environment", cfg.Environment),
		zap.String("storefront", cfg.Storefront.Domain),
		zap.String("identityBackend", cfg.Identity.Backend),
		zap.String("mutationPolicy", cfg.Cart.MutationPolicy),
	)

	ctx := context.Background()
	scoper, sessions, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open identity backend", zap.Error(err))
	}
	defer closeBackend()

	client, err := storefront.NewClient(cfg.Storefront, logger.Named("storefront"))
	if err != nil {
		logger.Fatal("init storefront client", zap.Error(err))
	}

	syncOpts := []cartsvc.Option{
		cartsvc.WithCallTimeout(cfg.Storefront.Timeout),
		cartsvc.WithLogger(logger.Named("cart")),
	}
	if cfg.Cart.MutationPolicy == "reject" {
		syncOpts = append(syncOpts, cartsvc.WithRejectWhenBusy())
	}
	sessionService := sessionsvc.New(sessions, scoper,
		func(store identity.Store) *cartsvc.Synchronizer {
			return cartsvc.New(client, store, syncOpts...)
		},
		sessionsvc.WithTTL(cfg.Session.TTL),
		sessionsvc.WithLogger(logger.Named("session")),
	)

	srv, err := httpserver.New(cfg.HTTPAddr, logger.Named("http"), httpserver.Deps{
		Sessions:       sessionService,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Production:     cfg.Environment == "production",
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go runSweeper(sweepCtx, sessionService, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}

// openBackend wires the identity and session stores for the configured backend.
func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (identity.Scoper, sessionrepo.Repository, func(), error) {
	switch cfg.Identity.Backend {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Identity.DBConnString, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := migrate.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return identity.NewPostgres(pool), sessionrepo.NewPostgres(pool), pool.Close, nil
	case "redis":
		client, err := db.ConnectRedis(ctx, cfg.Identity.RedisAddr, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() { _ = client.Close() }
		return identity.NewRedis(client, cfg.Identity.RedisPrefix, cfg.Session.TTL), sessionrepo.NewRedis(client, cfg.Identity.RedisPrefix), closeFn, nil
	default:
		logger.Warn("using in-memory identity backend; carts are forgotten on restart")
		return identity.NewMemoryScoper(), sessionrepo.NewMemory(), func() {}, nil
	}
}

func runSweeper(ctx context.Context, sessions *sessionsvc.Service, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions purged", zap.Int64("count", n))
			}
		}
	}
}
