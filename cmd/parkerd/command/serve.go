package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"parking-finder-backend/config"
	"parking-finder-backend/internal/api"
	"parking-finder-backend/internal/auth"
	"parking-finder-backend/internal/importer"
	"parking-finder-backend/internal/mw"
	"parking-finder-backend/internal/notification"
	"parking-finder-backend/internal/store"
)

func serve(_ *cobra.Command, _ []string) error {
	cfg, gormDB, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appStore := store.NewGormStore(gormDB)

	cache, err := newResponseCache(ctx, cfg.Server)
	if err != nil {
		return err
	}

	opts := api.RouterOptions{
		Cache:           cache,
		CacheTTL:        cfg.Server.CacheTTL(),
		Hasher:          auth.NewHasher(cfg.Auth.ScramIterations),
		ReportCredits:   cfg.Auth.ReportCredits,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	}

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		slog.Warn("VAPID keys are not configured; push notifications are disabled")
	} else {
		webpushOptions := &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		opts.Webpush = webpushOptions
		opts.Notifier = workerPool
	}

	go importer.NewService(cfg, appStore, cache).Run(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(appStore, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received, stopping services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	slog.Info("server gracefully stopped")
	return nil
}

// newResponseCache builds the configured GET response cache.
func newResponseCache(ctx context.Context, cfg config.ServerConfig) (mw.ResponseCache, error) {
	switch cfg.CacheBackend {
	case "memory":
		return mw.NewMemoryCache(cfg.CacheTTL(), 2*cfg.CacheTTL()), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("using redis response cache", "addr", cfg.RedisAddr)
		return mw.NewRedisCache(client, "parker:http:"), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}
}
