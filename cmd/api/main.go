package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvmax/mediaforge/internal/api"
	"github.com/dvmax/mediaforge/internal/auth"
	"github.com/dvmax/mediaforge/internal/config"
	"github.com/dvmax/mediaforge/internal/effects"
	"github.com/dvmax/mediaforge/internal/gateway"
	"github.com/dvmax/mediaforge/internal/mediastore"
	"github.com/dvmax/mediaforge/internal/queue"
	"github.com/dvmax/mediaforge/internal/ratelimit"
	"github.com/dvmax/mediaforge/internal/store"
	"github.com/dvmax/mediaforge/internal/telemetry"
	"github.com/dvmax/mediaforge/internal/transform"
	"github.com/dvmax/mediaforge/internal/webhook"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "mediaforge-api",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	media, err := mediastore.NewClient(mediastore.Config{
		Endpoint:        cfg.MediaStore.Endpoint,
		AccountName:     cfg.MediaStore.AccountName,
		AccessKey:       cfg.MediaStore.AccessKey,
		AccessSecret:    cfg.MediaStore.AccessSecret,
		Bucket:          cfg.MediaStore.Bucket,
		UseSSL:          cfg.MediaStore.UseSSL,
		DeliveryBaseURL: cfg.MediaStore.DeliveryBaseURL,
	})
	if err != nil {
		logger.Fatalf("media store client failed: %v", err)
	}

	bucketCtx, cancelBucket := context.WithTimeout(ctx, 10*time.Second)
	if err := media.EnsureBucket(bucketCtx); err != nil {
		logger.Printf("bucket check failed, continuing: %v", err)
	}
	cancelBucket()

	assets := newAssetStore(ctx, logger, cfg)

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	var gatewayOpts []gateway.Option
	gatewayOpts = append(gatewayOpts, gateway.WithReconciler(queueClient))
	if cfg.Webhook.Endpoint != "" {
		hooks := webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		})
		gatewayOpts = append(gatewayOpts, gateway.WithWebhooks(hooks, cfg.Webhook.Endpoint))
	}

	ingest := gateway.New(logger, media, assets, cfg.Upload, gatewayOpts...)

	catalog := effects.DefaultCatalog()
	transforms := transform.NewService(logger, catalog, media.URLs(), assets, queueClient)

	verifier, err := auth.FromConfig(cfg.Auth.Mode, cfg.Auth.Endpoint, cfg.Auth.StaticToken, cfg.Auth.Timeout)
	if err != nil {
		logger.Fatalf("auth setup failed: %v", err)
	}

	var limiter api.RateLimiter
	if cfg.API.RateLimitRequests > 0 {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err = ratelimit.NewRedisTokenBucket(
			redisClient,
			cfg.API.RateLimitRequests,
			cfg.API.RateLimitWindow,
			"mediaforge:ratelimit",
		)
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
	}

	app := api.NewServer(logger, api.Options{
		Gateway:        ingest,
		Transforms:     transforms,
		Catalog:        catalog,
		Assets:         assets,
		Verifier:       verifier,
		RateLimiter:    limiter,
		UserIDHeader:   cfg.API.UserIDHeader,
		MaxUploadBytes: max(cfg.Upload.MaxVideoBytes, cfg.Upload.MaxMediaBytes),
		Tracer:         otel.Tracer("mediaforge/api"),
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

// newAssetStore picks postgres when a DSN is configured and falls back to
// the in-memory store for local development.
func newAssetStore(ctx context.Context, logger *log.Logger, cfg config.Config) store.AssetStore {
	if cfg.Database.DSN == "" {
		logger.Printf("no database configured, using in-memory asset store")
		return store.NewMemoryAssetStore()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := store.NewPostgresAssetStore(connectCtx, cfg.Database.DSN)
	if err != nil {
		logger.Printf("postgres unavailable, using in-memory asset store: %v", err)
		return store.NewMemoryAssetStore()
	}
	return pg
}
