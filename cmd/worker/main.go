package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dvmax/mediaforge/internal/config"
	"github.com/dvmax/mediaforge/internal/mediastore"
	"github.com/dvmax/mediaforge/internal/store"
	"github.com/dvmax/mediaforge/internal/telemetry"
	"github.com/dvmax/mediaforge/internal/webhook"
	"github.com/dvmax/mediaforge/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "mediaforge-worker",
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

	assets := newAssetStore(ctx, logger, cfg)

	var hooks *webhook.Client
	if cfg.Webhook.Endpoint != "" {
		hooks = webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		})
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, assets, media, hooks, cfg.Webhook.Endpoint)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go func() {
		metricsAddr := ":9091"
		logger.Printf("worker metrics on %s", metricsAddr)
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_tasks=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveTasks,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}

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
