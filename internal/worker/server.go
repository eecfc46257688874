// Package worker runs the background reconciliation tasks: re-creating
// metadata rows for orphaned remote objects and patching derived sizes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dvmax/mediaforge/internal/config"
	"github.com/dvmax/mediaforge/internal/domain"
	"github.com/dvmax/mediaforge/internal/queue"
	"github.com/dvmax/mediaforge/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// sizeProber resolves the byte size of a derived rendition.
type sizeProber interface {
	ProbeDerivedSize(ctx context.Context, derivedURL string) (int64, error)
}

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	assets          store.AssetStore
	prober          sizeProber
	webhookClient   webhookSender
	webhookEndpoint string
	metrics         *metrics
	tracer          trace.Tracer
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	assets store.AssetStore,
	prober sizeProber,
	webhookClient webhookSender,
	webhookEndpoint string,
) (*Server, error) {
	if assets == nil {
		return nil, fmt.Errorf("asset store is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveTasks)),
		assets:          assets,
		prober:          prober,
		webhookClient:   webhookClient,
		webhookEndpoint: webhookEndpoint,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("mediaforge/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeReconcileAsset, s.handleReconcileAsset)
	mux.HandleFunc(queue.TypeProbeDerived, s.handleProbeDerived)
	return mux
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// handleReconcileAsset re-creates the metadata row for a remote object whose
// original persistence failed. An already-existing row means a previous
// attempt (or the gateway itself) won the race, which counts as success.
func (s *Server) handleReconcileAsset(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := "failed"

	payload, err := queue.ParseReconcileAssetPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.reconcile_asset", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("asset.public_id", payload.PublicID),
		attribute.String("asset.kind", payload.Kind),
	)
	defer span.End()
	defer func() {
		s.metrics.taskDuration.WithLabelValues(queue.TypeReconcileAsset, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(queue.TypeReconcileAsset, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeTasks.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeTasks.Dec()
	}()

	s.logger.Printf("reconciling public_id=%s kind=%s", payload.PublicID, payload.Kind)

	now := time.Now().UTC()
	err = s.assets.Create(ctx, domain.Asset{
		PublicID:          payload.PublicID,
		Kind:              payload.Kind,
		Title:             payload.Title,
		Description:       payload.Description,
		OriginalSizeBytes: payload.OriginalSizeBytes,
		CreatedAt:         payload.UploadedAt,
		UpdatedAt:         now,
	})
	switch {
	case err == nil:
		s.metrics.reconciledTotal.Inc()
	case errors.Is(err, store.ErrAssetExists):
		s.logger.Printf("already reconciled public_id=%s", payload.PublicID)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		s.dispatchWebhook(ctx, "asset.reconcile_failed", map[string]any{
			"public_id":   payload.PublicID,
			"media_type":  payload.Kind,
			"uploaded_at": payload.UploadedAt,
			"failed_at":   now,
			"error":       err.Error(),
		})
		return fmt.Errorf("persist asset: %w", err)
	}

	s.dispatchWebhook(ctx, "asset.reconciled", map[string]any{
		"public_id":     payload.PublicID,
		"media_type":    payload.Kind,
		"uploaded_at":   payload.UploadedAt,
		"reconciled_at": now,
	})

	outcome = "succeeded"
	span.SetStatus(codes.Ok, "reconciled")
	return nil
}

// handleProbeDerived fetches the derived rendition's size and patches the
// asset record. The first request also triggers the remote store's lazy
// processing of the rendition.
func (s *Server) handleProbeDerived(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := "failed"

	payload, err := queue.ParseProbeDerivedPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.probe_derived", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("asset.public_id", payload.PublicID),
		attribute.String("asset.descriptor", payload.Descriptor),
	)
	defer span.End()
	defer func() {
		s.metrics.taskDuration.WithLabelValues(queue.TypeProbeDerived, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(queue.TypeProbeDerived, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeTasks.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeTasks.Dec()
	}()

	if s.prober == nil {
		return fmt.Errorf("no size prober configured: %w", asynq.SkipRetry)
	}

	size, err := s.prober.ProbeDerivedSize(ctx, payload.TransformedURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		return fmt.Errorf("probe derived size: %w", err)
	}

	if _, err := s.assets.UpdateDerivedSize(ctx, payload.PublicID, size); err != nil {
		if errors.Is(err, store.ErrAssetNotFound) {
			// The metadata row may still be pending reconciliation.
			return fmt.Errorf("asset not yet persisted: %w", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "derived size update failed")
		return fmt.Errorf("update derived size: %w", err)
	}

	s.logger.Printf("derived size patched public_id=%s descriptor=%s bytes=%d", payload.PublicID, payload.Descriptor, size)
	s.metrics.derivedBytesTotal.Add(float64(size))

	outcome = "succeeded"
	span.SetStatus(codes.Ok, "probed")
	return nil
}

func (s *Server) dispatchWebhook(ctx context.Context, event string, body map[string]any) {
	if s.webhookEndpoint == "" || s.webhookClient == nil {
		return
	}
	if err := s.webhookClient.Send(ctx, s.webhookEndpoint, event, body); err != nil {
		s.logger.Printf("webhook delivery failed event=%s err=%v", event, err)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
