// Package gateway owns the transition from "bytes received" to "asset
// persisted". It is the only component allowed to create asset records.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dvmax/mediaforge/internal/config"
	"github.com/dvmax/mediaforge/internal/domain"
	"github.com/dvmax/mediaforge/internal/mediastore"
	"github.com/dvmax/mediaforge/internal/queue"
	"github.com/dvmax/mediaforge/internal/store"
	"github.com/hibiken/asynq"
)

type RemoteStore interface {
	Upload(ctx context.Context, kind string, data []byte, contentType string) (mediastore.RemoteObject, error)
}

type reconcileEnqueuer interface {
	EnqueueReconcileAsset(ctx context.Context, payload queue.ReconcileAssetPayload) (*asynq.TaskInfo, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Gateway struct {
	logger          *log.Logger
	remote          RemoteStore
	assets          store.AssetStore
	reconciler      reconcileEnqueuer
	webhooks        webhookSender
	webhookEndpoint string
	uploads         config.UploadConfig
}

// Option configures optional collaborators.
type Option func(*Gateway)

func WithReconciler(enq reconcileEnqueuer) Option {
	return func(g *Gateway) { g.reconciler = enq }
}

func WithWebhooks(sender webhookSender, endpoint string) Option {
	return func(g *Gateway) {
		g.webhooks = sender
		g.webhookEndpoint = endpoint
	}
}

func New(logger *log.Logger, remote RemoteStore, assets store.AssetStore, uploads config.UploadConfig, opts ...Option) *Gateway {
	g := &Gateway{
		logger:  logger,
		remote:  remote,
		assets:  assets,
		uploads: uploads,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type IngestInput struct {
	Data        []byte
	Filename    string
	ContentType string
	Title       string
	Description string
	Kind        string
	// DeclaredSize is the client-reported size, advisory only.
	DeclaredSize int64
}

// uploadedObject is the explicit first-phase outcome: the remote object
// exists, the metadata row may not yet. Keeping it a value of its own makes
// the orphaned-object state representable and testable.
type uploadedObject struct {
	mediastore.RemoteObject
	UploadedAt time.Time
}

// Ingest validates, uploads to the remote store and persists the metadata
// row. The validation gates run in order and short-circuit before any
// network transfer.
func (g *Gateway) Ingest(ctx context.Context, in IngestInput) (domain.Asset, error) {
	if err := g.validate(in); err != nil {
		return domain.Asset{}, err
	}

	uploaded, err := g.uploadRemote(ctx, in)
	if err != nil {
		return domain.Asset{}, err
	}

	asset, err := g.persist(ctx, uploaded, in)
	if err != nil {
		return domain.Asset{}, g.handleOrphan(ctx, uploaded, in, err)
	}

	g.notify(ctx, asset)
	return asset, nil
}

func (g *Gateway) validate(in IngestInput) error {
	if len(in.Data) == 0 {
		return domain.NewError(domain.CodeMissingFile, "please select a file to upload")
	}

	limit := g.uploads.MaxBytesFor(in.Kind)
	if int64(len(in.Data)) > limit {
		return domain.NewError(
			domain.CodeFileTooLarge,
			fmt.Sprintf("file size must be less than %dMB", limit/1024/1024),
		)
	}

	if strings.TrimSpace(in.Title) == "" {
		return domain.NewError(domain.CodeMissingTitle, "please provide a title")
	}

	return nil
}

func (g *Gateway) uploadRemote(ctx context.Context, in IngestInput) (uploadedObject, error) {
	timeout := g.uploads.TimeoutFor(in.Kind)
	uploadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	obj, err := g.remote.Upload(uploadCtx, in.Kind, in.Data, in.ContentType)
	if err != nil {
		switch {
		case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
			return uploadedObject{}, domain.WrapError(
				domain.CodeUploadTimeout,
				fmt.Sprintf("upload did not complete within %s, try a smaller file", timeout),
				err,
			)
		case errors.Is(err, context.Canceled):
			return uploadedObject{}, domain.WrapError(domain.CodeCancelled, "upload cancelled", err)
		default:
			return uploadedObject{}, domain.WrapError(domain.CodeRemoteUploadFailed, "media store rejected the upload", err)
		}
	}

	return uploadedObject{RemoteObject: obj, UploadedAt: time.Now().UTC()}, nil
}

func (g *Gateway) persist(ctx context.Context, uploaded uploadedObject, in IngestInput) (domain.Asset, error) {
	asset := domain.Asset{
		PublicID:          uploaded.PublicID,
		Kind:              in.Kind,
		Title:             strings.TrimSpace(in.Title),
		Description:       strings.TrimSpace(in.Description),
		OriginalSizeBytes: int64(len(in.Data)),
		CreatedAt:         uploaded.UploadedAt,
		UpdatedAt:         uploaded.UploadedAt,
	}

	if err := g.assets.Create(ctx, asset); err != nil {
		return domain.Asset{}, fmt.Errorf("persist asset %s: %w", asset.PublicID, err)
	}
	return asset, nil
}

// handleOrphan deals with the most dangerous failure class: the remote
// object exists but the metadata row does not. The divergence is logged
// with the remote identifier and handed to the reconciliation queue; the
// caller sees a code distinct from a clean upload failure.
func (g *Gateway) handleOrphan(ctx context.Context, uploaded uploadedObject, in IngestInput, cause error) error {
	g.logger.Printf(
		"metadata persistence failed after remote upload public_id=%s kind=%s size=%d err=%v",
		uploaded.PublicID, in.Kind, uploaded.Bytes, cause,
	)

	if g.reconciler != nil {
		payload := queue.ReconcileAssetPayload{
			PublicID:          uploaded.PublicID,
			Kind:              in.Kind,
			Title:             strings.TrimSpace(in.Title),
			Description:       strings.TrimSpace(in.Description),
			OriginalSizeBytes: int64(len(in.Data)),
			UploadedAt:        uploaded.UploadedAt,
		}
		if _, err := g.reconciler.EnqueueReconcileAsset(ctx, payload); err != nil {
			g.logger.Printf("reconcile enqueue failed public_id=%s err=%v", uploaded.PublicID, err)
		}
	}

	return domain.WrapError(
		domain.CodePersistenceFailedAfterUpload,
		fmt.Sprintf("upload stored remotely as %s but saving its record failed", uploaded.PublicID),
		cause,
	)
}

func (g *Gateway) notify(ctx context.Context, asset domain.Asset) {
	if g.webhooks == nil || g.webhookEndpoint == "" {
		return
	}
	if err := g.webhooks.Send(ctx, g.webhookEndpoint, "asset.ingested", map[string]any{
		"public_id":     asset.PublicID,
		"media_type":    asset.Kind,
		"title":         asset.Title,
		"original_size": asset.OriginalSizeBytes,
		"created_at":    asset.CreatedAt,
	}); err != nil {
		g.logger.Printf("ingest webhook failed public_id=%s err=%v", asset.PublicID, err)
	}
}
