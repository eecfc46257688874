// Package transform composes derived-asset requests. It is a URL compiler:
// the remote store performs the actual processing lazily when a derived URL
// is first fetched.
package transform

import (
	"context"
	"log"
	"time"

	"github.com/dvmax/mediaforge/internal/domain"
	"github.com/dvmax/mediaforge/internal/effects"
	"github.com/dvmax/mediaforge/internal/mediastore"
	"github.com/dvmax/mediaforge/internal/queue"
	"github.com/dvmax/mediaforge/internal/store"
	"github.com/hibiken/asynq"
)

type probeEnqueuer interface {
	EnqueueProbeDerived(ctx context.Context, payload queue.ProbeDerivedPayload) (*asynq.TaskInfo, error)
}

type Service struct {
	logger  *log.Logger
	catalog *effects.Catalog
	urls    mediastore.URLBuilder
	assets  store.AssetStore
	prober  probeEnqueuer
}

func NewService(logger *log.Logger, catalog *effects.Catalog, urls mediastore.URLBuilder, assets store.AssetStore, prober probeEnqueuer) *Service {
	return &Service{
		logger:  logger,
		catalog: catalog,
		urls:    urls,
		assets:  assets,
		prober:  prober,
	}
}

type Result struct {
	OriginalURL          string   `json:"originalUrl"`
	TransformedURL       string   `json:"transformedUrl"`
	Effects              []string `json:"effects"`
	PublicID             string   `json:"publicId"`
	Kind                 string   `json:"mediaType"`
	EstimatedCompression string   `json:"estimatedCompression"`
	TransformationString string   `json:"transformationString"`
}

// Request compiles an effect selection into a deterministic URL pair.
// Identical inputs always yield byte-identical URLs; no network call is
// performed here.
func (s *Service) Request(ctx context.Context, req domain.TransformRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	kind := domain.ParseKind(req.Kind)
	desc, err := s.catalog.Compile(kind, req.Effects)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		OriginalURL:          s.urls.Original(kind, req.PublicID),
		TransformedURL:       s.urls.Derived(kind, desc.Value, req.PublicID),
		Effects:              desc.Applied,
		PublicID:             req.PublicID,
		Kind:                 kind,
		EstimatedCompression: estimateCompression(desc.Applied),
		TransformationString: desc.Value,
	}

	s.scheduleDerivedProbe(ctx, result, desc)
	return result, nil
}

// scheduleDerivedProbe queues the best-effort derived-size patch. Failure to
// enqueue never fails the transformation request.
func (s *Service) scheduleDerivedProbe(ctx context.Context, result Result, desc effects.Descriptor) {
	if s.prober == nil {
		return
	}

	payload := queue.ProbeDerivedPayload{
		PublicID:       result.PublicID,
		Kind:           result.Kind,
		Descriptor:     desc.Value,
		TransformedURL: result.TransformedURL,
		RequestedAt:    time.Now().UTC(),
	}
	if _, err := s.prober.EnqueueProbeDerived(ctx, payload); err != nil {
		s.logger.Printf("derived-size probe enqueue failed public_id=%s err=%v", result.PublicID, err)
	}
}

// AssetExists reports whether the asset is known to the metadata store.
func (s *Service) AssetExists(ctx context.Context, publicID string) (bool, error) {
	if s.assets == nil {
		return true, nil
	}
	_, ok, err := s.assets.Get(ctx, publicID)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func estimateCompression(applied []string) string {
	for _, id := range applied {
		if id == "autoCompress" {
			return "60-80%"
		}
	}
	return "0%"
}
