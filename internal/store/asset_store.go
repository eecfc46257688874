package store

import (
	"context"

	"github.com/dvmax/mediaforge/internal/domain"
)

type AssetStore interface {
	Create(ctx context.Context, asset domain.Asset) error
	Get(ctx context.Context, publicID string) (domain.Asset, bool, error)
	List(ctx context.Context, limit int) ([]domain.Asset, error)
	UpdateDerivedSize(ctx context.Context, publicID string, derivedBytes int64) (domain.Asset, error)
}
