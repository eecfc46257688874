package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvmax/mediaforge/internal/domain"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrAssetExists   = errors.New("asset already exists")
)

type MemoryAssetStore struct {
	mu     sync.RWMutex
	assets map[string]domain.Asset
	order  []string
}

func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{
		assets: make(map[string]domain.Asset),
	}
}

func (s *MemoryAssetStore) Create(_ context.Context, asset domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assets[asset.PublicID]; exists {
		return ErrAssetExists
	}
	s.assets[asset.PublicID] = asset
	s.order = append(s.order, asset.PublicID)
	return nil
}

func (s *MemoryAssetStore) Get(_ context.Context, publicID string) (domain.Asset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[publicID]
	return asset, ok, nil
}

func (s *MemoryAssetStore) List(_ context.Context, limit int) ([]domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Asset, 0, len(s.order))
	// newest first
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.assets[s.order[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryAssetStore) UpdateDerivedSize(_ context.Context, publicID string, derivedBytes int64) (domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[publicID]
	if !ok {
		return domain.Asset{}, ErrAssetNotFound
	}

	asset.DerivedSizeBytes = derivedBytes
	asset.UpdatedAt = time.Now().UTC()
	s.assets[publicID] = asset
	return asset, nil
}
