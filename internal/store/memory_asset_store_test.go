package store

import (
	"context"
	"testing"
	"time"

	"github.com/dvmax/mediaforge/internal/domain"
)

func TestMemoryAssetStoreCreateAndGet(t *testing.T) {
	s := NewMemoryAssetStore()
	ctx := context.Background()

	asset := domain.Asset{
		PublicID:          "video-uploads/abc",
		Kind:              domain.KindVideo,
		Title:             "demo",
		OriginalSizeBytes: 1024,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := s.Create(ctx, asset); err != nil {
		t.Fatalf("create returned error: %v", err)
	}
	if err := s.Create(ctx, asset); err != ErrAssetExists {
		t.Fatalf("expected ErrAssetExists on duplicate create, got %v", err)
	}

	got, ok, err := s.Get(ctx, "video-uploads/abc")
	if err != nil || !ok {
		t.Fatalf("expected stored asset, ok=%v err=%v", ok, err)
	}
	if got.Title != "demo" || got.Kind != domain.KindVideo {
		t.Fatalf("unexpected asset: %+v", got)
	}
}

func TestMemoryAssetStoreUpdateDerivedSize(t *testing.T) {
	s := NewMemoryAssetStore()
	ctx := context.Background()

	if _, err := s.UpdateDerivedSize(ctx, "missing", 10); err != ErrAssetNotFound {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}

	if err := s.Create(ctx, domain.Asset{PublicID: "image-uploads/a", Kind: domain.KindImage, Title: "t"}); err != nil {
		t.Fatalf("create returned error: %v", err)
	}

	updated, err := s.UpdateDerivedSize(ctx, "image-uploads/a", 512)
	if err != nil {
		t.Fatalf("update returned error: %v", err)
	}
	if updated.DerivedSizeBytes != 512 {
		t.Fatalf("expected derived size 512, got %d", updated.DerivedSizeBytes)
	}
}

func TestMemoryAssetStoreListNewestFirst(t *testing.T) {
	s := NewMemoryAssetStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Create(ctx, domain.Asset{PublicID: id, Kind: domain.KindImage, Title: id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	assets, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
	if assets[0].PublicID != "c" || assets[1].PublicID != "b" {
		t.Fatalf("expected newest first, got %s then %s", assets[0].PublicID, assets[1].PublicID)
	}
}
