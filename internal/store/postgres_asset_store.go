package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dvmax/mediaforge/internal/domain"
	"github.com/lib/pq"
)

const assetSchemaSQL = `
CREATE TABLE IF NOT EXISTS assets (
	public_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	original_size_bytes BIGINT NOT NULL,
	derived_size_bytes BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

type PostgresAssetStore struct {
	db *sql.DB
}

func NewPostgresAssetStore(ctx context.Context, dsn string) (*PostgresAssetStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresAssetStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresAssetStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, assetSchemaSQL); err != nil {
		return fmt.Errorf("ensure assets schema: %w", err)
	}
	return nil
}

func (s *PostgresAssetStore) Close() error {
	return s.db.Close()
}

func (s *PostgresAssetStore) Create(ctx context.Context, asset domain.Asset) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO assets (public_id, kind, title, description, original_size_bytes, derived_size_bytes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		asset.PublicID,
		asset.Kind,
		asset.Title,
		asset.Description,
		asset.OriginalSizeBytes,
		asset.DerivedSizeBytes,
		asset.CreatedAt,
		asset.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAssetExists
		}
		return fmt.Errorf("insert asset: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a postgres duplicate-key error
// (SQLSTATE 23505). A duplicate public_id must surface as ErrAssetExists so
// reconciliation stays idempotent across stores.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresAssetStore) Get(ctx context.Context, publicID string) (domain.Asset, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT public_id, kind, title, description, original_size_bytes, derived_size_bytes, created_at, updated_at
		 FROM assets
		 WHERE public_id = $1`,
		publicID,
	)

	asset, err := scanAsset(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Asset{}, false, nil
		}
		return domain.Asset{}, false, fmt.Errorf("query asset: %w", err)
	}

	return asset, true, nil
}

func (s *PostgresAssetStore) List(ctx context.Context, limit int) ([]domain.Asset, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT public_id, kind, title, description, original_size_bytes, derived_size_bytes, created_at, updated_at
		 FROM assets
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	return assets, nil
}

func (s *PostgresAssetStore) UpdateDerivedSize(ctx context.Context, publicID string, derivedBytes int64) (domain.Asset, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE assets
		 SET derived_size_bytes = $1, updated_at = $2
		 WHERE public_id = $3`,
		derivedBytes,
		now,
		publicID,
	)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("update derived size: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domain.Asset{}, ErrAssetNotFound
	}

	asset, ok, err := s.Get(ctx, publicID)
	if err != nil {
		return domain.Asset{}, err
	}
	if !ok {
		return domain.Asset{}, ErrAssetNotFound
	}

	return asset, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (domain.Asset, error) {
	var asset domain.Asset
	err := row.Scan(
		&asset.PublicID,
		&asset.Kind,
		&asset.Title,
		&asset.Description,
		&asset.OriginalSizeBytes,
		&asset.DerivedSizeBytes,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	return asset, err
}
