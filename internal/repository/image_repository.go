package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/studtime/studtime/internal/models"
)

// ImageRepository stores rendered timetable rasters keyed by style and
// content hash.
type ImageRepository struct {
	db *sqlx.DB
}

// NewImageRepository creates a new image repository.
func NewImageRepository(db *sqlx.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Find loads a cached image, returning (nil, nil) when nothing rendered for
// the key yet.
func (r *ImageRepository) Find(ctx context.Context, styleName, contentHash string) (*models.RenderedImage, error) {
	const query = `SELECT style_name, content_hash, bytes, valid_until, created_at
		FROM rendered_images WHERE style_name = $1 AND content_hash = $2`

	var image models.RenderedImage
	if err := r.db.GetContext(ctx, &image, query, styleName, contentHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find rendered image %s/%s: %w", styleName, contentHash, err)
	}
	return &image, nil
}

// Upsert stores a freshly rendered image.
func (r *ImageRepository) Upsert(ctx context.Context, image *models.RenderedImage) error {
	const query = `INSERT INTO rendered_images (style_name, content_hash, bytes, valid_until, created_at)
		VALUES (:style_name, :content_hash, :bytes, :valid_until, NOW())
		ON CONFLICT (style_name, content_hash) DO UPDATE SET
			bytes = EXCLUDED.bytes,
			valid_until = EXCLUDED.valid_until`

	if _, err := r.db.NamedExecContext(ctx, query, image); err != nil {
		return fmt.Errorf("upsert rendered image %s/%s: %w", image.StyleName, image.ContentHash, err)
	}
	return nil
}

// ExtendValidity pushes the expiry of a cached image forward. The expiry
// only ever grows, a concurrent longer extension wins.
func (r *ImageRepository) ExtendValidity(ctx context.Context, styleName, contentHash string, until time.Time) error {
	const query = `UPDATE rendered_images SET valid_until = GREATEST(valid_until, $3)
		WHERE style_name = $1 AND content_hash = $2`

	if _, err := r.db.ExecContext(ctx, query, styleName, contentHash, until); err != nil {
		return fmt.Errorf("extend rendered image %s/%s: %w", styleName, contentHash, err)
	}
	return nil
}

// DeleteExpired drops images whose validity window ended before the cutoff
// and reports how many were removed.
func (r *ImageRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rendered_images WHERE valid_until < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired rendered images: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count expired rendered images: %w", err)
	}
	return affected, nil
}
