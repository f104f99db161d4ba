package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

type imageRepository interface {
	// Find returns (nil, nil) on a miss.
	Find(ctx context.Context, styleName, contentHash string) (*models.RenderedImage, error)
	Upsert(ctx context.Context, image *models.RenderedImage) error
	ExtendValidity(ctx context.Context, styleName, contentHash string, until time.Time) error
}

type markupBuilder interface {
	Build(tt *models.Timetable, styleName string) (string, error)
}

type pageRenderer interface {
	Render(ctx context.Context, markup string) ([]byte, error)
}

// ImageService is the content-addressed image cache. The key is
// (style, content hash), so distinct timetables that render identically
// share one raster, and re-synthesizing an unchanged week never re-renders.
type ImageService struct {
	repo     imageRepository
	markup   markupBuilder
	renderer pageRenderer
	metrics  *MetricsService
	logger   *zap.Logger

	initialTTL time.Duration
	extendTTL  time.Duration
	now        func() time.Time
}

// NewImageService constructs the image cache.
func NewImageService(repo imageRepository, markup markupBuilder, renderer pageRenderer, metrics *MetricsService, initialTTL, extendTTL time.Duration, logger *zap.Logger) *ImageService {
	if initialTTL <= 0 {
		initialTTL = 7 * 24 * time.Hour
	}
	if extendTTL <= 0 {
		extendTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageService{
		repo:       repo,
		markup:     markup,
		renderer:   renderer,
		metrics:    metrics,
		logger:     logger,
		initialTTL: initialTTL,
		extendTTL:  extendTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetOrRender returns the raster for a timetable, reusing any live cached
// render of identical content. A hit refreshes the entry's validity so
// frequently reused renders stay warm.
func (s *ImageService) GetOrRender(ctx context.Context, tt *models.Timetable, styleName string) ([]byte, error) {
	now := s.now()

	cached, err := s.repo.Find(ctx, styleName, tt.ContentHash)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cached image")
	}
	if cached != nil && cached.ValidUntil.After(now) {
		if err := s.repo.ExtendValidity(ctx, styleName, tt.ContentHash, now.Add(s.extendTTL)); err != nil {
			s.logger.Warn("failed to extend image validity", zap.String("hash", tt.ContentHash), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(true, 0)
		}
		return cached.Bytes, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(false, 0)
	}

	markup, err := s.markup.Build(tt, styleName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build markup")
	}

	start := time.Now()
	png, err := s.renderer.Render(ctx, markup)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveRender(time.Since(start))
	}

	image := &models.RenderedImage{
		StyleName:   styleName,
		ContentHash: tt.ContentHash,
		Bytes:       png,
		ValidUntil:  now.Add(s.initialTTL),
		CreatedAt:   now,
	}
	if err := s.repo.Upsert(ctx, image); err != nil {
		// Duplicate renders of identical content race harmlessly to the
		// same key; losing the write only costs a future re-render.
		s.logger.Warn("failed to store rendered image", zap.String("hash", tt.ContentHash), zap.Error(err))
	}
	return png, nil
}
