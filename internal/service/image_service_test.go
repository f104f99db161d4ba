package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studtime/studtime/internal/models"
)

type imageRepoStub struct {
	cached    *models.RenderedImage
	upserted  []*models.RenderedImage
	extended  int
	upsertErr error
}

func (s *imageRepoStub) Find(ctx context.Context, styleName, contentHash string) (*models.RenderedImage, error) {
	return s.cached, nil
}

func (s *imageRepoStub) Upsert(ctx context.Context, image *models.RenderedImage) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = append(s.upserted, image)
	return nil
}

func (s *imageRepoStub) ExtendValidity(ctx context.Context, styleName, contentHash string, until time.Time) error {
	s.extended++
	return nil
}

type markupBuilderStub struct {
	markup string
	err    error
	calls  int
}

func (s *markupBuilderStub) Build(tt *models.Timetable, styleName string) (string, error) {
	s.calls++
	return s.markup, s.err
}

type pageRendererStub struct {
	png   []byte
	err   error
	calls int
}

func (s *pageRendererStub) Render(ctx context.Context, markup string) ([]byte, error) {
	s.calls++
	return s.png, s.err
}

var imageTestNow = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

func newImageService(repo *imageRepoStub, markup *markupBuilderStub, renderer *pageRendererStub) *ImageService {
	svc := NewImageService(repo, markup, renderer, nil, 7*24*time.Hour, 24*time.Hour, nil)
	svc.now = func() time.Time { return imageTestNow }
	return svc
}

func TestGetOrRenderHitExtendsValidity(t *testing.T) {
	repo := &imageRepoStub{cached: &models.RenderedImage{
		StyleName:   "default",
		ContentHash: "abc",
		Bytes:       []byte("png-bytes"),
		ValidUntil:  imageTestNow.Add(time.Hour),
	}}
	markup := &markupBuilderStub{}
	renderer := &pageRendererStub{}
	svc := newImageService(repo, markup, renderer)

	png, err := svc.GetOrRender(context.Background(), &models.Timetable{ContentHash: "abc"}, "default")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), png)
	assert.Equal(t, 1, repo.extended)
	assert.Zero(t, markup.calls)
	assert.Zero(t, renderer.calls, "identical content never re-renders")
}

func TestGetOrRenderMissRendersAndStores(t *testing.T) {
	repo := &imageRepoStub{}
	markup := &markupBuilderStub{markup: "<html></html>"}
	renderer := &pageRendererStub{png: []byte("fresh-png")}
	svc := newImageService(repo, markup, renderer)

	png, err := svc.GetOrRender(context.Background(), &models.Timetable{ContentHash: "abc"}, "default")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh-png"), png)
	assert.Equal(t, 1, renderer.calls)

	require.Len(t, repo.upserted, 1)
	stored := repo.upserted[0]
	assert.Equal(t, "default", stored.StyleName)
	assert.Equal(t, "abc", stored.ContentHash)
	assert.Equal(t, imageTestNow.Add(7*24*time.Hour), stored.ValidUntil)
}

func TestGetOrRenderExpiredEntryRerenders(t *testing.T) {
	repo := &imageRepoStub{cached: &models.RenderedImage{
		StyleName:   "default",
		ContentHash: "abc",
		Bytes:       []byte("stale-png"),
		ValidUntil:  imageTestNow.Add(-time.Minute),
	}}
	markup := &markupBuilderStub{markup: "<html></html>"}
	renderer := &pageRendererStub{png: []byte("fresh-png")}
	svc := newImageService(repo, markup, renderer)

	png, err := svc.GetOrRender(context.Background(), &models.Timetable{ContentHash: "abc"}, "default")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh-png"), png)
	assert.Zero(t, repo.extended)
	assert.Equal(t, 1, renderer.calls)
}

func TestGetOrRenderStoreFailureStillServes(t *testing.T) {
	repo := &imageRepoStub{upsertErr: errors.New("disk full")}
	markup := &markupBuilderStub{markup: "<html></html>"}
	renderer := &pageRendererStub{png: []byte("fresh-png")}
	svc := newImageService(repo, markup, renderer)

	png, err := svc.GetOrRender(context.Background(), &models.Timetable{ContentHash: "abc"}, "default")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh-png"), png)
}

func TestGetOrRenderRenderFailure(t *testing.T) {
	repo := &imageRepoStub{}
	markup := &markupBuilderStub{markup: "<html></html>"}
	renderer := &pageRendererStub{err: errors.New("tab crashed")}
	svc := newImageService(repo, markup, renderer)

	_, err := svc.GetOrRender(context.Background(), &models.Timetable{ContentHash: "abc"}, "default")
	require.Error(t, err)
	assert.Empty(t, repo.upserted)
}
