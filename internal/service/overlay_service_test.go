package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

type overlayRepoStub struct {
	items   map[string]models.Overlay
	batches [][]models.Overlay
	err     error
}

func (s *overlayRepoStub) FindByID(ctx context.Context, id string) (*models.Overlay, error) {
	if s.err != nil {
		return nil, s.err
	}
	if o, ok := s.items[id]; ok {
		return &o, nil
	}
	return nil, appErrors.ErrNotFound
}

func (s *overlayRepoStub) ListForUserWeek(ctx context.Context, userID int64, groupID string, year, week int) ([]models.Overlay, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Overlay
	for _, o := range s.items {
		if o.OwnerUserID == userID && o.Year == year && o.WeekNumber == week {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *overlayRepoStub) Create(ctx context.Context, overlay *models.Overlay) error {
	if s.err != nil {
		return s.err
	}
	if s.items == nil {
		s.items = make(map[string]models.Overlay)
	}
	s.items[overlay.ID] = *overlay
	return nil
}

func (s *overlayRepoStub) Update(ctx context.Context, overlay *models.Overlay) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.items[overlay.ID]; !ok {
		return appErrors.ErrNotFound
	}
	s.items[overlay.ID] = *overlay
	return nil
}

func (s *overlayRepoStub) UpsertSeriesBatch(ctx context.Context, overlays []models.Overlay) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, overlays)
	return nil
}

func (s *overlayRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.items, id)
	return nil
}

func (s *overlayRepoStub) DeleteBySeries(ctx context.Context, ownerUserID int64, seriesID string) (int64, error) {
	var n int64
	for id, o := range s.items {
		if o.OwnerUserID == ownerUserID && o.TargetSeriesID != nil && *o.TargetSeriesID == seriesID {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

type seriesListerStub struct {
	lessons []models.RawLesson
	err     error
}

func (s *seriesListerStub) ListBySeries(ctx context.Context, seriesID string) ([]models.RawLesson, error) {
	return s.lessons, s.err
}

func validDraft() OverlayDraft {
	return OverlayDraft{
		OwnerUserID: 7,
		Year:        2026,
		WeekNumber:  10,
		Weekday:     1,
		TimeSlot:    1,
	}
}

func TestNormalizeDerivesSlotTimes(t *testing.T) {
	overlay, err := Normalize(validDraft())
	require.NoError(t, err)

	begin, end := models.SlotSpan(2026, 10, 1, 1)
	assert.Equal(t, begin, overlay.BeginTime)
	assert.Equal(t, end, overlay.EndTime)
	assert.True(t, overlay.Enabled)
	assert.Equal(t, "08:00", overlay.BeginTime.Format("15:04"))
	assert.Equal(t, "09:30", overlay.EndTime.Format("15:04"))
}

func TestNormalizeRejectsBadPlacement(t *testing.T) {
	draft := validDraft()
	draft.TimeSlot = 9
	_, err := Normalize(draft)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	draft = validDraft()
	draft.Weekday = 7
	_, err = Normalize(draft)
	require.Error(t, err)
}

func TestApplyOverlaySetFieldsOverride(t *testing.T) {
	base := models.FromRawLesson(rawLesson("l1", 1, 1, "Calculus"))
	room := "501"
	online := false

	overlay, err := Normalize(validDraft())
	require.NoError(t, err)
	overlay.ID = "ov1"
	overlay.Room = &room
	overlay.Online = &online

	out := ApplyOverlay(&base, overlay)
	assert.Equal(t, "501", out.Room)
	assert.False(t, out.Online)
	assert.Equal(t, "Calculus", out.Discipline, "unset fields inherit")
	assert.Equal(t, models.CustomizationModified, out.Customization)
	require.NotNil(t, out.Original)
	assert.Equal(t, base.Room, out.Original.Room)
	assert.Nil(t, out.Original.Alternates)
}

func TestApplyOverlaySyntheticLesson(t *testing.T) {
	discipline := "Consultation"
	overlay, err := Normalize(validDraft())
	require.NoError(t, err)
	overlay.ID = "ov1"
	overlay.Discipline = &discipline

	out := ApplyOverlay(nil, overlay)
	assert.Equal(t, "ov1", out.LessonID)
	assert.Equal(t, models.CustomizationAdded, out.Customization)
	assert.Nil(t, out.Original)
	assert.Equal(t, "Consultation", out.Discipline)
}

func TestOverlayServiceCreate(t *testing.T) {
	repo := &overlayRepoStub{}
	svc := NewOverlayService(repo, &seriesListerStub{}, nil, nil)

	overlay, err := svc.Create(context.Background(), validDraft())
	require.NoError(t, err)
	assert.NotEmpty(t, overlay.ID)
	assert.Contains(t, repo.items, overlay.ID)
}

func TestOverlayServiceCreateValidation(t *testing.T) {
	svc := NewOverlayService(&overlayRepoStub{}, &seriesListerStub{}, nil, nil)

	draft := validDraft()
	draft.OwnerUserID = 0
	_, err := svc.Create(context.Background(), draft)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestOverlayServiceDisableChecksOwner(t *testing.T) {
	existing, err := Normalize(validDraft())
	require.NoError(t, err)
	existing.ID = "ov1"
	repo := &overlayRepoStub{items: map[string]models.Overlay{"ov1": existing}}
	svc := NewOverlayService(repo, &seriesListerStub{}, nil, nil)

	err = svc.Disable(context.Background(), 999, "ov1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Disable(context.Background(), 7, "ov1"))
	assert.False(t, repo.items["ov1"].Enabled)
}

func TestOverlayServiceApplyToSeries(t *testing.T) {
	lessons := []models.RawLesson{
		rawLesson("l1", 1, 1, "Calculus"),
		rawLesson("l2", 1, 1, "Calculus"),
	}
	lessons[1].WeekNumber = 11
	repo := &overlayRepoStub{}
	svc := NewOverlayService(repo, &seriesListerStub{lessons: lessons}, nil, nil)

	teacher := "Dr. Orlova"
	overlays, err := svc.ApplyToSeries(context.Background(), SeriesPatch{
		OwnerUserID: 7,
		SeriesID:    "series-l1",
		TeacherName: &teacher,
	})
	require.NoError(t, err)
	require.Len(t, overlays, 2)
	require.Len(t, repo.batches, 1)

	for i, o := range overlays {
		require.NotNil(t, o.TargetLessonID)
		assert.Equal(t, lessons[i].ID, *o.TargetLessonID)
		require.NotNil(t, o.TargetSeriesID)
		assert.Equal(t, "series-l1", *o.TargetSeriesID)
		assert.Equal(t, lessons[i].WeekNumber, o.WeekNumber)
		assert.Equal(t, "Dr. Orlova", *o.TeacherName)
	}
}

func TestOverlayServiceApplyToSeriesEmpty(t *testing.T) {
	svc := NewOverlayService(&overlayRepoStub{}, &seriesListerStub{}, nil, nil)

	_, err := svc.ApplyToSeries(context.Background(), SeriesPatch{OwnerUserID: 7, SeriesID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOverlayServiceDeleteSeries(t *testing.T) {
	series := "series-l1"
	existing, err := Normalize(validDraft())
	require.NoError(t, err)
	existing.ID = "ov1"
	existing.TargetSeriesID = &series
	repo := &overlayRepoStub{items: map[string]models.Overlay{"ov1": existing}}
	svc := NewOverlayService(repo, &seriesListerStub{}, nil, nil)

	require.NoError(t, svc.DeleteSeries(context.Background(), 7, series))
	assert.Empty(t, repo.items)

	err = svc.DeleteSeries(context.Background(), 7, series)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
