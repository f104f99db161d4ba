package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

type overlayRepository interface {
	FindByID(ctx context.Context, id string) (*models.Overlay, error)
	ListForUserWeek(ctx context.Context, userID int64, groupID string, year, week int) ([]models.Overlay, error)
	Create(ctx context.Context, overlay *models.Overlay) error
	Update(ctx context.Context, overlay *models.Overlay) error
	UpsertSeriesBatch(ctx context.Context, overlays []models.Overlay) error
	Delete(ctx context.Context, id string) error
	DeleteBySeries(ctx context.Context, ownerUserID int64, seriesID string) (int64, error)
}

type seriesLessonLister interface {
	ListBySeries(ctx context.Context, seriesID string) ([]models.RawLesson, error)
}

// OverlayDraft is the write-time payload for a single overlay. Pointer
// content fields left nil inherit from the underlying lesson.
type OverlayDraft struct {
	OwnerUserID    int64              `json:"owner_user_id" validate:"required"`
	TargetLessonID *string            `json:"target_lesson_id"`
	Year           int                `json:"year" validate:"required,min=2000"`
	WeekNumber     int                `json:"week_number" validate:"required,min=1,max=53"`
	Weekday        int                `json:"weekday" validate:"required,min=1,max=6"`
	TimeSlot       int                `json:"time_slot" validate:"required,min=1,max=8"`
	Hidden         bool               `json:"hidden"`
	Discipline     *string            `json:"discipline"`
	Kind           *models.LessonKind `json:"kind"`
	TeacherName    *string            `json:"teacher_name"`
	Online         *bool              `json:"online"`
	Building       *string            `json:"building"`
	Room           *string            `json:"room"`
	Subgroup       *int               `json:"subgroup"`
	Comment        *string            `json:"comment"`
}

// SeriesPatch customizes every occurrence of a series at once. Weekday and
// TimeSlot move each occurrence when set, otherwise placement is inherited
// per occurrence.
type SeriesPatch struct {
	OwnerUserID int64              `json:"owner_user_id" validate:"required"`
	SeriesID    string             `json:"series_id" validate:"required"`
	Weekday     *int               `json:"weekday" validate:"omitempty,min=1,max=6"`
	TimeSlot    *int               `json:"time_slot" validate:"omitempty,min=1,max=8"`
	Hidden      bool               `json:"hidden"`
	Discipline  *string            `json:"discipline"`
	Kind        *models.LessonKind `json:"kind"`
	TeacherName *string            `json:"teacher_name"`
	Online      *bool              `json:"online"`
	Building    *string            `json:"building"`
	Room        *string            `json:"room"`
	Subgroup    *int               `json:"subgroup"`
	Comment     *string            `json:"comment"`
}

// OverlayService owns the write path for user customizations and the pure
// overlay application used by synthesis.
type OverlayService struct {
	repo      overlayRepository
	lessons   seriesLessonLister
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOverlayService instantiates OverlayService.
func NewOverlayService(repo overlayRepository, lessons seriesLessonLister, validate *validator.Validate, logger *zap.Logger) *OverlayService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverlayService{repo: repo, lessons: lessons, validator: validate, logger: logger}
}

// Normalize validates a draft and derives its begin/end times from the fixed
// slot table. Pure: no I/O, no id assignment.
func Normalize(draft OverlayDraft) (models.Overlay, error) {
	if !models.ValidTimeSlot(draft.TimeSlot) {
		return models.Overlay{}, appErrors.Clone(appErrors.ErrValidation, "time slot out of range")
	}
	if !models.ValidWeekday(draft.Weekday) {
		return models.Overlay{}, appErrors.Clone(appErrors.ErrValidation, "weekday out of range")
	}

	begin, end := models.SlotSpan(draft.Year, draft.WeekNumber, draft.Weekday, draft.TimeSlot)
	return models.Overlay{
		OwnerUserID:    draft.OwnerUserID,
		TargetLessonID: draft.TargetLessonID,
		Year:           draft.Year,
		WeekNumber:     draft.WeekNumber,
		Weekday:        draft.Weekday,
		TimeSlot:       draft.TimeSlot,
		BeginTime:      begin,
		EndTime:        end,
		Enabled:        true,
		Hidden:         draft.Hidden,
		Discipline:     draft.Discipline,
		Kind:           draft.Kind,
		TeacherName:    draft.TeacherName,
		Online:         draft.Online,
		Building:       draft.Building,
		Room:           draft.Room,
		Subgroup:       draft.Subgroup,
		Comment:        draft.Comment,
	}, nil
}

// ApplyOverlay merges an overlay into a lesson's display unit. Only set
// (non-nil) overlay fields override the lesson; the pre-overlay lesson is
// snapshotted into Original. A nil base produces a synthetic lesson.
func ApplyOverlay(base *models.TimetableLesson, o models.Overlay) models.TimetableLesson {
	var out models.TimetableLesson
	if base != nil {
		snapshot := *base
		snapshot.Alternates = nil
		out = *base
		out.Original = &snapshot
	} else {
		out.LessonID = o.ID
	}

	out.OverlayID = o.ID
	out.Year = o.Year
	out.WeekNumber = o.WeekNumber
	out.Weekday = o.Weekday
	out.TimeSlot = o.TimeSlot
	out.BeginTime = o.BeginTime
	out.EndTime = o.EndTime
	out.Hidden = o.Hidden

	if o.Discipline != nil {
		out.Discipline = *o.Discipline
	}
	if o.Kind != nil {
		out.Kind = *o.Kind
	}
	if o.TeacherName != nil {
		out.TeacherName = *o.TeacherName
	}
	if o.Online != nil {
		out.Online = *o.Online
	}
	if o.Building != nil {
		out.Building = *o.Building
	}
	if o.Room != nil {
		out.Room = *o.Room
	}
	if o.Subgroup != nil {
		out.Subgroup = o.Subgroup
	}
	if o.Comment != nil {
		out.Comment = *o.Comment
	}

	switch {
	case out.Original == nil:
		out.Customization = models.CustomizationAdded
	case o.Hidden:
		out.Customization = models.CustomizationRemoved
	default:
		out.Customization = models.CustomizationModified
	}
	return out
}

// Create validates, normalizes and stores a single overlay.
func (s *OverlayService) Create(ctx context.Context, draft OverlayDraft) (*models.Overlay, error) {
	if err := s.validator.Struct(draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid overlay payload")
	}

	overlay, err := Normalize(draft)
	if err != nil {
		return nil, err
	}
	overlay.ID = uuid.NewString()

	if err := s.repo.Create(ctx, &overlay); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create overlay")
	}
	return &overlay, nil
}

// Update replaces the editable fields of an existing overlay.
func (s *OverlayService) Update(ctx context.Context, id string, draft OverlayDraft) (*models.Overlay, error) {
	if err := s.validator.Struct(draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid overlay payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "overlay not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overlay")
	}
	if existing.OwnerUserID != draft.OwnerUserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "overlay not found")
	}

	overlay, err := Normalize(draft)
	if err != nil {
		return nil, err
	}
	overlay.ID = existing.ID
	overlay.TargetSeriesID = existing.TargetSeriesID
	overlay.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, &overlay); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update overlay")
	}
	return &overlay, nil
}

// Disable soft-deletes an overlay by flipping its enabled flag off.
func (s *OverlayService) Disable(ctx context.Context, ownerUserID int64, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
			return appErrors.Clone(appErrors.ErrNotFound, "overlay not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overlay")
	}
	if existing.OwnerUserID != ownerUserID {
		return appErrors.Clone(appErrors.ErrNotFound, "overlay not found")
	}

	existing.Enabled = false
	if err := s.repo.Update(ctx, existing); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to disable overlay")
	}
	return nil
}

// ApplyToSeries fans a patch out to one overlay row per occurrence of the
// series. The write is idempotent per (series, week): re-applying the same
// patch upserts the same rows instead of duplicating them.
func (s *OverlayService) ApplyToSeries(ctx context.Context, patch SeriesPatch) ([]models.Overlay, error) {
	if err := s.validator.Struct(patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid series patch")
	}

	occurrences, err := s.lessons.ListBySeries(ctx, patch.SeriesID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load series occurrences")
	}
	if len(occurrences) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "series has no occurrences")
	}

	overlays := make([]models.Overlay, 0, len(occurrences))
	for _, occ := range occurrences {
		weekday := occ.Weekday
		if patch.Weekday != nil {
			weekday = *patch.Weekday
		}
		slot := occ.TimeSlot
		if patch.TimeSlot != nil {
			slot = *patch.TimeSlot
		}

		lessonID := occ.ID
		seriesID := patch.SeriesID
		overlay, err := Normalize(OverlayDraft{
			OwnerUserID:    patch.OwnerUserID,
			TargetLessonID: &lessonID,
			Year:           occ.Year,
			WeekNumber:     occ.WeekNumber,
			Weekday:        weekday,
			TimeSlot:       slot,
			Hidden:         patch.Hidden,
			Discipline:     patch.Discipline,
			Kind:           patch.Kind,
			TeacherName:    patch.TeacherName,
			Online:         patch.Online,
			Building:       patch.Building,
			Room:           patch.Room,
			Subgroup:       patch.Subgroup,
			Comment:        patch.Comment,
		})
		if err != nil {
			return nil, err
		}
		overlay.ID = uuid.NewString()
		overlay.TargetSeriesID = &seriesID
		overlays = append(overlays, overlay)
	}

	if err := s.repo.UpsertSeriesBatch(ctx, overlays); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply series patch")
	}

	s.logger.Info("series overlay applied",
		zap.String("series_id", patch.SeriesID),
		zap.Int64("owner", patch.OwnerUserID),
		zap.Int("occurrences", len(overlays)))
	return overlays, nil
}

// DeleteSeries removes every overlay row sharing the target series.
func (s *OverlayService) DeleteSeries(ctx context.Context, ownerUserID int64, seriesID string) error {
	deleted, err := s.repo.DeleteBySeries(ctx, ownerUserID, seriesID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete series overlays")
	}
	if deleted == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "no overlays for series")
	}
	return nil
}

// ListForWeek loads the user's enabled overlays for one week.
func (s *OverlayService) ListForWeek(ctx context.Context, userID int64, groupID string, year, week int) ([]models.Overlay, error) {
	overlays, err := s.repo.ListForUserWeek(ctx, userID, groupID, year, week)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overlays")
	}
	return overlays, nil
}
