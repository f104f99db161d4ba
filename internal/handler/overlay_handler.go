package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/service"
	appErrors "github.com/studtime/studtime/pkg/errors"
	"github.com/studtime/studtime/pkg/response"
)

type hotCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type ownerCacheExpirer interface {
	ExpireOwner(ctx context.Context, owner int64) error
}

// OverlayHandler manages the user customization endpoints.
type OverlayHandler struct {
	users    *service.UserService
	overlays *service.OverlayService
	hotCache hotCacheInvalidator
	weeks    ownerCacheExpirer
	logger   *zap.Logger
}

// NewOverlayHandler constructs the overlay handler.
func NewOverlayHandler(users *service.UserService, overlays *service.OverlayService, hotCache hotCacheInvalidator, weeks ownerCacheExpirer, logger *zap.Logger) *OverlayHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverlayHandler{users: users, overlays: overlays, hotCache: hotCache, weeks: weeks, logger: logger}
}

// List returns the user's overlays placed into a week.
func (h *OverlayHandler) List(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	year, week, err := weekQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	overlays, err := h.overlays.ListForWeek(c.Request.Context(), user.ID, user.GroupID, year, week)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overlays, nil)
}

// Create adds a new overlay for the user.
func (h *OverlayHandler) Create(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var draft service.OverlayDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid overlay payload"))
		return
	}
	draft.OwnerUserID = id

	overlay, err := h.overlays.Create(c.Request.Context(), draft)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidate(c, id)
	response.Created(c, overlay)
}

// Update rewrites an overlay.
func (h *OverlayHandler) Update(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var draft service.OverlayDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid overlay payload"))
		return
	}
	draft.OwnerUserID = id

	overlay, err := h.overlays.Update(c.Request.Context(), c.Param("overlayId"), draft)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidate(c, id)
	response.JSON(c, http.StatusOK, overlay, nil)
}

// Disable turns an overlay off without discarding it.
func (h *OverlayHandler) Disable(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.overlays.Disable(c.Request.Context(), id, c.Param("overlayId")); err != nil {
		response.Error(c, err)
		return
	}
	h.invalidate(c, id)
	response.NoContent(c)
}

// ApplySeries customizes every occurrence of a lesson series at once.
func (h *OverlayHandler) ApplySeries(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var patch service.SeriesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid series payload"))
		return
	}
	patch.OwnerUserID = id

	overlays, err := h.overlays.ApplyToSeries(c.Request.Context(), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidate(c, id)
	response.JSON(c, http.StatusOK, overlays, nil)
}

// DeleteSeries drops every overlay the user attached to a series.
func (h *OverlayHandler) DeleteSeries(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.overlays.DeleteSeries(c.Request.Context(), id, c.Param("seriesId")); err != nil {
		response.Error(c, err)
		return
	}
	h.invalidate(c, id)
	response.NoContent(c)
}

// invalidate drops the owner's hot cached weeks after an overlay write. The
// database cache is rebuilt lazily on the next read.
func (h *OverlayHandler) invalidate(c *gin.Context, userID int64) {
	ctx := c.Request.Context()
	if h.weeks != nil {
		if err := h.weeks.ExpireOwner(ctx, userID); err != nil {
			h.logger.Warn("failed to expire week cache", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	if h.hotCache != nil {
		pattern := fmt.Sprintf("timetable:%d:*", userID)
		if err := h.hotCache.DeleteByPattern(ctx, pattern); err != nil {
			h.logger.Warn("failed to invalidate hot cache", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
}
