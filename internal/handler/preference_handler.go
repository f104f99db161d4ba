package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studtime/studtime/internal/models"
	"github.com/studtime/studtime/internal/service"
	appErrors "github.com/studtime/studtime/pkg/errors"
	"github.com/studtime/studtime/pkg/response"
)

// PreferenceHandler manages notification preference endpoints.
type PreferenceHandler struct {
	notify *service.NotifyService
}

// NewPreferenceHandler constructs the preference handler.
func NewPreferenceHandler(notify *service.NotifyService) *PreferenceHandler {
	return &PreferenceHandler{notify: notify}
}

// Get returns the user's notification preferences, defaults included.
func (h *PreferenceHandler) Get(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	prefs, err := h.notify.Preferences(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs, nil)
}

// Update replaces the user's notification preferences.
func (h *PreferenceHandler) Update(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var prefs models.NotificationPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preferences payload"))
		return
	}
	prefs.UserID = id

	if err := h.notify.UpdatePreferences(c.Request.Context(), &prefs); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs, nil)
}
