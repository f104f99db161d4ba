package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studtime/studtime/internal/service"
	appErrors "github.com/studtime/studtime/pkg/errors"
	"github.com/studtime/studtime/pkg/response"
)

// UserHandler manages user registration and session endpoints.
type UserHandler struct {
	users    *service.UserService
	sessions *service.SessionService
}

// NewUserHandler constructs the user handler.
func NewUserHandler(users *service.UserService, sessions *service.SessionService) *UserHandler {
	return &UserHandler{users: users, sessions: sessions}
}

// Register creates or refreshes a user profile.
func (h *UserHandler) Register(c *gin.Context) {
	var draft service.RegistrationDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload"))
		return
	}

	user, err := h.users.Register(c.Request.Context(), draft)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Get loads a user profile.
func (h *UserHandler) Get(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

type sessionPayload struct {
	Token string `json:"token"`
}

// StoreSession saves an upstream session token for the user.
func (h *UserHandler) StoreSession(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var payload sessionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload"))
		return
	}

	if err := h.sessions.Authorize(c.Request.Context(), id, payload.Token); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DropSession discards the user's upstream session token.
func (h *UserHandler) DropSession(c *gin.Context) {
	id, err := userIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.sessions.Invalidate(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
