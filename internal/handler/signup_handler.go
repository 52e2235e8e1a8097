package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ndrozd/studentportal-api/internal/models"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
	"github.com/ndrozd/studentportal-api/pkg/response"
)

// SignupService drives consultation queue operations.
type SignupService interface {
	Signup(ctx context.Context, windowID string, actor *models.User) (*models.SignupEntry, error)
	Cancel(ctx context.Context, windowID string, actor *models.User) error
	Position(ctx context.Context, windowID, studentID string) (*models.SignupPosition, error)
	ListByWindow(ctx context.Context, windowID string) ([]models.SignupEntry, error)
}

// SignupHandler exposes consultation signup endpoints.
type SignupHandler struct {
	service SignupService
}

// NewSignupHandler creates a new handler.
func NewSignupHandler(svc SignupService) *SignupHandler {
	return &SignupHandler{service: svc}
}

// Signup godoc
// @Summary Sign up for a consultation window
// @Tags Signups
// @Produce json
// @Param id path string true "Window ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /windows/{id}/signup [post]
// @Security BearerAuth
func (h *SignupHandler) Signup(c *gin.Context) {
	entry, err := h.service.Signup(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Cancel godoc
// @Summary Cancel a consultation signup
// @Tags Signups
// @Produce json
// @Param id path string true "Window ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /windows/{id}/signup [delete]
// @Security BearerAuth
func (h *SignupHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Position godoc
// @Summary Current user's queue position in a window
// @Tags Signups
// @Produce json
// @Param id path string true "Window ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /windows/{id}/signup/position [get]
// @Security BearerAuth
func (h *SignupHandler) Position(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	position, err := h.service.Position(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, position, nil)
}

// List godoc
// @Summary List a window's signups in queue order
// @Tags Signups
// @Produce json
// @Param id path string true "Window ID"
// @Success 200 {object} response.Envelope
// @Router /windows/{id}/signups [get]
// @Security BearerAuth
func (h *SignupHandler) List(c *gin.Context) {
	entries, err := h.service.ListByWindow(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
