package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ndrozd/studentportal-api/internal/service"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
	"github.com/ndrozd/studentportal-api/pkg/response"
)

// WindowHandler exposes teacher schedule window endpoints.
type WindowHandler struct {
	service *service.WindowService
}

// NewWindowHandler creates a new handler.
func NewWindowHandler(svc *service.WindowService) *WindowHandler {
	return &WindowHandler{service: svc}
}

// Create godoc
// @Summary Create a schedule window
// @Tags Windows
// @Accept json
// @Produce json
// @Param payload body service.CreateWindowRequest true "Window payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /windows [post]
// @Security BearerAuth
func (h *WindowHandler) Create(c *gin.Context) {
	var req service.CreateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid window payload"))
		return
	}

	window, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, window)
}

// Get godoc
// @Summary Get window by ID
// @Tags Windows
// @Produce json
// @Param id path string true "Window ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /windows/{id} [get]
// @Security BearerAuth
func (h *WindowHandler) Get(c *gin.Context) {
	window, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// List godoc
// @Summary List a teacher's windows
// @Description Defaults to the current user when teacher_id is omitted
// @Tags Windows
// @Produce json
// @Param teacher_id query string false "Teacher ID"
// @Param date query string false "Restrict to one date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /windows [get]
// @Security BearerAuth
func (h *WindowHandler) List(c *gin.Context) {
	teacherID := c.Query("teacher_id")
	if teacherID == "" {
		claims := claimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		teacherID = claims.UserID
	}

	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		windows, err := h.service.ListByTeacherAndDate(c.Request.Context(), teacherID, date)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, windows, nil)
		return
	}

	windows, err := h.service.ListByTeacher(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

// Delete godoc
// @Summary Delete a schedule window
// @Tags Windows
// @Produce json
// @Param id path string true "Window ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /windows/{id} [delete]
// @Security BearerAuth
func (h *WindowHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
