package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ndrozd/studentportal-api/internal/models"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
	"github.com/ndrozd/studentportal-api/pkg/response"
)

// DefenseService drives defense booking operations.
type DefenseService interface {
	Reschedule(ctx context.Context, bookingID string, actor *models.User) (*models.Booking, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Booking, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Booking, error)
	ExportDay(ctx context.Context, teacherID string, date time.Time, format string) ([]byte, string, error)
}

// DefenseHandler exposes defense booking endpoints.
type DefenseHandler struct {
	service DefenseService
}

// NewDefenseHandler creates a new handler.
func NewDefenseHandler(svc DefenseService) *DefenseHandler {
	return &DefenseHandler{service: svc}
}

// ListMine godoc
// @Summary List the current user's defense bookings
// @Description Teachers see their day schedule, students their own defenses
// @Tags Defenses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /defenses [get]
// @Security BearerAuth
func (h *DefenseHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var (
		bookings []models.Booking
		err      error
	)
	if claims.Role == models.RoleTeacher {
		bookings, err = h.service.ListByTeacher(c.Request.Context(), claims.UserID)
	} else {
		bookings, err = h.service.ListByStudent(c.Request.Context(), claims.UserID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, bookings, nil)
}

// ListByTeacher godoc
// @Summary List a teacher's upcoming defenses
// @Tags Defenses
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/defenses [get]
// @Security BearerAuth
func (h *DefenseHandler) ListByTeacher(c *gin.Context) {
	bookings, err := h.service.ListByTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// Reschedule godoc
// @Summary Move a defense to the next free slot
// @Description Frees the current slot and books the earliest remaining one
// @Tags Defenses
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /defenses/{id}/reschedule [post]
// @Security BearerAuth
func (h *DefenseHandler) Reschedule(c *gin.Context) {
	booking, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// ExportDay godoc
// @Summary Export a teacher's day schedule
// @Description Returns the day's defenses as CSV or PDF
// @Tags Defenses
// @Produce text/csv
// @Produce application/pdf
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /defenses/export [get]
// @Security BearerAuth
func (h *DefenseHandler) ExportDay(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	teacherID := claims.UserID
	if claims.Role == models.RoleAdmin {
		if id := c.Query("teacher_id"); id != "" {
			teacherID = id
		}
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}

	format := c.DefaultQuery("format", "csv")
	data, contentType, err := h.service.ExportDay(c.Request.Context(), teacherID, date, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("defenses_%s.%s", date.Format("2006-01-02"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
