package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ndrozd/studentportal-api/internal/middleware"
	"github.com/ndrozd/studentportal-api/internal/models"
	"github.com/ndrozd/studentportal-api/internal/service"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
	"github.com/ndrozd/studentportal-api/pkg/response"
)

// CourseHandler exposes course catalogue endpoints.
type CourseHandler struct {
	service *service.CourseService
	cache   *service.CacheService
}

// NewCourseHandler creates a new handler. cache may be nil.
func NewCourseHandler(svc *service.CourseService, cache *service.CacheService) *CourseHandler {
	return &CourseHandler{service: svc, cache: cache}
}

type courseListPayload struct {
	Courses    []models.Course    `json:"courses"`
	Pagination *models.Pagination `json:"pagination"`
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param teacher_id query string false "Filter by teacher"
// @Param search query string false "Search by title"
// @Param min_hours query int false "Minimum hours"
// @Param max_hours query int false "Maximum hours"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
// @Security BearerAuth
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		TeacherID: c.Query("teacher_id"),
		Search:    c.Query("search"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("min_hours"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.MinHours = &v
		}
	}
	if raw := c.Query("max_hours"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.MaxHours = &v
		}
	}

	cacheKey := "courses:list:" + c.Request.URL.RawQuery
	if h.cache.Enabled() {
		var cached courseListPayload
		if hit, _ := h.cache.Get(c.Request.Context(), cacheKey, &cached); hit {
			middleware.SetCacheHit(c, true)
			response.JSON(c, http.StatusOK, cached.Courses, cached.Pagination, middleware.ExtractMeta(c))
			return
		}
	}

	courses, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.cache.Enabled() {
		_ = h.cache.Set(c.Request.Context(), cacheKey, courseListPayload{Courses: courses, Pagination: pagination}, 0)
	}

	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get course by ID
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
// @Security BearerAuth
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses [post]
// @Security BearerAuth
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.invalidateList(c)
	response.Created(c, course)
}

func (h *CourseHandler) invalidateList(c *gin.Context) {
	if h.cache.Enabled() {
		_ = h.cache.Invalidate(c.Request.Context(), "courses:list:*")
	}
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [put]
// @Security BearerAuth
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.invalidateList(c)
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [delete]
// @Security BearerAuth
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateList(c)
	response.NoContent(c)
}

// ListFiles godoc
// @Summary List course files
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/files [get]
// @Security BearerAuth
func (h *CourseHandler) ListFiles(c *gin.Context) {
	files, err := h.service.ListFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, nil)
}

// AddFile godoc
// @Summary Attach a file record to a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body object true "File payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/files [post]
// @Security BearerAuth
func (h *CourseHandler) AddFile(c *gin.Context) {
	var payload struct {
		Title    string `json:"title" binding:"required"`
		FilePath string `json:"file_path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid file payload"))
		return
	}

	file, err := h.service.AddFile(c.Request.Context(), c.Param("id"), payload.Title, payload.FilePath, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, file)
}

// Recommendation godoc
// @Summary Defense capacity recommendation
// @Description Estimate how many students the course's teacher can defend on a date
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/recommendation [get]
// @Security BearerAuth
func (h *CourseHandler) Recommendation(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}

	estimate, err := h.service.Recommendation(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, estimate, nil)
}
