package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ndrozd/studentportal-api/internal/models"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

type windowRepository interface {
	windowReader
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TimeWindow, error)
	Create(ctx context.Context, window *models.TimeWindow) error
	Delete(ctx context.Context, id string) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// CreateWindowRequest describes window creation payload.
type CreateWindowRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// WindowService manages teacher availability windows. Windows are
// immutable once created; an edit is a delete plus a new window.
type WindowService struct {
	repo      windowRepository
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewWindowService constructs WindowService. cache may be nil.
func NewWindowService(repo windowRepository, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *WindowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// invalidateCapacity drops cached capacity estimates after a window
// change. Failures are logged, not surfaced.
func (s *WindowService) invalidateCapacity(ctx context.Context, teacherID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "capacity:"+teacherID+":*"); err != nil {
		s.logger.Warn("capacity cache invalidation failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

// Create validates and stores a new window for the acting teacher.
func (s *WindowService) Create(ctx context.Context, req CreateWindowRequest, actor *models.User) (*models.TimeWindow, error) {
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers create schedule windows")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid window payload")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed date")
	}

	window := &models.TimeWindow{
		TeacherID: actor.ID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if _, err := window.DurationMinutes(); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidWindow, "window end time must be after start time")
	}

	if err := s.repo.Create(ctx, window); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create window")
	}
	s.logger.Info("schedule window created",
		zap.String("window_id", window.ID),
		zap.String("teacher_id", actor.ID),
		zap.String("date", req.Date))
	s.invalidateCapacity(ctx, actor.ID)
	return window, nil
}

// Get returns one window.
func (s *WindowService) Get(ctx context.Context, id string) (*models.TimeWindow, error) {
	window, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "window not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window")
	}
	return window, nil
}

// ListByTeacher returns all of a teacher's windows.
func (s *WindowService) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimeWindow, error) {
	windows, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list windows")
	}
	return windows, nil
}

// ListByTeacherAndDate returns a teacher's windows on one date.
func (s *WindowService) ListByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.TimeWindow, error) {
	windows, err := s.repo.ListByTeacherAndDate(ctx, teacherID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list windows")
	}
	return windows, nil
}

// Delete removes a window the actor owns.
func (s *WindowService) Delete(ctx context.Context, id string, actor *models.User) error {
	window, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && actor.ID != window.TeacherID {
		return appErrors.Clone(appErrors.ErrForbidden, "window belongs to another teacher")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete window")
	}
	s.invalidateCapacity(ctx, window.TeacherID)
	return nil
}
