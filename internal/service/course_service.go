package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ndrozd/studentportal-api/internal/models"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	ListFiles(ctx context.Context, courseID string) ([]models.CourseFile, error)
	AddFile(ctx context.Context, file *models.CourseFile) error
}

type capacityEstimator interface {
	MaxStudents(ctx context.Context, teacherID string, date time.Time) (*CapacityEstimate, error)
}

// CourseRequest represents course create/update payload.
type CourseRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Hours       int    `json:"hours" validate:"gte=0"`
	ImagePath   string `json:"image_path"`
}

// CourseService handles course management and the defense capacity
// recommendation for a course's teacher.
type CourseService struct {
	repo      courseRepository
	capacity  capacityEstimator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, capacity capacityEstimator, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, capacity: capacity, validator: validate, logger: logger}
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create stores a new course owned by the acting teacher.
func (s *CourseService) Create(ctx context.Context, req CourseRequest, actor *models.User) (*models.Course, error) {
	if actor.Role != models.RoleTeacher && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers create courses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		Title:       req.Title,
		Description: req.Description,
		Hours:       req.Hours,
		ImagePath:   req.ImagePath,
		TeacherID:   actor.ID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("teacher_id", actor.ID))
	return course, nil
}

// Update rewrites a course the actor owns.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest, actor *models.User) (*models.Course, error) {
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && actor.ID != course.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course.Title = req.Title
	course.Description = req.Description
	course.Hours = req.Hours
	course.ImagePath = req.ImagePath
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course the actor owns.
func (s *CourseService) Delete(ctx context.Context, id string, actor *models.User) error {
	course, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && actor.ID != course.TeacherID {
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// ListFiles returns the files attached to a course.
func (s *CourseService) ListFiles(ctx context.Context, courseID string) ([]models.CourseFile, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	files, err := s.repo.ListFiles(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course files")
	}
	return files, nil
}

// AddFile attaches a file record to a course the actor owns.
func (s *CourseService) AddFile(ctx context.Context, courseID, title, filePath string, actor *models.User) (*models.CourseFile, error) {
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && actor.ID != course.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}

	file := &models.CourseFile{CourseID: courseID, Title: title, FilePath: filePath}
	if err := s.repo.AddFile(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add course file")
	}
	return file, nil
}

// Recommendation estimates how many students the course's teacher can
// defend on the given date.
func (s *CourseService) Recommendation(ctx context.Context, courseID string, date time.Time) (*CapacityEstimate, error) {
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return s.capacity.MaxStudents(ctx, course.TeacherID, date)
}
