package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ndrozd/studentportal-api/internal/models"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

type taskRepository interface {
	taskReader
	ListByCourse(ctx context.Context, courseID string) ([]models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id string) error
}

// TaskRequest represents task create/update payload.
type TaskRequest struct {
	Title                  string `json:"title" validate:"required"`
	Description            string `json:"description"`
	MinWords               int    `json:"min_words" validate:"gte=0"`
	Keywords               string `json:"keywords"`
	ExpectedDefenseMinutes int    `json:"expected_defense_minutes" validate:"gte=0"`
}

// TaskService manages course tasks.
type TaskService struct {
	repo      taskRepository
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTaskService constructs TaskService.
func NewTaskService(repo taskRepository, courses courseReader, validate *validator.Validate, logger *zap.Logger) *TaskService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// Get returns one task.
func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	return task, nil
}

// ListByCourse returns a course's tasks.
func (s *TaskService) ListByCourse(ctx context.Context, courseID string) ([]models.Task, error) {
	tasks, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, nil
}

// Create stores a new task under a course the actor owns.
func (s *TaskService) Create(ctx context.Context, courseID string, req TaskRequest, actor *models.User) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && actor.ID != course.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}

	task := &models.Task{
		CourseID:               courseID,
		Title:                  req.Title,
		Description:            req.Description,
		MinWords:               req.MinWords,
		Keywords:               req.Keywords,
		ExpectedDefenseMinutes: req.ExpectedDefenseMinutes,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}
	s.logger.Info("task created", zap.String("task_id", task.ID), zap.String("course_id", courseID))
	return task, nil
}

// Update rewrites a task under a course the actor owns.
func (s *TaskService) Update(ctx context.Context, id string, req TaskRequest, actor *models.User) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, task.CourseID, actor); err != nil {
		return nil, err
	}

	task.Title = req.Title
	task.Description = req.Description
	task.MinWords = req.MinWords
	task.Keywords = req.Keywords
	task.ExpectedDefenseMinutes = req.ExpectedDefenseMinutes
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}
	return task, nil
}

// Delete removes a task under a course the actor owns.
func (s *TaskService) Delete(ctx context.Context, id string, actor *models.User) error {
	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, task.CourseID, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete task")
	}
	return nil
}

func (s *TaskService) authorize(ctx context.Context, courseID string, actor *models.User) error {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && actor.ID != course.TeacherID {
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}
	return nil
}
