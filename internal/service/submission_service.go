package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ndrozd/studentportal-api/internal/models"
	"github.com/ndrozd/studentportal-api/pkg/config"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

type submissionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	FindActiveByTaskAndStudent(ctx context.Context, taskID, studentID string) (*models.Submission, error)
	Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SubmissionStatus) error
}

type fileStore interface {
	Save(filename string, data []byte) (string, error)
}

type urlSigner interface {
	Generate(fileID, relPath string) (string, time.Time, error)
}

type slotAllocator interface {
	Allocate(ctx context.Context, submission *models.Submission) (*models.Booking, error)
}

// SubmitResult carries everything the upload pipeline produced.
type SubmitResult struct {
	Submission *models.Submission `json:"submission"`
	Check      CheckResult        `json:"check"`
	Booking    *models.Booking    `json:"booking,omitempty"`
}

// SignedDownload is a time-limited link to a stored submission file.
type SignedDownload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubmissionService runs the upload pipeline: store the file, run the
// content check, then either queue the submission with a defense slot
// or reject it.
type SubmissionService struct {
	repo     submissionRepository
	tasks    taskReader
	store    fileStore
	signer   urlSigner
	checker  ContentChecker
	defense  slotAllocator
	notifier eventPublisher
	cfg      config.UploadsConfig
	logger   *zap.Logger
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(repo submissionRepository, tasks taskReader, store fileStore, signer urlSigner, checker ContentChecker, defense slotAllocator, notifier eventPublisher, cfg config.UploadsConfig, logger *zap.Logger) *SubmissionService {
	if checker == nil {
		checker = NewBasicContentChecker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		repo:     repo,
		tasks:    tasks,
		store:    store,
		signer:   signer,
		checker:  checker,
		defense:  defense,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Submit stores the uploaded file, runs the content check and drives
// the verdict: pass earns a defense slot and in_queue status, fail or
// an exhausted schedule ends in rejected.
func (s *SubmissionService) Submit(ctx context.Context, taskID string, actor *models.User, filename string, content []byte) (*SubmitResult, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students submit tasks")
	}
	if s.cfg.MaxFileSizeBytes > 0 && int64(len(content)) > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the size limit")
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	if _, err := s.repo.FindActiveByTaskAndStudent(ctx, taskID, actor.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "task already has an active submission")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submissions")
	}

	stored := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(filename))
	relPath, err := s.store.Save(stored, content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	check := s.checker.Check(string(content), task)

	submission := &models.Submission{
		TaskID:      taskID,
		StudentID:   actor.ID,
		FilePath:    relPath,
		CheckPassed: check.Passed,
		Status:      models.SubmissionStatusPending,
	}
	if err := s.repo.Create(ctx, nil, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}

	result := &SubmitResult{Submission: submission, Check: check}

	if !check.Passed {
		if err := s.reject(ctx, submission, "content check failed"); err != nil {
			return nil, err
		}
		return result, nil
	}

	booking, err := s.defense.Allocate(ctx, submission)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNoSlotAvailable) {
			if rejectErr := s.reject(ctx, submission, "no defense slot available"); rejectErr != nil {
				return nil, rejectErr
			}
			return result, nil
		}
		return nil, err
	}

	submission.Status = models.SubmissionStatusInQueue
	if err := s.repo.UpdateStatus(ctx, nil, submission.ID, models.SubmissionStatusInQueue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
	}
	result.Booking = booking

	s.logger.Info("submission queued",
		zap.String("submission_id", submission.ID),
		zap.String("task_id", taskID),
		zap.String("student_id", actor.ID),
		zap.String("defense_time", booking.DefenseTime))
	return result, nil
}

func (s *SubmissionService) reject(ctx context.Context, submission *models.Submission, reason string) error {
	submission.Status = models.SubmissionStatusRejected
	if err := s.repo.UpdateStatus(ctx, nil, submission.ID, models.SubmissionStatusRejected); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
	}
	s.logger.Info("submission rejected",
		zap.String("submission_id", submission.ID),
		zap.String("reason", reason))
	if s.notifier != nil {
		s.notifier.Publish(Event{
			Type:    EventSubmissionRejected,
			UserID:  submission.StudentID,
			Payload: map[string]string{"submission_id": submission.ID, "reason": reason},
		})
	}
	return nil
}

// Get returns one submission; students only see their own.
func (s *SubmissionService) Get(ctx context.Context, id string, actor *models.User) (*models.Submission, error) {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if actor.Role == models.RoleStudent && actor.ID != submission.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
	}
	return submission, nil
}

// List returns submissions visible to the actor: students see their
// own, teachers see submissions against their courses, admins see all.
func (s *SubmissionService) List(ctx context.Context, filter models.SubmissionFilter, actor *models.User) ([]models.Submission, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.ID
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
	case models.RoleAdmin:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	submissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return submissions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// DownloadURL issues a signed, expiring link to the stored file.
func (s *SubmissionService) DownloadURL(ctx context.Context, id string, actor *models.User) (*SignedDownload, error) {
	submission, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(submission.ID, submission.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &SignedDownload{URL: "/api/v1/files/" + token, ExpiresAt: expiresAt}, nil
}
