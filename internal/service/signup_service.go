package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ndrozd/studentportal-api/internal/models"
	"github.com/ndrozd/studentportal-api/pkg/config"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
	"github.com/ndrozd/studentportal-api/pkg/locker"
)

type signupRepository interface {
	CountByWindow(ctx context.Context, exec sqlx.ExtContext, windowID string) (int, error)
	FindByWindowAndStudent(ctx context.Context, exec sqlx.ExtContext, windowID, studentID string) (*models.SignupEntry, error)
	ListByWindow(ctx context.Context, windowID string) ([]models.SignupEntry, error)
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.SignupEntry) error
	Delete(ctx context.Context, exec sqlx.ExtContext, windowID, studentID string) (bool, error)
	CountEarlier(ctx context.Context, entry *models.SignupEntry) (int, error)
}

// SignupService runs the per-window signup queue. Capacity is the
// window's slot count at the fixed signup quantum; entries keep FIFO
// order through (created_at, seq), with seq assigned inside the
// signup transaction.
type SignupService struct {
	db       txBeginner
	signups  signupRepository
	windows  windowReader
	locks    locker.Locker
	notifier eventPublisher
	cfg      config.DefenseConfig
	logger   *zap.Logger
}

// NewSignupService constructs SignupService.
func NewSignupService(db txBeginner, signups signupRepository, windows windowReader, locks locker.Locker, notifier eventPublisher, cfg config.DefenseConfig, logger *zap.Logger) *SignupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SignupQuantumMinutes <= 0 {
		cfg.SignupQuantumMinutes = models.SignupQuantumMinutes
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	return &SignupService{db: db, signups: signups, windows: windows, locks: locks, notifier: notifier, cfg: cfg, logger: logger}
}

func signupLockKey(windowID string) string {
	return "signup:" + windowID
}

// Signup appends a student to a window queue. Students only; returns
// WindowFull at capacity and AlreadySignedUp on a duplicate entry.
func (s *SignupService) Signup(ctx context.Context, windowID string, actor *models.User) (*models.SignupEntry, error) {
	switch actor.Role {
	case models.RoleStudent:
	case models.RoleAdmin, models.RoleTeacher:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can sign up for a window")
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	window, err := s.windows.FindByID(ctx, windowID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "window not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window")
	}
	capacity := window.SlotCount(s.cfg.SignupQuantumMinutes)

	var entry *models.SignupEntry
	err = locker.WithLock(ctx, s.locks, signupLockKey(windowID), s.cfg.LockTTL, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := s.signups.FindByWindowAndStudent(ctx, tx, windowID, actor.ID); err == nil {
			return appErrors.Clone(appErrors.ErrAlreadySignedUp, "student already signed up for this window")
		} else if err != sql.ErrNoRows {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check signup")
		}

		count, err := s.signups.CountByWindow(ctx, tx, windowID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count signups")
		}
		if count >= capacity {
			return appErrors.Clone(appErrors.ErrWindowFull, "window has no remaining signup slots")
		}

		entry = &models.SignupEntry{WindowID: windowID, StudentID: actor.ID}
		if err := s.signups.Create(ctx, tx, entry); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create signup")
		}
		if err := tx.Commit(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit signup")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("window signup",
		zap.String("window_id", windowID),
		zap.String("student_id", actor.ID),
		zap.Int("seq", entry.Seq))
	if s.notifier != nil {
		s.notifier.Publish(Event{
			Type:    EventSignupCreated,
			UserID:  window.TeacherID,
			Payload: map[string]string{"window_id": windowID, "student_id": actor.ID},
		})
	}
	return entry, nil
}

// Cancel removes the actor's own entry. The vacated slot is
// immediately available to the next signup.
func (s *SignupService) Cancel(ctx context.Context, windowID string, actor *models.User) error {
	if actor.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "only students hold signup entries")
	}

	window, err := s.windows.FindByID(ctx, windowID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "window not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window")
	}

	err = locker.WithLock(ctx, s.locks, signupLockKey(windowID), s.cfg.LockTTL, func() error {
		removed, err := s.signups.Delete(ctx, nil, windowID, actor.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel signup")
		}
		if !removed {
			return appErrors.Clone(appErrors.ErrNotSignedUp, "no signup entry for this window")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("window signup cancelled",
		zap.String("window_id", windowID),
		zap.String("student_id", actor.ID))
	if s.notifier != nil {
		s.notifier.Publish(Event{
			Type:    EventSignupCancelled,
			UserID:  window.TeacherID,
			Payload: map[string]string{"window_id": windowID, "student_id": actor.ID},
		})
	}
	return nil
}

// Position reports a student's 1-based place in a window queue.
func (s *SignupService) Position(ctx context.Context, windowID, studentID string) (*models.SignupPosition, error) {
	window, err := s.windows.FindByID(ctx, windowID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "window not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window")
	}

	entry, err := s.signups.FindByWindowAndStudent(ctx, nil, windowID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotSignedUp, "no signup entry for this window")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signup")
	}

	earlier, err := s.signups.CountEarlier(ctx, entry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute position")
	}
	total, err := s.signups.CountByWindow(ctx, nil, windowID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count signups")
	}

	return &models.SignupPosition{
		WindowID:  windowID,
		StudentID: studentID,
		Position:  earlier + 1,
		Total:     total,
		Capacity:  window.SlotCount(s.cfg.SignupQuantumMinutes),
	}, nil
}

// ListByWindow returns a window's queue in FIFO order.
func (s *SignupService) ListByWindow(ctx context.Context, windowID string) ([]models.SignupEntry, error) {
	entries, err := s.signups.ListByWindow(ctx, windowID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list signups")
	}
	return entries, nil
}
