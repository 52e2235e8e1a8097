package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ndrozd/studentportal-api/internal/models"
	"github.com/ndrozd/studentportal-api/pkg/config"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
	"github.com/ndrozd/studentportal-api/pkg/export"
	"github.com/ndrozd/studentportal-api/pkg/locker"
)

type bookingRepository interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindBySubmission(ctx context.Context, submissionID string) (*models.Booking, error)
	ListByTeacherFrom(ctx context.Context, teacherID string, from time.Time) ([]models.Booking, error)
	ListByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.Booking, error)
	ListDetailByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.BookingDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Booking, error)
	ExistsAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, clock string, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	UpdateSlot(ctx context.Context, exec sqlx.ExtContext, id string, date time.Time, clock string) error
}

type windowReader interface {
	FindByID(ctx context.Context, id string) (*models.TimeWindow, error)
	ListByTeacherFrom(ctx context.Context, teacherID string, from time.Time) ([]models.TimeWindow, error)
	ListByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.TimeWindow, error)
}

type submissionReader interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
}

type taskReader interface {
	FindByID(ctx context.Context, id string) (*models.Task, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// DefenseService owns the defense slot booking lifecycle. The
// check-then-insert sequence runs under a per-teacher keyed lock plus
// a database transaction, so two concurrent commits cannot take the
// same slot.
type DefenseService struct {
	db          txBeginner
	bookings    bookingRepository
	windows     windowReader
	submissions submissionReader
	tasks       taskReader
	courses     courseReader
	locks       locker.Locker
	notifier    eventPublisher
	cfg         config.DefenseConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewDefenseService constructs DefenseService.
func NewDefenseService(db txBeginner, bookings bookingRepository, windows windowReader, submissions submissionReader, tasks taskReader, courses courseReader, locks locker.Locker, notifier eventPublisher, cfg config.DefenseConfig, logger *zap.Logger) *DefenseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AverageDefenseMinutes <= 0 {
		cfg.AverageDefenseMinutes = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	return &DefenseService{
		db:          db,
		bookings:    bookings,
		windows:     windows,
		submissions: submissions,
		tasks:       tasks,
		courses:     courses,
		locks:       locks,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

func defenseLockKey(teacherID string) string {
	return "defense:" + teacherID
}

func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Commit books a specific slot for a submission. Returns
// DuplicateBooking when the submission already holds a slot and
// SlotConflict when the slot is occupied.
func (s *DefenseService) Commit(ctx context.Context, submissionID, teacherID string, date time.Time, clock string) (*models.Booking, error) {
	if _, err := models.ParseClock(clock); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed slot time")
	}

	var booking *models.Booking
	err := locker.WithLock(ctx, s.locks, defenseLockKey(teacherID), s.cfg.LockTTL, func() error {
		var err error
		booking, err = s.commitLocked(ctx, submissionID, teacherID, date, clock)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(EventBookingCommitted, booking)
	return booking, nil
}

func (s *DefenseService) commitLocked(ctx context.Context, submissionID, teacherID string, date time.Time, clock string) (*models.Booking, error) {
	if _, err := s.bookings.FindBySubmission(ctx, submissionID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateBooking, "submission already has a defense slot")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing booking")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	taken, err := s.bookings.ExistsAt(ctx, tx, teacherID, date, clock, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot occupancy")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrSlotConflict, fmt.Sprintf("slot %s %s is already occupied", date.Format("2006-01-02"), clock))
	}

	booking := &models.Booking{
		SubmissionID: submissionID,
		TeacherID:    teacherID,
		DefenseDate:  date,
		DefenseTime:  clock,
		Occupied:     true,
	}
	if err := s.bookings.Create(ctx, tx, booking); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit booking")
	}

	s.logger.Info("defense slot committed",
		zap.String("submission_id", submissionID),
		zap.String("teacher_id", teacherID),
		zap.String("date", date.Format("2006-01-02")),
		zap.String("time", clock))
	return booking, nil
}

// Allocate finds the earliest free slot for a submission and commits
// it. Returns NoSlotAvailable when the teacher's windows are
// exhausted; the caller decides what happens to the submission then.
func (s *DefenseService) Allocate(ctx context.Context, submission *models.Submission) (*models.Booking, error) {
	task, err := s.tasks.FindByID(ctx, submission.TaskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	course, err := s.courses.FindByID(ctx, task.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	duration := task.ExpectedDefenseMinutes
	if duration <= 0 {
		duration = s.cfg.AverageDefenseMinutes
	}

	var booking *models.Booking
	err = locker.WithLock(ctx, s.locks, defenseLockKey(course.TeacherID), s.cfg.LockTTL, func() error {
		slot, err := s.findSlot(ctx, course.TeacherID, duration, "")
		if err != nil {
			return err
		}
		booking, err = s.commitLocked(ctx, submission.ID, course.TeacherID, slot.Date, slot.Clock)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(EventBookingCommitted, booking)
	return booking, nil
}

// Reschedule moves an existing booking to the next free slot. The
// booking keeps its identity; on NoSlotAvailable it is left untouched.
// Allowed for the owning student, the owning teacher, and admins.
func (s *DefenseService) Reschedule(ctx context.Context, bookingID string, actor *models.User) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	submission, err := s.submissions.FindByID(ctx, booking.SubmissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTeacher:
		if actor.ID != booking.TeacherID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another teacher")
		}
	case models.RoleStudent:
		if actor.ID != submission.StudentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another student")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	task, err := s.tasks.FindByID(ctx, submission.TaskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	duration := task.ExpectedDefenseMinutes
	if duration <= 0 {
		duration = s.cfg.AverageDefenseMinutes
	}

	err = locker.WithLock(ctx, s.locks, defenseLockKey(booking.TeacherID), s.cfg.LockTTL, func() error {
		slot, err := s.findSlot(ctx, booking.TeacherID, duration, booking.ID)
		if err != nil {
			return err
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
		}
		defer func() { _ = tx.Rollback() }()

		taken, err := s.bookings.ExistsAt(ctx, tx, booking.TeacherID, slot.Date, slot.Clock, booking.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot occupancy")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrSlotConflict, "slot taken while rescheduling")
		}
		if err := s.bookings.UpdateSlot(ctx, tx, booking.ID, slot.Date, slot.Clock); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move booking")
		}
		if err := tx.Commit(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit reschedule")
		}

		booking.DefenseDate = slot.Date
		booking.DefenseTime = slot.Clock
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("defense slot rescheduled",
		zap.String("booking_id", booking.ID),
		zap.String("date", booking.DefenseDate.Format("2006-01-02")),
		zap.String("time", booking.DefenseTime))
	s.publish(EventBookingRescheduled, booking)
	return booking, nil
}

// findSlot loads the forward-looking windows and occupancy for a
// teacher and runs the allocator. excludeBookingID removes one
// booking from the occupancy set, used when that booking moves.
func (s *DefenseService) findSlot(ctx context.Context, teacherID string, durationMinutes int, excludeBookingID string) (*SlotRef, error) {
	from := today(s.now())
	windows, err := s.windows.ListByTeacherFrom(ctx, teacherID, from)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load windows")
	}
	bookings, err := s.bookings.ListByTeacherFrom(ctx, teacherID, from)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}
	if excludeBookingID != "" {
		filtered := bookings[:0]
		for _, b := range bookings {
			if b.ID != excludeBookingID {
				filtered = append(filtered, b)
			}
		}
		bookings = filtered
	}

	slot := FindSlot(windows, bookings, durationMinutes)
	if slot == nil {
		return nil, appErrors.Clone(appErrors.ErrNoSlotAvailable, "no free defense slot available")
	}
	return slot, nil
}

// ListByTeacher returns a teacher's upcoming occupied bookings.
func (s *DefenseService) ListByTeacher(ctx context.Context, teacherID string) ([]models.Booking, error) {
	bookings, err := s.bookings.ListByTeacherFrom(ctx, teacherID, today(s.now()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// ListByStudent returns the bookings behind a student's submissions.
func (s *DefenseService) ListByStudent(ctx context.Context, studentID string) ([]models.Booking, error) {
	bookings, err := s.bookings.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// ExportDay renders a teacher's day schedule as csv or pdf.
func (s *DefenseService) ExportDay(ctx context.Context, teacherID string, date time.Time, format string) ([]byte, string, error) {
	details, err := s.bookings.ListDetailByTeacherAndDate(ctx, teacherID, date)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load day schedule")
	}

	dataset := export.Dataset{Headers: []string{"Time", "Student", "Task"}}
	for _, d := range details {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Time":    d.DefenseTime,
			"Student": d.StudentName,
			"Task":    d.TaskTitle,
		})
	}

	switch strings.ToLower(format) {
	case "csv", "":
		data, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "text/csv", nil
	case "pdf":
		title := fmt.Sprintf("Defense schedule %s", date.Format("2006-01-02"))
		data, err := export.NewPDFExporter().Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *DefenseService) publish(eventType string, booking *models.Booking) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(Event{
		Type:   eventType,
		UserID: booking.TeacherID,
		Payload: map[string]string{
			"booking_id":    booking.ID,
			"submission_id": booking.SubmissionID,
			"date":          booking.DefenseDate.Format("2006-01-02"),
			"time":          booking.DefenseTime,
		},
	})
}
