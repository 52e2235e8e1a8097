package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ndrozd/studentportal-api/internal/models"
)

const bookingColumns = `id, submission_id, teacher_id, defense_date, defense_time, occupied, created_at, updated_at`

// BookingRepository manages persistence for defense slot bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches a booking by identifier.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return &booking, nil
}

// FindBySubmission fetches the booking held by a submission, if any.
func (r *BookingRepository) FindBySubmission(ctx context.Context, submissionID string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE submission_id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find booking by submission: %w", err)
	}
	return &booking, nil
}

// ListByTeacherFrom returns occupied bookings for a teacher with
// defense_date >= from.
func (r *BookingRepository) ListByTeacherFrom(ctx context.Context, teacherID string, from time.Time) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE teacher_id = $1 AND occupied AND defense_date >= $2 ORDER BY defense_date ASC, defense_time ASC`, bookingColumns)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID, from); err != nil {
		return nil, fmt.Errorf("list bookings from date: %w", err)
	}
	return bookings, nil
}

// ListByTeacherAndDate returns a teacher's occupied bookings on a date.
func (r *BookingRepository) ListByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE teacher_id = $1 AND occupied AND defense_date = $2 ORDER BY defense_time ASC`, bookingColumns)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID, date); err != nil {
		return nil, fmt.Errorf("list bookings by date: %w", err)
	}
	return bookings, nil
}

// ListDetailByTeacherAndDate returns a teacher's occupied bookings on
// a date joined with the student name and task title.
func (r *BookingRepository) ListDetailByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.BookingDetail, error) {
	const query = `SELECT b.id, b.submission_id, b.teacher_id, b.defense_date, b.defense_time, b.occupied, b.created_at, b.updated_at,
			u.first_name || ' ' || u.last_name AS student_name,
			t.title AS task_title
		FROM bookings b
		JOIN submissions s ON s.id = b.submission_id
		JOIN users u ON u.id = s.student_id
		JOIN tasks t ON t.id = s.task_id
		WHERE b.teacher_id = $1 AND b.occupied AND b.defense_date = $2
		ORDER BY b.defense_time ASC`
	var details []models.BookingDetail
	if err := r.db.SelectContext(ctx, &details, query, teacherID, date); err != nil {
		return nil, fmt.Errorf("list booking details: %w", err)
	}
	return details, nil
}

// ListByStudent returns bookings whose submissions belong to a student.
func (r *BookingRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Booking, error) {
	const query = `SELECT b.id, b.submission_id, b.teacher_id, b.defense_date, b.defense_time, b.occupied, b.created_at, b.updated_at
		FROM bookings b
		JOIN submissions s ON s.id = b.submission_id
		WHERE s.student_id = $1
		ORDER BY b.defense_date ASC, b.defense_time ASC`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, studentID); err != nil {
		return nil, fmt.Errorf("list bookings by student: %w", err)
	}
	return bookings, nil
}

// ExistsAt reports whether an occupied booking holds the given slot.
// excludeID skips one booking, used when rescheduling it.
func (r *BookingRepository) ExistsAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, clock string, excludeID string) (bool, error) {
	target := r.exec(exec)
	query := `SELECT 1 FROM bookings WHERE teacher_id = $1 AND defense_date = $2 AND defense_time = $3 AND occupied`
	args := []interface{}{teacherID, date, clock}
	if excludeID != "" {
		query += ` AND id <> $4`
		args = append(args, excludeID)
	}
	row := target.QueryRowxContext(ctx, query+` LIMIT 1`, args...)
	var exists int
	if err := row.Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check booking slot: %w", err)
	}
	return true, nil
}

// Create inserts a new booking record.
func (r *BookingRepository) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	target := r.exec(exec)
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	const query = `INSERT INTO bookings (id, submission_id, teacher_id, defense_date, defense_time, occupied, created_at, updated_at)
		VALUES (:id, :submission_id, :teacher_id, :defense_date, :defense_time, :occupied, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, booking); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// UpdateSlot moves a booking to a new date and time in place.
func (r *BookingRepository) UpdateSlot(ctx context.Context, exec sqlx.ExtContext, id string, date time.Time, clock string) error {
	target := r.exec(exec)
	const query = `UPDATE bookings SET defense_date = $2, defense_time = $3, updated_at = $4 WHERE id = $1`
	if _, err := target.ExecContext(ctx, query, id, date, clock, time.Now().UTC()); err != nil {
		return fmt.Errorf("update booking slot: %w", err)
	}
	return nil
}

// DeleteBySubmission removes the booking owned by a submission.
func (r *BookingRepository) DeleteBySubmission(ctx context.Context, submissionID string) error {
	const query = `DELETE FROM bookings WHERE submission_id = $1`
	if _, err := r.db.ExecContext(ctx, query, submissionID); err != nil {
		return fmt.Errorf("delete booking by submission: %w", err)
	}
	return nil
}
