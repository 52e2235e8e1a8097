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

const windowColumns = `id, teacher_id, date, start_time, end_time, created_at`

// WindowRepository manages persistence for teacher schedule windows.
type WindowRepository struct {
	db *sqlx.DB
}

// NewWindowRepository constructs a WindowRepository.
func NewWindowRepository(db *sqlx.DB) *WindowRepository {
	return &WindowRepository{db: db}
}

// FindByID fetches a window by identifier.
func (r *WindowRepository) FindByID(ctx context.Context, id string) (*models.TimeWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_windows WHERE id = $1`, windowColumns)
	var window models.TimeWindow
	if err := r.db.GetContext(ctx, &window, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find window: %w", err)
	}
	return &window, nil
}

// ListByTeacherFrom returns a teacher's windows with date >= from,
// ordered by (date, start_time, id). The trailing id keeps the order
// stable when two windows share a date and start time.
func (r *WindowRepository) ListByTeacherFrom(ctx context.Context, teacherID string, from time.Time) ([]models.TimeWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_windows WHERE teacher_id = $1 AND date >= $2 ORDER BY date ASC, start_time ASC, id ASC`, windowColumns)
	var windows []models.TimeWindow
	if err := r.db.SelectContext(ctx, &windows, query, teacherID, from); err != nil {
		return nil, fmt.Errorf("list windows from date: %w", err)
	}
	return windows, nil
}

// ListByTeacherAndDate returns all of a teacher's windows on a date.
func (r *WindowRepository) ListByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.TimeWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_windows WHERE teacher_id = $1 AND date = $2 ORDER BY start_time ASC, id ASC`, windowColumns)
	var windows []models.TimeWindow
	if err := r.db.SelectContext(ctx, &windows, query, teacherID, date); err != nil {
		return nil, fmt.Errorf("list windows by date: %w", err)
	}
	return windows, nil
}

// ListByTeacher returns all of a teacher's windows.
func (r *WindowRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimeWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_windows WHERE teacher_id = $1 ORDER BY date ASC, start_time ASC, id ASC`, windowColumns)
	var windows []models.TimeWindow
	if err := r.db.SelectContext(ctx, &windows, query, teacherID); err != nil {
		return nil, fmt.Errorf("list windows by teacher: %w", err)
	}
	return windows, nil
}

// Create inserts a new window record.
func (r *WindowRepository) Create(ctx context.Context, window *models.TimeWindow) error {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	if window.CreatedAt.IsZero() {
		window.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedule_windows (id, teacher_id, date, start_time, end_time, created_at)
		VALUES (:id, :teacher_id, :date, :start_time, :end_time, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, window); err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	return nil
}

// Delete removes a window. Signup entries cascade at the schema level.
func (r *WindowRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM schedule_windows WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	return nil
}
