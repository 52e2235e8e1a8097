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

const signupColumns = `id, window_id, student_id, seq, created_at`

// SignupRepository manages persistence for window signup entries.
type SignupRepository struct {
	db *sqlx.DB
}

// NewSignupRepository constructs a SignupRepository.
func NewSignupRepository(db *sqlx.DB) *SignupRepository {
	return &SignupRepository{db: db}
}

func (r *SignupRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CountByWindow returns the number of entries in a window queue.
func (r *SignupRepository) CountByWindow(ctx context.Context, exec sqlx.ExtContext, windowID string) (int, error) {
	target := r.exec(exec)
	row := target.QueryRowxContext(ctx, `SELECT COUNT(*) FROM signup_entries WHERE window_id = $1`, windowID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count signups: %w", err)
	}
	return count, nil
}

// FindByWindowAndStudent fetches a student's entry in a window.
func (r *SignupRepository) FindByWindowAndStudent(ctx context.Context, exec sqlx.ExtContext, windowID, studentID string) (*models.SignupEntry, error) {
	target := r.exec(exec)
	query := fmt.Sprintf(`SELECT %s FROM signup_entries WHERE window_id = $1 AND student_id = $2`, signupColumns)
	row := target.QueryRowxContext(ctx, query, windowID, studentID)
	var entry models.SignupEntry
	if err := row.StructScan(&entry); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find signup entry: %w", err)
	}
	return &entry, nil
}

// ListByWindow returns a window's entries in FIFO order.
func (r *SignupRepository) ListByWindow(ctx context.Context, windowID string) ([]models.SignupEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM signup_entries WHERE window_id = $1 ORDER BY created_at ASC, seq ASC`, signupColumns)
	var entries []models.SignupEntry
	if err := r.db.SelectContext(ctx, &entries, query, windowID); err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}
	return entries, nil
}

// Create inserts a new entry. The per-window seq is assigned by the
// insert itself so it stays monotonic under the caller's transaction.
func (r *SignupRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.SignupEntry) error {
	target := r.exec(exec)
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO signup_entries (id, window_id, student_id, seq, created_at)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(seq), 0) + 1 FROM signup_entries WHERE window_id = $2), $4)
		RETURNING seq`
	row := target.QueryRowxContext(ctx, query, entry.ID, entry.WindowID, entry.StudentID, entry.CreatedAt)
	if err := row.Scan(&entry.Seq); err != nil {
		return fmt.Errorf("create signup entry: %w", err)
	}
	return nil
}

// Delete removes a student's entry from a window queue.
func (r *SignupRepository) Delete(ctx context.Context, exec sqlx.ExtContext, windowID, studentID string) (bool, error) {
	target := r.exec(exec)
	res, err := target.ExecContext(ctx, `DELETE FROM signup_entries WHERE window_id = $1 AND student_id = $2`, windowID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete signup entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete signup entry: %w", err)
	}
	return affected > 0, nil
}

// CountEarlier returns how many entries precede the given entry in
// FIFO order, comparing (created_at, seq).
func (r *SignupRepository) CountEarlier(ctx context.Context, entry *models.SignupEntry) (int, error) {
	const query = `SELECT COUNT(*) FROM signup_entries
		WHERE window_id = $1 AND (created_at < $2 OR (created_at = $2 AND seq < $3))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, entry.WindowID, entry.CreatedAt, entry.Seq); err != nil {
		return 0, fmt.Errorf("count earlier signups: %w", err)
	}
	return count, nil
}
