package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ndrozd/studentportal-api/internal/models"
)

const submissionColumns = `id, task_id, student_id, file_path, check_passed, status, created_at`

// SubmissionRepository manages persistence for task submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs a SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches a single submission.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE id = $1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &submission, nil
}

// List returns submissions matching the filter with total count.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	if filter.TaskID != "" {
		conditions = append(conditions, fmt.Sprintf("s.task_id = $%d", idx))
		args = append(args, filter.TaskID)
		idx++
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", idx))
		args = append(args, filter.StudentID)
		idx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", idx))
		args = append(args, *filter.Status)
		idx++
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.task_id IN (SELECT t.id FROM tasks t JOIN courses c ON c.id = t.course_id WHERE c.teacher_id = $%d)", idx))
		args = append(args, filter.TeacherID)
		idx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM submissions s WHERE %s`, where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	cols := prefixColumns("s", submissionColumns)
	query := fmt.Sprintf(`SELECT %s FROM submissions s WHERE %s ORDER BY s.created_at DESC LIMIT %d OFFSET %d`,
		cols, where, pageSize, offset)

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, total, nil
}

// FindActiveByTaskAndStudent returns the student's most recent
// non-rejected submission for a task, or sql.ErrNoRows.
func (r *SubmissionRepository) FindActiveByTaskAndStudent(ctx context.Context, taskID, studentID string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions
		WHERE task_id = $1 AND student_id = $2 AND status != $3
		ORDER BY created_at DESC LIMIT 1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, taskID, studentID, models.SubmissionStatusRejected); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active submission: %w", err)
	}
	return &submission, nil
}

// Create inserts a submission.
func (r *SubmissionRepository) Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error {
	target := r.exec(exec)
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, task_id, student_id, file_path, check_passed, status, created_at)
		VALUES (:id, :task_id, :student_id, :file_path, :check_passed, :status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// UpdateStatus moves a submission to a new status.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SubmissionStatus) error {
	target := r.exec(exec)
	res, err := target.ExecContext(ctx, `UPDATE submissions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}
