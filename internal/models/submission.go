package models

import "time"

// SubmissionStatus tracks a submission through the checking pipeline.
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusInQueue  SubmissionStatus = "in_queue"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// Submission is a student's uploaded answer to a task. A submission
// that passes the content check receives a defense slot; one that
// fails, or for which no slot exists, ends up rejected.
type Submission struct {
	ID          string           `db:"id" json:"id"`
	TaskID      string           `db:"task_id" json:"task_id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	FilePath    string           `db:"file_path" json:"file_path"`
	CheckPassed bool             `db:"check_passed" json:"check_passed"`
	Status      SubmissionStatus `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// SubmissionFilter describes query params for listing submissions.
type SubmissionFilter struct {
	TaskID    string
	StudentID string
	TeacherID string
	Status    *SubmissionStatus
	Page      int
	PageSize  int
}
