package models

import "time"

// Course is a teacher-owned course students enroll into.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Hours       int       `db:"hours" json:"hours"`
	ImagePath   string    `db:"image_path" json:"image_path,omitempty"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CourseFile is supplementary material attached to a course.
type CourseFile struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	FilePath  string    `db:"file_path" json:"file_path"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CourseFilter describes query params for listing courses.
type CourseFilter struct {
	TeacherID string
	Search    string
	MinHours  *int
	MaxHours  *int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
