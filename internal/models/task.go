package models

import "time"

// Task is an assignment within a course. MinWords and Keywords feed
// the submission content check; ExpectedDefenseMinutes is the slot
// duration requested from the allocator.
type Task struct {
	ID                     string    `db:"id" json:"id"`
	CourseID               string    `db:"course_id" json:"course_id"`
	Title                  string    `db:"title" json:"title"`
	Description            string    `db:"description" json:"description"`
	MinWords               int       `db:"min_words" json:"min_words"`
	Keywords               string    `db:"keywords" json:"keywords"`
	ExpectedDefenseMinutes int       `db:"expected_defense_minutes" json:"expected_defense_minutes"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
}
