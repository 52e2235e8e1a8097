package models

import "time"

// Booking commits one submission to one defense slot. At most one
// occupied booking may exist for a (teacher, date, time) tuple, and a
// submission holds at most one booking.
type Booking struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	DefenseDate  time.Time `db:"defense_date" json:"defense_date"`
	DefenseTime  string    `db:"defense_time" json:"defense_time"`
	Occupied     bool      `db:"occupied" json:"occupied"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// BookingDetail joins a booking with the student and task behind it,
// used by day-schedule listings and exports.
type BookingDetail struct {
	Booking
	StudentName string `db:"student_name" json:"student_name"`
	TaskTitle   string `db:"task_title" json:"task_title"`
}

// BookingFilter describes query params for listing bookings.
type BookingFilter struct {
	TeacherID string
	StudentID string
	FromDate  *time.Time
	Date      *time.Time
}
