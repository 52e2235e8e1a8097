package models

import "time"

// SignupEntry enrolls a student into one fixed-size slot of a window.
// FIFO order is (created_at, seq); seq is a per-window sequence number
// assigned inside the signup transaction so that entries created in
// the same clock tick still order deterministically.
type SignupEntry struct {
	ID        string    `db:"id" json:"id"`
	WindowID  string    `db:"window_id" json:"window_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Seq       int       `db:"seq" json:"seq"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SignupPosition reports a student's 1-based rank in a window queue.
type SignupPosition struct {
	WindowID  string `json:"window_id"`
	StudentID string `json:"student_id"`
	Position  int    `json:"position"`
	Total     int    `json:"total"`
	Capacity  int    `json:"capacity"`
}
