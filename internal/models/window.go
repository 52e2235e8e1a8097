package models

import (
	"fmt"
	"time"

	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

// SignupQuantumMinutes is the fixed slot size used for signup-mode
// capacity arithmetic.
const SignupQuantumMinutes = 15

// TimeWindow is a contiguous availability interval a teacher declares
// on a date. Windows are immutable once created; edits are modelled as
// a new window replacing the old one.
type TimeWindow struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Date      time.Time `db:"date" json:"date"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DurationMinutes returns the window length. Windows with end <= start
// or malformed clock values are invalid.
func (w TimeWindow) DurationMinutes() (int, error) {
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInvalidWindow.Code, appErrors.ErrInvalidWindow.Status, "malformed start time")
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInvalidWindow.Code, appErrors.ErrInvalidWindow.Status, "malformed end time")
	}
	if end <= start {
		return 0, appErrors.ErrInvalidWindow
	}
	return end - start, nil
}

// SlotCount returns how many slots of quantumMinutes fit in the
// window. Invalid windows and windows shorter than the quantum hold
// zero slots.
func (w TimeWindow) SlotCount(quantumMinutes int) int {
	if quantumMinutes <= 0 {
		return 0
	}
	duration, err := w.DurationMinutes()
	if err != nil {
		return 0
	}
	return duration / quantumMinutes
}

// WindowFilter describes query params for listing windows.
type WindowFilter struct {
	TeacherID string
	Date      *time.Time
	FromDate  *time.Time
}

// ParseClock converts an "HH:MM" clock value to minutes from midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
