package service

import (
	"sort"
	"time"

	"github.com/ndrozd/studentportal-api/internal/models"
)

// SlotRef identifies a free defense slot inside a window.
type SlotRef struct {
	WindowID string
	Date     time.Time
	Clock    string
}

type occupancyKey struct {
	date  string
	clock string
}

// FindSlot walks the windows in chronological order and returns the
// earliest free slot of the requested duration, or nil when every
// window is exhausted. It never mutates its inputs.
//
// Windows are ordered by (Date, StartTime, ID); the trailing ID makes
// the result deterministic when two windows share a date and start
// time. Candidate start times advance from the window's StartTime in
// steps of durationMinutes and must fit entirely before EndTime. A
// candidate is taken iff an occupied booking holds the same teacher
// date and clock time.
func FindSlot(windows []models.TimeWindow, bookings []models.Booking, durationMinutes int) *SlotRef {
	if durationMinutes <= 0 {
		return nil
	}

	ordered := make([]models.TimeWindow, len(windows))
	copy(ordered, windows)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		if ordered[i].StartTime != ordered[j].StartTime {
			return ordered[i].StartTime < ordered[j].StartTime
		}
		return ordered[i].ID < ordered[j].ID
	})

	occupied := make(map[occupancyKey]struct{}, len(bookings))
	for _, b := range bookings {
		if !b.Occupied {
			continue
		}
		occupied[occupancyKey{date: b.DefenseDate.Format("2006-01-02"), clock: b.DefenseTime}] = struct{}{}
	}

	for _, w := range ordered {
		start, err := models.ParseClock(w.StartTime)
		if err != nil {
			continue
		}
		end, err := models.ParseClock(w.EndTime)
		if err != nil || end <= start {
			continue
		}
		day := w.Date.Format("2006-01-02")
		for cursor := start; cursor+durationMinutes <= end; cursor += durationMinutes {
			clock := models.FormatClock(cursor)
			if _, taken := occupied[occupancyKey{date: day, clock: clock}]; taken {
				continue
			}
			return &SlotRef{WindowID: w.ID, Date: w.Date, Clock: clock}
		}
	}
	return nil
}
