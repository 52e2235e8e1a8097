package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndrozd/studentportal-api/internal/models"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestFindSlotSkipsOccupiedAndShortWindows(t *testing.T) {
	windows := []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "12:30"},
		{ID: "w2", TeacherID: "t1", Date: day(2), StartTime: "15:00", EndTime: "15:20"},
		{ID: "w3", TeacherID: "t1", Date: day(3), StartTime: "10:00", EndTime: "11:00"},
	}
	bookings := []models.Booking{
		{TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}

	slot := FindSlot(windows, bookings, 30)
	require.NotNil(t, slot)
	assert.Equal(t, "w3", slot.WindowID)
	assert.Equal(t, "10:00", slot.Clock)
	assert.True(t, slot.Date.Equal(day(3)))
}

func TestFindSlotStepsWithinWindow(t *testing.T) {
	windows := []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "13:00"},
	}
	bookings := []models.Booking{
		{TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
		{TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:20", Occupied: true},
	}

	slot := FindSlot(windows, bookings, 20)
	require.NotNil(t, slot)
	assert.Equal(t, "12:40", slot.Clock)
}

func TestFindSlotExhausted(t *testing.T) {
	windows := []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "12:30"},
	}
	bookings := []models.Booking{
		{TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}

	assert.Nil(t, FindSlot(windows, bookings, 30))
	assert.Nil(t, FindSlot(nil, nil, 30))
	assert.Nil(t, FindSlot(windows, nil, 0))
}

func TestFindSlotIgnoresVacatedBookings(t *testing.T) {
	windows := []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "12:30"},
	}
	bookings := []models.Booking{
		{TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: false},
	}

	slot := FindSlot(windows, bookings, 30)
	require.NotNil(t, slot)
	assert.Equal(t, "12:00", slot.Clock)
}

func TestFindSlotDeterministicTieBreak(t *testing.T) {
	a := models.TimeWindow{ID: "wa", TeacherID: "t1", Date: day(2), StartTime: "09:00", EndTime: "10:00"}
	b := models.TimeWindow{ID: "wb", TeacherID: "t1", Date: day(2), StartTime: "09:00", EndTime: "10:00"}

	first := FindSlot([]models.TimeWindow{a, b}, nil, 30)
	second := FindSlot([]models.TimeWindow{b, a}, nil, 30)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "wa", first.WindowID)
	assert.Equal(t, first.WindowID, second.WindowID)
	assert.Equal(t, first.Clock, second.Clock)
}

func TestFindSlotSkipsMalformedWindows(t *testing.T) {
	windows := []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "bad", EndTime: "13:00"},
		{ID: "w2", TeacherID: "t1", Date: day(2), StartTime: "14:00", EndTime: "13:00"},
		{ID: "w3", TeacherID: "t1", Date: day(2), StartTime: "15:00", EndTime: "16:00"},
	}

	slot := FindSlot(windows, nil, 30)
	require.NotNil(t, slot)
	assert.Equal(t, "w3", slot.WindowID)
}
