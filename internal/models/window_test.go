package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

func TestTimeWindowDurationMinutes(t *testing.T) {
	w := TimeWindow{Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), StartTime: "09:00", EndTime: "10:30"}
	minutes, err := w.DurationMinutes()
	require.NoError(t, err)
	assert.Equal(t, 90, minutes)
}

func TestTimeWindowInvalid(t *testing.T) {
	cases := map[string]TimeWindow{
		"end before start": {StartTime: "10:00", EndTime: "09:00"},
		"zero length":      {StartTime: "09:00", EndTime: "09:00"},
		"malformed start":  {StartTime: "9am", EndTime: "10:00"},
		"malformed end":    {StartTime: "09:00", EndTime: "later"},
	}
	for name, w := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := w.DurationMinutes()
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrInvalidWindow))
			assert.Equal(t, 0, w.SlotCount(15))
		})
	}
}

func TestTimeWindowSlotCount(t *testing.T) {
	w := TimeWindow{StartTime: "10:00", EndTime: "10:45"}
	assert.Equal(t, 3, w.SlotCount(15))
	assert.Equal(t, 4, w.SlotCount(10))
	assert.Equal(t, 0, w.SlotCount(60))
	assert.Equal(t, 0, w.SlotCount(0))
}

func TestClockRoundTrip(t *testing.T) {
	minutes, err := ParseClock("09:15")
	require.NoError(t, err)
	assert.Equal(t, 555, minutes)
	assert.Equal(t, "09:15", FormatClock(minutes))

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}
