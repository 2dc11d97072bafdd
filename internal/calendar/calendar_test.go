package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestIsOpen(t *testing.T) {
	loc := newYork(t)
	cal := New(loc)

	cases := []struct {
		name   string
		at     time.Time
		open   bool
		reason string
	}{
		{"regular session", time.Date(2025, 3, 4, 10, 0, 0, 0, loc), true, "market open"},
		{"pre-market", time.Date(2025, 3, 4, 9, 29, 0, 0, loc), false, "pre-market"},
		{"open boundary", time.Date(2025, 3, 4, 9, 30, 0, 0, loc), true, "market open"},
		{"after close", time.Date(2025, 3, 4, 16, 0, 0, 0, loc), false, "after hours"},
		{"weekend", time.Date(2025, 3, 8, 11, 0, 0, 0, loc), false, "weekend"},
		{"holiday", time.Date(2025, 7, 4, 11, 0, 0, 0, loc), false, "Independence Day"},
		{"early close before 13:00", time.Date(2025, 7, 3, 12, 59, 0, 0, loc), true, "early close"},
		{"early close after 13:00", time.Date(2025, 7, 3, 13, 30, 0, 0, loc), false, "early close"},
		{"unknown future date", time.Date(2031, 3, 4, 11, 0, 0, 0, loc), true, "market open"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := cal.IsOpen(tc.at)
			assert.Equal(t, tc.open, st.IsOpen)
			assert.True(t, strings.Contains(st.Reason, tc.reason), "reason %q", st.Reason)
		})
	}
}

func TestIsOpen_AcceptsAnyZone(t *testing.T) {
	cal := New(newYork(t))
	// 15:00 UTC on a winter weekday is 10:00 ET.
	st := cal.IsOpen(time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC))
	assert.True(t, st.IsOpen)
	assert.Equal(t, "2025-03-04", st.TradingDate)
}

func TestTradingDateKey(t *testing.T) {
	loc := newYork(t)
	cal := New(loc)

	assert.Equal(t, "2025-03-04", cal.TradingDateKey(time.Date(2025, 3, 4, 4, 0, 0, 0, loc)))
	assert.Equal(t, "2025-03-04", cal.TradingDateKey(time.Date(2025, 3, 4, 19, 59, 0, 0, loc)))
	assert.Equal(t, "2025-03-05", cal.TradingDateKey(time.Date(2025, 3, 4, 20, 0, 0, 0, loc)))
	// Friday evening and the weekend group with Monday.
	assert.Equal(t, "2025-03-10", cal.TradingDateKey(time.Date(2025, 3, 7, 21, 0, 0, 0, loc)))
	assert.Equal(t, "2025-03-10", cal.TradingDateKey(time.Date(2025, 3, 9, 12, 0, 0, 0, loc)))
	// Holiday groups with the next session.
	assert.Equal(t, "2025-07-07", cal.TradingDateKey(time.Date(2025, 7, 4, 12, 0, 0, 0, loc)))
}

func TestTradingDayArithmetic(t *testing.T) {
	loc := newYork(t)
	cal := New(loc)

	thu := time.Date(2025, 4, 17, 0, 0, 0, 0, loc)
	assert.True(t, cal.IsTradingDay(thu))
	assert.False(t, cal.IsTradingDay(time.Date(2025, 4, 18, 0, 0, 0, 0, loc)))
	assert.Equal(t, "2025-04-21", cal.NextTradingDay(thu).Format(DateLayout))
	assert.Equal(t, "2025-04-17", cal.PreviousTradingDay(time.Date(2025, 4, 21, 0, 0, 0, 0, loc)).Format(DateLayout))

	open, closeAt, ok := cal.SessionBounds(time.Date(2025, 11, 28, 0, 0, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, 9, open.Hour())
	assert.Equal(t, 30, open.Minute())
	assert.Equal(t, 13, closeAt.Hour())

	_, _, ok = cal.SessionBounds(time.Date(2025, 12, 25, 0, 0, 0, 0, loc))
	assert.False(t, ok)

	name, ok := cal.Holiday(time.Date(2026, 11, 26, 12, 0, 0, 0, loc))
	assert.True(t, ok)
	assert.Equal(t, "Thanksgiving Day", name)
}
