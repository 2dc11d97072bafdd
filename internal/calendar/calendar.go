package calendar

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"

	DefaultTimezone = "America/New_York"
)

var (
	sessionOpen  = clock{9, 30}
	sessionClose = clock{16, 0}
	earlyClose   = clock{13, 0}
	// Instants at or after this local time belong to the next session's trading date.
	dateRollover = clock{20, 0}
)

type clock struct {
	hour   int
	minute int
}

func (c clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, day.Location())
}

func (c clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}

// Status is the outcome of an open-market check.
type Status struct {
	IsOpen      bool   `json:"is_open"`
	Reason      string `json:"reason"`
	TradingDate string `json:"trading_date"`
	EarlyClose  bool   `json:"early_close"`
}

// Calendar answers session questions for US equity options. Unknown dates are standard sessions.
type Calendar struct {
	loc *time.Location
}

func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = mustLoad(DefaultTimezone)
	}
	return &Calendar{loc: loc}
}

func NewWithTimezone(tz string) (*Calendar, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load calendar timezone %q: %w", tz, err)
	}
	return New(loc), nil
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsOpen reports whether the regular session is trading at the instant.
func (c *Calendar) IsOpen(at time.Time) Status {
	local := at.In(c.loc)
	key := local.Format(DateLayout)
	st := Status{TradingDate: c.TradingDateKey(at)}

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		st.Reason = fmt.Sprintf("market closed: weekend (%s)", wd)
		return st
	}
	if name, ok := holidays[key]; ok {
		st.Reason = fmt.Sprintf("market closed: holiday (%s)", name)
		return st
	}

	closeAt := sessionClose
	if _, ok := earlyCloses[key]; ok {
		closeAt = earlyClose
		st.EarlyClose = true
	}
	switch {
	case local.Before(sessionOpen.on(local)):
		st.Reason = fmt.Sprintf("market closed: pre-market (opens %s ET)", sessionOpen)
	case !local.Before(closeAt.on(local)):
		if st.EarlyClose {
			st.Reason = fmt.Sprintf("market closed: early close at %s ET", closeAt)
		} else {
			st.Reason = fmt.Sprintf("market closed: after hours (closed %s ET)", closeAt)
		}
	default:
		st.IsOpen = true
		st.Reason = "market open"
		if st.EarlyClose {
			st.Reason = fmt.Sprintf("market open: early close at %s ET", closeAt)
		}
	}
	return st
}

// TradingDateKey names the session an instant belongs to. Evenings from 20:00 ET, weekends and
// holidays group with the next trading day so pre-market work shares that day's key.
func (c *Calendar) TradingDateKey(at time.Time) string {
	local := at.In(c.loc)
	day := dateOf(local)
	if !local.Before(dateRollover.on(local)) {
		day = day.AddDate(0, 0, 1)
	}
	for i := 0; i < 14 && !c.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, 1)
	}
	return day.Format(DateLayout)
}

func (c *Calendar) IsTradingDay(day time.Time) bool {
	local := day.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, closed := holidays[local.Format(DateLayout)]
	return !closed
}

func (c *Calendar) Holiday(day time.Time) (string, bool) {
	name, ok := holidays[day.In(c.loc).Format(DateLayout)]
	return name, ok
}

func (c *Calendar) IsEarlyClose(day time.Time) bool {
	_, ok := earlyCloses[day.In(c.loc).Format(DateLayout)]
	return ok
}

// NextTradingDay returns local midnight of the first trading day strictly after day.
func (c *Calendar) NextTradingDay(day time.Time) time.Time {
	d := dateOf(day.In(c.loc)).AddDate(0, 0, 1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PreviousTradingDay returns local midnight of the last trading day strictly before day.
func (c *Calendar) PreviousTradingDay(day time.Time) time.Time {
	d := dateOf(day.In(c.loc)).AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// SessionBounds returns the regular session open and close for day; ok is false on closed days.
func (c *Calendar) SessionBounds(day time.Time) (open time.Time, close time.Time, ok bool) {
	local := dateOf(day.In(c.loc))
	if !c.IsTradingDay(local) {
		return time.Time{}, time.Time{}, false
	}
	closeAt := sessionClose
	if c.IsEarlyClose(local) {
		closeAt = earlyClose
	}
	return sessionOpen.on(local), closeAt.on(local), true
}

// ParseDate parses a trading date key in the calendar's location.
func (c *Calendar) ParseDate(key string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, key, c.loc)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
