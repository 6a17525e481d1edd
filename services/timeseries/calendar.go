package timeseries

import (
	"time"
)

// Calendar answers trading-day questions for one exchange. Trading days are
// Monday to Friday; exchange holidays are not modelled, so a holiday counts
// as an expected day that the origin will never fill.
type Calendar struct {
	loc   *time.Location
	close time.Duration // offset of the closing bell from local midnight
}

// NewCalendar creates a calendar for an exchange in loc closing at close
// after local midnight.
func NewCalendar(loc *time.Location, close time.Duration) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc, close: close}
}

// Date truncates t to its calendar day, expressed as midnight UTC. Every date
// stored or compared by the history store goes through Date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether the calendar day of d is a weekday.
func IsTradingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// TradingDays returns every trading day in [start, end], ascending.
func TradingDays(start, end time.Time) []time.Time {
	start, end = Date(start), Date(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// LastTradingDayOnOrBefore walks back from d to the nearest trading day.
func LastTradingDayOnOrBefore(d time.Time) time.Time {
	d = Date(d)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// PreviousTradingDay returns the trading day strictly before d.
func PreviousTradingDay(d time.Time) time.Time {
	return LastTradingDayOnOrBefore(Date(d).AddDate(0, 0, -1))
}

// Today returns the exchange-local calendar day of now.
func (c Calendar) Today(now time.Time) time.Time {
	return Date(now.In(c.loc))
}

// AfterClose reports whether now is on a trading day at or after the close.
func (c Calendar) AfterClose(now time.Time) bool {
	local := now.In(c.loc)
	if !IsTradingDay(local) {
		return false
	}
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	return !local.Before(midnight.Add(c.close))
}

// CloseTime returns the closing bell on the exchange-local day of now.
func (c Calendar) CloseTime(now time.Time) time.Time {
	y, m, d := now.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc).Add(c.close)
}

// FreshnessTarget is the most recent date persisted history must reach at
// now. After the close of a trading day it is today; otherwise it is graceDays
// trading days back from today.
func (c Calendar) FreshnessTarget(now time.Time, graceDays int) time.Time {
	today := c.Today(now)
	if c.AfterClose(now) {
		return today
	}
	if graceDays < 1 {
		graceDays = 1
	}
	target := today
	for i := 0; i < graceDays; i++ {
		target = PreviousTradingDay(target)
	}
	return target
}
