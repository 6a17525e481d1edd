package timeseries

import (
	"time"

	"market_data_hub/models"
)

// CoverageWindow describes how much of a requested date range is persisted.
type CoverageWindow struct {
	Start     time.Time
	End       time.Time
	Expected  int // trading days in [Start, min(End, today)]
	Persisted int // distinct persisted or closed trading days in the same span
	Latest    time.Time
	// Settled is the latest date that is persisted or known to have no bar.
	Settled time.Time
}

// Ratio is Persisted ÷ Expected. A window with nothing expected yet is fully covered.
func (w CoverageWindow) Ratio() float64 {
	if w.Expected == 0 {
		return 1
	}
	return float64(w.Persisted) / float64(w.Expected)
}

// Coverage measures points against the trading days of [start, end]. Days
// after today cannot have data yet and are not expected.
func Coverage(points []models.PricePoint, start, end, today time.Time) CoverageWindow {
	return CoverageWithClosures(points, nil, start, end, today)
}

// CoverageWithClosures is Coverage where closed days, weekdays the origin
// has no bar for, count as covered.
func CoverageWithClosures(points []models.PricePoint, closed map[time.Time]struct{}, start, end, today time.Time) CoverageWindow {
	start, end, today = Date(start), Date(end), Date(today)
	w := CoverageWindow{Start: start, End: end}

	last := end
	if today.Before(last) {
		last = today
	}
	if last.Before(start) {
		return w
	}
	w.Expected = len(TradingDays(start, last))

	seen := make(map[time.Time]struct{}, len(points))
	for _, p := range points {
		d := Date(p.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		if d.After(w.Latest) {
			w.Latest = d
		}
		if !d.After(last) && IsTradingDay(d) {
			seen[d] = struct{}{}
		}
	}
	w.Settled = w.Latest
	for d := range closed {
		if d.Before(start) || d.After(last) || !IsTradingDay(d) {
			continue
		}
		seen[d] = struct{}{}
		if d.After(w.Settled) {
			w.Settled = d
		}
	}
	w.Persisted = len(seen)
	return w
}
