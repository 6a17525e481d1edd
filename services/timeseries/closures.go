package timeseries

import (
	"sync"
	"time"

	"market_data_hub/models"
)

// closures remembers, per symbol, past weekdays the origin returned no bar
// for: exchange holidays and halts. It lives in memory; after a restart a
// window ending on such a day is fetched once more and relearned.
type closures struct {
	mu   sync.Mutex
	days map[string]map[time.Time]struct{}
}

func newClosures() *closures {
	return &closures{days: make(map[string]map[time.Time]struct{})}
}

// learn records the outcome of fetching [start, end]. Only days through
// settledThrough are judged, so a bar the origin has not published yet is
// never mistaken for a closure. An empty response teaches nothing.
func (c *closures) learn(symbol string, points []models.PricePoint, start, end, settledThrough time.Time) {
	if len(points) == 0 {
		return
	}
	if settledThrough.Before(end) {
		end = settledThrough
	}
	returned := make(map[time.Time]struct{}, len(points))
	for _, p := range points {
		returned[Date(p.Date)] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	known := c.days[symbol]
	for _, d := range TradingDays(start, end) {
		if _, ok := returned[d]; ok {
			delete(known, d)
			continue
		}
		if known == nil {
			known = make(map[time.Time]struct{})
			c.days[symbol] = known
		}
		known[d] = struct{}{}
	}
}

// in returns the closed days of symbol within [start, end].
func (c *closures) in(symbol string, start, end time.Time) map[time.Time]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out map[time.Time]struct{}
	for d := range c.days[symbol] {
		if d.Before(start) || d.After(end) {
			continue
		}
		if out == nil {
			out = make(map[time.Time]struct{})
		}
		out[d] = struct{}{}
	}
	return out
}

func (c *closures) forget(symbol string) {
	c.mu.Lock()
	delete(c.days, symbol)
	c.mu.Unlock()
}
