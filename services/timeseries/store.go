// Package timeseries serves daily OHLC history from persisted rows and
// backfills from the origin provider when the persisted range is too thin
// or too old.
package timeseries

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"market_data_hub/models"
	"market_data_hub/services/apperrors"
	"market_data_hub/services/coalesce"
	"market_data_hub/services/metrics"
)

// Origin is the upstream source of price history.
type Origin interface {
	FetchPriceRange(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error)
	FetchIntraday(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.IntradayBar, error)
}

// Config tunes the backfill decision.
type Config struct {
	// CoverageThreshold is the minimum persisted ÷ expected ratio served without a fetch.
	CoverageThreshold float64
	// StalenessGraceDays is how many trading days persisted history may lag
	// before the close of the current trading day.
	StalenessGraceDays int
	Location           *time.Location
	// MarketClose is the closing bell as an offset from local midnight.
	MarketClose time.Duration
}

// DefaultConfig returns the US equities defaults.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Printf("Warning: America/New_York timezone unavailable, using UTC: %v", err)
		loc = time.UTC
	}
	return Config{
		CoverageThreshold:  0.8,
		StalenessGraceDays: 1,
		Location:           loc,
		MarketClose:        16 * time.Hour,
	}
}

// IntradayIntervals lists the accepted intraday bar sizes.
var IntradayIntervals = []string{"1min", "5min", "15min", "30min", "1hour", "4hour"}

// Store is the gap-aware history read path.
type Store struct {
	repo     Repository
	origin   Origin
	group    *coalesce.Group
	cfg      Config
	calendar Calendar
	closed   *closures
	now      func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithGroup shares a coalescing group with other services.
func WithGroup(g *coalesce.Group) Option {
	return func(s *Store) { s.group = g }
}

// NewStore creates a history store.
func NewStore(repo Repository, origin Origin, cfg Config, opts ...Option) *Store {
	if cfg.CoverageThreshold <= 0 || cfg.CoverageThreshold > 1 {
		cfg.CoverageThreshold = 0.8
	}
	if cfg.StalenessGraceDays < 1 {
		cfg.StalenessGraceDays = 1
	}
	s := &Store{
		repo:     repo,
		origin:   origin,
		group:    coalesce.NewGroup(coalesce.DefaultCallTimeout),
		cfg:      cfg,
		calendar: NewCalendar(cfg.Location, cfg.MarketClose),
		closed:   newClosures(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calendar returns the exchange calendar the store decides freshness with.
func (s *Store) Calendar() Calendar {
	return s.calendar
}

// GetRange returns the daily points of symbol in [start, end], ascending with
// no duplicate dates. Persisted rows are served when they cover enough of the
// range and are fresh; otherwise the whole range is fetched, persisted in one
// batch and returned. A range with no trading days is empty, not an error.
func (s *Store) GetRange(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	symbol, start, end, err := s.validate(symbol, start, end)
	if err != nil {
		return nil, err
	}

	if len(TradingDays(start, end)) == 0 {
		metrics.BackfillDecisions.WithLabelValues("empty_range").Inc()
		return []models.PricePoint{}, nil
	}

	persisted, err := s.repo.GetRange(ctx, symbol, start, end)
	if err != nil {
		return nil, apperrors.Persistence("read price history", err)
	}

	now := s.now()
	w := CoverageWithClosures(persisted, s.closed.in(symbol, start, end), start, end, s.calendar.Today(now))
	lowCoverage := w.Ratio() < s.cfg.CoverageThreshold
	stale := s.isStale(w, now)

	switch {
	case lowCoverage:
		metrics.BackfillDecisions.WithLabelValues("low_coverage").Inc()
	case stale:
		metrics.BackfillDecisions.WithLabelValues("stale").Inc()
	default:
		metrics.BackfillDecisions.WithLabelValues("persisted").Inc()
		return dedupe(persisted, symbol, start, end), nil
	}

	log.Printf("Backfilling %s %s..%s (coverage %d/%d, stale=%v)",
		symbol, start.Format(time.DateOnly), end.Format(time.DateOnly), w.Persisted, w.Expected, stale)
	return s.backfill(ctx, symbol, start, end)
}

// Refresh fetches and persists [start, end] regardless of what is stored.
func (s *Store) Refresh(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	symbol, start, end, err := s.validate(symbol, start, end)
	if err != nil {
		return nil, err
	}
	metrics.BackfillDecisions.WithLabelValues("refresh").Inc()
	return s.backfill(ctx, symbol, start, end)
}

// GetIntraday always reads from the origin; concurrent identical requests
// share one call.
func (s *Store) GetIntraday(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.IntradayBar, error) {
	symbol, start, end, err := s.validate(symbol, start, end)
	if err != nil {
		return nil, err
	}
	if !validInterval(interval) {
		return nil, apperrors.InvalidInput("interval must be one of %s", strings.Join(IntradayIntervals, ", "))
	}
	metrics.BackfillDecisions.WithLabelValues("intraday").Inc()

	key := fmt.Sprintf("intraday:%s:%s:%s:%s", symbol, interval, start.Format(time.DateOnly), end.Format(time.DateOnly))
	v, err := s.group.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return s.origin.FetchIntraday(ctx, symbol, interval, start, end)
	})
	if err != nil {
		return nil, err
	}
	bars := v.([]models.IntradayBar)
	if bars == nil {
		bars = []models.IntradayBar{}
	}
	return bars, nil
}

// DeleteSymbol drops all persisted history of symbol.
func (s *Store) DeleteSymbol(ctx context.Context, symbol string) (int64, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return 0, apperrors.InvalidInput("%v", err)
	}
	n, err := s.repo.DeleteSymbol(ctx, symbol)
	if err != nil {
		return 0, apperrors.Persistence("delete price history", err)
	}
	s.closed.forget(symbol)
	return n, nil
}

func (s *Store) backfill(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	key := fmt.Sprintf("history:%s:%s:%s", symbol, start.Format(time.DateOnly), end.Format(time.DateOnly))
	v, err := s.group.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		fetched, err := s.origin.FetchPriceRange(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		points := dedupe(fetched, symbol, start, end)
		if err := s.repo.UpsertBatch(ctx, points); err != nil {
			return nil, apperrors.Persistence("persist price history", err)
		}
		// Days before today's session are final at the origin.
		s.closed.learn(symbol, points, start, end, PreviousTradingDay(s.calendar.Today(s.now())))
		return points, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.PricePoint), nil
}

// isStale reports whether the latest settled date lags the freshness target.
// The target never lies past the last trading day of the window, so a window
// that ended in the past stays fresh once complete, even when it ends on a
// day the origin has no bar for.
func (s *Store) isStale(w CoverageWindow, now time.Time) bool {
	target := s.calendar.FreshnessTarget(now, s.cfg.StalenessGraceDays)
	if last := LastTradingDayOnOrBefore(w.End); last.Before(target) {
		target = last
	}
	if target.Before(w.Start) {
		return false
	}
	return w.Settled.Before(target)
}

func (s *Store) validate(symbol string, start, end time.Time) (string, time.Time, time.Time, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return "", time.Time{}, time.Time{}, apperrors.InvalidInput("%v", err)
	}
	if start.IsZero() || end.IsZero() {
		return "", time.Time{}, time.Time{}, apperrors.InvalidInput("start and end dates are required")
	}
	start, end = Date(start), Date(end)
	if end.Before(start) {
		return "", time.Time{}, time.Time{}, apperrors.InvalidInput("end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return symbol, start, end, nil
}

// dedupe normalizes points to symbol and calendar dates, drops anything
// outside [start, end], keeps the last point seen per date and sorts ascending.
func dedupe(points []models.PricePoint, symbol string, start, end time.Time) []models.PricePoint {
	byDate := make(map[time.Time]models.PricePoint, len(points))
	for _, p := range points {
		p.Date = Date(p.Date)
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		p.Symbol = symbol
		byDate[p.Date] = p
	}

	out := make([]models.PricePoint, 0, len(byDate))
	for _, p := range byDate {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func validInterval(interval string) bool {
	for _, iv := range IntradayIntervals {
		if iv == interval {
			return true
		}
	}
	return false
}
