package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"market_data_hub/services/realtime"
	"market_data_hub/services/timeseries"
)

// CacheMaintainer is the cache coordinator's housekeeping surface.
type CacheMaintainer interface {
	SweepHot() int
	PurgeExpired(ctx context.Context) (int64, error)
}

// HistoryRefresher re-fetches recent daily bars.
type HistoryRefresher interface {
	RefreshHistory(ctx context.Context, symbols []string, lookback time.Duration) int
}

// HubView is what the jobs read from the realtime hub.
type HubView interface {
	Status() realtime.Status
	WatchedSymbols() []string
}

// VisitorCleaner drops idle rate limiter entries.
type VisitorCleaner interface {
	Cleanup(maxIdle time.Duration) int
}

// Config controls job timing.
type Config struct {
	Location    *time.Location
	MarketClose time.Duration
	// RefreshDelay is how long after the close the history refresh runs.
	RefreshDelay    time.Duration
	HistoryLookback time.Duration
	JobTimeout      time.Duration
}

// DefaultConfig returns job timing for a market closing at close in loc.
func DefaultConfig(loc *time.Location, close time.Duration) Config {
	return Config{
		Location:        loc,
		MarketClose:     close,
		RefreshDelay:    30 * time.Minute,
		HistoryLookback: 10 * 24 * time.Hour,
		JobTimeout:      5 * time.Minute,
	}
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron     *gocron.Scheduler
	cfg      Config
	calendar timeseries.Calendar
	cache    CacheMaintainer
	history  HistoryRefresher
	hub      HubView
	visitors VisitorCleaner
	now      func() time.Time
}

// NewScheduler creates a new scheduler instance. visitors may be nil.
func NewScheduler(cfg Config, cache CacheMaintainer, history HistoryRefresher, hub HubView, visitors VisitorCleaner) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cron := gocron.NewScheduler(cfg.Location)
	cron.SingletonModeAll()

	return &Scheduler{
		cron:     cron,
		cfg:      cfg,
		calendar: timeseries.NewCalendar(cfg.Location, cfg.MarketClose),
		cache:    cache,
		history:  history,
		hub:      hub,
		visitors: visitors,
		now:      time.Now,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() error {
	log.Println("Starting scheduler...")

	if _, err := s.cron.Every(1).Minute().Do(s.sweepHotCache); err != nil {
		return fmt.Errorf("schedule hot sweep: %w", err)
	}

	if _, err := s.cron.Every(15).Minutes().Do(s.purgeDurableCache); err != nil {
		return fmt.Errorf("schedule durable purge: %w", err)
	}

	refreshAt := s.RefreshAt()
	if _, err := s.cron.Every(1).Day().At(refreshAt).Do(s.refreshWatchedHistory); err != nil {
		return fmt.Errorf("schedule history refresh: %w", err)
	}

	if _, err := s.cron.Every(5).Minutes().Do(s.logHubStatus); err != nil {
		return fmt.Errorf("schedule hub status: %w", err)
	}

	if s.visitors != nil {
		if _, err := s.cron.Every(10).Minutes().Do(s.cleanupVisitors); err != nil {
			return fmt.Errorf("schedule rate limiter cleanup: %w", err)
		}
	}

	s.cron.StartAsync()
	log.Printf("Scheduler started successfully (%d jobs, history refresh at %s %s)",
		s.cron.Len(), refreshAt, s.cfg.Location)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// RefreshAt is the exchange-local "HH:MM" of the daily history refresh.
func (s *Scheduler) RefreshAt() string {
	at := s.cfg.MarketClose + s.cfg.RefreshDelay
	at %= 24 * time.Hour
	return fmt.Sprintf("%02d:%02d", int(at/time.Hour), int(at%time.Hour/time.Minute))
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	timeout := s.cfg.JobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

// sweepHotCache drops expired in-memory cache entries
func (s *Scheduler) sweepHotCache() {
	if n := s.cache.SweepHot(); n > 0 {
		log.Printf("Hot cache sweep removed %d entries", n)
	}
}

// purgeDurableCache deletes expired durable cache entries
func (s *Scheduler) purgeDurableCache() {
	ctx, cancel := s.jobContext()
	defer cancel()

	n, err := s.cache.PurgeExpired(ctx)
	if err != nil {
		log.Printf("Warning: durable cache purge failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Durable cache purge removed %d entries", n)
	}
}

// refreshWatchedHistory refreshes recent history of every subscribed symbol
// once the trading day has closed
func (s *Scheduler) refreshWatchedHistory() {
	now := s.now()
	if !timeseries.IsTradingDay(s.calendar.Today(now)) {
		log.Println("Skipping history refresh: not a trading day")
		return
	}

	symbols := s.hub.WatchedSymbols()
	if len(symbols) == 0 {
		return
	}

	ctx, cancel := s.jobContext()
	defer cancel()

	log.Printf("Refreshing history for %d watched symbols...", len(symbols))
	refreshed := s.history.RefreshHistory(ctx, symbols, s.cfg.HistoryLookback)
	log.Printf("Refreshed history for %d/%d symbols", refreshed, len(symbols))
}

// logHubStatus logs realtime hub statistics
func (s *Scheduler) logHubStatus() {
	st := s.hub.Status()
	lastTick := "never"
	if !st.LastTick.IsZero() {
		lastTick = st.LastTick.Format(time.RFC3339)
	}
	log.Printf("Realtime hub: running=%t clients=%d/%d symbols=%d last_tick=%s",
		st.Running, st.Clients, st.MaxClients, st.Symbols, lastTick)
}

// cleanupVisitors forgets rate limiter state of idle clients
func (s *Scheduler) cleanupVisitors() {
	if n := s.visitors.Cleanup(30 * time.Minute); n > 0 {
		log.Printf("Rate limiter cleanup removed %d idle clients", n)
	}
}
