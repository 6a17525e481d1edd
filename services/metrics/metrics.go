// Package metrics provides Prometheus metrics for the cache, history and realtime services.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheLookups counts coordinator lookups by resource, tier and result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_cache_lookups_total",
		Help: "Cache lookups by resource type, tier (hot, durable) and result (hit, miss, error)",
	}, []string{"resource", "tier", "result"})

	// OriginCalls counts calls that actually reached the origin provider.
	OriginCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_origin_calls_total",
		Help: "Origin provider calls by resource type and outcome",
	}, []string{"resource", "outcome"})

	// CoalescedWaits counts callers that joined an in-flight request started by
	// another caller. The caller that started the request is not counted.
	CoalescedWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketdata_coalesced_waits_total",
		Help: "Callers served by a shared in-flight origin request",
	})

	// BackfillDecisions counts history reads by decision (persisted, low_coverage, stale, empty_range, intraday, refresh).
	BackfillDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_backfill_decisions_total",
		Help: "Time-series range reads by decision",
	}, []string{"decision"})

	// BroadcastTickDuration observes how long each broadcast tick takes.
	BroadcastTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketdata_broadcast_tick_seconds",
		Help:    "Broadcast tick duration",
		Buckets: prometheus.DefBuckets,
	})

	// BroadcastSkipped counts ticks skipped because the previous tick was still running.
	BroadcastSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketdata_broadcast_ticks_skipped_total",
		Help: "Broadcast ticks skipped due to overlap",
	})

	// DeliveryFailures counts messages that could not be delivered to a subscriber.
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketdata_delivery_failures_total",
		Help: "Realtime messages that failed to reach a connection",
	})

	// ConnectedClients tracks live realtime connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketdata_ws_clients",
		Help: "Connected realtime clients",
	})

	// WatchedSymbols tracks symbols with at least one subscriber.
	WatchedSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketdata_watched_symbols",
		Help: "Symbols with at least one live subscriber",
	})
)

// Handler exposes the default registry for gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
