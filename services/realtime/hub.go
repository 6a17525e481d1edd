// Package realtime pushes quote updates to websocket subscribers. One
// broadcast loop polls each watched symbol once per tick through the cache
// coordinator and fans the result out to every subscriber of that symbol.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"market_data_hub/models"
	"market_data_hub/services/apperrors"
	"market_data_hub/services/metrics"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBroadcastInterval = 5 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBatchSize         = 20
	DefaultMaxClients        = 100
	DefaultRequestTimeout    = 10 * time.Second
)

// ErrAtCapacity is returned by Connect when MaxClients connections are live.
var ErrAtCapacity = errors.New("realtime hub at capacity")

// QuoteSource supplies the latest quote of a symbol, normally cached.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}

// Config tunes the hub.
type Config struct {
	BroadcastInterval time.Duration
	HeartbeatInterval time.Duration
	// BatchSize is how many symbols are fetched concurrently within a tick.
	BatchSize  int
	MaxClients int
	// RequestTimeout bounds a single tick and a single client request.
	RequestTimeout time.Duration
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		BroadcastInterval: DefaultBroadcastInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		BatchSize:         DefaultBatchSize,
		MaxClients:        DefaultMaxClients,
		RequestTimeout:    DefaultRequestTimeout,
	}
}

// Status is a point-in-time view of the hub.
type Status struct {
	Running    bool      `json:"running"`
	Clients    int       `json:"clients"`
	MaxClients int       `json:"max_clients"`
	Symbols    int       `json:"symbols"`
	LastTick   time.Time `json:"last_tick"`
}

// Hub owns the subscription registry and the broadcast loop.
type Hub struct {
	registry *Registry
	quotes   QuoteSource
	cfg      Config

	ticking  atomic.Bool
	running  atomic.Bool
	mu       sync.Mutex
	lastTick time.Time
}

// NewHub creates a hub reading quotes from quotes.
func NewHub(quotes QuoteSource, cfg Config) *Hub {
	def := DefaultConfig()
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = def.BroadcastInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	return &Hub{registry: NewBoundedRegistry(cfg.MaxClients), quotes: quotes, cfg: cfg}
}

// Registry exposes the subscription registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// WatchedSymbols returns every symbol with at least one subscriber.
func (h *Hub) WatchedSymbols() []string {
	return h.registry.Symbols()
}

// AtCapacity reports whether no more connections are accepted. It is a hint
// for rejecting upgrades early; Connect enforces the limit.
func (h *Hub) AtCapacity() bool {
	return h.registry.Len() >= h.cfg.MaxClients
}

// Connect registers conn. It fails with ErrAtCapacity when the hub is full.
func (h *Hub) Connect(conn Conn) error {
	if err := h.registry.Add(conn); err != nil {
		log.Printf("WebSocket client rejected: max clients reached (%d)", h.cfg.MaxClients)
		return err
	}
	log.Printf("WebSocket client connected. Total clients: %d", h.registry.Len())
	return nil
}

// Disconnect removes conn and all its subscriptions. It is idempotent and
// takes effect before it returns, so the next tick no longer sees conn.
func (h *Hub) Disconnect(conn Conn) {
	before := h.registry.Len()
	h.registry.Remove(conn)
	if after := h.registry.Len(); after < before {
		log.Printf("WebSocket client disconnected. Total clients: %d", after)
	}
}

// HandleMessage processes one raw inbound frame from conn.
func (h *Hub) HandleMessage(ctx context.Context, conn Conn, raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		h.send(conn, errorMessage("", apperrors.Kind(apperrors.ErrInvalidInput), "malformed message"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	defer cancel()

	switch in.Type {
	case TypeSubscribe:
		h.Subscribe(ctx, conn, in.symbols()...)
	case TypeUnsubscribe:
		for _, raw := range in.symbols() {
			symbol, err := models.NormalizeSymbol(raw)
			if err != nil {
				h.send(conn, errorMessage(raw, apperrors.Kind(apperrors.ErrInvalidInput), err.Error()))
				continue
			}
			h.registry.Unsubscribe(conn, symbol)
			h.send(conn, newMessage(TypeUnsubscribed, symbol, nil))
		}
	case TypeUnsubscribeAll:
		m := newMessage(TypeUnsubscribed, "", nil)
		m.Symbols = h.registry.UnsubscribeAll(conn)
		h.send(conn, m)
	case TypeGetQuote:
		for _, raw := range in.symbols() {
			symbol, err := models.NormalizeSymbol(raw)
			if err != nil {
				h.send(conn, errorMessage(raw, apperrors.Kind(apperrors.ErrInvalidInput), err.Error()))
				continue
			}
			h.pushQuote(ctx, conn, symbol)
		}
	case TypePing:
		h.send(conn, newMessage(TypeHeartbeat, "", nil))
	default:
		h.send(conn, errorMessage("", apperrors.Kind(apperrors.ErrInvalidInput), "unknown message type "+string(in.Type)))
	}
}

// Subscribe adds conn to each symbol, confirms it and pushes one quote to
// conn only. Invalid symbols are rejected with an error message and the
// connection stays open.
func (h *Hub) Subscribe(ctx context.Context, conn Conn, symbols ...string) {
	for _, raw := range symbols {
		symbol, err := h.registry.Subscribe(conn, raw)
		if err != nil {
			code := apperrors.Kind(apperrors.ErrInvalidInput)
			if errors.Is(err, ErrAtCapacity) {
				code = "at_capacity"
			}
			h.send(conn, errorMessage(raw, code, err.Error()))
			continue
		}
		h.send(conn, newMessage(TypeSubscribed, symbol, nil))
		h.pushQuote(ctx, conn, symbol)
	}
}

func (h *Hub) pushQuote(ctx context.Context, conn Conn, symbol string) {
	q, err := h.quotes.Quote(ctx, symbol)
	if err != nil {
		h.send(conn, errorMessage(symbol, apperrors.Kind(err), err.Error()))
		return
	}
	h.send(conn, newMessage(TypeQuote, symbol, q))
}

// Tick runs one broadcast pass. It returns false without doing anything when
// the previous tick is still running.
func (h *Hub) Tick(ctx context.Context) bool {
	if !h.ticking.CompareAndSwap(false, true) {
		metrics.BroadcastSkipped.Inc()
		return false
	}
	defer h.ticking.Store(false)

	start := time.Now()
	defer func() {
		metrics.BroadcastTickDuration.Observe(time.Since(start).Seconds())
		h.mu.Lock()
		h.lastTick = start
		h.mu.Unlock()
	}()

	symbols := h.registry.Symbols()
	for i := 0; i < len(symbols); i += h.cfg.BatchSize {
		end := i + h.cfg.BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}

		var g errgroup.Group
		for _, symbol := range symbols[i:end] {
			g.Go(func() error {
				h.broadcastSymbol(ctx, symbol)
				return nil
			})
		}
		g.Wait()

		// Only shutdown stops a tick early; slow symbols time out on their own.
		if ctx.Err() != nil {
			log.Printf("Warning: broadcast tick stopped after %d/%d symbols: %v", end, len(symbols), ctx.Err())
			break
		}
	}
	return true
}

// broadcastSymbol fetches one quote and pushes it, or an error naming the
// symbol, to the subscribers present once the fetch returns.
func (h *Hub) broadcastSymbol(ctx context.Context, symbol string) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	q, err := h.quotes.Quote(ctx, symbol)
	cancel()

	var msg Message
	if err != nil {
		log.Printf("Warning: quote update failed for %s: %v", symbol, err)
		msg = errorMessage(symbol, apperrors.Kind(err), err.Error())
	} else {
		msg = newMessage(TypeQuoteUpdate, symbol, q)
	}

	for _, conn := range h.registry.Subscribers(symbol) {
		h.send(conn, msg)
	}
}

// Heartbeat sends a heartbeat to every connection.
func (h *Hub) Heartbeat() {
	msg := newMessage(TypeHeartbeat, "", nil)
	for _, conn := range h.registry.Conns() {
		h.send(conn, msg)
	}
}

// Run drives the broadcast and heartbeat timers until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer h.running.Store(false)

	broadcast := time.NewTicker(h.cfg.BroadcastInterval)
	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer broadcast.Stop()
	defer heartbeat.Stop()

	log.Printf("Realtime hub started (broadcast: %v, heartbeat: %v)", h.cfg.BroadcastInterval, h.cfg.HeartbeatInterval)
	for {
		select {
		case <-ctx.Done():
			log.Println("Realtime hub stopped")
			return
		case <-broadcast.C:
			// Ticks run off the timer goroutine; an overlapping one is skipped.
			go h.Tick(ctx)
		case <-heartbeat.C:
			h.Heartbeat()
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, conn := range h.registry.Conns() {
		h.registry.Remove(conn)
		conn.Close()
	}
	log.Println("Realtime hub shutdown complete")
}

// Status reports the hub state.
func (h *Hub) Status() Status {
	h.mu.Lock()
	last := h.lastTick
	h.mu.Unlock()

	return Status{
		Running:    h.running.Load(),
		Clients:    h.registry.Len(),
		MaxClients: h.cfg.MaxClients,
		Symbols:    len(h.registry.Symbols()),
		LastTick:   last,
	}
}

func (h *Hub) send(conn Conn, msg Message) {
	if err := conn.Send(msg); err != nil {
		metrics.DeliveryFailures.Inc()
		log.Printf("Warning: delivery to %s failed: %v", conn.ID(), err)
	}
}
