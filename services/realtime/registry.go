package realtime

import (
	"sort"
	"sync"

	"market_data_hub/models"
	"market_data_hub/services/metrics"
)

// Conn is a live client connection as seen by the hub.
type Conn interface {
	ID() string
	// Send queues msg for delivery. It must not block on a slow peer.
	Send(msg Message) error
	Close() error
}

// Registry maps connections to watched symbols and symbols to connections.
// Both indexes change together under one lock, so they never disagree.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber     // conn id -> subscriber
	interest    map[string]map[string]Conn // symbol -> conn id -> conn
	maxConns    int                        // 0 means unbounded
}

type subscriber struct {
	conn    Conn
	symbols map[string]struct{}
}

// NewRegistry creates an empty, unbounded registry.
func NewRegistry() *Registry {
	return NewBoundedRegistry(0)
}

// NewBoundedRegistry creates an empty registry holding at most maxConns
// connections. A maxConns of zero or less means no limit.
func NewBoundedRegistry(maxConns int) *Registry {
	if maxConns < 0 {
		maxConns = 0
	}
	return &Registry{
		subscribers: make(map[string]*subscriber),
		interest:    make(map[string]map[string]Conn),
		maxConns:    maxConns,
	}
}

// Add records a connection with no subscriptions. Adding a known connection
// is a no-op. It fails with ErrAtCapacity when the registry is full.
func (r *Registry) Add(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.ensureLocked(conn)
	return err
}

// ensureLocked returns the subscriber of conn, registering it if capacity allows.
func (r *Registry) ensureLocked(conn Conn) (*subscriber, error) {
	if sub, ok := r.subscribers[conn.ID()]; ok {
		return sub, nil
	}
	if r.maxConns > 0 && len(r.subscribers) >= r.maxConns {
		return nil, ErrAtCapacity
	}
	sub := &subscriber{conn: conn, symbols: make(map[string]struct{})}
	r.subscribers[conn.ID()] = sub
	r.updateGauges()
	return sub, nil
}

// Subscribe validates and normalizes raw, then records conn's interest in it.
// Unknown connections are added on the fly, subject to the same capacity as Add.
func (r *Registry) Subscribe(conn Conn, raw string) (string, error) {
	symbol, err := models.NormalizeSymbol(raw)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, err := r.ensureLocked(conn)
	if err != nil {
		return "", err
	}
	sub.symbols[symbol] = struct{}{}

	conns, ok := r.interest[symbol]
	if !ok {
		conns = make(map[string]Conn)
		r.interest[symbol] = conns
	}
	conns[conn.ID()] = conn
	r.updateGauges()
	return symbol, nil
}

// Unsubscribe drops conn's interest in symbol and reports whether it existed.
func (r *Registry) Unsubscribe(conn Conn, raw string) (string, bool) {
	symbol, err := models.NormalizeSymbol(raw)
	if err != nil {
		return raw, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscribers[conn.ID()]
	if !ok {
		return symbol, false
	}
	if _, ok := sub.symbols[symbol]; !ok {
		return symbol, false
	}
	delete(sub.symbols, symbol)
	r.dropInterest(symbol, conn.ID())
	r.updateGauges()
	return symbol, true
}

// UnsubscribeAll clears every subscription of conn and returns the symbols
// it watched, sorted. The connection itself stays registered.
func (r *Registry) UnsubscribeAll(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeAllLocked(conn.ID())
}

// Remove forgets conn entirely. Calling it twice is harmless.
func (r *Registry) Remove(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.unsubscribeAllLocked(conn.ID())
	delete(r.subscribers, conn.ID())
	r.updateGauges()
	return removed
}

func (r *Registry) unsubscribeAllLocked(id string) []string {
	sub, ok := r.subscribers[id]
	if !ok {
		return nil
	}
	removed := make([]string, 0, len(sub.symbols))
	for symbol := range sub.symbols {
		r.dropInterest(symbol, id)
		removed = append(removed, symbol)
	}
	sub.symbols = make(map[string]struct{})
	r.updateGauges()
	sort.Strings(removed)
	return removed
}

// dropInterest removes id from symbol and deletes the entry once empty.
func (r *Registry) dropInterest(symbol, id string) {
	conns, ok := r.interest[symbol]
	if !ok {
		return
	}
	delete(conns, id)
	if len(conns) == 0 {
		delete(r.interest, symbol)
	}
}

// Symbols returns a sorted snapshot of every symbol with a subscriber.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.interest))
	for symbol := range r.interest {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Subscribers returns a snapshot of the connections watching symbol.
func (r *Registry) Subscribers(symbol string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.interest[symbol]
	out := make([]Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// SymbolsOf returns the sorted symbols conn watches.
func (r *Registry) SymbolsOf(conn Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscribers[conn.ID()]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(sub.symbols))
	for symbol := range sub.symbols {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Conns returns a snapshot of every registered connection.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		out = append(out, sub.conn)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

func (r *Registry) updateGauges() {
	metrics.ConnectedClients.Set(float64(len(r.subscribers)))
	metrics.WatchedSymbols.Set(float64(len(r.interest)))
}
