package cache

import (
	"fmt"
	"strings"
	"time"
)

// ResourceType identifies a family of cached upstream resources.
type ResourceType int

const (
	ResourceQuote ResourceType = iota
	ResourceProfile
	ResourceIncomeStatement
	ResourceBalanceSheet
	ResourceCashFlow
	ResourceKeyMetrics
	ResourceSenateTrades
	ResourceHouseTrades
)

var resourceNames = map[ResourceType]string{
	ResourceQuote:           "quote",
	ResourceProfile:         "profile",
	ResourceIncomeStatement: "income_statement",
	ResourceBalanceSheet:    "balance_sheet",
	ResourceCashFlow:        "cash_flow",
	ResourceKeyMetrics:      "key_metrics",
	ResourceSenateTrades:    "senate_trades",
	ResourceHouseTrades:     "house_trades",
}

// AllResourceTypes lists every resource type in declaration order.
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceQuote,
		ResourceProfile,
		ResourceIncomeStatement,
		ResourceBalanceSheet,
		ResourceCashFlow,
		ResourceKeyMetrics,
		ResourceSenateTrades,
		ResourceHouseTrades,
	}
}

func (r ResourceType) String() string {
	if name, ok := resourceNames[r]; ok {
		return name
	}
	return fmt.Sprintf("resource(%d)", int(r))
}

// ParseResourceType resolves a resource name such as "quote" or "cash_flow".
func ParseResourceType(name string) (ResourceType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for rt, n := range resourceNames {
		if n == name {
			return rt, true
		}
	}
	return 0, false
}

// Key addresses one cache entry.
type Key struct {
	Type       ResourceType
	Identifier string
	Variant    string // optional, e.g. "annual" or "quarter"
}

// String renders the composite key, e.g. "income_statement:AAPL:annual".
func (k Key) String() string {
	if k.Variant == "" {
		return k.Type.String() + ":" + k.Identifier
	}
	return k.Type.String() + ":" + k.Identifier + ":" + k.Variant
}

// Entry is a payload with its durable expiry.
type Entry struct {
	Key       Key
	Payload   []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is no longer safe to serve at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Policy holds the freshness rules for one resource type.
type Policy struct {
	// DurableTTL is how long an entry stays valid in the durable store.
	DurableTTL time.Duration
	// HotTTL caps how long an entry stays in process memory.
	HotTTL time.Duration
	// NotFoundTTL is how long a "no data" answer is remembered in memory.
	// Zero disables negative caching.
	NotFoundTTL time.Duration
}

// Policies is the per-type policy table, resolved once at startup.
type Policies map[ResourceType]Policy

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() Policies {
	fundamentals := Policy{DurableTTL: 7 * 24 * time.Hour, HotTTL: 5 * time.Minute, NotFoundTTL: 2 * time.Minute}
	trades := Policy{DurableTTL: 24 * time.Hour, HotTTL: 5 * time.Minute, NotFoundTTL: 2 * time.Minute}

	return Policies{
		ResourceQuote:           {DurableTTL: 60 * time.Second, HotTTL: 15 * time.Second, NotFoundTTL: 2 * time.Minute},
		ResourceProfile:         {DurableTTL: 30 * 24 * time.Hour, HotTTL: 5 * time.Minute, NotFoundTTL: 2 * time.Minute},
		ResourceIncomeStatement: fundamentals,
		ResourceBalanceSheet:    fundamentals,
		ResourceCashFlow:        fundamentals,
		ResourceKeyMetrics:      fundamentals,
		ResourceSenateTrades:    trades,
		ResourceHouseTrades:     trades,
	}
}

// For returns the policy of rt, falling back to a conservative default.
func (p Policies) For(rt ResourceType) Policy {
	if policy, ok := p[rt]; ok {
		return policy
	}
	return Policy{DurableTTL: time.Minute, HotTTL: 30 * time.Second}
}
