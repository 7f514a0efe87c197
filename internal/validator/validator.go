// Package validator caches per-pair venue filters and rejects order specs
// that would violate them before any exchange traffic is spent.
package validator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
)

const filterTTL = 24 * time.Hour
const tolerance = 1e-8

type cachedFilters struct {
	filters   exchange.SymbolFilters
	fetchedAt time.Time
}

// FilterSource fetches filters from the venue. Satisfied by
// *exchange.Client; a narrow interface keeps the cache testable without a
// live client.
type FilterSource interface {
	ExchangeInfo(ctx context.Context, pair string) (*exchange.SymbolFilters, error)
}

// Cache is the process-global {tick_size, lot_size, min_notional} cache,
// TTL 24h per pair, refreshed on demand.
type Cache struct {
	mu     sync.Mutex
	source FilterSource
	byPair map[string]cachedFilters
}

// NewCache creates a Filter Cache backed by the given source.
func NewCache(source FilterSource) *Cache {
	return &Cache{source: source, byPair: make(map[string]cachedFilters)}
}

// Get returns the cached filters for pair, refreshing from the venue if
// missing or stale.
func (c *Cache) Get(ctx context.Context, pair string) (exchange.SymbolFilters, error) {
	c.mu.Lock()
	entry, ok := c.byPair[pair]
	c.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < filterTTL {
		return entry.filters, nil
	}

	filters, err := c.source.ExchangeInfo(ctx, pair)
	if err != nil {
		return exchange.SymbolFilters{}, fmt.Errorf("fetch filters for %s: %w", pair, err)
	}

	c.mu.Lock()
	c.byPair[pair] = cachedFilters{filters: *filters, fetchedAt: time.Now()}
	c.mu.Unlock()
	return *filters, nil
}

// Validate rejects an order spec unless price aligns to tick_size, qty
// aligns to lot_size, and notional clears min_notional.
func Validate(filters exchange.SymbolFilters, price, qty decimal.Decimal) error {
	var reasons []string
	if !modNearZero(price, filters.TickSize) {
		reasons = append(reasons, fmt.Sprintf("price %s not aligned to tick_size %s", price, filters.TickSize))
	}
	if !modNearZero(qty, filters.LotSize) {
		reasons = append(reasons, fmt.Sprintf("qty %s not aligned to lot_size %s", qty, filters.LotSize))
	}
	if price.Mul(qty).LessThan(filters.MinNotional) {
		reasons = append(reasons, fmt.Sprintf("notional %s below min_notional %s", price.Mul(qty), filters.MinNotional))
	}
	if len(reasons) > 0 {
		return &exchange.ValidationError{Reasons: reasons}
	}
	return nil
}

func modNearZero(x, step decimal.Decimal) bool {
	if step.IsZero() {
		return true
	}
	tol := decimal.NewFromFloat(tolerance)
	if step.GreaterThan(tol) {
		tol = step.Mul(decimal.NewFromFloat(tolerance))
	}
	rem := x.Mod(step)
	return rem.Abs().LessThanOrEqual(tol) || rem.Sub(step).Abs().LessThanOrEqual(tol)
}
