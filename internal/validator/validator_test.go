package validator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeSource struct {
	calls   int
	filters exchange.SymbolFilters
	err     error
}

func (f *fakeSource) ExchangeInfo(ctx context.Context, pair string) (*exchange.SymbolFilters, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &f.filters, nil
}

func TestCache_FetchesOnceWithinTTL(t *testing.T) {
	t.Parallel()
	src := &fakeSource{filters: exchange.SymbolFilters{Pair: "SOLUSDC", TickSize: d("0.001"), LotSize: d("0.01"), MinNotional: d("5")}}
	cache := NewCache(src)

	for i := 0; i < 3; i++ {
		if _, err := cache.Get(context.Background(), "SOLUSDC"); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if src.calls != 1 {
		t.Errorf("source fetched %d times, want 1 (cache should absorb repeat lookups)", src.calls)
	}
}

func TestCache_RefreshesAfterTTL(t *testing.T) {
	t.Parallel()
	src := &fakeSource{filters: exchange.SymbolFilters{Pair: "SOLUSDC", TickSize: d("0.001"), LotSize: d("0.01"), MinNotional: d("5")}}
	cache := NewCache(src)
	if _, err := cache.Get(context.Background(), "SOLUSDC"); err != nil {
		t.Fatal(err)
	}
	cache.mu.Lock()
	entry := cache.byPair["SOLUSDC"]
	entry.fetchedAt = time.Now().Add(-25 * time.Hour)
	cache.byPair["SOLUSDC"] = entry
	cache.mu.Unlock()

	if _, err := cache.Get(context.Background(), "SOLUSDC"); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("source fetched %d times, want 2 after TTL expiry", src.calls)
	}
}

func TestValidate_RejectsMisalignedPrice(t *testing.T) {
	t.Parallel()
	filters := exchange.SymbolFilters{TickSize: d("0.001"), LotSize: d("0.01"), MinNotional: d("5")}
	err := Validate(filters, d("142.5005"), d("0.56"))
	if err == nil {
		t.Error("expected validation error for misaligned price")
	}
}

func TestValidate_RejectsBelowMinNotional(t *testing.T) {
	t.Parallel()
	filters := exchange.SymbolFilters{TickSize: d("0.001"), LotSize: d("0.01"), MinNotional: d("5")}
	err := Validate(filters, d("1.000"), d("0.01"))
	if err == nil {
		t.Error("expected validation error for notional below minimum")
	}
}

func TestValidate_AcceptsAlignedSpec(t *testing.T) {
	t.Parallel()
	filters := exchange.SymbolFilters{TickSize: d("0.001"), LotSize: d("0.01"), MinNotional: d("5")}
	if err := Validate(filters, d("142.500"), d("0.56")); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
