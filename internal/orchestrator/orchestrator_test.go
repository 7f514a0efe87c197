package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
	"gridbot/internal/executor"
	"gridbot/internal/gate"
	"gridbot/internal/store"
	"gridbot/internal/strategy"
	"gridbot/internal/validator"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeVenue struct {
	account    exchange.AccountInfo
	openOrders []exchange.VenueOrder
	price      decimal.Decimal
	trades     []exchange.Trade
}

func (f *fakeVenue) AccountInfo(ctx context.Context) (*exchange.AccountInfo, error) {
	return &f.account, nil
}
func (f *fakeVenue) OpenOrders(ctx context.Context, pair string) ([]exchange.VenueOrder, error) {
	return f.openOrders, nil
}
func (f *fakeVenue) CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	return f.price, nil
}
func (f *fakeVenue) MyTrades(ctx context.Context, pair string, sinceMs int64) ([]exchange.Trade, error) {
	return f.trades, nil
}
func (f *fakeVenue) PlaceOrder(ctx context.Context, pair, side, orderType string, price, qty decimal.Decimal, clientID string) (*exchange.VenueOrder, error) {
	return &exchange.VenueOrder{OrderID: "v-" + clientID, ClientOrderID: clientID}, nil
}
func (f *fakeVenue) CancelOrder(ctx context.Context, pair, clientID string) error { return nil }

type fakeFilterSource struct{}

func (fakeFilterSource) ExchangeInfo(ctx context.Context, pair string) (*exchange.SymbolFilters, error) {
	return &exchange.SymbolFilters{Pair: pair, TickSize: d("0.001"), LotSize: d("0.01"), MinNotional: d("5")}, nil
}

func s1Config() strategy.Config {
	return strategy.Config{
		LevelsPct:           []decimal.Decimal{d("-5"), d("-10")},
		AllocWeights:        []decimal.Decimal{d("0.5"), d("0.5")},
		MaxGridCapitalQuote: d("1000"),
		TPStartPct:          d("0.012"),
		TPStepPct:           d("0.0015"),
		TPMinPct:            d("0.004"),
		TP2DeltaPct:         d("0.01"),
		TP1Share:            d("0.4"),
		TP2Share:            d("0.35"),
		TrailShare:          d("0.25"),
		TrailingCallbackPct: d("0.015"),
		HardStopMode:        strategy.HardStopNone,
		PlaceMode:           strategy.PlaceAllUnfilled,
	}
}

func newOrchestrator(t *testing.T, venue *fakeVenue) (*Orchestrator, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	cache := validator.NewCache(fakeFilterSource{})
	g := gate.New(st)
	ex := executor.New(venue, st, cache, testLogger())
	o := New(venue, st, cache, g, ex, testLogger(), time.Millisecond)
	return o, st
}

func seedBasket(t *testing.T, st *store.Store, id string, cfg strategy.Config) {
	t.Helper()
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	b := &store.Basket{ID: id, Pair: "SOLUSDC", AnchorPrice: d("150"), Status: store.BasketActive, ConfigJSON: string(raw), CreatedAt: time.Now()}
	if err := st.CreateBasket(b); err != nil {
		t.Fatalf("create basket: %v", err)
	}
}

func TestRunCycle_PlacesBuysForFreshBasket(t *testing.T) {
	t.Parallel()
	venue := &fakeVenue{
		account: exchange.AccountInfo{Balances: []exchange.Balance{{Asset: "USDC", Free: d("1000")}, {Asset: "SOL", Free: d("0")}}},
		price:   d("150"),
	}
	o, st := newOrchestrator(t, venue)
	seedBasket(t, st, "basket-1", s1Config())

	o.runCycle(context.Background())

	orders, err := st.OrdersByBasket("basket-1")
	if err != nil {
		t.Fatalf("OrdersByBasket: %v", err)
	}
	if len(orders) == 0 {
		t.Error("expected at least one buy order placed for a fresh basket")
	}
}

func TestRunCycle_NoActiveBasketsIsNoop(t *testing.T) {
	t.Parallel()
	venue := &fakeVenue{price: d("150")}
	o, _ := newOrchestrator(t, venue)

	o.runCycle(context.Background()) // must not panic with zero baskets
}

func TestRunCycle_GateStoppedSkipsExecutor(t *testing.T) {
	t.Parallel()
	venue := &fakeVenue{
		account: exchange.AccountInfo{Balances: []exchange.Balance{{Asset: "USDC", Free: d("1000")}}},
		price:   d("150"),
	}
	o, st := newOrchestrator(t, venue)
	seedBasket(t, st, "basket-gated", s1Config())
	if err := st.SetGateStatus(store.StatusStopped); err != nil {
		t.Fatalf("SetGateStatus: %v", err)
	}

	o.runCycle(context.Background())

	orders, err := st.OrdersByBasket("basket-gated")
	if err != nil {
		t.Fatalf("OrdersByBasket: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("expected no orders placed while gate is stopped, got %d", len(orders))
	}
}

func TestSplitPair(t *testing.T) {
	t.Parallel()
	cases := map[string][2]string{
		"SOLUSDC": {"SOL", "USDC"},
		"BTCUSDT": {"BTC", "USDT"},
	}
	for pair, want := range cases {
		base, quote := splitPair(pair)
		if base != want[0] || quote != want[1] {
			t.Errorf("splitPair(%q) = (%q, %q), want (%q, %q)", pair, base, quote, want[0], want[1])
		}
	}
}
