package executor

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
	"gridbot/internal/reconcile"
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

type fakeVenue struct {
	placed   []string
	canceled []string
	placeErr error
	cancelErr error
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, pair, side, orderType string, price, qty decimal.Decimal, clientID string) (*exchange.VenueOrder, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, clientID)
	return &exchange.VenueOrder{OrderID: "venue-" + clientID, ClientOrderID: clientID, Pair: pair, Side: side, Price: price, Qty: qty}, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, pair, clientID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, clientID)
	return nil
}

type fakeFilterSource struct{}

func (fakeFilterSource) ExchangeInfo(ctx context.Context, pair string) (*exchange.SymbolFilters, error) {
	return &exchange.SymbolFilters{Pair: pair, TickSize: d("0.001"), LotSize: d("0.01"), MinNotional: d("5")}, nil
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

func TestApply_CreatesValidOrderAndPersists(t *testing.T) {
	t.Parallel()
	venue := &fakeVenue{}
	st := newTestStore(t)
	cache := validator.NewCache(fakeFilterSource{})
	ex := New(venue, st, cache, testLogger())

	plan := reconcile.Plan{ToCreate: []reconcile.Desired{{ClientID: "SOLUSDC_b1_B_1", Price: d("142.500"), Qty: d("0.56")}}}
	specs := map[string]strategy.OrderSpec{
		"SOLUSDC_b1_B_1": {Side: strategy.Buy, Type: "LIMIT", Price: d("142.500"), Qty: d("0.56"), ClientID: "SOLUSDC_b1_B_1"},
	}

	ex.Apply(context.Background(), "SOLUSDC", "b1", plan, specs)

	if len(venue.placed) != 1 {
		t.Fatalf("expected 1 order placed, got %d", len(venue.placed))
	}
	order, err := st.OrderByClientID("SOLUSDC_b1_B_1")
	if err != nil {
		t.Fatalf("OrderByClientID: %v", err)
	}
	if order == nil {
		t.Fatal("expected order to be persisted")
	}
}

func TestApply_SkipsOrderFailingValidation(t *testing.T) {
	t.Parallel()
	venue := &fakeVenue{}
	st := newTestStore(t)
	cache := validator.NewCache(fakeFilterSource{})
	ex := New(venue, st, cache, testLogger())

	plan := reconcile.Plan{ToCreate: []reconcile.Desired{{ClientID: "bad", Price: d("142.5005"), Qty: d("0.56")}}}
	specs := map[string]strategy.OrderSpec{
		"bad": {Side: strategy.Buy, Type: "LIMIT", Price: d("142.5005"), Qty: d("0.56"), ClientID: "bad"},
	}

	ex.Apply(context.Background(), "SOLUSDC", "b1", plan, specs)

	if len(venue.placed) != 0 {
		t.Errorf("expected misaligned order to be skipped, got %d placed", len(venue.placed))
	}
}

func TestApply_CancelsThenCreates(t *testing.T) {
	t.Parallel()
	venue := &fakeVenue{}
	st := newTestStore(t)
	cache := validator.NewCache(fakeFilterSource{})
	ex := New(venue, st, cache, testLogger())

	plan := reconcile.Plan{
		ToCancel: []string{"old_id"},
		ToCreate: []reconcile.Desired{{ClientID: "new_id", Price: d("142.500"), Qty: d("0.56")}},
	}
	specs := map[string]strategy.OrderSpec{
		"new_id": {Side: strategy.Buy, Type: "LIMIT", Price: d("142.500"), Qty: d("0.56"), ClientID: "new_id"},
	}

	ex.Apply(context.Background(), "SOLUSDC", "b1", plan, specs)

	if len(venue.canceled) != 1 || venue.canceled[0] != "old_id" {
		t.Errorf("expected old_id canceled, got %v", venue.canceled)
	}
	if len(venue.placed) != 1 || venue.placed[0] != "new_id" {
		t.Errorf("expected new_id placed, got %v", venue.placed)
	}
}

func TestApply_DuplicateOrderErrorIsAbsorbed(t *testing.T) {
	t.Parallel()
	venue := &fakeVenue{placeErr: &exchange.ExchangeError{Code: exchange.CodeDuplicateOrder, Msg: "dup"}}
	st := newTestStore(t)
	cache := validator.NewCache(fakeFilterSource{})
	ex := New(venue, st, cache, testLogger())

	plan := reconcile.Plan{ToCreate: []reconcile.Desired{{ClientID: "dup_id", Price: d("142.500"), Qty: d("0.56")}}}
	specs := map[string]strategy.OrderSpec{
		"dup_id": {Side: strategy.Buy, Type: "LIMIT", Price: d("142.500"), Qty: d("0.56"), ClientID: "dup_id"},
	}

	ex.Apply(context.Background(), "SOLUSDC", "b1", plan, specs)

	order, err := st.OrderByClientID("dup_id")
	if err != nil {
		t.Fatalf("OrderByClientID: %v", err)
	}
	if order != nil {
		t.Error("duplicate-order rejection should not create a store row")
	}
}

func TestApply_UnknownOrderCancelErrorMarksCanceledLocally(t *testing.T) {
	t.Parallel()
	venue := &fakeVenue{cancelErr: &exchange.ExchangeError{Code: exchange.CodeUnknownOrder, Msg: "unknown"}}
	st := newTestStore(t)
	cache := validator.NewCache(fakeFilterSource{})
	ex := New(venue, st, cache, testLogger())

	if err := st.UpsertOrder(&store.Order{
		BasketID: "b1", ClientOrderID: "gone_id", Side: store.SideBuy, Type: "LIMIT",
		Price: d("142.500"), Qty: d("0.56"), Status: store.OrderNew,
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	plan := reconcile.Plan{ToCancel: []string{"gone_id"}}
	ex.Apply(context.Background(), "SOLUSDC", "b1", plan, nil)

	order, err := st.OrderByClientID("gone_id")
	if err != nil {
		t.Fatalf("OrderByClientID: %v", err)
	}
	if order.Status != store.OrderCanceled {
		t.Errorf("expected order marked canceled locally, got status %q", order.Status)
	}
}
