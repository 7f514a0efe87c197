package emergency

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
	"gridbot/internal/store"
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
	canceled []string
	placed   []struct {
		price, qty decimal.Decimal
	}
	price decimal.Decimal
}

func (f *fakeVenue) CancelOrder(ctx context.Context, pair, clientID string) error {
	f.canceled = append(f.canceled, clientID)
	return nil
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, pair, side, orderType string, price, qty decimal.Decimal, clientID string) (*exchange.VenueOrder, error) {
	f.placed = append(f.placed, struct{ price, qty decimal.Decimal }{price, qty})
	return &exchange.VenueOrder{OrderID: "venue-exit", ClientOrderID: clientID}, nil
}

func (f *fakeVenue) CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	return f.price, nil
}

func seedBasketWithOpenOrdersAndFills(t *testing.T, st *store.Store, basketID, pair string) {
	t.Helper()
	if err := st.CreateBasket(&store.Basket{ID: basketID, Pair: pair, AnchorPrice: d("150"), Status: store.BasketActive, ConfigJSON: "{}"}); err != nil {
		t.Fatalf("create basket: %v", err)
	}
	for i := 1; i <= 3; i++ {
		o := &store.Order{
			BasketID: basketID, ClientOrderID: "buy" + string(rune('0'+i)),
			Side: store.SideBuy, Type: "LIMIT", Price: d("140"), Qty: d("1"),
			Status: store.OrderNew,
		}
		if err := st.UpsertOrder(o); err != nil {
			t.Fatalf("seed order %d: %v", i, err)
		}
	}
	fills := []struct {
		price, qty string
	}{{"142.500", "0.56"}, {"140.000", "1.05"}, {"135.000", "1.0"}}
	for i, f := range fills {
		fill := &store.Fill{OrderID: uint(i + 1), BasketID: basketID, Side: store.SideBuy, Price: d(f.price), Qty: d(f.qty)}
		if err := st.InsertFill(fill); err != nil {
			t.Fatalf("seed fill %d: %v", i, err)
		}
	}
}

// TestClose_S5_CancelsThreeAndExitsResidualPosition reproduces spec.md's
// S5: 3 open buys, position 2.61, current_price 130, safety_margin 0.03
// => exit at 126.100 for qty 2.61.
func TestClose_S5_CancelsThreeAndExitsResidualPosition(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	seedBasketWithOpenOrdersAndFills(t, st, "basket-s5", "SOLUSDC")

	pos, err := st.PositionQty("basket-s5")
	if err != nil {
		t.Fatalf("PositionQty: %v", err)
	}
	if !pos.Equal(d("2.61")) {
		t.Fatalf("seed position = %s, want 2.61", pos)
	}

	venue := &fakeVenue{price: d("130")}
	closer := New(venue, st, testLogger(), d("0.03"), d("0.001"), d("0.01"))

	result := closer.Close(context.Background(), "SOLUSDC", "basket-s5")

	if !result.Success {
		t.Fatalf("expected success, got message %q", result.Message)
	}
	if result.CanceledCount != 3 {
		t.Errorf("canceled_count = %d, want 3", result.CanceledCount)
	}
	if !result.ExitOrderPlaced {
		t.Error("expected exit_order_placed = true")
	}
	if len(venue.placed) != 1 {
		t.Fatalf("expected 1 exit order placed, got %d", len(venue.placed))
	}
	if !venue.placed[0].price.Equal(d("126.100")) {
		t.Errorf("exit price = %s, want 126.100", venue.placed[0].price)
	}
	if !venue.placed[0].qty.Equal(d("2.61")) {
		t.Errorf("exit qty = %s, want 2.61", venue.placed[0].qty)
	}

	basket, err := st.Basket("basket-s5")
	if err != nil {
		t.Fatalf("Basket: %v", err)
	}
	if basket.Status != store.BasketActive {
		t.Errorf("basket status = %q, want active (spec step 4 never closes it)", basket.Status)
	}
}

func TestClose_NoResidualPositionSkipsExit(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	if err := st.CreateBasket(&store.Basket{ID: "b-flat", Pair: "SOLUSDC", AnchorPrice: d("150"), Status: store.BasketActive, ConfigJSON: "{}"}); err != nil {
		t.Fatal(err)
	}

	venue := &fakeVenue{price: d("130")}
	closer := New(venue, st, testLogger(), d("0.03"), d("0.001"), d("0.01"))

	result := closer.Close(context.Background(), "SOLUSDC", "b-flat")

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if result.ExitOrderPlaced {
		t.Error("expected no exit order when position is flat")
	}
	if len(venue.placed) != 0 {
		t.Errorf("expected no orders placed, got %d", len(venue.placed))
	}
}

func TestClose_DefaultsSafetyMarginWhenZero(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	seedBasketWithOpenOrdersAndFills(t, st, "basket-default", "SOLUSDC")

	venue := &fakeVenue{price: d("130")}
	closer := New(venue, st, testLogger(), decimal.Zero, d("0.001"), d("0.01"))

	result := closer.Close(context.Background(), "SOLUSDC", "basket-default")
	if !result.Success || !result.ExitOrderPlaced {
		t.Fatalf("expected success with exit order, got %+v", result)
	}
	if !venue.placed[0].price.Equal(d("126.100")) {
		t.Errorf("exit price with default margin = %s, want 126.100", venue.placed[0].price)
	}
}
