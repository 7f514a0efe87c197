// Package orchestrator runs the fixed-cadence loop that drives every
// active basket through fetch → strategy → reconcile → execute, one
// basket at a time, per cycle. It is the only component that touches
// wall-clock time as a scheduling signal; Strategy and Reconciler stay
// pure and receive "now" explicitly.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
	"gridbot/internal/executor"
	"gridbot/internal/gate"
	"gridbot/internal/metrics"
	"gridbot/internal/reconcile"
	"gridbot/internal/store"
	"gridbot/internal/strategy"
	"gridbot/internal/validator"
)

// Venue is the subset of *exchange.Client the Orchestrator reads from
// every cycle.
type Venue interface {
	AccountInfo(ctx context.Context) (*exchange.AccountInfo, error)
	OpenOrders(ctx context.Context, pair string) ([]exchange.VenueOrder, error)
	CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error)
	MyTrades(ctx context.Context, pair string, sinceMs int64) ([]exchange.Trade, error)
}

// Orchestrator owns the cadence loop.
type Orchestrator struct {
	venue    Venue
	store    *store.Store
	filters  *validator.Cache
	gate     *gate.Gate
	executor *executor.Executor
	logger   *slog.Logger
	interval time.Duration

	cycle int64
	stop  chan struct{}
	done  chan struct{}
}

// New builds an Orchestrator. interval defaults to 5s when zero, per
// check_interval_seconds default.
func New(venue Venue, st *store.Store, filters *validator.Cache, g *gate.Gate, ex *executor.Executor, logger *slog.Logger, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Orchestrator{
		venue: venue, store: st, filters: filters, gate: g, executor: ex, logger: logger, interval: interval,
		stop: make(chan struct{}), done: make(chan struct{}),
	}
}

// Start runs the cadence loop until the context is canceled or Stop is
// called. The current cycle always runs to completion before exiting.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.loop(ctx)
}

// Stop signals the loop to exit after its current cycle and blocks
// until it has.
func (o *Orchestrator) Stop() {
	close(o.stop)
	<-o.done
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping: context canceled")
			return
		case <-o.stop:
			o.logger.Info("orchestrator stopping: stop requested")
			return
		default:
		}

		o.runCycleSafely(ctx)

		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-time.After(o.interval):
		}
	}
}

// runCycleSafely recovers from any panic inside a cycle so a single
// basket's failure never kills the loop.
func (o *Orchestrator) runCycleSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("cycle panicked", "recover", r, "stack", string(debug.Stack()))
		}
	}()
	start := time.Now()
	o.runCycle(ctx)
	metrics.ObserveCycleDuration(time.Since(start).Seconds())
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	o.cycle++
	baskets, err := o.store.ActiveBaskets()
	if err != nil {
		o.logger.Error("active baskets fetch failed", "error", err)
		return
	}
	if len(baskets) == 0 {
		return
	}

	for _, b := range baskets {
		o.processBasket(ctx, b)
	}

	if o.cycle%10 == 0 {
		o.snapshotAccount(ctx)
	}
}

func (o *Orchestrator) processBasket(ctx context.Context, basket store.Basket) {
	logger := o.logger.With("basket_id", basket.ID, "pair", basket.Pair)

	var cfg strategy.Config
	if err := json.Unmarshal([]byte(basket.ConfigJSON), &cfg); err != nil {
		logger.Error("config unmarshal failed", "error", err)
		return
	}
	cfg.Pair = basket.Pair
	cfg.AnchorPrice = basket.AnchorPrice

	filters, err := o.filters.Get(ctx, basket.Pair)
	if err != nil {
		logger.Error("filter lookup failed", "error", err)
		return
	}
	cfg.TickSize, cfg.LotSize, cfg.MinNotional = filters.TickSize, filters.LotSize, filters.MinNotional

	account, err := o.venue.AccountInfo(ctx)
	if err != nil {
		logger.Error("account info fetch failed", "error", err)
		return
	}
	openOrders, err := o.venue.OpenOrders(ctx, basket.Pair)
	if err != nil {
		logger.Error("open orders fetch failed", "error", err)
		return
	}
	price, err := o.venue.CurrentPrice(ctx, basket.Pair)
	if err != nil {
		logger.Error("current price fetch failed", "error", err)
		return
	}

	if err := o.syncTrades(ctx, basket, openOrders); err != nil {
		logger.Error("trade sync failed", "error", err)
	}

	position, err := o.store.PositionQty(basket.ID)
	if err != nil {
		logger.Error("position query failed", "error", err)
		return
	}
	fills, err := o.loadFills(basket.ID)
	if err != nil {
		logger.Error("fills query failed", "error", err)
		return
	}

	baseAsset, quoteAsset := splitPair(basket.Pair)
	state := strategy.State{
		BasketID:        basket.ID,
		AvailableQuote:  account.FreeBalance(quoteAsset),
		AvailableBase:   account.FreeBalance(baseAsset),
		PositionBaseQty: position,
		Fills:           fills,
		BasketCreatedAt: basket.CreatedAt,
	}
	market := strategy.Market{LastTradePrice: price}
	now := time.Now()

	result := strategy.Evaluate(cfg, state, market, now)

	if result.Meta.ReanchorSuggested && position.IsZero() {
		logger.Info("reanchoring basket", "old_anchor", cfg.AnchorPrice, "new_anchor", price)
		if err := o.store.Reanchor(basket.ID, price); err != nil {
			logger.Error("reanchor failed", "error", err)
		} else {
			cfg.AnchorPrice = price
			result = strategy.Evaluate(cfg, state, market, now)
		}
	}

	metrics.SetPlanSize("buys", len(result.Buys))
	metrics.SetPlanSize("sells", len(result.Sells))

	desired, specs := toDesired(result)
	actual := toObserved(openOrders)
	plan := reconcile.Diff(desired, actual)
	metrics.AddReconcileUnchanged(plan.Counters.Unchanged)

	running, err := o.gate.Running()
	if err != nil {
		logger.Error("gate status check failed", "error", err)
		return
	}
	if !running {
		logger.Info("gate stopped, skipping executor")
		return
	}
	o.executor.Apply(ctx, basket.Pair, basket.ID, plan, specs)
}

// syncTrades consults my_trades and upserts Fills for any execution
// matching a known order's venue id not already recorded.
func (o *Orchestrator) syncTrades(ctx context.Context, basket store.Basket, openOrders []exchange.VenueOrder) error {
	const lookback = 24 * time.Hour
	since := time.Now().Add(-lookback).UnixMilli()

	trades, err := o.venue.MyTrades(ctx, basket.Pair, since)
	if err != nil {
		return fmt.Errorf("my trades: %w", err)
	}

	orders, err := o.store.OrdersByBasket(basket.ID)
	if err != nil {
		return fmt.Errorf("orders by basket: %w", err)
	}
	byVenueID := make(map[string]store.Order, len(orders))
	for _, ord := range orders {
		if ord.VenueOrderID != "" {
			byVenueID[ord.VenueOrderID] = ord
		}
	}

	for _, trade := range trades {
		ord, known := byVenueID[trade.OrderID]
		if !known {
			continue
		}
		executedAt := time.UnixMilli(trade.TimeMs)
		exists, err := o.store.FillExistsForVenueTrade(ord.ID, executedAt, trade.Qty)
		if err != nil {
			return fmt.Errorf("fill exists check: %w", err)
		}
		if exists {
			continue
		}
		fill := &store.Fill{
			OrderID: ord.ID, BasketID: basket.ID, Side: store.OrderSide(strings.ToLower(trade.Side)),
			Price: trade.Price, Qty: trade.Qty, Commission: trade.Commission,
			CommissionAsset: trade.CommissionAsset, ExecutedAt: executedAt,
		}
		if err := o.store.InsertFill(fill); err != nil {
			return fmt.Errorf("insert fill: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) loadFills(basketID string) ([]strategy.Fill, error) {
	raw, err := o.store.FillsByBasket(basketID)
	if err != nil {
		return nil, err
	}
	fills := make([]strategy.Fill, 0, len(raw))
	for _, f := range raw {
		fills = append(fills, strategy.Fill{Side: strategy.Side(f.Side), Price: f.Price, Qty: f.Qty})
	}
	return fills, nil
}

func (o *Orchestrator) snapshotAccount(ctx context.Context) {
	account, err := o.venue.AccountInfo(ctx)
	if err != nil {
		o.logger.Error("snapshot account fetch failed", "error", err)
		return
	}
	snap := &store.AccountSnapshot{Timestamp: time.Now()}
	for _, b := range account.Balances {
		snap.QuoteFree = snap.QuoteFree.Add(b.Free)
	}
	if err := o.store.InsertSnapshot(snap); err != nil {
		o.logger.Error("snapshot insert failed", "error", err)
	}
}

func toDesired(result strategy.Result) ([]reconcile.Desired, map[string]strategy.OrderSpec) {
	all := append(append([]strategy.OrderSpec{}, result.Buys...), result.Sells...)
	desired := make([]reconcile.Desired, 0, len(all))
	specs := make(map[string]strategy.OrderSpec, len(all))
	for _, spec := range all {
		desired = append(desired, reconcile.Desired{ClientID: spec.ClientID, Price: spec.Price, Qty: spec.Qty})
		specs[spec.ClientID] = spec
	}
	return desired, specs
}

func toObserved(orders []exchange.VenueOrder) []reconcile.Observed {
	observed := make([]reconcile.Observed, 0, len(orders))
	for _, o := range orders {
		observed = append(observed, reconcile.Observed{ClientID: o.ClientOrderID, Price: o.Price, Qty: o.Qty})
	}
	return observed
}

// splitPair separates a pair like "SOLUSDC" into base/quote using the
// known quote-asset suffixes; the spec's venue only ever trades against
// a small fixed set of quote assets.
func splitPair(pair string) (base, quote string) {
	for _, q := range []string{"USDC", "USDT", "BUSD", "BTC", "ETH"} {
		if len(pair) > len(q) && pair[len(pair)-len(q):] == q {
			return pair[:len(pair)-len(q)], q
		}
	}
	return pair, ""
}
