// Package executor applies a Reconciler plan through the Exchange Client
// and writes the outcome back to the State Store. Order of operations is
// always cancel-then-create, preventing venue-side insufficient-balance
// rejections when re-pricing an existing order.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
	"gridbot/internal/metrics"
	"gridbot/internal/reconcile"
	"gridbot/internal/store"
	"gridbot/internal/strategy"
	"gridbot/internal/validator"
)

// VenuePlacer is the subset of *exchange.Client the Executor needs.
type VenuePlacer interface {
	PlaceOrder(ctx context.Context, pair, side, orderType string, price, qty decimal.Decimal, clientID string) (*exchange.VenueOrder, error)
	CancelOrder(ctx context.Context, pair, clientID string) error
}

// Executor applies the Reconciler's plan.
type Executor struct {
	venue   VenuePlacer
	store   *store.Store
	filters *validator.Cache
	logger  *slog.Logger
}

// New creates an Executor.
func New(venue VenuePlacer, st *store.Store, filters *validator.Cache, logger *slog.Logger) *Executor {
	return &Executor{venue: venue, store: st, filters: filters, logger: logger}
}

// Apply executes a reconciliation plan for one basket's pair.
func (e *Executor) Apply(ctx context.Context, pair, basketID string, plan reconcile.Plan, specs map[string]strategy.OrderSpec) {
	metrics.SetPlanSize("to_cancel", len(plan.ToCancel))
	metrics.SetPlanSize("to_create", len(plan.ToCreate))

	for _, clientID := range plan.ToCancel {
		e.cancel(ctx, pair, clientID)
	}
	for _, desired := range plan.ToCreate {
		spec, ok := specs[desired.ClientID]
		if !ok {
			e.logger.Warn("to_create id missing from spec map", "client_id", desired.ClientID)
			continue
		}
		e.create(ctx, pair, basketID, spec)
	}
}

func (e *Executor) cancel(ctx context.Context, pair, clientID string) {
	err := e.venue.CancelOrder(ctx, pair, clientID)
	if err != nil {
		var exErr *exchange.ExchangeError
		if errors.As(err, &exErr) {
			metrics.IncExchangeError(exErr.Code)
			if exErr.Code == exchange.CodeUnknownOrder {
				// Benign: the venue already considers this order gone.
				_ = e.store.MarkCanceled(clientID)
				return
			}
			e.logger.Error("cancel rejected", "client_id", clientID, "code", exErr.Code, "msg", exErr.Msg)
			return
		}
		e.logger.Error("cancel failed", "client_id", clientID, "error", err)
		return
	}
	if err := e.store.MarkCanceled(clientID); err != nil {
		e.logger.Error("store mark canceled failed", "client_id", clientID, "error", err)
	}
}

func (e *Executor) create(ctx context.Context, pair, basketID string, spec strategy.OrderSpec) {
	filters, err := e.filters.Get(ctx, pair)
	if err != nil {
		e.logger.Error("filter lookup failed", "pair", pair, "error", err)
		return
	}
	if err := validator.Validate(filters, spec.Price, spec.Qty); err != nil {
		e.logger.Warn("order spec failed validation", "client_id", spec.ClientID, "error", err)
		return
	}

	venueOrder, err := e.venue.PlaceOrder(ctx, pair, string(spec.Side), spec.Type, spec.Price, spec.Qty, spec.ClientID)
	if err != nil {
		var exErr *exchange.ExchangeError
		if errors.As(err, &exErr) {
			metrics.IncExchangeError(exErr.Code)
			if exErr.Code == exchange.CodeDuplicateOrder {
				// Idempotent retry: the venue already has this client id.
				return
			}
			e.logger.Error("create rejected", "client_id", spec.ClientID, "code", exErr.Code, "msg", exErr.Msg)
			return
		}
		e.logger.Error("create failed", "client_id", spec.ClientID, "error", err)
		return
	}

	order := &store.Order{
		BasketID:      basketID,
		VenueOrderID:  venueOrder.OrderID,
		ClientOrderID: spec.ClientID,
		Side:          store.OrderSide(spec.Side),
		Type:          spec.Type,
		Price:         spec.Price,
		Qty:           spec.Qty,
		Status:        store.OrderNew,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := e.store.UpsertOrder(order); err != nil {
		e.logger.Error("store upsert failed", "client_id", spec.ClientID, "error", err)
	}
}
