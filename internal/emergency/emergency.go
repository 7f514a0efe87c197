// Package emergency implements the Emergency Closer: a single,
// out-of-band operation that cancels every open order for a basket and,
// if a residual position remains, exits it at a safety-margin discount.
// Unlike the Orchestrator's cadence loop this never runs on a timer — it
// is invoked on demand by whatever out-of-scope surface wants a manual
// override.
package emergency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
	"gridbot/internal/ids"
	"gridbot/internal/metrics"
	"gridbot/internal/store"
)

const dustThreshold = 0.00001
const defaultSafetyMargin = "0.03"

// VenueCanceler is the subset of *exchange.Client the Closer needs to
// cancel resting orders and place the exit leg.
type VenueCanceler interface {
	CancelOrder(ctx context.Context, pair, clientID string) error
	PlaceOrder(ctx context.Context, pair, side, orderType string, price, qty decimal.Decimal, clientID string) (*exchange.VenueOrder, error)
	CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error)
}

// Result is the structured outcome returned to the caller.
type Result struct {
	Success         bool
	Message         string
	CanceledCount   int
	ExitOrderPlaced bool
}

// Closer runs the Emergency Closer operation.
type Closer struct {
	venue         VenueCanceler
	store         *store.Store
	logger        *slog.Logger
	safetyMargin  decimal.Decimal
	tickSize      decimal.Decimal
	lotSize       decimal.Decimal
}

// New creates a Closer. tickSize/lotSize come from the Filter Cache for
// the basket's pair; safetyMargin defaults to 3% when zero.
func New(venue VenueCanceler, st *store.Store, logger *slog.Logger, safetyMargin, tickSize, lotSize decimal.Decimal) *Closer {
	if safetyMargin.IsZero() {
		safetyMargin = decimal.RequireFromString(defaultSafetyMargin)
	}
	return &Closer{venue: venue, store: st, logger: logger, safetyMargin: safetyMargin, tickSize: tickSize, lotSize: lotSize}
}

// Close runs the Emergency Closer for one basket: cancel all open
// orders, then exit any residual position at a safety-margin discount.
// The basket is deliberately left active; see spec step 4.
func (c *Closer) Close(ctx context.Context, pair, basketID string) Result {
	var result Result
	err := c.store.Transaction(func(tx *store.Store) error {
		openOrders, err := tx.OpenOrdersByBasket(basketID)
		if err != nil {
			return fmt.Errorf("open orders: %w", err)
		}

		canceled := 0
		for _, o := range openOrders {
			if cancelErr := c.venue.CancelOrder(ctx, pair, o.ClientOrderID); cancelErr != nil {
				var exErr *exchange.ExchangeError
				if errors.As(cancelErr, &exErr) && exErr.Code == exchange.CodeUnknownOrder {
					// Already gone on the venue; still mark it locally.
				} else {
					c.logger.Error("emergency cancel failed", "client_id", o.ClientOrderID, "error", cancelErr)
					continue
				}
			}
			if err := tx.MarkCanceled(o.ClientOrderID); err != nil {
				return fmt.Errorf("mark canceled %s: %w", o.ClientOrderID, err)
			}
			canceled++
		}
		result.CanceledCount = canceled

		position, err := tx.PositionQty(basketID)
		if err != nil {
			return fmt.Errorf("position qty: %w", err)
		}

		if position.LessThanOrEqual(decimal.NewFromFloat(dustThreshold)) {
			result.Success = true
			result.Message = fmt.Sprintf("canceled %d orders, no residual position to exit", canceled)
			return nil
		}

		price, err := c.venue.CurrentPrice(ctx, pair)
		if err != nil {
			return fmt.Errorf("current price: %w", err)
		}
		exitPrice := roundDown(price.Mul(decimal.NewFromInt(1).Sub(c.safetyMargin)), c.tickSize)
		exitQty := roundDown(position, c.lotSize)
		clientID, err := ids.ClientOrderID(pair, basketID, "S", "EMERGENCY")
		if err != nil {
			return fmt.Errorf("build exit client id: %w", err)
		}

		venueOrder, err := c.venue.PlaceOrder(ctx, pair, "sell", "LIMIT", exitPrice, exitQty, clientID)
		if err != nil {
			return fmt.Errorf("place exit order: %w", err)
		}

		order := &store.Order{
			BasketID:      basketID,
			VenueOrderID:  venueOrder.OrderID,
			ClientOrderID: clientID,
			Side:          store.SideSell,
			Type:          "LIMIT",
			Price:         exitPrice,
			Qty:           exitQty,
			Status:        store.OrderNew,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		if err := tx.UpsertOrder(order); err != nil {
			return fmt.Errorf("persist exit order: %w", err)
		}

		result.ExitOrderPlaced = true
		result.Success = true
		result.Message = fmt.Sprintf("canceled %d orders, exited position %s at %s", canceled, exitQty, exitPrice)
		return nil
	})

	if err != nil {
		c.logger.Error("emergency close failed", "basket_id", basketID, "error", err)
		return Result{Success: false, Message: err.Error()}
	}
	metrics.IncEmergencyClose()
	return result
}

// roundDown implements round_down(x, step) = floor(x/step)*step.
func roundDown(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	return x.DivRound(step, 16).Floor().Mul(step)
}
