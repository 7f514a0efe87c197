package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side mirrors the venue-facing buy/sell vocabulary used throughout the
// Strategy, Reconciler, and Executor.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderSpec is one line of the desired order set the Strategy emits.
type OrderSpec struct {
	Side     Side
	Type     string
	Price    decimal.Decimal
	Qty      decimal.Decimal
	ClientID string
}

// Fill is the minimal fill-history shape the Strategy needs: side, price,
// and quantity of each executed trade belonging to the basket.
type Fill struct {
	Side  Side
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// State is the basket-scoped runtime state the Orchestrator assembles
// fresh each cycle from the Store and the Exchange Client.
type State struct {
	BasketID        string
	AvailableQuote  decimal.Decimal
	AvailableBase   decimal.Decimal
	PositionBaseQty decimal.Decimal
	Fills           []Fill
	BasketCreatedAt time.Time
}

// Market is the current-price input; only last trade price is used.
type Market struct {
	LastTradePrice decimal.Decimal
}

// Meta is the diagnostic/advisory output alongside buys and sells.
type Meta struct {
	BasketID             string
	AvgPrice             decimal.Decimal
	AvgPriceDefined      bool
	FilledLevels         int
	PlannedLevelsN       int
	RemainingQuoteBudget decimal.Decimal
	ReanchorSuggested    bool
}

// Result is the Strategy's full output.
type Result struct {
	Buys  []OrderSpec
	Sells []OrderSpec
	Meta  Meta
}

type level struct {
	index  int
	price  decimal.Decimal
	qty    decimal.Decimal
	filled bool
}
