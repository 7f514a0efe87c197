// Package store is the durable record of baskets, orders, fills, and
// balance snapshots. It is GORM-backed (sqlite by default, postgres or
// mysql when configured) rather than the flat JSON files the original
// market-making bot used — a grid bot's Emergency-Close path needs
// transactional writes across Order/Fill/Basket that a single JSON file
// per position cannot give us.
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// BasketStatus enumerates the lifecycle of a Basket.
type BasketStatus string

const (
	BasketActive         BasketStatus = "active"
	BasketClosed         BasketStatus = "closed"
	BasketEmergencyClosed BasketStatus = "emergency_closed"
)

// OrderSide enumerates which side of the book an Order sits on.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus enumerates the lifecycle of an Order.
type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
)

// Basket is one logical grid session over one trading pair. Mutated only
// to update the anchor price (on reanchor), status, and closed-at;
// historical baskets are never destroyed.
type Basket struct {
	ID           string       `gorm:"primaryKey;size:22" json:"id"`
	Pair         string       `gorm:"index;not null" json:"pair"`
	AnchorPrice  decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"anchor_price"`
	Status       BasketStatus `gorm:"index;size:20;not null" json:"status"`
	ConfigJSON   string       `gorm:"type:text;not null" json:"config_json"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
}

// Order is one intended or observed order. The client order id is unique
// across the entire store and is the sole key used for reconciliation.
type Order struct {
	ID            uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	BasketID      string      `gorm:"index;size:22;not null" json:"basket_id"`
	VenueOrderID  string      `gorm:"index;size:64" json:"venue_order_id,omitempty"`
	ClientOrderID string      `gorm:"uniqueIndex;size:36;not null" json:"client_order_id"`
	Side          OrderSide   `gorm:"size:8;not null" json:"side"`
	Type          string      `gorm:"size:32;not null" json:"type"`
	Price         decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"price"`
	Qty           decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"qty"`
	Status        OrderStatus `gorm:"index;size:20;not null" json:"status"`
	CreatedAt     time.Time   `gorm:"not null" json:"created_at"`
	FilledAt      *time.Time  `json:"filled_at,omitempty"`
	UpdatedAt     time.Time   `gorm:"not null" json:"updated_at"`
}

// Fill is one execution event, immutable once written.
type Fill struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID          uint      `gorm:"index;not null" json:"order_id"`
	BasketID         string    `gorm:"index;size:22;not null" json:"basket_id"`
	Side             OrderSide `gorm:"size:8;not null" json:"side"`
	Price            decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"price"`
	Qty              decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"qty"`
	Commission       decimal.Decimal `gorm:"type:decimal(24,8)" json:"commission"`
	CommissionAsset  string    `gorm:"size:16" json:"commission_asset"`
	ExecutedAt       time.Time `gorm:"index;not null" json:"executed_at"`
}

// AccountSnapshot is a periodic, immutable balance record.
type AccountSnapshot struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp        time.Time `gorm:"index;not null" json:"timestamp"`
	QuoteFree        decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"quote_free"`
	BaseFree         decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"base_free"`
	EstimatedValue   decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"estimated_value"`
}

// ConfigEntry is the global key-value overlay, including the
// System-Status Gate's {status: running|stopped} toggle.
type ConfigEntry struct {
	Key   string `gorm:"primaryKey;size:64" json:"key"`
	Value string `gorm:"type:text;not null" json:"value"`
}

const ConfigKeySystemStatus = "system_status.status"
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)
