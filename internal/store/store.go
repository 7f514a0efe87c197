package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver selects the GORM dialect used to open the Store.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Store is the durable record of baskets, orders, fills, and snapshots.
// The Executor and Orchestrator write to it every cycle; the Emergency
// Closer (inside a transaction), the Gate's Start/Stop, and the
// new-basket CLI path also write to it.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured driver/dsn and migrates the schema.
func Open(driver Driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.AutoMigrate(&Basket{}, &Order{}, &Fill{}, &AccountSnapshot{}, &ConfigEntry{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("underlying db: %w", err)
	}
	return sqlDB.Close()
}

// ActiveBaskets returns every basket whose status is "active".
func (s *Store) ActiveBaskets() ([]Basket, error) {
	var baskets []Basket
	if err := s.db.Where("status = ?", BasketActive).Find(&baskets).Error; err != nil {
		return nil, fmt.Errorf("active baskets: %w", err)
	}
	return baskets, nil
}

// Basket fetches a single basket by id.
func (s *Store) Basket(id string) (*Basket, error) {
	var b Basket
	if err := s.db.First(&b, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("basket %s: %w", id, err)
	}
	return &b, nil
}

// CreateBasket inserts a new basket row.
func (s *Store) CreateBasket(b *Basket) error {
	if err := s.db.Create(b).Error; err != nil {
		return fmt.Errorf("create basket: %w", err)
	}
	return nil
}

// Reanchor updates a basket's anchor price in place.
func (s *Store) Reanchor(basketID string, price decimal.Decimal) error {
	res := s.db.Model(&Basket{}).Where("id = ?", basketID).Update("anchor_price", price)
	if res.Error != nil {
		return fmt.Errorf("reanchor %s: %w", basketID, res.Error)
	}
	return nil
}

// OrdersByBasket returns every order owned by a basket.
func (s *Store) OrdersByBasket(basketID string) ([]Order, error) {
	var orders []Order
	if err := s.db.Where("basket_id = ?", basketID).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("orders by basket: %w", err)
	}
	return orders, nil
}

// OpenOrdersByBasket returns orders not in a terminal state.
func (s *Store) OpenOrdersByBasket(basketID string) ([]Order, error) {
	var orders []Order
	err := s.db.Where("basket_id = ? AND status IN ?", basketID,
		[]OrderStatus{OrderNew, OrderPartiallyFilled}).Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("open orders by basket: %w", err)
	}
	return orders, nil
}

// OrderByClientID looks up the sole reconciliation key. It returns
// (nil, nil) when no order carries that client id.
func (s *Store) OrderByClientID(clientOrderID string) (*Order, error) {
	var o Order
	err := s.db.First(&o, "client_order_id = ?", clientOrderID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpsertOrder inserts a new order or updates the existing row sharing its
// client_order_id, enforcing the store's unique-id invariant.
func (s *Store) UpsertOrder(o *Order) error {
	existing, err := s.OrderByClientID(o.ClientOrderID)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	if existing != nil {
		o.ID = existing.ID
		return s.db.Model(&Order{}).Where("id = ?", existing.ID).Updates(o).Error
	}
	if err := s.db.Create(o).Error; err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}

// MarkCanceled flips an order to canceled by client id. Missing orders are
// not an error: callers absorb -2013 (unknown order) upstream.
func (s *Store) MarkCanceled(clientOrderID string) error {
	return s.db.Model(&Order{}).Where("client_order_id = ?", clientOrderID).
		Update("status", OrderCanceled).Error
}

// InsertFill appends an immutable execution event. It does not change the
// parent order's status.
func (s *Store) InsertFill(f *Fill) error {
	if err := s.db.Create(f).Error; err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}
	return nil
}

// FillExistsForVenueTrade guards against double-booking a trade the
// Orchestrator has already synced on a previous cycle.
func (s *Store) FillExistsForVenueTrade(orderID uint, executedAt time.Time, qty decimal.Decimal) (bool, error) {
	var count int64
	err := s.db.Model(&Fill{}).
		Where("order_id = ? AND executed_at = ? AND qty = ?", orderID, executedAt, qty).
		Count(&count).Error
	return count > 0, err
}

// FillsByBasket returns every fill belonging to a basket, used to compute
// VWAP and position.
func (s *Store) FillsByBasket(basketID string) ([]Fill, error) {
	var fills []Fill
	if err := s.db.Where("basket_id = ?", basketID).Order("executed_at asc").Find(&fills).Error; err != nil {
		return nil, fmt.Errorf("fills by basket: %w", err)
	}
	return fills, nil
}

// PositionQty returns Σ buy fills.qty − Σ sell fills.qty for a basket.
func (s *Store) PositionQty(basketID string) (decimal.Decimal, error) {
	fills, err := s.FillsByBasket(basketID)
	if err != nil {
		return decimal.Zero, err
	}
	pos := decimal.Zero
	for _, f := range fills {
		if f.Side == SideBuy {
			pos = pos.Add(f.Qty)
		} else {
			pos = pos.Sub(f.Qty)
		}
	}
	return pos, nil
}

// InsertSnapshot records a periodic balance snapshot.
func (s *Store) InsertSnapshot(snap *AccountSnapshot) error {
	if err := s.db.Create(snap).Error; err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GateStatus reads the System-Status Gate, defaulting to running when
// absent.
func (s *Store) GateStatus() (string, error) {
	var entry ConfigEntry
	err := s.db.First(&entry, "key = ?", ConfigKeySystemStatus).Error
	if err == gorm.ErrRecordNotFound {
		return StatusRunning, nil
	}
	if err != nil {
		return "", fmt.Errorf("gate status: %w", err)
	}
	return entry.Value, nil
}

// SetGateStatus is the Gate's only mutator, invoked by Start()/Stop().
func (s *Store) SetGateStatus(status string) error {
	entry := ConfigEntry{Key: ConfigKeySystemStatus, Value: status}
	return s.db.Save(&entry).Error
}

// Transaction exposes a transactional scope for callers that must write
// across {Order mutations, Fill inserts, Basket status/anchor updates}
// atomically — chiefly the Emergency Closer.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(gtx *gorm.DB) error {
		return fn(&Store{db: gtx})
	})
}

// CloseBasketEmergency marks a basket emergency_closed. Unused by the
// Emergency Closer today (spec.md §4.7 step 4 deliberately leaves the
// basket active) but kept for the manual-close path outside this spec's
// scope.
func (s *Store) CloseBasketEmergency(basketID string, at time.Time) error {
	return s.db.Model(&Basket{}).Where("id = ?", basketID).
		Updates(map[string]any{"status": BasketEmergencyClosed, "closed_at": at}).Error
}
