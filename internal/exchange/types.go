package exchange

import "github.com/shopspring/decimal"

// Balance is one asset's free/locked balance from account_info().
type Balance struct {
	Asset string          `json:"asset"`
	Free  decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// AccountInfo is the response shape of account_info().
type AccountInfo struct {
	Balances []Balance `json:"balances"`
}

// FreeBalance returns the free amount of asset, or zero if absent.
func (a AccountInfo) FreeBalance(asset string) decimal.Decimal {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b.Free
		}
	}
	return decimal.Zero
}

// VenueOrder is one venue-observed open order.
type VenueOrder struct {
	OrderID       string          `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Pair          string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Qty           decimal.Decimal `json:"origQty"`
	Status        string          `json:"status"`
}

// Trade is one execution reported by my_trades().
type Trade struct {
	ID              int64           `json:"id"`
	OrderID         string          `json:"orderId"`
	Pair            string          `json:"symbol"`
	Side            string          `json:"side"`
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	TimeMs          int64           `json:"time"`
}

// SymbolFilters is the {tick_size, lot_size, min_notional} block the
// Validator & Filter Cache needs, per exchange_info(pair).
type SymbolFilters struct {
	Pair        string          `json:"symbol"`
	TickSize    decimal.Decimal `json:"tickSize"`
	LotSize     decimal.Decimal `json:"stepSize"`
	MinNotional decimal.Decimal `json:"minNotional"`
}

// errorEnvelope is the venue's {code, msg} error response body.
type errorEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
