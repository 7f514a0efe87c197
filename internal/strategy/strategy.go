package strategy

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/ids"
)

var hundred = decimal.NewFromInt(100)

// Evaluate is the Strategy: a pure function of (config, state, market, now)
// to a desired order set plus diagnostic meta. No I/O, no side effects; the
// caller supplies now explicitly so the function stays testable.
func Evaluate(cfg Config, st State, mkt Market, now time.Time) Result {
	levels := buildLevels(cfg)
	plannedN := len(levels)

	filledCount, avgPrice, avgDefined := applyFillHistory(levels, st.Fills, cfg.TickSize)
	levels = applyZoneProtection(levels, cfg, mkt)

	buys := buildBuyPlan(levels, cfg, st, mkt)

	var sells []OrderSpec
	if st.PositionBaseQty.GreaterThan(decimal.Zero) && avgDefined {
		sells = buildSellPlan(cfg, st, avgPrice, filledCount)
	}

	remainingBudget := remainingQuoteBudget(cfg, levels)

	reanchor := len(buys) == 0 && len(sells) == 0 &&
		(st.PositionBaseQty.IsZero() ||
			now.Sub(st.BasketCreatedAt) > time.Duration(cfg.Reanchor.TimeTTLSec)*time.Second)

	return Result{
		Buys:  buys,
		Sells: sells,
		Meta: Meta{
			BasketID:             st.BasketID,
			AvgPrice:             avgPrice,
			AvgPriceDefined:      avgDefined,
			FilledLevels:         filledCount,
			PlannedLevelsN:       plannedN,
			RemainingQuoteBudget: remainingBudget,
			ReanchorSuggested:    reanchor,
		},
	}
}

// buildLevels implements step 1: build the raw grid, discarding any level
// that fails the notional or positive-quantity check.
func buildLevels(cfg Config) []*level {
	levels := make([]*level, 0, len(cfg.LevelsPct))
	for i, pct := range cfg.LevelsPct {
		factor := decimal.NewFromInt(1).Add(pct.Div(hundred))
		price := roundDown(cfg.AnchorPrice.Mul(factor), cfg.TickSize)
		if price.LessThanOrEqual(decimal.Zero) {
			continue
		}
		notionalBudget := cfg.MaxGridCapitalQuote.Mul(cfg.AllocWeights[i])
		qty := roundDown(notionalBudget.Div(price), cfg.LotSize)
		if qty.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if qty.Mul(price).LessThan(cfg.MinNotional) {
			continue
		}
		levels = append(levels, &level{
			index: i + 1,
			price: price,
			qty:   qty,
		})
	}
	return levels
}

// applyFillHistory implements step 2: VWAP and filled-level detection.
func applyFillHistory(levels []*level, fills []Fill, tick decimal.Decimal) (filledCount int, avgPrice decimal.Decimal, defined bool) {
	qtyTotal := decimal.Zero
	quoteTotal := decimal.Zero
	for _, f := range fills {
		if f.Side != Buy {
			continue
		}
		qtyTotal = qtyTotal.Add(f.Qty)
		quoteTotal = quoteTotal.Add(f.Price.Mul(f.Qty))
		for _, lvl := range levels {
			if lvl.filled {
				continue
			}
			if f.Price.Sub(lvl.price).Abs().LessThanOrEqual(tick) {
				lvl.filled = true
			}
		}
	}
	for _, lvl := range levels {
		if lvl.filled {
			filledCount++
		}
	}
	if qtyTotal.GreaterThan(decimal.Zero) {
		return filledCount, quoteTotal.Div(qtyTotal), true
	}
	return filledCount, decimal.Zero, false
}

// applyZoneProtection implements step 3.
func applyZoneProtection(levels []*level, cfg Config, mkt Market) []*level {
	switch cfg.HardStopMode {
	case HardStopHard:
		stop := cfg.AnchorPrice.Mul(decimal.NewFromInt(1).Sub(cfg.HardStopPct))
		out := levels[:0:0]
		for _, lvl := range levels {
			if lvl.price.GreaterThanOrEqual(stop) {
				out = append(out, lvl)
			}
		}
		return out
	case HardStopExtend:
		// TODO: the "sparser second band below the main zone" is left
		// unimplemented per the reference's own open question; for v1 this
		// behaves identically to hard_stop_mode=none.
		return levels
	default:
		return levels
	}
}

// buildBuyPlan implements step 4.
func buildBuyPlan(levels []*level, cfg Config, st State, mkt Market) []OrderSpec {
	candidates := make([]*level, 0, len(levels))
	for _, lvl := range levels {
		if !lvl.filled {
			candidates = append(candidates, lvl)
		}
	}

	if cfg.PlaceMode == PlaceOnlyNextK {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].price.GreaterThan(candidates[j].price)
		})
		filtered := candidates[:0:0]
		for _, lvl := range candidates {
			if lvl.price.LessThanOrEqual(mkt.LastTradePrice) {
				filtered = append(filtered, lvl)
			}
		}
		if len(filtered) > cfg.KNext {
			filtered = filtered[:cfg.KNext]
		}
		candidates = filtered
	}

	budget := remainingQuoteBudget(cfg, levels)

	buys := make([]OrderSpec, 0, len(candidates))
	for _, lvl := range candidates {
		notional := lvl.price.Mul(lvl.qty)
		if notional.LessThanOrEqual(st.AvailableQuote) && notional.LessThanOrEqual(budget) {
			clientID, err := ids.ClientOrderID(cfg.Pair, st.BasketID, "B", strconv.Itoa(lvl.index))
			if err != nil {
				continue
			}
			buys = append(buys, OrderSpec{
				Side:     Buy,
				Type:     "LIMIT",
				Price:    lvl.price,
				Qty:      lvl.qty,
				ClientID: clientID,
			})
		}
	}
	return buys
}

// remainingQuoteBudget is max_grid_capital_quote minus the notional already
// allocated to filled levels.
func remainingQuoteBudget(cfg Config, levels []*level) decimal.Decimal {
	used := decimal.Zero
	for _, lvl := range levels {
		if lvl.filled {
			used = used.Add(lvl.price.Mul(lvl.qty))
		}
	}
	rem := cfg.MaxGridCapitalQuote.Sub(used)
	if rem.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return rem
}

// buildSellPlan implements step 5: the dynamic take-profit curve and the
// up-to-three-leg exit split.
func buildSellPlan(cfg Config, st State, avgPrice decimal.Decimal, nFilled int) []OrderSpec {
	shrink := cfg.TPStepPct.Mul(decimal.NewFromInt(int64(maxInt(0, nFilled-1))))
	tp := cfg.TPStartPct.Sub(shrink)
	if tp.LessThan(cfg.TPMinPct) {
		tp = cfg.TPMinPct
	}

	tp1Price := roundUp(avgPrice.Mul(decimal.NewFromInt(1).Add(tp)), cfg.TickSize)
	tp2Price := roundUp(avgPrice.Mul(decimal.NewFromInt(1).Add(tp).Add(cfg.TP2DeltaPct)), cfg.TickSize)
	trailPrice := roundUp(avgPrice.Mul(decimal.NewFromInt(1).Add(cfg.TrailingCallbackPct)), cfg.TickSize)

	pos := st.PositionBaseQty
	q1 := roundDown(pos.Mul(cfg.TP1Share), cfg.LotSize)
	q2 := roundDown(pos.Mul(cfg.TP2Share), cfg.LotSize)
	q3 := roundDown(pos.Sub(q1).Sub(q2), cfg.LotSize)

	sells := make([]OrderSpec, 0, 3)
	if q1.GreaterThan(decimal.Zero) {
		if clientID, err := ids.ClientOrderID(cfg.Pair, st.BasketID, "S", "TP1"); err == nil {
			sells = append(sells, OrderSpec{Side: Sell, Type: "LIMIT", Price: tp1Price, Qty: q1, ClientID: clientID})
		}
	}
	if q2.GreaterThan(decimal.Zero) {
		if clientID, err := ids.ClientOrderID(cfg.Pair, st.BasketID, "S", "TP2"); err == nil {
			sells = append(sells, OrderSpec{Side: Sell, Type: "LIMIT", Price: tp2Price, Qty: q2, ClientID: clientID})
		}
	}
	if q3.GreaterThan(decimal.Zero) {
		if clientID, err := ids.ClientOrderID(cfg.Pair, st.BasketID, "S", "TRAIL"); err == nil {
			sells = append(sells, OrderSpec{Side: Sell, Type: "LIMIT", Price: trailPrice, Qty: q3, ClientID: clientID})
		}
	}
	return sells
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
