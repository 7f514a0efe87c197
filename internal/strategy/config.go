// Package strategy computes the desired order set from configuration,
// accumulated fill history, and current market price. It is a pure
// function package: no I/O, no side effects, no ambient time reads.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// HardStopMode selects how zone protection filters levels below the
// anchor price.
type HardStopMode string

const (
	HardStopNone   HardStopMode = "none"
	HardStopHard   HardStopMode = "hard"
	HardStopExtend HardStopMode = "extend_zone"
)

// PlaceMode selects how much of the unfilled grid is placed at once.
type PlaceMode string

const (
	PlaceAllUnfilled PlaceMode = "all_unfilled"
	PlaceOnlyNextK   PlaceMode = "only_next_k"
)

// ReanchorRules gates the reanchor-suggestion computation. CloseRatio is
// wired but inert in v1 (spec.md §9 open question): it is carried in the
// config snapshot but neither validated nor consulted.
type ReanchorRules struct {
	CloseRatio decimal.Decimal
	TimeTTLSec int64
}

// Config is the per-basket strategy configuration snapshot, persisted as
// the basket's config_json.
type Config struct {
	Pair                string
	AnchorPrice         decimal.Decimal
	LevelsPct           []decimal.Decimal // percent units: -5.0 means 0.95*P0
	AllocWeights        []decimal.Decimal // sums to 1.0
	MaxGridCapitalQuote decimal.Decimal
	TickSize            decimal.Decimal
	LotSize             decimal.Decimal
	MinNotional         decimal.Decimal

	TPStartPct  decimal.Decimal
	TPStepPct   decimal.Decimal
	TPMinPct    decimal.Decimal
	TP2DeltaPct decimal.Decimal

	TP1Share  decimal.Decimal
	TP2Share  decimal.Decimal
	TrailShare decimal.Decimal

	TrailingCallbackPct decimal.Decimal

	HardStopMode HardStopMode
	HardStopPct  decimal.Decimal

	PlaceMode PlaceMode
	KNext     int

	Reanchor ReanchorRules
}

const tolerance = 1e-6

// Validate enforces invariant 5 (weights sum to 1, level count equals
// weight count) and fixes levels_pct to percent units per the Open
// Question decision recorded in SPEC_FULL.md §10.3.
func (c Config) Validate() error {
	if len(c.LevelsPct) == 0 {
		return fmt.Errorf("levels_pct must not be empty")
	}
	if len(c.LevelsPct) != len(c.AllocWeights) {
		return fmt.Errorf("levels_pct has %d entries, alloc_weights has %d", len(c.LevelsPct), len(c.AllocWeights))
	}
	sum := decimal.Zero
	for _, w := range c.AllocWeights {
		sum = sum.Add(w)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.NewFromFloat(tolerance)) {
		return fmt.Errorf("alloc_weights must sum to 1.0 (got %s)", sum.String())
	}
	for _, lvl := range c.LevelsPct {
		if !lvl.IsZero() && lvl.Abs().LessThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("levels_pct entry %s looks like a fraction; use percent units (e.g. -5.0, not -0.05)", lvl.String())
		}
	}
	exitSum := c.TP1Share.Add(c.TP2Share).Add(c.TrailShare)
	if exitSum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.NewFromFloat(tolerance)) {
		return fmt.Errorf("tp1_share + tp2_share + trail_share must sum to 1.0 (got %s)", exitSum.String())
	}
	switch c.HardStopMode {
	case HardStopNone, HardStopHard, HardStopExtend, "":
	default:
		return fmt.Errorf("unknown hard_stop_mode %q", c.HardStopMode)
	}
	switch c.PlaceMode {
	case PlaceAllUnfilled, PlaceOnlyNextK, "":
	default:
		return fmt.Errorf("unknown place_mode %q", c.PlaceMode)
	}
	if c.PlaceMode == PlaceOnlyNextK && c.KNext <= 0 {
		return fmt.Errorf("k_next must be > 0 when place_mode=only_next_k")
	}
	return nil
}
