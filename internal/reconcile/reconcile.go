// Package reconcile computes the minimal mutation plan between the
// Strategy's desired order set and the exchange's observed order set. It
// is a pure diff, keyed by client_order_id; it never touches the Store or
// the network.
package reconcile

import "github.com/shopspring/decimal"

const tolerance = 1e-8

// Observed is one exchange-reported open order, keyed by client id for
// comparison against the Strategy's desired set.
type Observed struct {
	ClientID string
	Price    decimal.Decimal
	Qty      decimal.Decimal
}

// Desired is one Strategy-produced order spec, reduced to the fields the
// Reconciler compares.
type Desired struct {
	ClientID string
	Price    decimal.Decimal
	Qty      decimal.Decimal
}

// Counters tallies the outcome of a reconciliation pass.
type Counters struct {
	Canceled int
	Created  int
	Unchanged int
}

// Plan is the Reconciler's full output.
type Plan struct {
	ToCancel []string
	ToCreate []Desired
	Counters Counters
}

// needsUpdate is true when price or quantity differs by more than the
// tolerance.
func needsUpdate(want Desired, have Observed) bool {
	return want.Price.Sub(have.Price).Abs().GreaterThan(decimal.NewFromFloat(tolerance)) ||
		want.Qty.Sub(have.Qty).Abs().GreaterThan(decimal.NewFromFloat(tolerance))
}

// Diff computes {to_cancel, to_create} plus counters over two collections
// keyed by client_order_id.
func Diff(desired []Desired, actual []Observed) Plan {
	desiredByID := make(map[string]Desired, len(desired))
	for _, d := range desired {
		desiredByID[d.ClientID] = d
	}
	actualByID := make(map[string]Observed, len(actual))
	for _, a := range actual {
		actualByID[a.ClientID] = a
	}

	plan := Plan{}
	for id, have := range actualByID {
		want, stillDesired := desiredByID[id]
		switch {
		case !stillDesired:
			plan.ToCancel = append(plan.ToCancel, id)
			plan.Counters.Canceled++
		case needsUpdate(want, have):
			plan.ToCancel = append(plan.ToCancel, id)
			plan.ToCreate = append(plan.ToCreate, want)
			plan.Counters.Canceled++
			plan.Counters.Created++
		default:
			plan.Counters.Unchanged++
		}
	}
	for id, want := range desiredByID {
		if _, onVenue := actualByID[id]; !onVenue {
			plan.ToCreate = append(plan.ToCreate, want)
			plan.Counters.Created++
		}
	}
	return plan
}
