package strategy

import "github.com/shopspring/decimal"

const tickTolerance = 1e-8

// roundDown implements round_down(x, step) = floor(x/step)*step. step == 0
// is identity.
func roundDown(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	return x.DivRound(step, 16).Floor().Mul(step)
}

// roundUp is the symmetric ceiling variant.
func roundUp(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	return x.DivRound(step, 16).Ceil().Mul(step)
}

// nearZero reports whether v is within tolerance of zero, scaled to the
// magnitude of step as spec.md §4.3 Numerics requires.
func nearZero(v, step decimal.Decimal) bool {
	tol := decimal.NewFromFloat(tickTolerance)
	if step.GreaterThan(tol) {
		tol = step.Mul(decimal.NewFromFloat(tickTolerance))
	}
	return v.Abs().LessThanOrEqual(tol)
}

// modNearZero reports whether x is within tolerance of a multiple of step.
func modNearZero(x, step decimal.Decimal) bool {
	if step.IsZero() {
		return true
	}
	rem := x.Mod(step)
	// Mod can return a value close to step itself (e.g. -1e-12 wraps to
	// step - 1e-12); treat both ends of the range as "near zero".
	return nearZero(rem, step) || nearZero(rem.Sub(step), step)
}
