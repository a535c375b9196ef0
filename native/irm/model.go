// Package irm prices floating and fixed-maturity borrows from pool
// utilization.
//
// Both curves share the shape r(u) = A/(Umax-u) + B. Because Umax sits above
// full utilization the rate grows without bound as u approaches Umax, which is
// the penalty region that keeps pools from being exhausted.
package irm

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"termlend/native/fixedpoint"
)

const (
	// Year is the annualisation period in seconds.
	Year = 365 * 24 * 60 * 60
)

var (
	// ErrUtilizationExceeded is returned when a quote would push utilization
	// above 100%.
	ErrUtilizationExceeded = errors.New("irm: utilization exceeded")
	// ErrAlreadyMatured is returned when a fixed quote is requested for a
	// maturity that is not in the future.
	ErrAlreadyMatured = errors.New("irm: maturity already reached")
	// ErrInvalidCurve is returned by Validate for unusable parameters.
	ErrInvalidCurve = errors.New("irm: invalid curve parameters")
)

// precisionThreshold is the utilization delta below which the averaged rate
// switches from the closed-form integral to Simpson's rule.
var precisionThreshold = big.NewInt(750_000_000_000_000)

// Curve holds the WAD parameters of one rate curve. B may be negative.
type Curve struct {
	A              *big.Int
	B              *big.Int
	MaxUtilization *big.Int
}

// NewCurve constructs a curve from decimal inputs, e.g. 0.023 for 2.3%.
func NewCurve(a, b, maxUtilization float64) Curve {
	return Curve{A: floatToWad(a), B: floatToWad(b), MaxUtilization: floatToWad(maxUtilization)}
}

func floatToWad(v float64) *big.Int {
	return decimal.NewFromFloat(v).Shift(18).BigInt()
}

// Clone returns a deep copy of the curve.
func (c Curve) Clone() Curve {
	return Curve{
		A:              fixedpoint.Copy(c.A),
		B:              fixedpoint.Copy(c.B),
		MaxUtilization: fixedpoint.Copy(c.MaxUtilization),
	}
}

// Validate checks that the curve is strictly positive and only reaches its
// asymptote beyond full utilization.
func (c Curve) Validate() error {
	if !fixedpoint.Positive(c.A) || c.B == nil {
		return ErrInvalidCurve
	}
	if c.MaxUtilization == nil || c.MaxUtilization.Cmp(fixedpoint.Wad()) <= 0 {
		return ErrInvalidCurve
	}
	return nil
}

// Rate returns the annual rate averaged over the utilization interval
// [uBefore, uAfter]. Negative results are floored at zero.
func (c Curve) Rate(uBefore, uAfter *big.Int) (*big.Int, error) {
	if uAfter.Cmp(uBefore) < 0 {
		uBefore, uAfter = uAfter, uBefore
	}
	if uAfter.Cmp(fixedpoint.Wad()) > 0 {
		return nil, ErrUtilizationExceeded
	}
	alpha := fixedpoint.Sub(c.MaxUtilization, uBefore)
	tail := fixedpoint.Sub(c.MaxUtilization, uAfter)
	delta := fixedpoint.Sub(uAfter, uBefore)

	var r *big.Int
	if delta.Cmp(precisionThreshold) < 0 {
		mid := fixedpoint.Sub(c.MaxUtilization, new(big.Int).Rsh(fixedpoint.Add(uAfter, uBefore), 1))
		r = fixedpoint.DivWadDown(c.A, alpha)
		r.Add(r, fixedpoint.MulDivDown(c.A, big.NewInt(4_000_000_000_000_000_000), mid))
		r.Add(r, fixedpoint.DivWadDown(c.A, tail))
		r.Quo(r, big.NewInt(6))
	} else {
		ln, err := fixedpoint.LnWad(fixedpoint.DivWadDown(alpha, tail))
		if err != nil {
			return nil, err
		}
		r = fixedpoint.MulDivDown(c.A, ln, delta)
	}
	r.Add(r, c.B)
	if r.Sign() < 0 {
		r.SetInt64(0)
	}
	return r, nil
}

// Model bundles the fixed and floating curves of a market.
type Model struct {
	Fixed    Curve
	Floating Curve
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	return &Model{Fixed: m.Fixed.Clone(), Floating: m.Floating.Clone()}
}

// Validate checks both curves.
func (m *Model) Validate() error {
	if m == nil {
		return ErrInvalidCurve
	}
	if err := m.Fixed.Validate(); err != nil {
		return err
	}
	return m.Floating.Validate()
}

// Utilization returns debt/assets rounded up, zero when assets are zero.
func Utilization(debt, assets *big.Int) *big.Int {
	if fixedpoint.IsZero(assets) || fixedpoint.IsZero(debt) {
		return new(big.Int)
	}
	return fixedpoint.DivWadUp(debt, assets)
}

// FloatingRate returns the instantaneous annual floating rate at the given
// utilization.
func (m *Model) FloatingRate(utilization *big.Int) (*big.Int, error) {
	if m == nil {
		return new(big.Int), nil
	}
	return m.Floating.Rate(utilization, utilization)
}

// FixedPool is the maturity pool input of a fixed quote.
type FixedPool struct {
	Borrowed *big.Int
	Supplied *big.Int
}

// FloatingPool is the floating pool input of a fixed quote.
type FloatingPool struct {
	AssetsAverage  *big.Int
	Debt           *big.Int
	BackupBorrowed *big.Int
}

// FixedRate returns the rate, scaled to the remaining time until maturity,
// charged for borrowing amount from the pool at timestamp now. The portion of
// amount that the pool's own idle supply cannot cover is drawn from the
// floating pool and pays at least the post-borrow floating rate.
func (m *Model) FixedRate(maturity, now uint64, amount *big.Int, pool FixedPool, floating FloatingPool) (*big.Int, error) {
	if m == nil {
		return new(big.Int), nil
	}
	if now >= maturity {
		return nil, ErrAlreadyMatured
	}
	if fixedpoint.IsZero(amount) {
		return new(big.Int), nil
	}
	borrowed := fixedpoint.Copy(pool.Borrowed)
	supplied := fixedpoint.Copy(pool.Supplied)
	potential := fixedpoint.Add(supplied, fixedpoint.Copy(floating.AssetsAverage))

	// Without potential liquidity the fixed curve has no utilization to
	// price; the backup slice below still pays the floating rate.
	annual := new(big.Int)
	if potential.Sign() > 0 {
		uBefore := fixedpoint.DivWadUp(borrowed, potential)
		uAfter := fixedpoint.DivWadUp(fixedpoint.Add(borrowed, amount), potential)
		var err error
		if annual, err = m.Fixed.Rate(uBefore, uAfter); err != nil {
			return nil, err
		}
	}

	idle := fixedpoint.SubFloor(supplied, borrowed)
	backup := fixedpoint.SubFloor(amount, idle)
	if backup.Sign() > 0 {
		assets := fixedpoint.Copy(floating.AssetsAverage)
		used := fixedpoint.Add(fixedpoint.Copy(floating.Debt), fixedpoint.Copy(floating.BackupBorrowed))
		used.Add(used, backup)
		uFloating := Utilization(used, assets)
		if assets.Sign() == 0 || uFloating.Cmp(fixedpoint.Wad()) > 0 {
			uFloating = fixedpoint.Wad()
		}
		floatingAnnual, err := m.FloatingRate(uFloating)
		if err != nil {
			return nil, err
		}
		backupAnnual := fixedpoint.Max(annual, floatingAnnual)
		blended := new(big.Int).Mul(annual, fixedpoint.Sub(amount, backup))
		blended.Add(blended, new(big.Int).Mul(backupAnnual, backup))
		annual = blended.Quo(blended, amount)
	}

	return fixedpoint.MulDivDown(annual, new(big.Int).SetUint64(maturity-now), big.NewInt(Year)), nil
}
