// Package fixedpoint implements WAD (1e18-scaled) arithmetic over math/big
// with an explicit rounding direction on every division.
//
// All helpers treat their operands as non-negative unless documented
// otherwise and allocate fresh results; inputs are never mutated. Division by
// a zero denominator panics, so callers guard every denominator that can
// legitimately be zero.
package fixedpoint

import (
	"math/big"
)

var (
	wad  = big.NewInt(1_000_000_000_000_000_000)
	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

// Wad returns a fresh copy of 1e18.
func Wad() *big.Int { return new(big.Int).Set(wad) }

// Zero returns a fresh zero value.
func Zero() *big.Int { return new(big.Int) }

// Fraction returns num/den expressed in WAD, rounded down.
func Fraction(num, den int64) *big.Int {
	return MulDivDown(big.NewInt(num), wad, big.NewInt(den))
}

// Pow10 returns 10^decimals.
func Pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// MulDivDown returns floor(x*y/d).
func MulDivDown(x, y, d *big.Int) *big.Int {
	product := new(big.Int).Mul(x, y)
	return product.Quo(product, d)
}

// MulDivUp returns ceil(x*y/d).
func MulDivUp(x, y, d *big.Int) *big.Int {
	product := new(big.Int).Mul(x, y)
	quo, rem := new(big.Int).QuoRem(product, d, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, one)
	}
	return quo
}

// MulWadDown returns floor(x*y/1e18).
func MulWadDown(x, y *big.Int) *big.Int { return MulDivDown(x, y, wad) }

// MulWadUp returns ceil(x*y/1e18).
func MulWadUp(x, y *big.Int) *big.Int { return MulDivUp(x, y, wad) }

// DivWadDown returns floor(x*1e18/y).
func DivWadDown(x, y *big.Int) *big.Int { return MulDivDown(x, wad, y) }

// DivWadUp returns ceil(x*1e18/y).
func DivWadUp(x, y *big.Int) *big.Int { return MulDivUp(x, wad, y) }

// Min returns a copy of the smaller operand.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns a copy of the larger operand.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Add returns a+b.
func Add(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }

// Sub returns a-b.
func Sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }

// SubFloor returns max(a-b, 0).
func SubFloor(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(a, b)
}

// Copy returns a copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool { return v == nil || v.Sign() == 0 }

// Positive reports whether v is non-nil and strictly greater than zero.
func Positive(v *big.Int) bool { return v != nil && v.Sign() > 0 }

// Cmp compares a and b treating nil as zero.
func Cmp(a, b *big.Int) int {
	if a == nil {
		a = zero
	}
	if b == nil {
		b = zero
	}
	return a.Cmp(b)
}
