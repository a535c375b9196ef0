package fixedpoint

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseWad converts a decimal string such as "0.9" or "-0.0025" into a WAD.
// Digits beyond the 18th decimal are truncated.
func ParseWad(s string) (*big.Int, error) {
	return ParseUnits(s, 18)
}

// ParseUnits converts a decimal string into base units with the given number
// of decimals.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("fixedpoint: empty decimal")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// FormatUnits renders base units as a decimal string.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// FormatWad renders a WAD as a decimal string.
func FormatWad(v *big.Int) string { return FormatUnits(v, 18) }

// ToFloat converts base units to a float64 for metrics and display.
func ToFloat(v *big.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(v, -int32(decimals)).Float64()
	return f
}
