package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	fp "termlend/native/fixedpoint"
)

// Params groups the admin controlled parameters of a market. Ratios and
// rates are WAD scaled.
type Params struct {
	// ReserveFactor is the share of floating assets that may not be lent out.
	ReserveFactor *big.Int
	// TreasuryFeeRate is the share of interest and fixed fees minted to the
	// treasury as deposit shares.
	TreasuryFeeRate *big.Int
	// Treasury receives treasury fee shares.
	Treasury common.Address
	// PenaltyRate is charged per second on matured, unsettled fixed borrows.
	PenaltyRate *big.Int
	// BackupFeeRate is withheld from fixed deposit yield and early repay
	// discounts and credited to the earnings accumulator.
	BackupFeeRate *big.Int
	// EarningsAccumulatorSmoothFactor scales the release time constant of the
	// earnings accumulator in units of MaxFuturePools intervals.
	EarningsAccumulatorSmoothFactor *big.Int
	// DampSpeedUp and DampSpeedDown are the per-second speeds at which the
	// floating assets average follows rising and falling floating assets.
	DampSpeedUp   *big.Int
	DampSpeedDown *big.Int
	// MaxFuturePools is how many maturities are open at once.
	MaxFuturePools uint8
}

// DefaultParams returns the parameter set markets are deployed with when no
// overrides are configured.
func DefaultParams() Params {
	return Params{
		ReserveFactor:                   fp.Fraction(1, 10),
		TreasuryFeeRate:                 new(big.Int),
		PenaltyRate:                     new(big.Int).Quo(fp.Fraction(2, 100), big.NewInt(24*60*60)),
		BackupFeeRate:                   fp.Fraction(1, 10),
		EarningsAccumulatorSmoothFactor: fp.Fraction(2, 1),
		DampSpeedUp:                     fp.Fraction(46, 10_000),
		DampSpeedDown:                   fp.Fraction(42, 100),
		MaxFuturePools:                  6,
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.ReserveFactor = fp.Copy(p.ReserveFactor)
	clone.TreasuryFeeRate = fp.Copy(p.TreasuryFeeRate)
	clone.PenaltyRate = fp.Copy(p.PenaltyRate)
	clone.BackupFeeRate = fp.Copy(p.BackupFeeRate)
	clone.EarningsAccumulatorSmoothFactor = fp.Copy(p.EarningsAccumulatorSmoothFactor)
	clone.DampSpeedUp = fp.Copy(p.DampSpeedUp)
	clone.DampSpeedDown = fp.Copy(p.DampSpeedDown)
	return clone
}

var (
	maxReserveFactor   = fp.Fraction(9, 10)
	maxTreasuryFeeRate = fp.Fraction(1, 10)
	maxBackupFeeRate   = fp.Fraction(1, 2)
	maxPenaltyRate     = new(big.Int).Quo(fp.Wad(), big.NewInt(24*60*60))
	maxDampSpeed       = fp.Wad()
)

func checkRange(name string, v, max *big.Int) error {
	if v == nil || v.Sign() < 0 || v.Cmp(max) > 0 {
		return fmt.Errorf("%w: %s out of range", ErrInvalidParameter, name)
	}
	return nil
}

// Validate ensures every parameter sits inside its accepted range.
func (p Params) Validate() error {
	if err := checkRange("reserve factor", p.ReserveFactor, maxReserveFactor); err != nil {
		return err
	}
	if err := checkRange("treasury fee rate", p.TreasuryFeeRate, maxTreasuryFeeRate); err != nil {
		return err
	}
	if err := checkRange("penalty rate", p.PenaltyRate, maxPenaltyRate); err != nil {
		return err
	}
	if err := checkRange("backup fee rate", p.BackupFeeRate, maxBackupFeeRate); err != nil {
		return err
	}
	if p.EarningsAccumulatorSmoothFactor == nil || p.EarningsAccumulatorSmoothFactor.Sign() < 0 {
		return fmt.Errorf("%w: smooth factor out of range", ErrInvalidParameter)
	}
	if err := checkRange("damp speed up", p.DampSpeedUp, maxDampSpeed); err != nil {
		return err
	}
	if err := checkRange("damp speed down", p.DampSpeedDown, maxDampSpeed); err != nil {
		return err
	}
	if p.MaxFuturePools == 0 || p.MaxFuturePools > maxMaturityRange {
		return fmt.Errorf("%w: max future pools out of range", ErrInvalidParameter)
	}
	if fp.Positive(p.TreasuryFeeRate) && p.Treasury == (common.Address{}) {
		return fmt.Errorf("%w: treasury fee without treasury", ErrInvalidParameter)
	}
	return nil
}
