package lending

import (
	"math/big"

	"github.com/holiman/uint256"

	"termlend/native/fixedpoint"
)

// Side distinguishes fixed deposit positions from fixed borrow positions.
type Side uint8

const (
	SideDeposit Side = iota + 1
	SideBorrow
)

func (s Side) String() string {
	switch s {
	case SideDeposit:
		return "deposit"
	case SideBorrow:
		return "borrow"
	default:
		return "unknown"
	}
}

// FloatingPool captures the variable-rate accounting state of a market.
// Amounts are denominated in the market asset's base units.
type FloatingPool struct {
	// FloatingAssets is the underlying owned by floating depositors.
	FloatingAssets *big.Int
	// FloatingDebt is the outstanding floating borrow including accrued
	// interest as of LastFloatingDebtUpdate.
	FloatingDebt *big.Int
	// TotalBorrowShares is the sum of all accounts' floating borrow shares.
	TotalBorrowShares *big.Int
	// BackupBorrowed is the floating pool's exposure to maturity pools that
	// borrowed more than they were supplied.
	BackupBorrowed *big.Int
	// EarningsAccumulator buffers penalty and fee income that is released
	// into FloatingAssets over time.
	EarningsAccumulator *big.Int
	// FloatingAssetsAverage is a damped average of FloatingAssets used as the
	// backup capacity when quoting fixed rates.
	FloatingAssetsAverage *big.Int
	// TotalSupply is the number of outstanding deposit shares.
	TotalSupply *big.Int

	LastAccumulatorAccrual uint64
	LastFloatingDebtUpdate uint64
	LastAverageUpdate      uint64
}

// Clone returns a deep copy of the floating pool.
func (p *FloatingPool) Clone() *FloatingPool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.FloatingAssets = fixedpoint.Copy(p.FloatingAssets)
	clone.FloatingDebt = fixedpoint.Copy(p.FloatingDebt)
	clone.TotalBorrowShares = fixedpoint.Copy(p.TotalBorrowShares)
	clone.BackupBorrowed = fixedpoint.Copy(p.BackupBorrowed)
	clone.EarningsAccumulator = fixedpoint.Copy(p.EarningsAccumulator)
	clone.FloatingAssetsAverage = fixedpoint.Copy(p.FloatingAssetsAverage)
	clone.TotalSupply = fixedpoint.Copy(p.TotalSupply)
	return &clone
}

func (p *FloatingPool) normalize() {
	p.FloatingAssets = fixedpoint.Copy(p.FloatingAssets)
	p.FloatingDebt = fixedpoint.Copy(p.FloatingDebt)
	p.TotalBorrowShares = fixedpoint.Copy(p.TotalBorrowShares)
	p.BackupBorrowed = fixedpoint.Copy(p.BackupBorrowed)
	p.EarningsAccumulator = fixedpoint.Copy(p.EarningsAccumulator)
	p.FloatingAssetsAverage = fixedpoint.Copy(p.FloatingAssetsAverage)
	p.TotalSupply = fixedpoint.Copy(p.TotalSupply)
}

// FixedPool is the state of one maturity pool. Pools are created on first
// touch and never removed.
type FixedPool struct {
	// Borrowed is the principal borrowed at this maturity.
	Borrowed *big.Int
	// Supplied is the principal deposited at this maturity.
	Supplied *big.Int
	// UnassignedEarnings are borrow fees not yet recognised by the floating
	// pool or claimed by new depositors.
	UnassignedEarnings *big.Int
	// LastAccrual is the timestamp unassigned earnings were last recognised.
	LastAccrual uint64
}

// Clone returns a deep copy of the maturity pool.
func (p *FixedPool) Clone() *FixedPool {
	if p == nil {
		return nil
	}
	return &FixedPool{
		Borrowed:           fixedpoint.Copy(p.Borrowed),
		Supplied:           fixedpoint.Copy(p.Supplied),
		UnassignedEarnings: fixedpoint.Copy(p.UnassignedEarnings),
		LastAccrual:        p.LastAccrual,
	}
}

// Position is an account's principal and fee at one maturity.
type Position struct {
	Principal *big.Int
	Fee       *big.Int
}

// Assets returns principal plus fee.
func (p *Position) Assets() *big.Int {
	if p == nil {
		return new(big.Int)
	}
	return fixedpoint.Add(fixedpoint.Copy(p.Principal), fixedpoint.Copy(p.Fee))
}

// IsZero reports whether the position holds nothing.
func (p *Position) IsZero() bool {
	return p == nil || (fixedpoint.IsZero(p.Principal) && fixedpoint.IsZero(p.Fee))
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return &Position{Principal: new(big.Int), Fee: new(big.Int)}
	}
	return &Position{Principal: fixedpoint.Copy(p.Principal), Fee: fixedpoint.Copy(p.Fee)}
}

// Account is the per-market state of a single participant.
type Account struct {
	// DepositShares is the account's balance of floating deposit shares.
	DepositShares *big.Int
	// BorrowShares is the account's share of floating debt.
	BorrowShares *big.Int
	// FixedDeposits and FixedBorrows are packed sets of the maturities the
	// account holds positions in.
	FixedDeposits *uint256.Int
	FixedBorrows  *uint256.Int
	// FixedDepositPrincipal and FixedBorrowPrincipal are running totals of
	// principal across all maturities.
	FixedDepositPrincipal *big.Int
	FixedBorrowPrincipal  *big.Int
}

func newAccount() *Account {
	return &Account{
		DepositShares:         new(big.Int),
		BorrowShares:          new(big.Int),
		FixedDeposits:         new(uint256.Int),
		FixedBorrows:          new(uint256.Int),
		FixedDepositPrincipal: new(big.Int),
		FixedBorrowPrincipal:  new(big.Int),
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return newAccount()
	}
	clone := &Account{
		DepositShares:         fixedpoint.Copy(a.DepositShares),
		BorrowShares:          fixedpoint.Copy(a.BorrowShares),
		FixedDeposits:         new(uint256.Int),
		FixedBorrows:          new(uint256.Int),
		FixedDepositPrincipal: fixedpoint.Copy(a.FixedDepositPrincipal),
		FixedBorrowPrincipal:  fixedpoint.Copy(a.FixedBorrowPrincipal),
	}
	if a.FixedDeposits != nil {
		clone.FixedDeposits.Set(a.FixedDeposits)
	}
	if a.FixedBorrows != nil {
		clone.FixedBorrows.Set(a.FixedBorrows)
	}
	return clone
}

// HasDebt reports whether the account owes anything in this market.
func (a *Account) HasDebt() bool {
	if a == nil {
		return false
	}
	return fixedpoint.Positive(a.BorrowShares) || fixedpoint.Positive(a.FixedBorrowPrincipal)
}
