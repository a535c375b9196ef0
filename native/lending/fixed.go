package lending

import (
	"math/big"

	fp "termlend/native/fixedpoint"
)

func newFixedPool() *FixedPool {
	return &FixedPool{Borrowed: new(big.Int), Supplied: new(big.Int), UnassignedEarnings: new(big.Int)}
}

// BackupSupplied returns the part of Borrowed not covered by Supplied, which
// the floating pool lends to this maturity.
func (p *FixedPool) BackupSupplied() *big.Int {
	return fp.SubFloor(p.Borrowed, p.Supplied)
}

// deposit records new supply and returns how much of it pays down backup
// borrowing from the floating pool.
func (p *FixedPool) deposit(amount *big.Int) *big.Int {
	reduction := fp.Min(p.BackupSupplied(), amount)
	p.Supplied = fp.Add(p.Supplied, amount)
	return reduction
}

// repay removes repaid principal and returns the backup debt it retires.
func (p *FixedPool) repay(amount *big.Int) *big.Int {
	reduction := fp.Min(p.BackupSupplied(), amount)
	p.Borrowed = fp.SubFloor(p.Borrowed, amount)
	return reduction
}

// borrow records new principal and returns the part the floating pool must
// back.
func (p *FixedPool) borrow(amount *big.Int) *big.Int {
	newBorrowed := fp.Add(p.Borrowed, amount)
	covered := fp.Min(fp.Max(p.Borrowed, p.Supplied), newBorrowed)
	p.Borrowed = newBorrowed
	return fp.Sub(newBorrowed, covered)
}

// withdraw removes supplied principal and returns the backup borrowing it
// forces onto the floating pool.
func (p *FixedPool) withdraw(amount *big.Int) *big.Int {
	newSupply := fp.SubFloor(p.Supplied, amount)
	addition := fp.Sub(fp.Min(p.Supplied, p.Borrowed), fp.Min(newSupply, p.Borrowed))
	p.Supplied = newSupply
	return addition
}

// pendingEarnings is the part of UnassignedEarnings recognised by now, without
// mutating the pool.
func (p *FixedPool) pendingEarnings(maturity, now uint64) *big.Int {
	if p.LastAccrual >= maturity {
		return new(big.Int)
	}
	if now >= maturity {
		return fp.Copy(p.UnassignedEarnings)
	}
	elapsed := new(big.Int).SetUint64(now - p.LastAccrual)
	remaining := new(big.Int).SetUint64(maturity - p.LastAccrual)
	return fp.MulDivDown(fp.Copy(p.UnassignedEarnings), elapsed, remaining)
}

// accrueEarnings releases unassigned earnings linearly toward maturity and
// returns the recognised amount, which belongs to the floating pool.
func (p *FixedPool) accrueEarnings(maturity, now uint64) *big.Int {
	earnings := p.pendingEarnings(maturity, now)
	if p.LastAccrual < maturity {
		if now < maturity {
			p.LastAccrual = now
		} else {
			p.LastAccrual = maturity
		}
	}
	p.UnassignedEarnings = fp.SubFloor(p.UnassignedEarnings, earnings)
	return earnings
}

// calculateDeposit returns the yield a deposit of amount earns from the pool's
// unassigned earnings and the backup fee withheld from it. Only deposits that
// replace floating backup earn yield.
func (p *FixedPool) calculateDeposit(amount, backupFeeRate *big.Int) (yield, backupFee *big.Int) {
	backup := p.BackupSupplied()
	if backup.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	yield = fp.MulDivDown(fp.Copy(p.UnassignedEarnings), fp.Min(amount, backup), backup)
	backupFee = fp.MulWadDown(yield, backupFeeRate)
	return yield.Sub(yield, backupFee), backupFee
}

// distributeEarnings splits a fee paid against borrowAmount into the part
// backed by floating liquidity, kept as unassigned earnings, and the part
// funded by idle fixed supply, returned as backup earnings.
func (p *FixedPool) distributeEarnings(earnings, borrowAmount *big.Int) (unassigned, backupEarnings *big.Int) {
	if borrowAmount.Sign() == 0 {
		return fp.Copy(earnings), new(big.Int)
	}
	unbacked := fp.Sub(borrowAmount, fp.Min(p.BackupSupplied(), borrowAmount))
	backupEarnings = fp.MulDivDown(earnings, unbacked, borrowAmount)
	return fp.Sub(earnings, backupEarnings), backupEarnings
}

// scaleProportionally returns a position with principal+fee equal to amount
// and the same principal/fee ratio as p.
func (p *Position) scaleProportionally(amount *big.Int) *Position {
	total := p.Assets()
	if total.Sign() == 0 {
		return &Position{Principal: fp.Copy(amount), Fee: new(big.Int)}
	}
	principal := fp.MulDivDown(amount, fp.Copy(p.Principal), total)
	return &Position{Principal: principal, Fee: fp.Sub(amount, principal)}
}

// reduceProportionally returns p with amount removed pro rata from principal
// and fee.
func (p *Position) reduceProportionally(amount *big.Int) *Position {
	total := p.Assets()
	remaining := fp.SubFloor(total, amount)
	if total.Sign() == 0 || remaining.Sign() == 0 {
		return &Position{Principal: new(big.Int), Fee: new(big.Int)}
	}
	principal := fp.MulDivDown(remaining, fp.Copy(p.Principal), total)
	return &Position{Principal: principal, Fee: fp.Sub(remaining, principal)}
}
