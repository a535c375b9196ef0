package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"termlend/core/events"
	fp "termlend/native/fixedpoint"
	"termlend/native/irm"
)

// DepositAtMaturity lends assets to the maturity pool at a fixed yield drawn
// from the pool's unassigned earnings. It fails when the yield is below
// minFee and returns the position assets owed at maturity with the fee.
func (m *Market) DepositAtMaturity(receiver common.Address, maturity uint64, assets, minFee *big.Int) (*big.Int, *big.Int, error) {
	if err := requirePositive(assets); err != nil {
		return nil, nil, err
	}
	var owed, earned *big.Int
	err := m.execute("deposit_at_maturity", true, func(now uint64, pool *FloatingPool) error {
		if err := checkPoolState(maturity, now, m.params.MaxFuturePools, PoolValid); err != nil {
			return err
		}
		fixed, err := m.accrueFixed(pool, maturity, now)
		if err != nil {
			return err
		}
		fee, backupFee := fixed.calculateDeposit(assets, m.params.BackupFeeRate)
		if fee.Cmp(fp.Copy(minFee)) < 0 {
			return ErrInsufficientYield
		}
		pool.BackupBorrowed = fp.SubFloor(pool.BackupBorrowed, fixed.deposit(assets))
		fixed.UnassignedEarnings = fp.SubFloor(fixed.UnassignedEarnings, fp.Add(fee, backupFee))
		pool.EarningsAccumulator.Add(pool.EarningsAccumulator, backupFee)
		if err := m.storeFixed(maturity, fixed); err != nil {
			return err
		}
		if err := m.openPosition(SideDeposit, maturity, receiver, assets, fee); err != nil {
			return err
		}
		owed, earned = fp.Add(assets, fee), fee
		m.emit(events.LendingAction{Action: events.TypeLendingDepositAtMaturity, Market: m.id, Caller: receiver, Account: receiver, Maturity: maturity, Assets: assets, Fee: fee})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return owed, earned, nil
}

// BorrowAtMaturity borrows assets until maturity at the rate quoted by the
// interest rate model. It fails when the fee exceeds maxFee and returns the
// position assets owed at maturity with the fee.
func (m *Market) BorrowAtMaturity(borrower common.Address, maturity uint64, assets, maxFee *big.Int) (*big.Int, *big.Int, error) {
	if err := requirePositive(assets); err != nil {
		return nil, nil, err
	}
	var owed, charged *big.Int
	err := m.execute("borrow_at_maturity", true, func(now uint64, pool *FloatingPool) error {
		if err := checkPoolState(maturity, now, m.params.MaxFuturePools, PoolValid); err != nil {
			return err
		}
		fixed, err := m.accrueFixed(pool, maturity, now)
		if err != nil {
			return err
		}
		fee, err := m.quoteBorrow(pool, fixed, maturity, now, assets)
		if err != nil {
			return err
		}
		if maxFee != nil && fee.Cmp(maxFee) > 0 {
			return ErrFeeExceedsMax
		}
		backup := fp.Add(pool.BackupBorrowed, fixed.borrow(assets))
		limit := fp.MulWadDown(pool.FloatingAssets, fp.Sub(fp.Wad(), m.params.ReserveFactor))
		if fp.Add(backup, pool.FloatingDebt).Cmp(limit) > 0 {
			return ErrInsufficientProtocolLiquidity
		}
		pool.BackupBorrowed = backup
		if err := m.storeFixed(maturity, fixed); err != nil {
			return err
		}
		net, err := m.chargeTreasuryFee(pool, fee, now)
		if err != nil {
			return err
		}
		unassigned, backupEarnings := fixed.distributeEarnings(net, assets)
		fixed.UnassignedEarnings.Add(fixed.UnassignedEarnings, unassigned)
		if err := m.storeFixed(maturity, fixed); err != nil {
			return err
		}
		if err := m.collectFreeLunch(pool, backupEarnings, now); err != nil {
			return err
		}
		if err := m.openPosition(SideBorrow, maturity, borrower, assets, fee); err != nil {
			return err
		}
		if err := m.storePool(pool); err != nil {
			return err
		}
		if err := m.auditor.CheckBorrow(m.id, borrower); err != nil {
			return err
		}
		owed, charged = fp.Add(assets, fee), fee
		m.emit(events.LendingAction{Action: events.TypeLendingBorrowAtMaturity, Market: m.id, Caller: borrower, Account: borrower, Maturity: maturity, Assets: assets, Fee: fee})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return owed, charged, nil
}

// WithdrawAtMaturity removes positionAssets from the owner's fixed deposit.
// Before maturity the amount is discounted at the current fixed borrow rate.
// It fails when the assets released fall below minAssets.
func (m *Market) WithdrawAtMaturity(owner common.Address, maturity uint64, positionAssets, minAssets *big.Int) (*big.Int, error) {
	if err := requirePositive(positionAssets); err != nil {
		return nil, err
	}
	var released *big.Int
	err := m.execute("withdraw_at_maturity", true, func(now uint64, pool *FloatingPool) error {
		if err := checkPoolState(maturity, now, m.params.MaxFuturePools, PoolValid, PoolMatured); err != nil {
			return err
		}
		fixed, err := m.accrueFixed(pool, maturity, now)
		if err != nil {
			return err
		}
		position, err := m.loadPosition(SideDeposit, maturity, owner)
		if err != nil {
			return err
		}
		if positionAssets.Cmp(position.Assets()) > 0 {
			return ErrTokensMoreThanBalance
		}
		principal := position.scaleProportionally(positionAssets).Principal
		backup := fp.Add(pool.BackupBorrowed, fixed.withdraw(principal))
		if fp.Add(backup, pool.FloatingDebt).Cmp(pool.FloatingAssets) > 0 {
			return ErrInsufficientProtocolLiquidity
		}
		pool.BackupBorrowed = backup

		assets := fp.Copy(positionAssets)
		if now < maturity {
			rate, err := m.model.FixedRate(maturity, now, positionAssets,
				irm.FixedPool{Borrowed: fixed.Borrowed, Supplied: fixed.Supplied},
				irm.FloatingPool{AssetsAverage: pool.FloatingAssetsAverage, Debt: pool.FloatingDebt, BackupBorrowed: pool.BackupBorrowed})
			if err != nil {
				return err
			}
			assets = fp.DivWadDown(positionAssets, fp.Add(fp.Wad(), rate))
		}
		if assets.Cmp(fp.Copy(minAssets)) < 0 {
			return ErrInsufficientYield
		}
		if err := m.storeFixed(maturity, fixed); err != nil {
			return err
		}
		net, err := m.chargeTreasuryFee(pool, fp.Sub(positionAssets, assets), now)
		if err != nil {
			return err
		}
		unassigned, backupEarnings := fixed.distributeEarnings(net, assets)
		fixed.UnassignedEarnings.Add(fixed.UnassignedEarnings, unassigned)
		if err := m.storeFixed(maturity, fixed); err != nil {
			return err
		}
		if err := m.collectFreeLunch(pool, backupEarnings, now); err != nil {
			return err
		}
		if err := m.reducePosition(SideDeposit, maturity, owner, position, positionAssets); err != nil {
			return err
		}
		if err := m.storePool(pool); err != nil {
			return err
		}
		released = assets
		m.emit(events.LendingAction{Action: events.TypeLendingWithdrawAtMaturity, Market: m.id, Caller: owner, Account: owner, Maturity: maturity, Assets: assets, Fee: fp.Sub(positionAssets, assets)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// RepayAtMaturity settles positionAssets of the borrower's fixed debt. Early
// repayments are discounted by the yield a deposit would earn, late ones pay
// the penalty rate per second past maturity. It fails when the amount due
// exceeds maxAssets and returns that amount otherwise.
func (m *Market) RepayAtMaturity(borrower common.Address, maturity uint64, positionAssets, maxAssets *big.Int) (*big.Int, error) {
	if err := requirePositive(positionAssets); err != nil {
		return nil, err
	}
	var paid *big.Int
	err := m.execute("repay_at_maturity", true, func(now uint64, pool *FloatingPool) error {
		var err error
		paid, err = m.repayAtMaturity(pool, now, borrower, borrower, maturity, positionAssets, maxAssets, true, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// repayAtMaturity settles fixed debt. discount enables the early repayment
// discount. With clamp set, amounts above the position are reduced to it
// instead of rejected.
func (m *Market) repayAtMaturity(pool *FloatingPool, now uint64, caller, borrower common.Address, maturity uint64, positionAssets, maxAssets *big.Int, discount, clamp bool) (*big.Int, error) {
	if err := checkPoolState(maturity, now, m.params.MaxFuturePools, PoolValid, PoolMatured); err != nil {
		return nil, err
	}
	fixed, err := m.accrueFixed(pool, maturity, now)
	if err != nil {
		return nil, err
	}
	position, err := m.loadPosition(SideBorrow, maturity, borrower)
	if err != nil {
		return nil, err
	}
	owed := position.Assets()
	if owed.Sign() == 0 {
		return nil, ErrZeroRepay
	}
	covered := fp.Copy(positionAssets)
	if covered.Cmp(owed) > 0 {
		if !clamp {
			return nil, ErrOverpayment
		}
		covered = owed
	}
	principal := position.scaleProportionally(covered).Principal

	actual := fp.Copy(covered)
	if now < maturity {
		if discount {
			fee, backupFee := fixed.calculateDeposit(principal, m.params.BackupFeeRate)
			fixed.UnassignedEarnings = fp.SubFloor(fixed.UnassignedEarnings, fp.Add(fee, backupFee))
			pool.EarningsAccumulator.Add(pool.EarningsAccumulator, backupFee)
			actual = fp.Sub(covered, fee)
		}
	} else {
		penalty := fp.MulWadDown(covered, m.penaltyFactor(maturity, now))
		pool.EarningsAccumulator.Add(pool.EarningsAccumulator, penalty)
		actual.Add(actual, penalty)
	}
	if maxAssets != nil && actual.Cmp(maxAssets) > 0 {
		return nil, ErrRepayExceedsMax
	}
	pool.BackupBorrowed = fp.SubFloor(pool.BackupBorrowed, fixed.repay(principal))
	if err := m.storeFixed(maturity, fixed); err != nil {
		return nil, err
	}
	if err := m.reducePosition(SideBorrow, maturity, borrower, position, covered); err != nil {
		return nil, err
	}
	m.emit(events.LendingAction{Action: events.TypeLendingRepayAtMaturity, Market: m.id, Caller: caller, Account: borrower, Maturity: maturity, Assets: actual, Fee: fp.Sub(covered, principal)})
	return actual, nil
}

// penaltyFactor is the WAD scaled penalty owed per unit of matured debt.
func (m *Market) penaltyFactor(maturity, now uint64) *big.Int {
	if now <= maturity {
		return new(big.Int)
	}
	return new(big.Int).Mul(fp.Copy(m.params.PenaltyRate), new(big.Int).SetUint64(now-maturity))
}

// accrueFixed recognises the maturity pool's pending earnings into the
// floating pool and persists the pool so share conversions see it accrued.
func (m *Market) accrueFixed(pool *FloatingPool, maturity, now uint64) (*FixedPool, error) {
	fixed, err := m.loadFixed(maturity)
	if err != nil {
		return nil, err
	}
	pool.FloatingAssets.Add(pool.FloatingAssets, fixed.accrueEarnings(maturity, now))
	if err := m.storeFixed(maturity, fixed); err != nil {
		return nil, err
	}
	return fixed, nil
}

// quoteBorrow prices a fixed borrow of assets against the current pools.
func (m *Market) quoteBorrow(pool *FloatingPool, fixed *FixedPool, maturity, now uint64, assets *big.Int) (*big.Int, error) {
	rate, err := m.model.FixedRate(maturity, now, assets,
		irm.FixedPool{Borrowed: fixed.Borrowed, Supplied: fixed.Supplied},
		irm.FloatingPool{AssetsAverage: pool.FloatingAssetsAverage, Debt: pool.FloatingDebt, BackupBorrowed: pool.BackupBorrowed})
	if err != nil {
		return nil, err
	}
	return fp.MulWadDown(assets, rate), nil
}

func (m *Market) openPosition(side Side, maturity uint64, addr common.Address, principal, fee *big.Int) error {
	position, err := m.loadPosition(side, maturity, addr)
	if err != nil {
		return err
	}
	account, err := m.loadAccount(addr)
	if err != nil {
		return err
	}
	if position.IsZero() {
		if side == SideDeposit {
			account.FixedDeposits, err = setMaturity(account.FixedDeposits, maturity)
		} else {
			account.FixedBorrows, err = setMaturity(account.FixedBorrows, maturity)
		}
		if err != nil {
			return err
		}
	}
	position.Principal.Add(position.Principal, principal)
	position.Fee.Add(position.Fee, fp.Copy(fee))
	if side == SideDeposit {
		account.FixedDepositPrincipal.Add(account.FixedDepositPrincipal, principal)
	} else {
		account.FixedBorrowPrincipal.Add(account.FixedBorrowPrincipal, principal)
	}
	if err := m.storePosition(side, maturity, addr, position); err != nil {
		return err
	}
	return m.storeAccount(addr, account)
}

func (m *Market) reducePosition(side Side, maturity uint64, addr common.Address, position *Position, amount *big.Int) error {
	reduced := position.reduceProportionally(amount)
	account, err := m.loadAccount(addr)
	if err != nil {
		return err
	}
	delta := fp.SubFloor(position.Principal, reduced.Principal)
	if side == SideDeposit {
		account.FixedDepositPrincipal = fp.SubFloor(account.FixedDepositPrincipal, delta)
		if reduced.IsZero() {
			account.FixedDeposits = clearMaturity(account.FixedDeposits, maturity)
		}
	} else {
		account.FixedBorrowPrincipal = fp.SubFloor(account.FixedBorrowPrincipal, delta)
		if reduced.IsZero() {
			account.FixedBorrows = clearMaturity(account.FixedBorrows, maturity)
		}
	}
	if err := m.storePosition(side, maturity, addr, reduced); err != nil {
		return err
	}
	return m.storeAccount(addr, account)
}

// PreviewDepositAtMaturity returns the yield a fixed deposit of assets would
// earn now.
func (m *Market) PreviewDepositAtMaturity(maturity uint64, assets *big.Int) (*big.Int, error) {
	if err := requirePositive(assets); err != nil {
		return nil, err
	}
	now := m.now()
	if err := checkPoolState(maturity, now, m.params.MaxFuturePools, PoolValid); err != nil {
		return nil, err
	}
	fixed, err := m.loadFixed(maturity)
	if err != nil {
		return nil, err
	}
	fixed.accrueEarnings(maturity, now)
	fee, _ := fixed.calculateDeposit(assets, m.params.BackupFeeRate)
	return fee, nil
}

// PreviewBorrowAtMaturity returns the fee a fixed borrow of assets would be
// charged now.
func (m *Market) PreviewBorrowAtMaturity(maturity uint64, assets *big.Int) (*big.Int, error) {
	if err := requirePositive(assets); err != nil {
		return nil, err
	}
	now := m.now()
	if err := checkPoolState(maturity, now, m.params.MaxFuturePools, PoolValid); err != nil {
		return nil, err
	}
	pool, err := m.previewPool(now)
	if err != nil {
		return nil, err
	}
	fixed, err := m.loadFixed(maturity)
	if err != nil {
		return nil, err
	}
	return m.quoteBorrow(pool, fixed, maturity, now, assets)
}

// FixedPool returns a copy of the maturity pool, or an empty pool when the
// maturity has never been used.
func (m *Market) FixedPool(maturity uint64) (*FixedPool, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	return m.loadFixed(maturity)
}

// Position returns the account's position at maturity on the given side.
func (m *Market) Position(side Side, maturity uint64, addr common.Address) (*Position, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	return m.loadPosition(side, maturity, addr)
}
