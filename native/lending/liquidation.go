package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"termlend/core/events"
	fp "termlend/native/fixedpoint"
)

// RepayOnLiquidation settles up to maxAssets of the borrower's debt on behalf
// of the liquidator: fixed borrows in maturity order, matured ones with their
// penalty, then floating debt. It returns the assets actually repaid. Pauses
// do not apply.
func (m *Market) RepayOnLiquidation(liquidator, borrower common.Address, maxAssets *big.Int) (*big.Int, error) {
	if err := requirePositive(maxAssets); err != nil {
		return nil, err
	}
	var repaid *big.Int
	err := m.execute("repay_on_liquidation", false, func(now uint64, pool *FloatingPool) error {
		account, err := m.loadAccount(borrower)
		if err != nil {
			return err
		}
		remaining := fp.Copy(maxAssets)
		for _, maturity := range maturityList(account.FixedBorrows) {
			if remaining.Sign() == 0 {
				break
			}
			position, err := m.loadPosition(SideBorrow, maturity, borrower)
			if err != nil {
				return err
			}
			if position.IsZero() {
				continue
			}
			covered := fp.Copy(remaining)
			if now >= maturity {
				owed := position.Assets()
				withPenalty := fp.Add(owed, fp.MulWadDown(owed, m.penaltyFactor(maturity, now)))
				if withPenalty.Cmp(remaining) > 0 {
					covered = fp.MulDivDown(remaining, owed, withPenalty)
				}
			}
			if covered.Sign() == 0 {
				break
			}
			actual, err := m.repayAtMaturity(pool, now, liquidator, borrower, maturity, covered, remaining, false, true)
			if err != nil {
				return err
			}
			remaining = fp.SubFloor(remaining, actual)
		}
		account, err = m.loadAccount(borrower)
		if err != nil {
			return err
		}
		if remaining.Sign() > 0 && account.BorrowShares.Sign() > 0 {
			shares := repaySharesFor(pool, remaining)
			if shares.Sign() > 0 {
				actual, err := m.refund(pool, liquidator, borrower, shares, true)
				if err != nil {
					return err
				}
				remaining = fp.SubFloor(remaining, actual)
			}
		}
		repaid = fp.Sub(maxAssets, remaining)
		if repaid.Sign() == 0 {
			return ErrZeroRepay
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

// Seize moves the deposit shares worth assets from the borrower to the
// liquidator. Only a listed repay market may trigger it. Pauses do not apply.
func (m *Market) Seize(repayMarket string, liquidator, borrower common.Address, assets *big.Int) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroWithdraw
	}
	var moved *big.Int
	err := m.execute("seize", false, func(now uint64, pool *FloatingPool) error {
		if err := m.auditor.CheckSeize(m.id, repayMarket); err != nil {
			return err
		}
		shares, err := m.sharesForWithdraw(pool, assets, now)
		if err != nil {
			return err
		}
		account, err := m.loadAccount(borrower)
		if err != nil {
			return err
		}
		if shares.Cmp(account.DepositShares) > 0 {
			return ErrSeizeExceedsBalance
		}
		if err := m.moveShares(borrower, liquidator, shares); err != nil {
			return err
		}
		moved = shares
		m.emit(events.LendingAction{Action: events.TypeLendingSeize, Market: m.id, Caller: liquidator, Account: borrower, Counterparty: liquidator, Assets: assets, Shares: shares})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}
