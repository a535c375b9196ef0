package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	fp "termlend/native/fixedpoint"
)

// TotalAssets returns the floating pool's assets including earnings
// recognised but not yet accrued.
func (m *Market) TotalAssets() (*big.Int, error) {
	now := m.now()
	pool, err := m.previewPool(now)
	if err != nil {
		return nil, err
	}
	return m.totalAssets(pool, now)
}

// TotalFloatingBorrowAssets returns floating debt including pending interest.
func (m *Market) TotalFloatingBorrowAssets() (*big.Int, error) {
	pool, err := m.previewPool(m.now())
	if err != nil {
		return nil, err
	}
	return pool.FloatingDebt, nil
}

// FloatingPool returns a copy of the floating pool accrued to now.
func (m *Market) FloatingPool() (*FloatingPool, error) {
	return m.previewPool(m.now())
}

// TotalSupply returns the outstanding deposit shares, including those the
// next accrual mints to the treasury.
func (m *Market) TotalSupply() (*big.Int, error) {
	pool, err := m.previewPool(m.now())
	if err != nil {
		return nil, err
	}
	return pool.TotalSupply, nil
}

// BalanceOf returns the account's deposit shares.
func (m *Market) BalanceOf(addr common.Address) (*big.Int, error) {
	account, err := m.Account(addr)
	if err != nil {
		return nil, err
	}
	return account.DepositShares, nil
}

// Account returns a copy of the account's record in this market.
func (m *Market) Account(addr common.Address) (*Account, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	return m.loadAccount(addr)
}

// AccountMaturities lists the maturities the account holds fixed deposits
// and fixed borrows in, ascending.
func (m *Market) AccountMaturities(addr common.Address) (deposits, borrows []uint64, err error) {
	account, err := m.Account(addr)
	if err != nil {
		return nil, nil, err
	}
	return maturityList(account.FixedDeposits), maturityList(account.FixedBorrows), nil
}

type previewFunc func(pool *FloatingPool, amount *big.Int, now uint64) (*big.Int, error)

func (m *Market) preview(amount *big.Int, fn previewFunc) (*big.Int, error) {
	now := m.now()
	pool, err := m.previewPool(now)
	if err != nil {
		return nil, err
	}
	return fn(pool, fp.Copy(amount), now)
}

// PreviewDeposit returns the shares a deposit of assets would mint.
func (m *Market) PreviewDeposit(assets *big.Int) (*big.Int, error) {
	return m.preview(assets, m.convertToShares)
}

// PreviewMint returns the assets minting shares would cost.
func (m *Market) PreviewMint(shares *big.Int) (*big.Int, error) {
	return m.preview(shares, m.assetsForMint)
}

// PreviewWithdraw returns the shares a withdrawal of assets would burn.
func (m *Market) PreviewWithdraw(assets *big.Int) (*big.Int, error) {
	return m.preview(assets, m.sharesForWithdraw)
}

// PreviewRedeem returns the assets redeeming shares would release.
func (m *Market) PreviewRedeem(shares *big.Int) (*big.Int, error) {
	return m.preview(shares, m.convertToAssets)
}

// PreviewBorrow returns the borrow shares a floating borrow would mint.
func (m *Market) PreviewBorrow(assets *big.Int) (*big.Int, error) {
	return m.preview(assets, func(pool *FloatingPool, amount *big.Int, _ uint64) (*big.Int, error) {
		return borrowSharesFor(pool, amount), nil
	})
}

// PreviewRepay returns the borrow shares repaying assets would burn.
func (m *Market) PreviewRepay(assets *big.Int) (*big.Int, error) {
	return m.preview(assets, func(pool *FloatingPool, amount *big.Int, _ uint64) (*big.Int, error) {
		return repaySharesFor(pool, amount), nil
	})
}

// PreviewRefund returns the debt burning borrow shares would settle.
func (m *Market) PreviewRefund(shares *big.Int) (*big.Int, error) {
	return m.preview(shares, func(pool *FloatingPool, amount *big.Int, _ uint64) (*big.Int, error) {
		return refundAssetsFor(pool, amount), nil
	})
}

// PreviewDebt returns everything the account owes in this market now:
// fixed positions with penalties on matured ones plus floating debt.
func (m *Market) PreviewDebt(addr common.Address) (*big.Int, error) {
	now := m.now()
	pool, err := m.previewPool(now)
	if err != nil {
		return nil, err
	}
	account, err := m.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return m.previewDebt(pool, account, addr, now)
}

func (m *Market) previewDebt(pool *FloatingPool, account *Account, addr common.Address, now uint64) (*big.Int, error) {
	debt := new(big.Int)
	if fp.Positive(account.FixedBorrowPrincipal) {
		for _, maturity := range maturityList(account.FixedBorrows) {
			position, err := m.loadPosition(SideBorrow, maturity, addr)
			if err != nil {
				return nil, err
			}
			owed := position.Assets()
			debt.Add(debt, owed)
			debt.Add(debt, fp.MulWadDown(owed, m.penaltyFactor(maturity, now)))
		}
	}
	if fp.Positive(account.BorrowShares) {
		debt.Add(debt, refundAssetsFor(pool, account.BorrowShares))
	}
	return debt, nil
}

// AccountSnapshot returns the assets the account's deposit shares are worth
// and the debt it owes, both accrued to now.
func (m *Market) AccountSnapshot(addr common.Address) (assets, debt *big.Int, err error) {
	now := m.now()
	pool, err := m.previewPool(now)
	if err != nil {
		return nil, nil, err
	}
	account, err := m.loadAccount(addr)
	if err != nil {
		return nil, nil, err
	}
	assets = new(big.Int)
	if fp.Positive(account.DepositShares) {
		assets, err = m.convertToAssets(pool, account.DepositShares, now)
		if err != nil {
			return nil, nil, err
		}
	}
	debt, err = m.previewDebt(pool, account, addr, now)
	if err != nil {
		return nil, nil, err
	}
	return assets, debt, nil
}

// MaxWithdraw returns the most the owner can withdraw given its balance and
// the floating pool's free liquidity. Solvency is not considered.
func (m *Market) MaxWithdraw(owner common.Address) (*big.Int, error) {
	now := m.now()
	pool, err := m.previewPool(now)
	if err != nil {
		return nil, err
	}
	account, err := m.loadAccount(owner)
	if err != nil {
		return nil, err
	}
	balance, err := m.convertToAssets(pool, account.DepositShares, now)
	if err != nil {
		return nil, err
	}
	free := fp.SubFloor(pool.FloatingAssets, fp.Add(pool.FloatingDebt, pool.BackupBorrowed))
	return fp.Min(balance, free), nil
}
