package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"termlend/core/events"
	fp "termlend/native/fixedpoint"
)

// Deposit adds assets to the floating pool and mints deposit shares to
// receiver, rounding down.
func (m *Market) Deposit(receiver common.Address, assets *big.Int) (*big.Int, error) {
	if err := requirePositive(assets); err != nil {
		return nil, err
	}
	var minted *big.Int
	err := m.execute("deposit", true, func(now uint64, pool *FloatingPool) error {
		shares, err := m.convertToShares(pool, assets, now)
		if err != nil {
			return err
		}
		if shares.Sign() == 0 {
			return ErrZeroDeposit
		}
		minted = shares
		return m.mintShares(pool, receiver, assets, shares)
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// Mint mints exactly shares to receiver and returns the assets charged,
// rounding up.
func (m *Market) Mint(receiver common.Address, shares *big.Int) (*big.Int, error) {
	if err := requirePositive(shares); err != nil {
		return nil, err
	}
	var charged *big.Int
	err := m.execute("mint", true, func(now uint64, pool *FloatingPool) error {
		assets, err := m.assetsForMint(pool, shares, now)
		if err != nil {
			return err
		}
		charged = assets
		return m.mintShares(pool, receiver, assets, shares)
	})
	if err != nil {
		return nil, err
	}
	return charged, nil
}

func (m *Market) mintShares(pool *FloatingPool, receiver common.Address, assets, shares *big.Int) error {
	account, err := m.loadAccount(receiver)
	if err != nil {
		return err
	}
	account.DepositShares.Add(account.DepositShares, shares)
	pool.TotalSupply.Add(pool.TotalSupply, shares)
	pool.FloatingAssets.Add(pool.FloatingAssets, assets)
	if err := m.storeAccount(receiver, account); err != nil {
		return err
	}
	m.emit(events.LendingAction{Action: events.TypeLendingDeposit, Market: m.id, Caller: receiver, Account: receiver, Assets: assets, Shares: shares})
	return nil
}

// Withdraw burns the shares worth assets from owner, rounding up, and
// releases the assets.
func (m *Market) Withdraw(owner common.Address, assets *big.Int) (*big.Int, error) {
	if err := requirePositive(assets); err != nil {
		return nil, err
	}
	var burned *big.Int
	err := m.execute("withdraw", true, func(now uint64, pool *FloatingPool) error {
		shares, err := m.sharesForWithdraw(pool, assets, now)
		if err != nil {
			return err
		}
		burned = shares
		return m.burnShares(pool, owner, assets, shares)
	})
	if err != nil {
		return nil, err
	}
	return burned, nil
}

// Redeem burns shares from owner and returns the assets released, rounding
// down.
func (m *Market) Redeem(owner common.Address, shares *big.Int) (*big.Int, error) {
	if err := requirePositive(shares); err != nil {
		return nil, err
	}
	var released *big.Int
	err := m.execute("redeem", true, func(now uint64, pool *FloatingPool) error {
		assets, err := m.convertToAssets(pool, shares, now)
		if err != nil {
			return err
		}
		released = assets
		return m.burnShares(pool, owner, assets, shares)
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func (m *Market) burnShares(pool *FloatingPool, owner common.Address, assets, shares *big.Int) error {
	if shares.Sign() == 0 || assets.Sign() == 0 {
		return ErrZeroWithdraw
	}
	account, err := m.loadAccount(owner)
	if err != nil {
		return err
	}
	if shares.Cmp(account.DepositShares) > 0 {
		return ErrTokensMoreThanBalance
	}
	if err := m.auditor.CheckShortfall(m.id, owner, assets); err != nil {
		return err
	}
	if assets.Cmp(pool.FloatingAssets) > 0 {
		return ErrInsufficientProtocolLiquidity
	}
	remaining := fp.Sub(pool.FloatingAssets, assets)
	if fp.Add(pool.BackupBorrowed, pool.FloatingDebt).Cmp(remaining) > 0 {
		return ErrInsufficientProtocolLiquidity
	}
	account.DepositShares.Sub(account.DepositShares, shares)
	pool.TotalSupply = fp.SubFloor(pool.TotalSupply, shares)
	pool.FloatingAssets = remaining
	if err := m.storeAccount(owner, account); err != nil {
		return err
	}
	m.emit(events.LendingAction{Action: events.TypeLendingWithdraw, Market: m.id, Caller: owner, Account: owner, Assets: assets, Shares: shares})
	return nil
}

// Borrow lends assets at the floating rate and mints borrow shares, rounding
// up. The borrower must remain solvent.
func (m *Market) Borrow(borrower common.Address, assets *big.Int) (*big.Int, error) {
	if err := requirePositive(assets); err != nil {
		return nil, err
	}
	var minted *big.Int
	err := m.execute("borrow", true, func(now uint64, pool *FloatingPool) error {
		shares := borrowSharesFor(pool, assets)
		pool.FloatingDebt.Add(pool.FloatingDebt, assets)
		limit := fp.MulWadDown(pool.FloatingAssets, fp.Sub(fp.Wad(), m.params.ReserveFactor))
		if fp.Add(pool.BackupBorrowed, pool.FloatingDebt).Cmp(limit) > 0 {
			return ErrInsufficientProtocolLiquidity
		}
		account, err := m.loadAccount(borrower)
		if err != nil {
			return err
		}
		account.BorrowShares.Add(account.BorrowShares, shares)
		pool.TotalBorrowShares.Add(pool.TotalBorrowShares, shares)
		if err := m.storeAccount(borrower, account); err != nil {
			return err
		}
		if err := m.storePool(pool); err != nil {
			return err
		}
		if err := m.auditor.CheckBorrow(m.id, borrower); err != nil {
			return err
		}
		minted = shares
		m.emit(events.LendingAction{Action: events.TypeLendingBorrow, Market: m.id, Caller: borrower, Account: borrower, Assets: assets, Shares: shares})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// Repay settles assets of floating debt, burning the shares they are worth
// rounded down. It returns the debt actually settled and the shares burned.
func (m *Market) Repay(borrower common.Address, assets *big.Int) (*big.Int, *big.Int, error) {
	if err := requirePositive(assets); err != nil {
		return nil, nil, err
	}
	var repaid, burned *big.Int
	err := m.execute("repay", true, func(now uint64, pool *FloatingPool) error {
		burned = repaySharesFor(pool, assets)
		var err error
		repaid, err = m.refund(pool, borrower, borrower, burned, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return repaid, burned, nil
}

// Refund burns borrow shares and returns the debt they settled, rounding up.
func (m *Market) Refund(borrower common.Address, shares *big.Int) (*big.Int, error) {
	if err := requirePositive(shares); err != nil {
		return nil, err
	}
	var repaid *big.Int
	err := m.execute("refund", true, func(now uint64, pool *FloatingPool) error {
		var err error
		repaid, err = m.refund(pool, borrower, borrower, shares, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

// refund burns borrow shares from borrower. With clamp set, shares beyond the
// borrower's balance are ignored instead of rejected.
func (m *Market) refund(pool *FloatingPool, caller, borrower common.Address, shares *big.Int, clamp bool) (*big.Int, error) {
	account, err := m.loadAccount(borrower)
	if err != nil {
		return nil, err
	}
	if shares.Cmp(account.BorrowShares) > 0 {
		if !clamp {
			return nil, ErrOverpayment
		}
		shares = fp.Copy(account.BorrowShares)
	}
	assets := refundAssetsFor(pool, shares)
	if shares.Sign() == 0 || assets.Sign() == 0 {
		return nil, ErrZeroRepay
	}
	pool.FloatingDebt = fp.SubFloor(pool.FloatingDebt, assets)
	pool.TotalBorrowShares = fp.SubFloor(pool.TotalBorrowShares, shares)
	account.BorrowShares.Sub(account.BorrowShares, shares)
	if err := m.storeAccount(borrower, account); err != nil {
		return nil, err
	}
	m.emit(events.LendingAction{Action: events.TypeLendingRepay, Market: m.id, Caller: caller, Account: borrower, Assets: assets, Shares: shares})
	return assets, nil
}

// Transfer moves deposit shares between accounts. The sender must remain
// solvent without the assets the shares are worth.
func (m *Market) Transfer(from, to common.Address, shares *big.Int) error {
	if err := requirePositive(shares); err != nil {
		return err
	}
	return m.execute("transfer", true, func(now uint64, pool *FloatingPool) error {
		sender, err := m.loadAccount(from)
		if err != nil {
			return err
		}
		if shares.Cmp(sender.DepositShares) > 0 {
			return ErrTokensMoreThanBalance
		}
		assets, err := m.convertToAssets(pool, shares, now)
		if err != nil {
			return err
		}
		if err := m.auditor.CheckShortfall(m.id, from, assets); err != nil {
			return err
		}
		if err := m.moveShares(from, to, shares); err != nil {
			return err
		}
		m.emit(events.LendingAction{Action: events.TypeLendingTransfer, Market: m.id, Caller: from, Account: from, Counterparty: to, Assets: assets, Shares: shares})
		return nil
	})
}

func (m *Market) moveShares(from, to common.Address, shares *big.Int) error {
	if from == to {
		return nil
	}
	sender, err := m.loadAccount(from)
	if err != nil {
		return err
	}
	sender.DepositShares.Sub(sender.DepositShares, shares)
	if err := m.storeAccount(from, sender); err != nil {
		return err
	}
	receiver, err := m.loadAccount(to)
	if err != nil {
		return err
	}
	receiver.DepositShares.Add(receiver.DepositShares, shares)
	return m.storeAccount(to, receiver)
}
