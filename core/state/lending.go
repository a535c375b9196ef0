package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"termlend/native/lending"
)

type floatingPoolRecord struct {
	FloatingAssets         *big.Int
	FloatingDebt           *big.Int
	TotalBorrowShares      *big.Int
	BackupBorrowed         *big.Int
	EarningsAccumulator    *big.Int
	FloatingAssetsAverage  *big.Int
	TotalSupply            *big.Int
	LastAccumulatorAccrual uint64
	LastFloatingDebtUpdate uint64
	LastAverageUpdate      uint64
}

type fixedPoolRecord struct {
	Borrowed           *big.Int
	Supplied           *big.Int
	UnassignedEarnings *big.Int
	LastAccrual        uint64
}

type positionRecord struct {
	Principal *big.Int
	Fee       *big.Int
}

type accountRecord struct {
	DepositShares         *big.Int
	BorrowShares          *big.Int
	FixedDeposits         *big.Int
	FixedBorrows          *big.Int
	FixedDepositPrincipal *big.Int
	FixedBorrowPrincipal  *big.Int
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func maskToBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func maskFromBig(v *big.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int)
	}
	return out
}

// GetFloatingPool returns the market's floating pool or nil when unset.
func (m *Manager) GetFloatingPool(market string) (*lending.FloatingPool, error) {
	var rec floatingPoolRecord
	ok, err := m.KVGet(FloatingPoolKey(market), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.FloatingPool{
		FloatingAssets:         nonNil(rec.FloatingAssets),
		FloatingDebt:           nonNil(rec.FloatingDebt),
		TotalBorrowShares:      nonNil(rec.TotalBorrowShares),
		BackupBorrowed:         nonNil(rec.BackupBorrowed),
		EarningsAccumulator:    nonNil(rec.EarningsAccumulator),
		FloatingAssetsAverage:  nonNil(rec.FloatingAssetsAverage),
		TotalSupply:            nonNil(rec.TotalSupply),
		LastAccumulatorAccrual: rec.LastAccumulatorAccrual,
		LastFloatingDebtUpdate: rec.LastFloatingDebtUpdate,
		LastAverageUpdate:      rec.LastAverageUpdate,
	}, nil
}

// PutFloatingPool stores the market's floating pool.
func (m *Manager) PutFloatingPool(market string, pool *lending.FloatingPool) error {
	if pool == nil {
		pool = &lending.FloatingPool{}
	}
	return m.KVPut(FloatingPoolKey(market), &floatingPoolRecord{
		FloatingAssets:         nonNil(pool.FloatingAssets),
		FloatingDebt:           nonNil(pool.FloatingDebt),
		TotalBorrowShares:      nonNil(pool.TotalBorrowShares),
		BackupBorrowed:         nonNil(pool.BackupBorrowed),
		EarningsAccumulator:    nonNil(pool.EarningsAccumulator),
		FloatingAssetsAverage:  nonNil(pool.FloatingAssetsAverage),
		TotalSupply:            nonNil(pool.TotalSupply),
		LastAccumulatorAccrual: pool.LastAccumulatorAccrual,
		LastFloatingDebtUpdate: pool.LastFloatingDebtUpdate,
		LastAverageUpdate:      pool.LastAverageUpdate,
	})
}

// GetFixedPool returns one maturity pool or nil when it was never touched.
func (m *Manager) GetFixedPool(market string, maturity uint64) (*lending.FixedPool, error) {
	var rec fixedPoolRecord
	ok, err := m.KVGet(FixedPoolKey(market, maturity), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.FixedPool{
		Borrowed:           nonNil(rec.Borrowed),
		Supplied:           nonNil(rec.Supplied),
		UnassignedEarnings: nonNil(rec.UnassignedEarnings),
		LastAccrual:        rec.LastAccrual,
	}, nil
}

// PutFixedPool stores one maturity pool.
func (m *Manager) PutFixedPool(market string, maturity uint64, pool *lending.FixedPool) error {
	if pool == nil {
		pool = &lending.FixedPool{}
	}
	return m.KVPut(FixedPoolKey(market, maturity), &fixedPoolRecord{
		Borrowed:           nonNil(pool.Borrowed),
		Supplied:           nonNil(pool.Supplied),
		UnassignedEarnings: nonNil(pool.UnassignedEarnings),
		LastAccrual:        pool.LastAccrual,
	})
}

// GetPosition returns an account's fixed position or nil when absent.
func (m *Manager) GetPosition(market string, side lending.Side, maturity uint64, addr common.Address) (*lending.Position, error) {
	var rec positionRecord
	ok, err := m.KVGet(PositionKey(market, side.String(), maturity, addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.Position{Principal: nonNil(rec.Principal), Fee: nonNil(rec.Fee)}, nil
}

// PutPosition stores an account's fixed position.
func (m *Manager) PutPosition(market string, side lending.Side, maturity uint64, addr common.Address, pos *lending.Position) error {
	if pos == nil {
		pos = &lending.Position{}
	}
	return m.KVPut(PositionKey(market, side.String(), maturity, addr), &positionRecord{
		Principal: nonNil(pos.Principal),
		Fee:       nonNil(pos.Fee),
	})
}

// GetAccount returns an account's market record or nil when absent.
func (m *Manager) GetAccount(market string, addr common.Address) (*lending.Account, error) {
	var rec accountRecord
	ok, err := m.KVGet(AccountKey(market, addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.Account{
		DepositShares:         nonNil(rec.DepositShares),
		BorrowShares:          nonNil(rec.BorrowShares),
		FixedDeposits:         maskFromBig(rec.FixedDeposits),
		FixedBorrows:          maskFromBig(rec.FixedBorrows),
		FixedDepositPrincipal: nonNil(rec.FixedDepositPrincipal),
		FixedBorrowPrincipal:  nonNil(rec.FixedBorrowPrincipal),
	}, nil
}

// PutAccount stores an account's market record and indexes the account.
func (m *Manager) PutAccount(market string, addr common.Address, account *lending.Account) error {
	if account == nil {
		account = &lending.Account{}
	}
	err := m.KVPut(AccountKey(market, addr), &accountRecord{
		DepositShares:         nonNil(account.DepositShares),
		BorrowShares:          nonNil(account.BorrowShares),
		FixedDeposits:         maskToBig(account.FixedDeposits),
		FixedBorrows:          maskToBig(account.FixedBorrows),
		FixedDepositPrincipal: nonNil(account.FixedDepositPrincipal),
		FixedBorrowPrincipal:  nonNil(account.FixedBorrowPrincipal),
	})
	if err != nil {
		return err
	}
	return m.KVAppend(AccountIndexKey(market), addr.Bytes())
}

// MarketAccounts lists the accounts that hold or held a record in the market,
// in first-seen order.
func (m *Manager) MarketAccounts(market string) ([]common.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(AccountIndexKey(market), &raw); err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(raw))
	for _, b := range raw {
		out = append(out, common.BytesToAddress(b))
	}
	return out, nil
}
