package lending

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	nativecommon "termlend/native/common"
	fp "termlend/native/fixedpoint"
)

func TestRepayOnLiquidationSettlesFixedThenFloating(t *testing.T) {
	env := newFixedEnv(t)
	liquidator := makeAddress(0x09)
	owed, _, err := env.market.BorrowAtMaturity(env.borrower, env.maturity, wad(100), nil)
	require.NoError(t, err)
	_, err = env.market.Borrow(env.borrower, wad(50))
	require.NoError(t, err)

	env.advance(env.maturity - env.market.now() + 24*60*60)
	debt, err := env.market.PreviewDebt(env.borrower)
	require.NoError(t, err)
	require.True(t, debt.Cmp(fp.Add(owed, wad(50))) > 0)

	repaid, err := env.market.RepayOnLiquidation(liquidator, env.borrower, wad(1_000))
	require.NoError(t, err)
	require.Equal(t, 0, repaid.Cmp(debt), "repaid %s debt %s", repaid, debt)

	account, err := env.market.Account(env.borrower)
	require.NoError(t, err)
	require.False(t, account.HasDebt())
	require.True(t, account.FixedBorrows.IsZero())
}

func TestRepayOnLiquidationCapsMaturedDebt(t *testing.T) {
	env := newFixedEnv(t)
	_, _, err := env.market.BorrowAtMaturity(env.borrower, env.maturity, wad(100), nil)
	require.NoError(t, err)
	env.advance(env.maturity - env.market.now() + 10*24*60*60)

	repaid, err := env.market.RepayOnLiquidation(makeAddress(0x09), env.borrower, wad(30))
	require.NoError(t, err)
	require.True(t, repaid.Cmp(wad(30)) <= 0)
	require.True(t, repaid.Cmp(wad(29)) > 0)

	position, err := env.market.Position(SideBorrow, env.maturity, env.borrower)
	require.NoError(t, err)
	require.False(t, position.IsZero())
	_, borrows, err := env.market.AccountMaturities(env.borrower)
	require.NoError(t, err)
	require.Equal(t, []uint64{env.maturity}, borrows)
}

func TestRepayOnLiquidationWithoutDebt(t *testing.T) {
	env := newTestEnv(t)
	env.mustDeposit(t, makeAddress(0x01), wad(10))
	_, err := env.market.RepayOnLiquidation(makeAddress(0x09), makeAddress(0x01), wad(1))
	require.ErrorIs(t, err, ErrZeroRepay)
}

func TestSeizeMovesShares(t *testing.T) {
	env := newTestEnv(t)
	borrower := makeAddress(0x02)
	liquidator := makeAddress(0x09)
	env.mustDeposit(t, borrower, wad(100))
	env.market.SetPauses(nativecommon.NewPauses())
	require.NoError(t, env.market.SetPaused(testAdmin, true))

	_, err := env.market.Seize("DAI", liquidator, borrower, new(big.Int))
	require.ErrorIs(t, err, ErrZeroWithdraw)
	_, err = env.market.Seize("USDC", liquidator, borrower, wad(10))
	require.ErrorIs(t, err, errStubNotListed)
	_, err = env.market.Seize("DAI", liquidator, borrower, wad(101))
	require.ErrorIs(t, err, ErrSeizeExceedsBalance)

	shares, err := env.market.Seize("DAI", liquidator, borrower, wad(40))
	require.NoError(t, err)
	require.Equal(t, 0, shares.Cmp(wad(40)))

	seized, err := env.market.BalanceOf(liquidator)
	require.NoError(t, err)
	require.Equal(t, 0, seized.Cmp(wad(40)))
	left, err := env.market.BalanceOf(borrower)
	require.NoError(t, err)
	require.Equal(t, 0, left.Cmp(wad(60)))
	total, err := env.market.TotalAssets()
	require.NoError(t, err)
	require.Equal(t, 0, total.Cmp(wad(100)))
}
