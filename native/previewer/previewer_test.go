package previewer

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"

	"termlend/core/state"
	"termlend/native/auditor"
	fp "termlend/native/fixedpoint"
	"termlend/native/irm"
	"termlend/native/lending"
	"termlend/native/oracle"
	"termlend/storage"
)

func address(b byte) common.Address {
	var out common.Address
	out[len(out)-1] = b
	return out
}

func TestAccountViewAcrossMarkets(t *testing.T) {
	admin, lender, borrower := address(0xAD), address(0x01), address(0x02)
	mock := clock.NewMock()
	mock.Add(time.Duration(1000*lending.Interval) * time.Second)
	mgr := state.NewManager(storage.NewMemDB())
	feed := oracle.NewManualFeed(time.Hour)
	feed.SetClock(mock)
	a := auditor.NewAuditor(admin, feed)
	a.SetState(mgr)

	model := &irm.Model{Fixed: irm.NewCurve(0.023, -0.0025, 1.02), Floating: irm.NewCurve(0.023, -0.0025, 1.02)}
	var markets []*lending.Market
	for _, def := range []struct {
		id       string
		decimals uint8
		price    string
	}{{"USDC", 6, "1"}, {"WETH", 18, "2000"}} {
		m := lending.NewMarket(def.id, def.decimals, admin, lending.DefaultParams(), model)
		m.SetState(mgr)
		m.SetAuditor(a)
		m.SetClock(mock)
		require.NoError(t, feed.SetDecimal(def.id, def.price))
		require.NoError(t, a.ListMarket(admin, m, def.id, fp.Fraction(8, 10)))
		markets = append(markets, m)
	}
	usdc, weth := markets[0], markets[1]
	million := new(big.Int).Mul(big.NewInt(1_000_000), fp.Pow10(6))
	_, err := usdc.Deposit(lender, million)
	require.NoError(t, err)
	_, err = weth.Deposit(borrower, fp.Wad())
	require.NoError(t, err)
	require.NoError(t, a.EnterMarket(borrower, "WETH"))
	_, err = usdc.Borrow(borrower, big.NewInt(500_000_000))
	require.NoError(t, err)
	maturity := lending.OpenMaturities(usdc.Now(), 6)[0]
	_, _, err = usdc.BorrowAtMaturity(borrower, maturity, big.NewInt(100_000_000), nil)
	require.NoError(t, err)

	p := New(a, feed, markets...)
	views, err := p.Account(borrower)
	require.NoError(t, err)
	require.Len(t, views, 2)

	require.Equal(t, "USDC", views[0].Market)
	require.True(t, views[0].IsCollateral)
	require.Zero(t, views[0].FloatingBorrowAssets.Cmp(big.NewInt(500_000_000)))
	require.Len(t, views[0].FixedBorrows, 1)
	require.Equal(t, maturity, views[0].FixedBorrows[0].Maturity)
	require.Zero(t, views[0].FixedBorrows[0].Principal.Cmp(big.NewInt(100_000_000)))
	require.Positive(t, views[0].DebtValue().Cmp(new(big.Int).Mul(big.NewInt(600), fp.Wad())))

	require.Equal(t, "WETH", views[1].Market)
	require.True(t, views[1].IsCollateral)
	require.Zero(t, views[1].DepositValue().Cmp(new(big.Int).Mul(big.NewInt(2000), fp.Wad())))

	_, _, factor, err := p.Health(borrower)
	require.NoError(t, err)
	require.Greater(t, factor, 1.0)
	_, _, factor, err = p.Health(lender)
	require.NoError(t, err)
	require.True(t, math.IsInf(factor, 1))
}
