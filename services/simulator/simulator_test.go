package simulator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"

	"termlend/config"
	"termlend/core/ledger"
)

const crashScenario = `
blockSeconds: 3600
liquidator: "0x00000000000000000000000000000000000000ff"
prices:
  weth: {initialPrice: 2000, mean: 1000, stdDev: 0, theta: 0.5, t0: 0, tn: 6, steps: 6}
  usdc: {initialPrice: 1, mean: 1, stdDev: 0, theta: 1, t0: 0, tn: 6, steps: 6}
accounts:
  - name: bob
    address: "0x00000000000000000000000000000000000000b0"
    actions:
      - {block: 0, op: deposit, market: usdc, amount: "100000"}
  - name: alice
    address: "0x00000000000000000000000000000000000000a1"
    actions:
      - {block: 0, op: deposit, market: weth, amount: "10"}
      - {block: 0, op: enter, market: weth}
      - {block: 0, op: borrow, market: usdc, amount: "14000"}
`

func TestPriceProcessSeededPathIsReproducible(t *testing.T) {
	seed := uint64(42)
	process := PriceProcess{InitialPrice: 1, Mean: 1, StdDev: 0.01, Theta: 3, T0: 0, Tn: 100, Steps: 250, Seed: &seed}
	first, err := process.Path()
	require.NoError(t, err)
	second, err := process.Path()
	require.NoError(t, err)
	require.Len(t, first, 251)
	require.Equal(t, first, second)
	for _, p := range first {
		require.Greater(t, p, 0.0)
	}
}

func TestPriceProcessWithoutNoiseRevertsToMean(t *testing.T) {
	process := PriceProcess{InitialPrice: 2000, Mean: 1000, Theta: 0.5, T0: 0, Tn: 2, Steps: 2}
	path, err := process.Path()
	require.NoError(t, err)
	require.Equal(t, []float64{2000, 1500, 1250}, path)

	changer, err := NewPriceChanger("WETH", process)
	require.NoError(t, err)
	require.Equal(t, FloatToWad(1500), changer.Next())
	require.Equal(t, FloatToWad(1250), changer.Next())
	require.Equal(t, 0, changer.Remaining())
	require.Equal(t, FloatToWad(1250), changer.Next())
}

func TestParseScenarioRejectsBadActions(t *testing.T) {
	_, err := ParseScenario([]byte(`
blocks: 3
accounts:
  - name: x
    address: "0x0000000000000000000000000000000000000001"
    actions:
      - {block: 0, op: borrowAtMaturity, market: usdc, amount: "1"}
`))
	require.ErrorContains(t, err, "maturity index")

	_, err = ParseScenario([]byte(`
blocks: 3
accounts:
  - name: x
    address: "0x0000000000000000000000000000000000000001"
    actions:
      - {block: 0, op: teleport, market: usdc, amount: "1"}
`))
	require.ErrorContains(t, err, "unknown op")

	_, err = ParseScenario([]byte(`accounts: []`))
	require.Error(t, err)
}

func TestRunnerLiquidatesAfterPriceCrash(t *testing.T) {
	sc, err := ParseScenario([]byte(crashScenario))
	require.NoError(t, err)
	require.Equal(t, 6, sc.Blocks)

	mock := clock.NewMock()
	l, err := ledger.Deploy(config.Default(), ledger.Options{Clock: mock})
	require.NoError(t, err)
	defer l.Close()

	runner, err := NewRunner(l, mock, sc, nil)
	require.NoError(t, err)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 6, report.Blocks)
	require.Equal(t, 4, report.Actions)
	require.Zero(t, report.FailedActions)
	require.NotEmpty(t, report.Liquidations)

	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	first := report.Liquidations[0]
	require.Equal(t, alice, first.Borrower)
	require.Equal(t, "USDC", first.RepayMarket)
	require.Equal(t, "WETH", first.SeizeMarket)
	require.Positive(t, first.Repaid.Sign())

	usdc, _ := l.Market("USDC")
	debt, err := usdc.PreviewDebt(alice)
	require.NoError(t, err)
	require.Negative(t, debt.Cmp(big.NewInt(14_000_000_000)))

	weth, _ := l.Market("WETH")
	liquidatorShares, err := weth.BalanceOf(sc.LiquidatorAddress())
	require.NoError(t, err)
	require.Positive(t, liquidatorShares.Sign())
	require.Positive(t, report.TotalAssets["USDC"].Sign())
}
