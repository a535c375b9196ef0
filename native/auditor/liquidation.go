package auditor

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"termlend/core/events"
	fp "termlend/native/fixedpoint"
)

// CalculateSeize converts repaid assets of repayMarket into the collateral
// assets of seizeMarket owed to the liquidator, including the incentive.
// Every step rounds up.
func (a *Auditor) CalculateSeize(repayMarket, seizeMarket string, repaid *big.Int) (*big.Int, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	repayData, err := a.marketData(repayMarket)
	if err != nil {
		return nil, err
	}
	seizeData, err := a.marketData(seizeMarket)
	if err != nil {
		return nil, err
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	repayPrice, err := a.oracle.Price(repayData.PriceFeed)
	if err != nil {
		return nil, fmt.Errorf("auditor: price %s: %w", repayMarket, err)
	}
	seizePrice, err := a.oracle.Price(seizeData.PriceFeed)
	if err != nil {
		return nil, fmt.Errorf("auditor: price %s: %w", seizeMarket, err)
	}
	return seizeAmount(repaid, repayPrice, seizePrice, repayData.Decimals, seizeData.Decimals, reg.LiquidationIncentive), nil
}

func seizeAmount(repaid, repayPrice, seizePrice *big.Int, repayDecimals, seizeDecimals uint8, incentive *big.Int) *big.Int {
	out := fp.MulDivUp(fp.Copy(repaid), repayPrice, seizePrice)
	out = fp.MulDivUp(out, fp.Pow10(seizeDecimals), fp.Pow10(repayDecimals))
	return fp.MulWadUp(out, incentive)
}

// Liquidate repays up to repayAmount of the borrower's debt in repayMarket on
// behalf of the liquidator and transfers the equivalent collateral, plus the
// incentive, from seizeMarket. The borrower must be in shortfall. Any failure
// along the chain reverts every market it touched.
func (a *Auditor) Liquidate(repayMarket, seizeMarket string, liquidator, borrower common.Address, repayAmount *big.Int) (repaid, seized *big.Int, err error) {
	if err := a.ready(); err != nil {
		return nil, nil, err
	}
	if liquidator == borrower {
		return nil, nil, ErrLiquidatorIsBorrower
	}
	if !fp.Positive(repayAmount) {
		return nil, nil, fmt.Errorf("%w: repay amount must be positive", ErrInvalidParameter)
	}
	snapshot := a.state.Snapshot()
	defer func() {
		if err != nil {
			a.state.RevertToSnapshot(snapshot)
			a.logger.Debug("liquidation rejected",
				slog.String("repay_market", repayMarket),
				slog.String("seize_market", seizeMarket),
				slog.String("borrower", borrower.Hex()),
				slog.String("liquidator", liquidator.Hex()),
				slog.String("error", err.Error()))
			repaid, seized = nil, nil
		}
	}()

	repayer, _, err := a.market(repayMarket)
	if err != nil {
		return nil, nil, err
	}
	seizer, _, err := a.market(seizeMarket)
	if err != nil {
		return nil, nil, err
	}
	collateral, debt, err := a.AccountLiquidity(borrower, "", nil)
	if err != nil {
		return nil, nil, err
	}
	if collateral.Cmp(debt) >= 0 {
		return nil, nil, ErrInsufficientShortfall
	}

	repaid, err = repayer.RepayOnLiquidation(liquidator, borrower, repayAmount)
	if err != nil {
		return nil, nil, err
	}
	seized, err = a.CalculateSeize(repayMarket, seizeMarket, repaid)
	if err != nil {
		return nil, nil, err
	}
	available, _, err := seizer.AccountSnapshot(borrower)
	if err != nil {
		return nil, nil, err
	}
	if seized.Cmp(available) > 0 {
		return nil, nil, ErrSeizeExceedsBalance
	}
	if _, err = seizer.Seize(repayMarket, liquidator, borrower, seized); err != nil {
		return nil, nil, err
	}

	a.emit(events.Liquidation{
		RepayMarket: repayMarket,
		SeizeMarket: seizeMarket,
		Liquidator:  liquidator,
		Borrower:    borrower,
		Repaid:      fp.Copy(repaid),
		Seized:      fp.Copy(seized),
	})
	a.telemetry.ObserveLiquidation(repayMarket, seizeMarket)
	a.logger.Info("account liquidated",
		slog.String("repay_market", repayMarket),
		slog.String("seize_market", seizeMarket),
		slog.String("borrower", borrower.Hex()),
		slog.String("repaid", repaid.String()),
		slog.String("seized", seized.String()))
	return repaid, seized, nil
}
