package simulator

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"termlend/core/ledger"
	"termlend/native/auditor"
	fp "termlend/native/fixedpoint"
	"termlend/native/previewer"
)

// maxSizingRounds bounds how often a repay amount is shrunk to absorb the
// upward rounding of the seize computation.
const maxSizingRounds = 8

// Liquidation records one executed liquidation.
type Liquidation struct {
	Borrower    common.Address
	RepayMarket string
	SeizeMarket string
	Repaid      *big.Int
	Seized      *big.Int
}

// Liquidator watches a fixed set of accounts and liquidates those in
// shortfall, repaying the market where the account owes the most value and
// seizing from the entered market where it holds the most.
type Liquidator struct {
	Address  common.Address
	ledger   *ledger.Ledger
	accounts []common.Address
	logger   *slog.Logger
}

// NewLiquidator builds a liquidator acting as addr.
func NewLiquidator(l *ledger.Ledger, addr common.Address, accounts []common.Address, logger *slog.Logger) *Liquidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Liquidator{
		Address:  addr,
		ledger:   l,
		accounts: append([]common.Address(nil), accounts...),
		logger:   logger.With(slog.String("agent", "liquidator")),
	}
}

type liquidationPlan struct {
	repayMarket string
	seizeMarket string
	amount      *big.Int
}

// CheckLiquidations scans every watched account once. Healthy accounts are
// skipped; failures on one account are logged and do not stop the scan.
func (l *Liquidator) CheckLiquidations() ([]Liquidation, error) {
	var out []Liquidation
	for _, account := range l.accounts {
		if account == l.Address {
			continue
		}
		var plan *liquidationPlan
		err := l.ledger.View(func() error {
			var err error
			plan, err = l.plan(account)
			return err
		})
		if err != nil {
			return out, err
		}
		if plan == nil {
			continue
		}
		var repaid, seized *big.Int
		err = l.ledger.Update(func() error {
			var err error
			repaid, seized, err = l.ledger.Auditor.Liquidate(plan.repayMarket, plan.seizeMarket, l.Address, account, plan.amount)
			return err
		})
		if err != nil {
			l.logger.Warn("liquidation failed",
				slog.String("borrower", account.Hex()),
				slog.String("repay_market", plan.repayMarket),
				slog.String("seize_market", plan.seizeMarket),
				slog.Any("error", err))
			continue
		}
		out = append(out, Liquidation{
			Borrower:    account,
			RepayMarket: plan.repayMarket,
			SeizeMarket: plan.seizeMarket,
			Repaid:      repaid,
			Seized:      seized,
		})
	}
	return out, nil
}

func (l *Liquidator) plan(account common.Address) (*liquidationPlan, error) {
	preview := l.ledger.Previewer
	collateral, debt, factor, err := preview.Health(account)
	if err != nil {
		return nil, err
	}
	if collateral.Cmp(debt) >= 0 {
		return nil, nil
	}
	l.logger.Info("account in shortfall", slog.String("account", account.Hex()), slog.Float64("health_factor", factor))

	views, err := preview.Account(account)
	if err != nil {
		return nil, err
	}
	repay, seize := pickMarkets(views)
	if repay == nil || seize == nil {
		return nil, nil
	}
	amount, err := l.sizeRepay(account, repay, seize)
	if err != nil {
		return nil, err
	}
	if !fp.Positive(amount) {
		return nil, nil
	}
	return &liquidationPlan{repayMarket: repay.Market, seizeMarket: seize.Market, amount: amount}, nil
}

// pickMarkets selects the market with the largest debt value to repay and the
// collateral market with the largest deposit value to seize.
func pickMarkets(views []previewer.MarketAccount) (repay, seize *previewer.MarketAccount) {
	for i := range views {
		v := &views[i]
		if v.DebtAssets().Sign() > 0 && (repay == nil || v.DebtValue().Cmp(repay.DebtValue()) > 0) {
			repay = v
		}
		if v.IsCollateral && v.FloatingDepositAssets.Sign() > 0 && (seize == nil || v.DepositValue().Cmp(seize.DepositValue()) > 0) {
			seize = v
		}
	}
	return repay, seize
}

// sizeRepay returns the largest repay amount whose seize fits inside the
// borrower's collateral in the seize market, capped at the outstanding debt.
func (l *Liquidator) sizeRepay(account common.Address, repay, seize *previewer.MarketAccount) (*big.Int, error) {
	market, ok := l.ledger.Market(repay.Market)
	if !ok {
		return nil, fmt.Errorf("simulator: market %s not deployed", repay.Market)
	}
	owed, err := market.PreviewDebt(account)
	if err != nil {
		return nil, err
	}
	incentive, err := l.ledger.Auditor.LiquidationIncentive()
	if err != nil {
		return nil, err
	}
	available := seize.FloatingDepositAssets
	amount := fp.MulDivDown(available, seize.Price, repay.Price)
	amount = fp.MulDivDown(amount, fp.Pow10(repay.Decimals), fp.Pow10(seize.Decimals))
	amount = fp.DivWadDown(amount, incentive)
	amount = fp.Min(amount, owed)

	for i := 0; i < maxSizingRounds; i++ {
		if amount.Sign() == 0 {
			return amount, nil
		}
		seized, err := l.ledger.Auditor.CalculateSeize(repay.Market, seize.Market, amount)
		if err != nil {
			return nil, err
		}
		if seized.Cmp(available) <= 0 {
			return amount, nil
		}
		amount = fp.SubFloor(amount, new(big.Int).Add(new(big.Int).Quo(amount, big.NewInt(1_000_000)), big.NewInt(1)))
	}
	return nil, errors.Join(auditor.ErrSeizeExceedsBalance, fmt.Errorf("simulator: cannot size repay for %s", account.Hex()))
}
