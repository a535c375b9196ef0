// Package simulator drives a deployed ledger through simulated time: price
// paths move the manual feed every block, scripted accounts act on the
// markets and a liquidator agent clears accounts in shortfall.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"termlend/core/ledger"
	fp "termlend/native/fixedpoint"
	"termlend/native/lending"
	telemetry "termlend/observability/otel"
)

// Report summarises a run.
type Report struct {
	Blocks        int
	Actions       int
	FailedActions int
	Liquidations  []Liquidation
	TotalAssets   map[string]*big.Int
	FloatingDebt  map[string]*big.Int
}

type scheduledAction struct {
	account common.Address
	name    string
	Action
}

// Runner executes a scenario against a ledger whose clock is the supplied
// mock.
type Runner struct {
	ledger     *ledger.Ledger
	clock      *clock.Mock
	scenario   *Scenario
	changers   []*PriceChanger
	schedule   map[int][]scheduledAction
	liquidator *Liquidator
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewRunner samples the price paths and seeds the feed with their initial
// prices.
func NewRunner(l *ledger.Ledger, mock *clock.Mock, sc *Scenario, logger *slog.Logger) (*Runner, error) {
	if l == nil || mock == nil || sc == nil {
		return nil, fmt.Errorf("simulator: ledger, clock and scenario required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		ledger:   l,
		clock:    mock,
		scenario: sc,
		schedule: make(map[int][]scheduledAction),
		tracer:   telemetry.Tracer("termlend/simulator"),
		logger:   logger.With(slog.String("component", "simulator")),
	}

	assets := make([]string, 0, len(sc.Prices))
	for asset := range sc.Prices {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		changer, err := NewPriceChanger(asset, sc.Prices[asset])
		if err != nil {
			return nil, err
		}
		if err := l.Feed.Set(asset, FloatToWad(changer.Initial())); err != nil {
			return nil, err
		}
		r.changers = append(r.changers, changer)
	}

	for _, acct := range sc.Accounts {
		addr := common.HexToAddress(acct.Address)
		for _, action := range acct.Actions {
			if _, ok := l.Market(action.Market); !ok {
				return nil, fmt.Errorf("simulator: account %s references unknown market %s", acct.Name, action.Market)
			}
			r.schedule[action.Block] = append(r.schedule[action.Block], scheduledAction{account: addr, name: acct.Name, Action: action})
		}
	}
	r.liquidator = NewLiquidator(l, sc.LiquidatorAddress(), sc.Addresses(), logger)
	return r, nil
}

// Run advances Blocks blocks. Block 0 executes before any time passes; every
// following block moves the clock by BlockSeconds and publishes the next
// prices before scripted actions and the liquidator run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	for block := 0; block <= r.scenario.Blocks; block++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.step(ctx, block, report); err != nil {
			return report, err
		}
		report.Blocks = block
	}
	report.TotalAssets = make(map[string]*big.Int)
	report.FloatingDebt = make(map[string]*big.Int)
	err := r.ledger.View(func() error {
		for _, id := range r.ledger.MarketIDs() {
			market, _ := r.ledger.Market(id)
			total, err := market.TotalAssets()
			if err != nil {
				return err
			}
			debt, err := market.TotalFloatingBorrowAssets()
			if err != nil {
				return err
			}
			report.TotalAssets[id] = total
			report.FloatingDebt[id] = debt
		}
		return nil
	})
	return report, err
}

func (r *Runner) step(ctx context.Context, block int, report *Report) error {
	_, span := r.tracer.Start(ctx, "simulator.block", trace.WithAttributes(attribute.Int("block", block)))
	defer span.End()

	if block > 0 {
		r.clock.Add(time.Duration(r.scenario.BlockSeconds) * time.Second)
		for _, changer := range r.changers {
			if err := r.ledger.Feed.Set(changer.Asset, changer.Next()); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}
	r.logger.Debug("block", slog.Int("block", block), slog.Int64("timestamp", r.clock.Now().Unix()))

	for _, action := range r.schedule[block] {
		report.Actions++
		if err := r.apply(action); err != nil {
			report.FailedActions++
			r.logger.Warn("action failed",
				slog.Int("block", block),
				slog.String("account", action.name),
				slog.String("op", action.Op),
				slog.String("market", action.Market),
				slog.Any("error", err))
		}
	}

	liquidations, err := r.liquidator.CheckLiquidations()
	if err != nil {
		span.RecordError(err)
		return err
	}
	report.Liquidations = append(report.Liquidations, liquidations...)
	span.SetAttributes(attribute.Int("liquidations", len(liquidations)))
	return nil
}

func (r *Runner) apply(action scheduledAction) error {
	market, _ := r.ledger.Market(action.Market)
	return r.ledger.Update(func() error {
		switch action.Op {
		case OpEnter:
			return r.ledger.Auditor.EnterMarket(action.account, action.Market)
		case OpExit:
			return r.ledger.Auditor.ExitMarket(action.account, action.Market)
		}
		amount, err := fp.ParseUnits(action.Amount, market.Decimals())
		if err != nil {
			return err
		}
		switch action.Op {
		case OpDeposit:
			_, err = market.Deposit(action.account, amount)
		case OpWithdraw:
			_, err = market.Withdraw(action.account, amount)
		case OpBorrow:
			_, err = market.Borrow(action.account, amount)
		case OpRepay:
			_, _, err = market.Repay(action.account, amount)
		case OpDepositAtMaturity:
			maturity := r.maturity(market, action.Maturity)
			_, _, err = market.DepositAtMaturity(action.account, maturity, amount, new(big.Int))
		case OpBorrowAtMaturity:
			maturity := r.maturity(market, action.Maturity)
			_, _, err = market.BorrowAtMaturity(action.account, maturity, amount, amount)
		default:
			err = fmt.Errorf("simulator: unknown op %q", action.Op)
		}
		return err
	})
}

// maturity resolves the n-th open maturity of the market at the current
// block. Indices past the open window address not-ready pools, which the
// market rejects.
func (r *Runner) maturity(market *lending.Market, index int) uint64 {
	now := market.Now()
	return now - now%lending.Interval + uint64(index)*lending.Interval
}
