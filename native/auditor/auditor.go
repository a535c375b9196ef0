package auditor

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"termlend/core/events"
	fp "termlend/native/fixedpoint"
	"termlend/native/oracle"
	"termlend/observability/metrics"
)

var (
	minAdjustFactor = fp.Fraction(30, 100)
	maxAdjustFactor = fp.Fraction(90, 100)
	minIncentive    = fp.Fraction(105, 100)
	maxIncentive    = fp.Fraction(120, 100)
)

// DefaultLiquidationIncentive is the seize bonus used until the admin sets
// another one.
func DefaultLiquidationIncentive() *big.Int { return fp.Fraction(11, 10) }

// Auditor is the cross-market risk engine. It keeps the market registry and
// account memberships in state and aggregates oracle-priced collateral and
// debt across the markets an account has entered.
type Auditor struct {
	admin     common.Address
	state     riskState
	oracle    oracle.PriceFeed
	markets   map[string]Market
	logger    *slog.Logger
	telemetry *metrics.LedgerMetrics
}

// NewAuditor constructs an auditor reading prices from feed.
func NewAuditor(admin common.Address, feed oracle.PriceFeed) *Auditor {
	return &Auditor{
		admin:     admin,
		oracle:    feed,
		markets:   make(map[string]Market),
		logger:    slog.Default(),
		telemetry: metrics.Ledger(),
	}
}

// SetState binds the auditor to its persistence backend.
func (a *Auditor) SetState(state riskState) { a.state = state }

// SetOracle replaces the price feed.
func (a *Auditor) SetOracle(feed oracle.PriceFeed) { a.oracle = feed }

// SetLogger overrides the structured logger. Passing nil restores slog.Default.
func (a *Auditor) SetLogger(logger *slog.Logger) {
	if a == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	a.logger = logger.With(slog.String("component", "auditor"))
}

// Admin returns the account allowed to list markets and tune risk.
func (a *Auditor) Admin() common.Address { return a.admin }

func (a *Auditor) requireAdmin(caller common.Address) error {
	if caller != a.admin {
		return ErrNotAdmin
	}
	return nil
}

func (a *Auditor) ready() error {
	if a == nil || a.state == nil {
		return errNilState
	}
	if a.oracle == nil {
		return errNilOracle
	}
	return nil
}

func (a *Auditor) emit(evt events.Event) {
	if a.state != nil {
		a.state.AppendEvent(evt)
	}
}

// atomic runs fn inside a state snapshot that is reverted when fn fails.
func (a *Auditor) atomic(fn func() error) error {
	snapshot := a.state.Snapshot()
	if err := fn(); err != nil {
		a.state.RevertToSnapshot(snapshot)
		return err
	}
	return nil
}

func (a *Auditor) registry() (*Registry, error) {
	reg, err := a.state.GetRegistry()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return &Registry{LiquidationIncentive: DefaultLiquidationIncentive()}, nil
	}
	reg = reg.Clone()
	if !fp.Positive(reg.LiquidationIncentive) {
		reg.LiquidationIncentive = DefaultLiquidationIncentive()
	}
	return reg, nil
}

func (a *Auditor) marketData(id string) (*MarketData, error) {
	data, err := a.state.GetMarketData(id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotListed, id)
	}
	return data.Clone(), nil
}

func (a *Auditor) market(id string) (Market, *MarketData, error) {
	data, err := a.marketData(id)
	if err != nil {
		return nil, nil, err
	}
	market, ok := a.markets[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotMarket, id)
	}
	return market, data, nil
}

func (a *Auditor) accountMarkets(addr common.Address) (*uint256.Int, error) {
	mask, err := a.state.GetAccountMarkets(addr)
	if err != nil {
		return nil, err
	}
	if mask == nil {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(mask), nil
}

func checkAdjustFactor(v *big.Int) error {
	if v == nil || v.Cmp(minAdjustFactor) < 0 || v.Cmp(maxAdjustFactor) > 0 {
		return fmt.Errorf("%w: adjust factor must be within [0.30, 0.90]", ErrInvalidParameter)
	}
	return nil
}

// ListMarket registers a market with its oracle asset and adjust factor.
func (a *Auditor) ListMarket(caller common.Address, market Market, priceFeed string, adjustFactor *big.Int) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	if market == nil || strings.TrimSpace(market.ID()) == "" {
		return fmt.Errorf("%w: market required", ErrInvalidParameter)
	}
	if err := checkAdjustFactor(adjustFactor); err != nil {
		return err
	}
	id := market.ID()
	return a.atomic(func() error {
		existing, err := a.state.GetMarketData(id)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrMarketAlreadyListed, id)
		}
		reg, err := a.registry()
		if err != nil {
			return err
		}
		if len(reg.Markets) >= MaxMarkets {
			return ErrMarketLimit
		}
		data := &MarketData{
			Index:        uint8(len(reg.Markets)),
			Decimals:     market.Decimals(),
			AdjustFactor: fp.Copy(adjustFactor),
			PriceFeed:    strings.TrimSpace(priceFeed),
		}
		reg.Markets = append(reg.Markets, id)
		if err := a.state.PutRegistry(reg); err != nil {
			return err
		}
		if err := a.state.PutMarketData(id, data); err != nil {
			return err
		}
		a.markets[id] = market
		a.emit(events.MarketListed{Market: id, Index: data.Index, Decimals: data.Decimals, PriceFeed: data.PriceFeed})
		a.logger.Info("market listed", slog.String("market", id), slog.Int("index", int(data.Index)),
			slog.String("adjust_factor", fp.FormatWad(adjustFactor)))
		return nil
	})
}

// Attach binds a market ledger to a listing already present in state, as
// when a node restarts over persisted data.
func (a *Auditor) Attach(market Market) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	if market == nil {
		return fmt.Errorf("%w: market required", ErrInvalidParameter)
	}
	if _, err := a.marketData(market.ID()); err != nil {
		return err
	}
	a.markets[market.ID()] = market
	return nil
}

// Markets lists the listed market identifiers in listing order.
func (a *Auditor) Markets() ([]string, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	return reg.Markets, nil
}

// MarketData returns the risk parameters of a listed market.
func (a *Auditor) MarketData(id string) (*MarketData, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	return a.marketData(id)
}

// LiquidationIncentive returns the WAD scaled seize bonus.
func (a *Auditor) LiquidationIncentive() (*big.Int, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	return reg.LiquidationIncentive, nil
}

// AccountMarkets lists the markets the account has entered in index order.
func (a *Auditor) AccountMarkets(addr common.Address) ([]string, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	mask, err := a.accountMarkets(addr)
	if err != nil {
		return nil, err
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	var out []string
	err = forEachMarket(mask, func(index uint8) error {
		if int(index) < len(reg.Markets) {
			out = append(out, reg.Markets[index])
		}
		return nil
	})
	return out, err
}

// EnterMarket adds the market to the set whose deposits count as the
// account's collateral.
func (a *Auditor) EnterMarket(addr common.Address, id string) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	return a.atomic(func() error { return a.enter(addr, id) })
}

func (a *Auditor) enter(addr common.Address, id string) error {
	data, err := a.marketData(id)
	if err != nil {
		return err
	}
	mask, err := a.accountMarkets(addr)
	if err != nil {
		return err
	}
	if hasMarket(mask, data.Index) {
		return nil
	}
	if err := a.state.PutAccountMarkets(addr, withMarket(mask, data.Index)); err != nil {
		return err
	}
	a.emit(events.MarketMembership{Type: events.TypeAuditorMarketEntered, Market: id, Account: addr})
	return nil
}

// ExitMarket removes the market from the account's collateral set. The
// account must owe nothing there and stay solvent without its deposits.
func (a *Auditor) ExitMarket(addr common.Address, id string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.atomic(func() error {
		market, data, err := a.market(id)
		if err != nil {
			return err
		}
		mask, err := a.accountMarkets(addr)
		if err != nil {
			return err
		}
		if !hasMarket(mask, data.Index) {
			return nil
		}
		assets, debt, err := market.AccountSnapshot(addr)
		if err != nil {
			return err
		}
		if debt.Sign() != 0 {
			return ErrDebtNotZero
		}
		if err := a.CheckShortfall(id, addr, assets); err != nil {
			return err
		}
		if err := a.state.PutAccountMarkets(addr, withoutMarket(mask, data.Index)); err != nil {
			return err
		}
		a.emit(events.MarketMembership{Type: events.TypeAuditorMarketExited, Market: id, Account: addr})
		return nil
	})
}

// AccountLiquidity returns the account's adjusted collateral and debt in USD
// WAD across its markets. When simulateMarket is set, withdraw assets of that
// market are valued as extra debt.
func (a *Auditor) AccountLiquidity(addr common.Address, simulateMarket string, withdraw *big.Int) (collateral, debt *big.Int, err error) {
	if err := a.ready(); err != nil {
		return nil, nil, err
	}
	mask, err := a.accountMarkets(addr)
	if err != nil {
		return nil, nil, err
	}
	reg, err := a.registry()
	if err != nil {
		return nil, nil, err
	}
	collateral, debt = new(big.Int), new(big.Int)
	err = forEachMarket(mask, func(index uint8) error {
		if int(index) >= len(reg.Markets) {
			return fmt.Errorf("%w: index %d", ErrMarketNotListed, index)
		}
		id := reg.Markets[index]
		market, data, err := a.market(id)
		if err != nil {
			return err
		}
		assets, owed, err := market.AccountSnapshot(addr)
		if err != nil {
			return err
		}
		price, err := a.oracle.Price(data.PriceFeed)
		if err != nil {
			return fmt.Errorf("auditor: price %s: %w", id, err)
		}
		unit := fp.Pow10(data.Decimals)
		collateral.Add(collateral, fp.MulWadDown(fp.MulDivDown(assets, price, unit), data.AdjustFactor))
		debt.Add(debt, fp.MulDivUp(owed, price, unit))
		if id == simulateMarket && fp.Positive(withdraw) {
			debt.Add(debt, fp.MulWadDown(fp.MulDivDown(withdraw, price, unit), data.AdjustFactor))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return collateral, debt, nil
}

// CheckBorrow enters the borrower into the market when needed and fails with
// ErrInsufficientLiquidity if its debt exceeds its adjusted collateral.
func (a *Auditor) CheckBorrow(id string, borrower common.Address) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.enter(borrower, id); err != nil {
		return err
	}
	collateral, debt, err := a.AccountLiquidity(borrower, "", nil)
	if err != nil {
		return err
	}
	if collateral.Cmp(debt) < 0 {
		return ErrInsufficientLiquidity
	}
	return nil
}

// CheckShortfall fails with ErrInsufficientLiquidity when removing assets from
// the market would leave the account undercollateralised. Accounts that never
// entered the market are unaffected.
func (a *Auditor) CheckShortfall(id string, addr common.Address, assets *big.Int) error {
	if err := a.ready(); err != nil {
		return err
	}
	data, err := a.marketData(id)
	if err != nil {
		return err
	}
	mask, err := a.accountMarkets(addr)
	if err != nil {
		return err
	}
	if !hasMarket(mask, data.Index) {
		return nil
	}
	collateral, debt, err := a.AccountLiquidity(addr, id, assets)
	if err != nil {
		return err
	}
	if collateral.Cmp(debt) < 0 {
		return ErrInsufficientLiquidity
	}
	return nil
}

// CheckSeize allows a seize only between two listed markets.
func (a *Auditor) CheckSeize(seizeMarket, repayMarket string) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	if _, err := a.marketData(seizeMarket); err != nil {
		return err
	}
	_, err := a.marketData(repayMarket)
	return err
}

// SetAdjustFactor updates a listed market's collateral weight.
func (a *Auditor) SetAdjustFactor(caller common.Address, id string, factor *big.Int) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	if err := checkAdjustFactor(factor); err != nil {
		return err
	}
	return a.atomic(func() error {
		data, err := a.marketData(id)
		if err != nil {
			return err
		}
		old := data.AdjustFactor
		data.AdjustFactor = fp.Copy(factor)
		if err := a.state.PutMarketData(id, data); err != nil {
			return err
		}
		a.recordParam(caller, id, "adjust_factor", fp.FormatWad(old), fp.FormatWad(factor))
		return nil
	})
}

// SetPriceFeed updates the oracle asset a listed market is priced with.
func (a *Auditor) SetPriceFeed(caller common.Address, id, priceFeed string) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	return a.atomic(func() error {
		data, err := a.marketData(id)
		if err != nil {
			return err
		}
		old := data.PriceFeed
		data.PriceFeed = strings.TrimSpace(priceFeed)
		if err := a.state.PutMarketData(id, data); err != nil {
			return err
		}
		a.recordParam(caller, id, "price_feed", old, data.PriceFeed)
		return nil
	})
}

// SetLiquidationIncentive updates the seize bonus paid to liquidators.
func (a *Auditor) SetLiquidationIncentive(caller common.Address, incentive *big.Int) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	if incentive == nil || incentive.Cmp(minIncentive) < 0 || incentive.Cmp(maxIncentive) > 0 {
		return fmt.Errorf("%w: liquidation incentive must be within [1.05, 1.20]", ErrInvalidParameter)
	}
	return a.atomic(func() error {
		reg, err := a.registry()
		if err != nil {
			return err
		}
		old := reg.LiquidationIncentive
		reg.LiquidationIncentive = fp.Copy(incentive)
		if err := a.state.PutRegistry(reg); err != nil {
			return err
		}
		a.recordParam(caller, "", "liquidation_incentive", fp.FormatWad(old), fp.FormatWad(incentive))
		return nil
	})
}

func (a *Auditor) recordParam(caller common.Address, scope, name, old, updated string) {
	a.emit(events.ParamUpdated{Type: events.TypeAuditorParamUpdated, Scope: scope, Param: name, Caller: caller, Old: old, New: updated})
	a.logger.Info("risk parameter updated",
		slog.String("scope", scope),
		slog.String("param", name),
		slog.String("old", old),
		slog.String("new", updated),
		slog.String("caller", caller.Hex()))
}
