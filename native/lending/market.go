package lending

import (
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"

	"termlend/core/events"
	nativecommon "termlend/native/common"
	fp "termlend/native/fixedpoint"
	"termlend/native/irm"
	"termlend/observability/metrics"
)

const moduleName = "lending"

// RiskChecker is the solvency surface a market consults before it lets an
// account reduce collateral or add debt.
type RiskChecker interface {
	CheckBorrow(market string, borrower common.Address) error
	CheckShortfall(market string, account common.Address, assets *big.Int) error
	CheckSeize(seizeMarket, repayMarket string) error
}

// Market is the ledger of a single asset: one floating pool plus the fixed
// maturity pools it backs. Mutating entry points are serialised by a lock flag
// and run inside a state snapshot, so a failure at any step leaves the state
// untouched.
type Market struct {
	id        string
	decimals  uint8
	admin     common.Address
	state     ledgerState
	auditor   RiskChecker
	params    Params
	model     *irm.Model
	clock     clock.Clock
	pauses    nativecommon.PauseView
	logger    *slog.Logger
	telemetry *metrics.LedgerMetrics
	locked    bool
}

// NewMarket constructs a market for an asset with the given number of
// decimals. The state and auditor must be wired before use.
func NewMarket(id string, decimals uint8, admin common.Address, params Params, model *irm.Model) *Market {
	return &Market{
		id:        strings.TrimSpace(id),
		decimals:  decimals,
		admin:     admin,
		params:    params.Clone(),
		model:     model.Clone(),
		clock:     clock.New(),
		logger:    slog.Default(),
		telemetry: metrics.Ledger(),
	}
}

// SetState wires the market to the persistence layer.
func (m *Market) SetState(state ledgerState) { m.state = state }

// SetAuditor wires the solvency checker.
func (m *Market) SetAuditor(auditor RiskChecker) { m.auditor = auditor }

// SetClock overrides the time source. Passing nil restores the wall clock.
func (m *Market) SetClock(c clock.Clock) {
	if m == nil {
		return
	}
	if c == nil {
		c = clock.New()
	}
	m.clock = c
}

// SetPauses wires the pause view consulted before user operations.
func (m *Market) SetPauses(p nativecommon.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
}

// SetLogger overrides the structured logger. Passing nil restores slog.Default.
func (m *Market) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	m.logger = logger.With(slog.String("component", "market"), slog.String("market", m.id))
}

// ID returns the market identifier.
func (m *Market) ID() string { return m.id }

// Decimals returns the asset's number of decimals.
func (m *Market) Decimals() uint8 { return m.decimals }

// Admin returns the account allowed to change parameters.
func (m *Market) Admin() common.Address { return m.admin }

// Params returns a copy of the current parameters.
func (m *Market) Params() Params { return m.params.Clone() }

// InterestRateModel returns a copy of the current rate model.
func (m *Market) InterestRateModel() *irm.Model { return m.model.Clone() }

// Now returns the market clock as unix seconds.
func (m *Market) Now() uint64 { return m.now() }

func (m *Market) now() uint64 {
	if m == nil || m.clock == nil {
		return uint64(time.Now().Unix())
	}
	ts := m.clock.Now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (m *Market) module() string { return moduleName + "/" + m.id }

func (m *Market) emit(evt events.Event) {
	if m == nil || m.state == nil || evt == nil {
		return
	}
	m.state.AppendEvent(evt)
}

// execute runs fn as one all-or-nothing operation. The floating pool is
// loaded and accrued to the current timestamp before fn runs and stored after
// it returns.
func (m *Market) execute(op string, guarded bool, fn func(now uint64, pool *FloatingPool) error) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if m.auditor == nil {
		return errNilAuditor
	}
	if guarded {
		if err := nativecommon.Guard(m.pauses, m.module()); err != nil {
			return err
		}
	}
	if m.locked {
		return ErrReentrant
	}
	m.locked = true
	defer func() { m.locked = false }()

	snapshot := m.state.Snapshot()
	now := m.now()
	err := func() error {
		pool, err := m.loadPool()
		if err != nil {
			return err
		}
		if err := m.accrue(pool, now); err != nil {
			return err
		}
		if err := m.storePool(pool); err != nil {
			return err
		}
		if err := fn(now, pool); err != nil {
			return err
		}
		return m.storePool(pool)
	}()
	if err != nil {
		m.state.RevertToSnapshot(snapshot)
		m.telemetry.ObserveFailure(m.id, op, failureReason(err))
		m.logger.Debug("market operation rejected", slog.String("op", op), slog.Any("error", err))
		return err
	}
	m.telemetry.ObserveOperation(m.id, op)
	m.observePool(now)
	return nil
}

func failureReason(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && idx+2 < len(msg) {
		msg = msg[idx+2:]
	}
	return msg
}

func (m *Market) observePool(now uint64) {
	if m.telemetry == nil {
		return
	}
	pool, err := m.previewPool(now)
	if err != nil {
		return
	}
	total, err := m.totalAssets(pool, now)
	if err != nil {
		return
	}
	utilization := irm.Utilization(pool.FloatingDebt, pool.FloatingAssets)
	m.telemetry.SetPool(m.id,
		fp.ToFloat(total, m.decimals),
		fp.ToFloat(pool.FloatingDebt, m.decimals),
		fp.ToFloat(utilization, 18),
		fp.ToFloat(pool.BackupBorrowed, m.decimals),
	)
}

func (m *Market) loadPool() (*FloatingPool, error) {
	pool, err := m.state.GetFloatingPool(m.id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &FloatingPool{}
	} else {
		pool = pool.Clone()
	}
	pool.normalize()
	return pool, nil
}

func (m *Market) storePool(pool *FloatingPool) error {
	return m.state.PutFloatingPool(m.id, pool.Clone())
}

func (m *Market) loadFixed(maturity uint64) (*FixedPool, error) {
	pool, err := m.state.GetFixedPool(m.id, maturity)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return newFixedPool(), nil
	}
	clone := pool.Clone()
	return clone, nil
}

func (m *Market) storeFixed(maturity uint64, pool *FixedPool) error {
	return m.state.PutFixedPool(m.id, maturity, pool.Clone())
}

func (m *Market) loadAccount(addr common.Address) (*Account, error) {
	account, err := m.state.GetAccount(m.id, addr)
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

func (m *Market) storeAccount(addr common.Address, account *Account) error {
	return m.state.PutAccount(m.id, addr, account.Clone())
}

func (m *Market) loadPosition(side Side, maturity uint64, addr common.Address) (*Position, error) {
	pos, err := m.state.GetPosition(m.id, side, maturity, addr)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

func (m *Market) storePosition(side Side, maturity uint64, addr common.Address, pos *Position) error {
	return m.state.PutPosition(m.id, side, maturity, addr, pos.Clone())
}

// accrue brings the floating pool to now: the assets average, floating debt
// interest, the accumulator release, then the treasury fee on the interest.
// Calling it twice at the same timestamp is a no-op.
func (m *Market) accrue(pool *FloatingPool, now uint64) error {
	fee, err := m.accrueWithoutTreasury(pool, now)
	if err != nil {
		return err
	}
	return m.mintTreasury(pool, fee, now)
}

func (m *Market) accrueWithoutTreasury(pool *FloatingPool, now uint64) (*big.Int, error) {
	if err := m.updateFloatingAssetsAverage(pool, now); err != nil {
		return nil, err
	}
	fee, err := m.updateFloatingDebt(pool, now)
	if err != nil {
		return nil, err
	}
	released, err := m.releaseAccumulator(pool, now)
	if err != nil {
		return nil, err
	}
	pool.EarningsAccumulator.Sub(pool.EarningsAccumulator, released)
	pool.LastAccumulatorAccrual = now
	pool.FloatingAssets.Add(pool.FloatingAssets, released)
	return fee, nil
}

func (m *Market) updateFloatingAssetsAverage(pool *FloatingPool, now uint64) error {
	average, err := m.floatingAssetsAverage(pool, now)
	if err != nil {
		return err
	}
	pool.FloatingAssetsAverage = average
	pool.LastAverageUpdate = now
	return nil
}

// floatingAssetsAverage damps the average toward FloatingAssets with factor
// 1 - exp(-speed*elapsed).
func (m *Market) floatingAssetsAverage(pool *FloatingPool, now uint64) (*big.Int, error) {
	if now <= pool.LastAverageUpdate {
		return fp.Copy(pool.FloatingAssetsAverage), nil
	}
	speed := m.params.DampSpeedUp
	if pool.FloatingAssets.Cmp(pool.FloatingAssetsAverage) < 0 {
		speed = m.params.DampSpeedDown
	}
	exponent := new(big.Int).Mul(fp.Copy(speed), new(big.Int).SetUint64(now-pool.LastAverageUpdate))
	decay, err := fp.ExpWad(exponent.Neg(exponent))
	if err != nil {
		return nil, err
	}
	factor := fp.Sub(fp.Wad(), decay)
	average := fp.MulWadDown(pool.FloatingAssetsAverage, decay)
	return average.Add(average, fp.MulWadDown(factor, pool.FloatingAssets)), nil
}

// pendingFloatingInterest returns the interest floating debt accrued since the
// last update.
func (m *Market) pendingFloatingInterest(pool *FloatingPool, now uint64) (*big.Int, error) {
	if now <= pool.LastFloatingDebtUpdate || pool.FloatingDebt.Sign() == 0 {
		return new(big.Int), nil
	}
	utilization := fp.Min(irm.Utilization(pool.FloatingDebt, pool.FloatingAssets), fp.Wad())
	rate, err := m.model.FloatingRate(utilization)
	if err != nil {
		return nil, err
	}
	elapsed := new(big.Int).SetUint64(now - pool.LastFloatingDebtUpdate)
	return fp.MulWadDown(pool.FloatingDebt, fp.MulDivDown(rate, elapsed, big.NewInt(irm.Year))), nil
}

func (m *Market) updateFloatingDebt(pool *FloatingPool, now uint64) (*big.Int, error) {
	interest, err := m.pendingFloatingInterest(pool, now)
	if err != nil {
		return nil, err
	}
	fee := fp.MulWadDown(interest, m.params.TreasuryFeeRate)
	pool.FloatingDebt.Add(pool.FloatingDebt, interest)
	pool.FloatingAssets.Add(pool.FloatingAssets, fp.Sub(interest, fee))
	if now > pool.LastFloatingDebtUpdate {
		pool.LastFloatingDebtUpdate = now
	}
	return fee, nil
}

// releaseAccumulator returns acc * (1 - exp(-elapsed/tau)) where tau is
// SmoothFactor * MaxFuturePools * Interval seconds. A zero tau releases
// everything.
func (m *Market) releaseAccumulator(pool *FloatingPool, now uint64) (*big.Int, error) {
	if now <= pool.LastAccumulatorAccrual || pool.EarningsAccumulator.Sign() == 0 {
		return new(big.Int), nil
	}
	horizon := new(big.Int).SetUint64(uint64(m.params.MaxFuturePools) * Interval)
	tau := fp.MulWadDown(fp.Copy(m.params.EarningsAccumulatorSmoothFactor), horizon)
	if tau.Sign() == 0 {
		return fp.Copy(pool.EarningsAccumulator), nil
	}
	exponent := fp.MulDivDown(new(big.Int).SetUint64(now-pool.LastAccumulatorAccrual), fp.Wad(), tau)
	decay, err := fp.ExpWad(exponent.Neg(exponent))
	if err != nil {
		return nil, err
	}
	return fp.MulWadDown(pool.EarningsAccumulator, fp.Sub(fp.Wad(), decay)), nil
}

// treasuryShares adds fee to the floating pool and returns the shares that
// represent it.
func (m *Market) treasuryShares(pool *FloatingPool, fee *big.Int, now uint64) (*big.Int, error) {
	if fee.Sign() == 0 {
		return new(big.Int), nil
	}
	shares, err := m.convertToShares(pool, fee, now)
	if err != nil {
		return nil, err
	}
	pool.TotalSupply.Add(pool.TotalSupply, shares)
	pool.FloatingAssets.Add(pool.FloatingAssets, fee)
	return shares, nil
}

func (m *Market) mintTreasury(pool *FloatingPool, fee *big.Int, now uint64) error {
	shares, err := m.treasuryShares(pool, fee, now)
	if err != nil || shares.Sign() == 0 {
		return err
	}
	account, err := m.loadAccount(m.params.Treasury)
	if err != nil {
		return err
	}
	account.DepositShares.Add(account.DepositShares, shares)
	if err := m.storeAccount(m.params.Treasury, account); err != nil {
		return err
	}
	m.emit(events.LendingAction{Action: events.TypeLendingTreasuryFee, Market: m.id, Account: m.params.Treasury, Assets: fee, Shares: shares})
	return nil
}

// chargeTreasuryFee mints the treasury share of fee and returns the rest.
func (m *Market) chargeTreasuryFee(pool *FloatingPool, fee *big.Int, now uint64) (*big.Int, error) {
	treasuryFee := fp.MulWadDown(fee, m.params.TreasuryFeeRate)
	if err := m.mintTreasury(pool, treasuryFee, now); err != nil {
		return nil, err
	}
	return fp.Sub(fee, treasuryFee), nil
}

// collectFreeLunch credits earnings that no fixed depositor is owed to the
// treasury when it takes fees, otherwise to the floating pool.
func (m *Market) collectFreeLunch(pool *FloatingPool, earnings *big.Int, now uint64) error {
	if earnings.Sign() == 0 {
		return nil
	}
	if fp.Positive(m.params.TreasuryFeeRate) {
		return m.mintTreasury(pool, earnings, now)
	}
	pool.FloatingAssets.Add(pool.FloatingAssets, earnings)
	return nil
}

// previewPool returns a copy of the floating pool accrued to now exactly as
// the next mutating call would accrue it.
func (m *Market) previewPool(now uint64) (*FloatingPool, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	pool, err := m.loadPool()
	if err != nil {
		return nil, err
	}
	fee, err := m.accrueWithoutTreasury(pool, now)
	if err != nil {
		return nil, err
	}
	if _, err := m.treasuryShares(pool, fee, now); err != nil {
		return nil, err
	}
	return pool, nil
}

// pendingFixedEarnings sums the unassigned earnings the open maturities have
// recognised since their last accrual.
func (m *Market) pendingFixedEarnings(now uint64) (*big.Int, error) {
	total := new(big.Int)
	latest := now - now%Interval
	last := latest + uint64(m.params.MaxFuturePools)*Interval
	for maturity := latest; maturity <= last; maturity += Interval {
		pool, err := m.state.GetFixedPool(m.id, maturity)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			continue
		}
		total.Add(total, pool.pendingEarnings(maturity, now))
	}
	return total, nil
}

// totalAssets is the floating pool's net asset value at now.
func (m *Market) totalAssets(pool *FloatingPool, now uint64) (*big.Int, error) {
	fixed, err := m.pendingFixedEarnings(now)
	if err != nil {
		return nil, err
	}
	released, err := m.releaseAccumulator(pool, now)
	if err != nil {
		return nil, err
	}
	interest, err := m.pendingFloatingInterest(pool, now)
	if err != nil {
		return nil, err
	}
	total := fp.Add(pool.FloatingAssets, fixed)
	total.Add(total, released)
	total.Add(total, fp.MulWadDown(interest, fp.Sub(fp.Wad(), m.params.TreasuryFeeRate)))
	return total, nil
}

func (m *Market) convertToShares(pool *FloatingPool, assets *big.Int, now uint64) (*big.Int, error) {
	total, err := m.totalAssets(pool, now)
	if err != nil {
		return nil, err
	}
	if pool.TotalSupply.Sign() == 0 || total.Sign() == 0 {
		return fp.Copy(assets), nil
	}
	return fp.MulDivDown(assets, pool.TotalSupply, total), nil
}

func (m *Market) convertToAssets(pool *FloatingPool, shares *big.Int, now uint64) (*big.Int, error) {
	total, err := m.totalAssets(pool, now)
	if err != nil {
		return nil, err
	}
	if pool.TotalSupply.Sign() == 0 || total.Sign() == 0 {
		return fp.Copy(shares), nil
	}
	return fp.MulDivDown(shares, total, pool.TotalSupply), nil
}

func (m *Market) sharesForWithdraw(pool *FloatingPool, assets *big.Int, now uint64) (*big.Int, error) {
	total, err := m.totalAssets(pool, now)
	if err != nil {
		return nil, err
	}
	if pool.TotalSupply.Sign() == 0 || total.Sign() == 0 {
		return fp.Copy(assets), nil
	}
	return fp.MulDivUp(assets, pool.TotalSupply, total), nil
}

func (m *Market) assetsForMint(pool *FloatingPool, shares *big.Int, now uint64) (*big.Int, error) {
	total, err := m.totalAssets(pool, now)
	if err != nil {
		return nil, err
	}
	if pool.TotalSupply.Sign() == 0 || total.Sign() == 0 {
		return fp.Copy(shares), nil
	}
	return fp.MulDivUp(shares, total, pool.TotalSupply), nil
}

// Floating borrow conversions assume an accrued pool, where total floating
// borrow assets equal FloatingDebt.

func borrowSharesFor(pool *FloatingPool, assets *big.Int) *big.Int {
	if pool.TotalBorrowShares.Sign() == 0 || pool.FloatingDebt.Sign() == 0 {
		return fp.Copy(assets)
	}
	return fp.MulDivUp(assets, pool.TotalBorrowShares, pool.FloatingDebt)
}

func repaySharesFor(pool *FloatingPool, assets *big.Int) *big.Int {
	if pool.TotalBorrowShares.Sign() == 0 || pool.FloatingDebt.Sign() == 0 {
		return fp.Copy(assets)
	}
	return fp.MulDivDown(assets, pool.TotalBorrowShares, pool.FloatingDebt)
}

func refundAssetsFor(pool *FloatingPool, shares *big.Int) *big.Int {
	if pool.TotalBorrowShares.Sign() == 0 {
		return fp.Copy(shares)
	}
	return fp.MulDivUp(shares, pool.FloatingDebt, pool.TotalBorrowShares)
}

func requirePositive(v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}

func (m *Market) requireAdmin(caller common.Address) error {
	if caller != m.admin {
		return ErrNotAdmin
	}
	return nil
}
