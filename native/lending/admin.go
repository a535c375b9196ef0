package lending

import (
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"termlend/core/events"
	nativecommon "termlend/native/common"
	fp "termlend/native/fixedpoint"
	"termlend/native/irm"
)

// updateParam accrues the market under the current parameters, applies the
// candidate set produced by mutate and records the change.
func (m *Market) updateParam(caller common.Address, name string, mutate func(p *Params) (old, updated string)) error {
	if m == nil {
		return errNilState
	}
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	return m.execute("admin", false, func(now uint64, pool *FloatingPool) error {
		candidate := m.params.Clone()
		old, updated := mutate(&candidate)
		if err := candidate.Validate(); err != nil {
			return err
		}
		m.params = candidate
		m.recordParam(caller, name, old, updated)
		return nil
	})
}

func (m *Market) recordParam(caller common.Address, name, old, updated string) {
	m.emit(events.ParamUpdated{Type: events.TypeLendingParamUpdated, Scope: m.id, Param: name, Caller: caller, Old: old, New: updated})
	m.logger.Info("market parameter updated",
		slog.String("param", name),
		slog.String("old", old),
		slog.String("new", updated),
		slog.String("caller", caller.Hex()))
}

func wadString(v *big.Int) string { return fp.FormatWad(fp.Copy(v)) }

// SetReserveFactor sets the share of floating assets kept out of reach of
// borrowers.
func (m *Market) SetReserveFactor(caller common.Address, factor *big.Int) error {
	return m.updateParam(caller, "reserve_factor", func(p *Params) (string, string) {
		old := wadString(p.ReserveFactor)
		p.ReserveFactor = fp.Copy(factor)
		return old, wadString(factor)
	})
}

// SetPenaltyRate sets the per-second penalty on matured fixed debt.
func (m *Market) SetPenaltyRate(caller common.Address, rate *big.Int) error {
	return m.updateParam(caller, "penalty_rate", func(p *Params) (string, string) {
		old := wadString(p.PenaltyRate)
		p.PenaltyRate = fp.Copy(rate)
		return old, wadString(rate)
	})
}

// SetBackupFeeRate sets the slice of fixed deposit yield kept by the floating
// pool.
func (m *Market) SetBackupFeeRate(caller common.Address, rate *big.Int) error {
	return m.updateParam(caller, "backup_fee_rate", func(p *Params) (string, string) {
		old := wadString(p.BackupFeeRate)
		p.BackupFeeRate = fp.Copy(rate)
		return old, wadString(rate)
	})
}

// SetTreasury sets the treasury account and the fee rate it collects.
func (m *Market) SetTreasury(caller, treasury common.Address, feeRate *big.Int) error {
	return m.updateParam(caller, "treasury", func(p *Params) (string, string) {
		old := fmt.Sprintf("%s@%s", p.Treasury.Hex(), wadString(p.TreasuryFeeRate))
		p.Treasury = treasury
		p.TreasuryFeeRate = fp.Copy(feeRate)
		return old, fmt.Sprintf("%s@%s", treasury.Hex(), wadString(feeRate))
	})
}

// SetDampSpeed sets how fast the floating assets average follows rising and
// falling assets.
func (m *Market) SetDampSpeed(caller common.Address, up, down *big.Int) error {
	return m.updateParam(caller, "damp_speed", func(p *Params) (string, string) {
		old := wadString(p.DampSpeedUp) + "/" + wadString(p.DampSpeedDown)
		p.DampSpeedUp = fp.Copy(up)
		p.DampSpeedDown = fp.Copy(down)
		return old, wadString(up) + "/" + wadString(down)
	})
}

func (m *Market) SetEarningsAccumulatorSmoothFactor(caller common.Address, factor *big.Int) error {
	return m.updateParam(caller, "earnings_accumulator_smooth_factor", func(p *Params) (string, string) {
		old := wadString(p.EarningsAccumulatorSmoothFactor)
		p.EarningsAccumulatorSmoothFactor = fp.Copy(factor)
		return old, wadString(factor)
	})
}

// SetMaxFuturePools sets how many maturities accept new positions.
func (m *Market) SetMaxFuturePools(caller common.Address, pools uint8) error {
	return m.updateParam(caller, "max_future_pools", func(p *Params) (string, string) {
		old := strconv.Itoa(int(p.MaxFuturePools))
		p.MaxFuturePools = pools
		return old, strconv.Itoa(int(pools))
	})
}

// SetInterestRateModel replaces both rate curves. Interest up to now accrues
// under the previous model.
func (m *Market) SetInterestRateModel(caller common.Address, model *irm.Model) error {
	if m == nil {
		return errNilState
	}
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	if err := model.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return m.execute("admin", false, func(now uint64, pool *FloatingPool) error {
		old := describeModel(m.model)
		m.model = model.Clone()
		m.recordParam(caller, "interest_rate_model", old, describeModel(model))
		return nil
	})
}

func describeModel(model *irm.Model) string {
	if model == nil {
		return ""
	}
	curve := func(c irm.Curve) string {
		return wadString(c.A) + "," + wadString(c.B) + "," + wadString(c.MaxUtilization)
	}
	return "fixed(" + curve(model.Fixed) + ") floating(" + curve(model.Floating) + ")"
}

// SetPaused toggles the market's pause flag on the configured pause view.
func (m *Market) SetPaused(caller common.Address, paused bool) error {
	if m == nil {
		return errNilState
	}
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	setter, ok := m.pauses.(nativecommon.PauseSetter)
	if !ok {
		return fmt.Errorf("%w: pause view is read-only", ErrInvalidParameter)
	}
	old := nativecommon.Guard(m.pauses, m.module()) != nil
	setter.SetPaused(m.module(), paused)
	if m.state != nil {
		m.recordParam(caller, "paused", strconv.FormatBool(old), strconv.FormatBool(paused))
	}
	return nil
}
