package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"termlend/core/types"
)

const (
	TypeLendingDeposit            = "lending.deposit"
	TypeLendingWithdraw           = "lending.withdraw"
	TypeLendingBorrow             = "lending.borrow"
	TypeLendingRepay              = "lending.repay"
	TypeLendingDepositAtMaturity  = "lending.deposit_at_maturity"
	TypeLendingWithdrawAtMaturity = "lending.withdraw_at_maturity"
	TypeLendingBorrowAtMaturity   = "lending.borrow_at_maturity"
	TypeLendingRepayAtMaturity    = "lending.repay_at_maturity"
	TypeLendingTransfer           = "lending.transfer"
	TypeLendingSeize              = "lending.seize"
	TypeLendingTreasuryFee        = "lending.treasury_fee"
	TypeLendingParamUpdated       = "lending.param_updated"
)

// LendingAction describes a user-facing state change on a market. Maturity is
// zero for floating operations.
type LendingAction struct {
	Action       string
	Market       string
	Caller       common.Address
	Account      common.Address
	Counterparty common.Address
	Maturity     uint64
	Assets       *big.Int
	Shares       *big.Int
	Fee          *big.Int
}

func (e LendingAction) EventType() string { return e.Action }

func (e LendingAction) Event() *types.Event {
	attrs := map[string]string{
		"market":  strings.TrimSpace(e.Market),
		"caller":  addressString(e.Caller),
		"account": addressString(e.Account),
		"assets":  amountString(e.Assets),
	}
	if e.Counterparty != (common.Address{}) {
		attrs["counterparty"] = e.Counterparty.Hex()
	}
	if e.Maturity != 0 {
		attrs["maturity"] = strconv.FormatUint(e.Maturity, 10)
	}
	if e.Shares != nil {
		attrs["shares"] = e.Shares.String()
	}
	if e.Fee != nil {
		attrs["fee"] = e.Fee.String()
	}
	return &types.Event{Type: e.Action, Attributes: attrs}
}

// ParamUpdated records an admin change with both the old and new value.
type ParamUpdated struct {
	Type   string
	Scope  string
	Param  string
	Caller common.Address
	Old    string
	New    string
}

func (e ParamUpdated) EventType() string { return e.Type }

func (e ParamUpdated) Event() *types.Event {
	return &types.Event{
		Type: e.Type,
		Attributes: map[string]string{
			"scope":  strings.TrimSpace(e.Scope),
			"param":  strings.TrimSpace(e.Param),
			"caller": addressString(e.Caller),
			"old":    e.Old,
			"new":    e.New,
		},
	}
}

func addressString(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
