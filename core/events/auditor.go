package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"termlend/core/types"
)

const (
	TypeAuditorMarketListed  = "auditor.market_listed"
	TypeAuditorMarketEntered = "auditor.market_entered"
	TypeAuditorMarketExited  = "auditor.market_exited"
	TypeAuditorLiquidation   = "auditor.liquidation"
	TypeAuditorParamUpdated  = "auditor.param_updated"
)

// MarketListed is emitted when a market is registered with the auditor.
type MarketListed struct {
	Market    string
	Index     uint8
	Decimals  uint8
	PriceFeed string
}

func (MarketListed) EventType() string { return TypeAuditorMarketListed }

func (e MarketListed) Event() *types.Event {
	return &types.Event{
		Type: TypeAuditorMarketListed,
		Attributes: map[string]string{
			"market":    strings.TrimSpace(e.Market),
			"index":     strconv.Itoa(int(e.Index)),
			"decimals":  strconv.Itoa(int(e.Decimals)),
			"priceFeed": normalizeAsset(e.PriceFeed),
		},
	}
}

// MarketMembership captures an account entering or exiting a market.
type MarketMembership struct {
	Type    string
	Market  string
	Account common.Address
}

func (e MarketMembership) EventType() string { return e.Type }

func (e MarketMembership) Event() *types.Event {
	return &types.Event{
		Type: e.Type,
		Attributes: map[string]string{
			"market":  strings.TrimSpace(e.Market),
			"account": addressString(e.Account),
		},
	}
}

// Liquidation summarises a completed liquidation.
type Liquidation struct {
	RepayMarket string
	SeizeMarket string
	Liquidator  common.Address
	Borrower    common.Address
	Repaid      *big.Int
	Seized      *big.Int
}

func (Liquidation) EventType() string { return TypeAuditorLiquidation }

func (e Liquidation) Event() *types.Event {
	return &types.Event{
		Type: TypeAuditorLiquidation,
		Attributes: map[string]string{
			"repayMarket": strings.TrimSpace(e.RepayMarket),
			"seizeMarket": strings.TrimSpace(e.SeizeMarket),
			"liquidator":  addressString(e.Liquidator),
			"borrower":    addressString(e.Borrower),
			"repaid":      amountString(e.Repaid),
			"seized":      amountString(e.Seized),
		},
	}
}
