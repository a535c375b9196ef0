package auditor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"termlend/core/events"
	fp "termlend/native/fixedpoint"
)

// MaxMarkets is the number of markets the membership bitmask can address.
const MaxMarkets = 256

// Market is the ledger surface the auditor aggregates solvency over and
// drives during liquidations.
type Market interface {
	ID() string
	Decimals() uint8
	AccountSnapshot(addr common.Address) (assets, debt *big.Int, err error)
	RepayOnLiquidation(liquidator, borrower common.Address, maxAssets *big.Int) (*big.Int, error)
	Seize(repayMarket string, liquidator, borrower common.Address, assets *big.Int) (*big.Int, error)
}

// MarketData holds the risk parameters of a listed market.
type MarketData struct {
	// Index is the market's bit in account membership masks.
	Index    uint8
	Decimals uint8
	// AdjustFactor is the WAD scaled weight applied to collateral value.
	AdjustFactor *big.Int
	// PriceFeed is the asset identifier passed to the oracle.
	PriceFeed string
}

// Clone returns a deep copy of the market data.
func (d *MarketData) Clone() *MarketData {
	if d == nil {
		return nil
	}
	clone := *d
	clone.AdjustFactor = fp.Copy(d.AdjustFactor)
	return &clone
}

// Registry is the ordered market list and the global liquidation incentive.
type Registry struct {
	Markets              []string
	LiquidationIncentive *big.Int
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return nil
	}
	return &Registry{
		Markets:              append([]string(nil), r.Markets...),
		LiquidationIncentive: fp.Copy(r.LiquidationIncentive),
	}
}

// riskState is the persistence surface of the auditor. Getters return nil for
// records that were never written.
type riskState interface {
	Snapshot() int
	RevertToSnapshot(id int)
	AppendEvent(evt events.Event)

	GetRegistry() (*Registry, error)
	PutRegistry(reg *Registry) error
	GetMarketData(market string) (*MarketData, error)
	PutMarketData(market string, data *MarketData) error
	GetAccountMarkets(addr common.Address) (*uint256.Int, error)
	PutAccountMarkets(addr common.Address, mask *uint256.Int) error
}
