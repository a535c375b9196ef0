package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"termlend/native/auditor"
)

type registryRecord struct {
	Markets              []string
	LiquidationIncentive *big.Int
}

type marketDataRecord struct {
	Index        uint8
	Decimals     uint8
	AdjustFactor *big.Int
	PriceFeed    string
}

// GetRegistry returns the auditor registry or nil before the first listing.
func (m *Manager) GetRegistry() (*auditor.Registry, error) {
	var rec registryRecord
	ok, err := m.KVGet(RegistryKey(), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &auditor.Registry{Markets: rec.Markets, LiquidationIncentive: nonNil(rec.LiquidationIncentive)}, nil
}

// PutRegistry stores the auditor registry.
func (m *Manager) PutRegistry(reg *auditor.Registry) error {
	if reg == nil {
		reg = &auditor.Registry{}
	}
	return m.KVPut(RegistryKey(), &registryRecord{
		Markets:              append([]string(nil), reg.Markets...),
		LiquidationIncentive: nonNil(reg.LiquidationIncentive),
	})
}

// GetMarketData returns a listed market's risk parameters or nil.
func (m *Manager) GetMarketData(market string) (*auditor.MarketData, error) {
	var rec marketDataRecord
	ok, err := m.KVGet(MarketDataKey(market), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &auditor.MarketData{
		Index:        rec.Index,
		Decimals:     rec.Decimals,
		AdjustFactor: nonNil(rec.AdjustFactor),
		PriceFeed:    rec.PriceFeed,
	}, nil
}

// PutMarketData stores a listed market's risk parameters.
func (m *Manager) PutMarketData(market string, data *auditor.MarketData) error {
	if data == nil {
		data = &auditor.MarketData{}
	}
	return m.KVPut(MarketDataKey(market), &marketDataRecord{
		Index:        data.Index,
		Decimals:     data.Decimals,
		AdjustFactor: nonNil(data.AdjustFactor),
		PriceFeed:    data.PriceFeed,
	})
}

// GetAccountMarkets returns the account's membership mask or nil.
func (m *Manager) GetAccountMarkets(addr common.Address) (*uint256.Int, error) {
	var mask *big.Int
	ok, err := m.KVGet(AccountMarketsKey(addr), &mask)
	if err != nil || !ok {
		return nil, err
	}
	return maskFromBig(mask), nil
}

// PutAccountMarkets stores the account's membership mask and indexes the
// account as a member.
func (m *Manager) PutAccountMarkets(addr common.Address, mask *uint256.Int) error {
	if err := m.KVPut(AccountMarketsKey(addr), maskToBig(mask)); err != nil {
		return err
	}
	return m.KVAppend(MemberIndexKey(), addr.Bytes())
}

// Members lists every account that entered at least one market.
func (m *Manager) Members() ([]common.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(MemberIndexKey(), &raw); err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(raw))
	for _, b := range raw {
		out = append(out, common.BytesToAddress(b))
	}
	return out, nil
}
