// Package previewer assembles read-only, per-account views across every
// listed market for dashboards, the gateway and liquidation bots.
package previewer

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"termlend/native/auditor"
	fp "termlend/native/fixedpoint"
	"termlend/native/lending"
	"termlend/native/oracle"
)

// ErrUnknownMarket is returned when a listed market has no ledger registered
// with the previewer.
var ErrUnknownMarket = errors.New("previewer: unknown market")

var posInf = math.Inf(1)

// FixedPosition is one maturity position of an account.
type FixedPosition struct {
	Maturity  uint64
	Principal *big.Int
	Fee       *big.Int
}

// Assets returns principal plus fee.
func (p FixedPosition) Assets() *big.Int { return fp.Add(p.Principal, p.Fee) }

// MarketAccount is an account's state in one market with its USD price.
type MarketAccount struct {
	Market                string
	Decimals              uint8
	AdjustFactor          *big.Int
	Price                 *big.Int
	IsCollateral          bool
	FloatingDepositShares *big.Int
	FloatingDepositAssets *big.Int
	FloatingBorrowShares  *big.Int
	FloatingBorrowAssets  *big.Int
	FixedDeposits         []FixedPosition
	FixedBorrows          []FixedPosition
}

func (m MarketAccount) value(assets *big.Int) *big.Int {
	return fp.MulDivDown(assets, m.Price, fp.Pow10(m.Decimals))
}

// DebtAssets returns floating plus fixed borrow assets, excluding penalties.
func (m MarketAccount) DebtAssets() *big.Int {
	out := fp.Copy(m.FloatingBorrowAssets)
	for _, p := range m.FixedBorrows {
		out.Add(out, p.Assets())
	}
	return out
}

// DebtValue returns DebtAssets in USD WAD.
func (m MarketAccount) DebtValue() *big.Int { return m.value(m.DebtAssets()) }

// DepositValue returns the floating deposit assets in USD WAD.
func (m MarketAccount) DepositValue() *big.Int { return m.value(m.FloatingDepositAssets) }

// Previewer reads markets through the auditor's registry.
type Previewer struct {
	auditor *auditor.Auditor
	oracle  oracle.PriceFeed
	markets map[string]*lending.Market
}

// New builds a previewer over the auditor's listed markets.
func New(a *auditor.Auditor, feed oracle.PriceFeed, markets ...*lending.Market) *Previewer {
	p := &Previewer{auditor: a, oracle: feed, markets: make(map[string]*lending.Market, len(markets))}
	for _, m := range markets {
		p.markets[m.ID()] = m
	}
	return p
}

// Market returns the ledger of a registered market.
func (p *Previewer) Market(id string) (*lending.Market, bool) {
	m, ok := p.markets[id]
	return m, ok
}

// Markets returns the listed market identifiers.
func (p *Previewer) Markets() ([]string, error) { return p.auditor.Markets() }

// Account returns the account's state in every listed market in listing
// order.
func (p *Previewer) Account(addr common.Address) ([]MarketAccount, error) {
	ids, err := p.auditor.Markets()
	if err != nil {
		return nil, err
	}
	entered, err := p.auditor.AccountMarkets(addr)
	if err != nil {
		return nil, err
	}
	collateral := make(map[string]bool, len(entered))
	for _, id := range entered {
		collateral[id] = true
	}
	out := make([]MarketAccount, 0, len(ids))
	for _, id := range ids {
		view, err := p.marketAccount(id, addr, collateral[id])
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func (p *Previewer) marketAccount(id string, addr common.Address, isCollateral bool) (MarketAccount, error) {
	market, ok := p.markets[id]
	if !ok {
		return MarketAccount{}, fmt.Errorf("%w: %s", ErrUnknownMarket, id)
	}
	data, err := p.auditor.MarketData(id)
	if err != nil {
		return MarketAccount{}, err
	}
	price, err := p.oracle.Price(data.PriceFeed)
	if err != nil {
		return MarketAccount{}, fmt.Errorf("previewer: price %s: %w", id, err)
	}
	account, err := market.Account(addr)
	if err != nil {
		return MarketAccount{}, err
	}
	depositAssets, err := market.PreviewRedeem(account.DepositShares)
	if err != nil {
		return MarketAccount{}, err
	}
	borrowAssets, err := market.PreviewRefund(account.BorrowShares)
	if err != nil {
		return MarketAccount{}, err
	}
	view := MarketAccount{
		Market:                id,
		Decimals:              data.Decimals,
		AdjustFactor:          data.AdjustFactor,
		Price:                 price,
		IsCollateral:          isCollateral,
		FloatingDepositShares: fp.Copy(account.DepositShares),
		FloatingDepositAssets: depositAssets,
		FloatingBorrowShares:  fp.Copy(account.BorrowShares),
		FloatingBorrowAssets:  borrowAssets,
	}
	deposits, borrows, err := market.AccountMaturities(addr)
	if err != nil {
		return MarketAccount{}, err
	}
	if view.FixedDeposits, err = positions(market, lending.SideDeposit, deposits, addr); err != nil {
		return MarketAccount{}, err
	}
	if view.FixedBorrows, err = positions(market, lending.SideBorrow, borrows, addr); err != nil {
		return MarketAccount{}, err
	}
	return view, nil
}

func positions(market *lending.Market, side lending.Side, maturities []uint64, addr common.Address) ([]FixedPosition, error) {
	sort.Slice(maturities, func(i, j int) bool { return maturities[i] < maturities[j] })
	out := make([]FixedPosition, 0, len(maturities))
	for _, maturity := range maturities {
		pos, err := market.Position(side, maturity, addr)
		if err != nil {
			return nil, err
		}
		if pos.IsZero() {
			continue
		}
		out = append(out, FixedPosition{Maturity: maturity, Principal: fp.Copy(pos.Principal), Fee: fp.Copy(pos.Fee)})
	}
	return out, nil
}

// Health returns collateral over debt as a float, +Inf without debt.
func (p *Previewer) Health(addr common.Address) (collateral, debt *big.Int, factor float64, err error) {
	collateral, debt, err = p.auditor.AccountLiquidity(addr, "", nil)
	if err != nil {
		return nil, nil, 0, err
	}
	if debt.Sign() == 0 {
		return collateral, debt, posInf, nil
	}
	return collateral, debt, fp.ToFloat(collateral, 18) / fp.ToFloat(debt, 18), nil
}
