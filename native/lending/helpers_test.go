package lending

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"

	"termlend/core/events"
	fp "termlend/native/fixedpoint"
	"termlend/native/irm"
)

// testStart sits one week into an interval.
const testStart = 1000*Interval + 7*24*60*60

type mockSnapshot struct {
	floating  map[string]*FloatingPool
	fixed     map[string]*FixedPool
	positions map[string]*Position
	accounts  map[string]*Account
	events    int
}

type mockLedgerState struct {
	floating  map[string]*FloatingPool
	fixed     map[string]*FixedPool
	positions map[string]*Position
	accounts  map[string]*Account
	events    []events.Event
	snapshots []mockSnapshot
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{
		floating:  make(map[string]*FloatingPool),
		fixed:     make(map[string]*FixedPool),
		positions: make(map[string]*Position),
		accounts:  make(map[string]*Account),
	}
}

func copyMap[V any](src map[string]V, clone func(V) V) map[string]V {
	out := make(map[string]V, len(src))
	for k, v := range src {
		out[k] = clone(v)
	}
	return out
}

func (m *mockLedgerState) Snapshot() int {
	m.snapshots = append(m.snapshots, mockSnapshot{
		floating:  copyMap(m.floating, (*FloatingPool).Clone),
		fixed:     copyMap(m.fixed, (*FixedPool).Clone),
		positions: copyMap(m.positions, (*Position).Clone),
		accounts:  copyMap(m.accounts, (*Account).Clone),
		events:    len(m.events),
	})
	return len(m.snapshots) - 1
}

func (m *mockLedgerState) RevertToSnapshot(id int) {
	snap := m.snapshots[id]
	m.floating = snap.floating
	m.fixed = snap.fixed
	m.positions = snap.positions
	m.accounts = snap.accounts
	m.events = m.events[:snap.events]
	m.snapshots = m.snapshots[:id]
}

func (m *mockLedgerState) AppendEvent(evt events.Event) { m.events = append(m.events, evt) }

func (m *mockLedgerState) eventTypes() []string {
	out := make([]string, 0, len(m.events))
	for _, evt := range m.events {
		out = append(out, evt.EventType())
	}
	return out
}

func (m *mockLedgerState) GetFloatingPool(market string) (*FloatingPool, error) {
	return m.floating[market].Clone(), nil
}

func (m *mockLedgerState) PutFloatingPool(market string, pool *FloatingPool) error {
	m.floating[market] = pool.Clone()
	return nil
}

func fixedKey(market string, maturity uint64) string { return fmt.Sprintf("%s/%d", market, maturity) }

func (m *mockLedgerState) GetFixedPool(market string, maturity uint64) (*FixedPool, error) {
	return m.fixed[fixedKey(market, maturity)].Clone(), nil
}

func (m *mockLedgerState) PutFixedPool(market string, maturity uint64, pool *FixedPool) error {
	m.fixed[fixedKey(market, maturity)] = pool.Clone()
	return nil
}

func positionKey(market string, side Side, maturity uint64, addr common.Address) string {
	return fmt.Sprintf("%s/%s/%d/%s", market, side, maturity, addr.Hex())
}

func (m *mockLedgerState) GetPosition(market string, side Side, maturity uint64, addr common.Address) (*Position, error) {
	pos, ok := m.positions[positionKey(market, side, maturity, addr)]
	if !ok {
		return nil, nil
	}
	return pos.Clone(), nil
}

func (m *mockLedgerState) PutPosition(market string, side Side, maturity uint64, addr common.Address, pos *Position) error {
	m.positions[positionKey(market, side, maturity, addr)] = pos.Clone()
	return nil
}

func (m *mockLedgerState) GetAccount(market string, addr common.Address) (*Account, error) {
	account, ok := m.accounts[market+"/"+addr.Hex()]
	if !ok {
		return nil, nil
	}
	return account.Clone(), nil
}

func (m *mockLedgerState) PutAccount(market string, addr common.Address, account *Account) error {
	m.accounts[market+"/"+addr.Hex()] = account.Clone()
	return nil
}

var (
	errStubShortfall = errors.New("stub: shortfall")
	errStubNotListed = errors.New("stub: market not listed")
)

// stubAuditor treats the market as the only collateral with an adjust
// factor and a unit price.
type stubAuditor struct {
	market *Market
	adjust *big.Int
	listed map[string]bool
}

func (s *stubAuditor) solvent(addr common.Address, withdraw *big.Int) error {
	assets, debt, err := s.market.AccountSnapshot(addr)
	if err != nil {
		return err
	}
	collateral := fp.MulWadDown(fp.SubFloor(assets, withdraw), s.adjust)
	if collateral.Cmp(debt) < 0 {
		return errStubShortfall
	}
	return nil
}

func (s *stubAuditor) CheckBorrow(_ string, borrower common.Address) error {
	return s.solvent(borrower, new(big.Int))
}

func (s *stubAuditor) CheckShortfall(_ string, account common.Address, assets *big.Int) error {
	return s.solvent(account, assets)
}

func (s *stubAuditor) CheckSeize(_ string, repayMarket string) error {
	if !s.listed[repayMarket] {
		return errStubNotListed
	}
	return nil
}

type testEnv struct {
	market  *Market
	state   *mockLedgerState
	clock   *clock.Mock
	auditor *stubAuditor
}

var testAdmin = makeAddress(0xAD)

func makeAddress(suffix byte) common.Address {
	var addr common.Address
	addr[len(addr)-1] = suffix
	return addr
}

func testModel() *irm.Model {
	return &irm.Model{
		Fixed:    irm.NewCurve(0.023, -0.0025, 1.02),
		Floating: irm.NewCurve(0.023, -0.0025, 1.02),
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	market := NewMarket("DAI", 18, testAdmin, DefaultParams(), testModel())
	state := newMockLedgerState()
	mock := clock.NewMock()
	mock.Add(time.Duration(testStart) * time.Second)
	auditor := &stubAuditor{market: market, adjust: fp.Fraction(8, 10), listed: map[string]bool{"DAI": true}}
	market.SetState(state)
	market.SetAuditor(auditor)
	market.SetClock(mock)
	return &testEnv{market: market, state: state, clock: mock, auditor: auditor}
}

func (e *testEnv) advance(seconds uint64) {
	e.clock.Add(time.Duration(seconds) * time.Second)
}

func wad(n int64) *big.Int { return fp.Fraction(n, 1) }

func (e *testEnv) mustDeposit(t *testing.T, addr common.Address, assets *big.Int) *big.Int {
	t.Helper()
	shares, err := e.market.Deposit(addr, assets)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return shares
}

func (e *testEnv) floating(t *testing.T) *FloatingPool {
	t.Helper()
	pool, err := e.market.FloatingPool()
	if err != nil {
		t.Fatalf("floating pool: %v", err)
	}
	return pool
}

// firstMaturity is the earliest open maturity at testStart.
func firstMaturity() uint64 { return testStart - testStart%Interval + Interval }
