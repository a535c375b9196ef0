package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"termlend/core/events"
	"termlend/native/auditor"
	"termlend/native/lending"
	"termlend/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestKeyLayout(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000AB")
	if got := string(FloatingPoolKey("usdc")); got != "lending/USDC/floating" {
		t.Fatalf("unexpected floating key: %s", got)
	}
	if got := string(FixedPoolKey("USDC", 2419200)); got != "lending/USDC/fixed/2419200" {
		t.Fatalf("unexpected fixed key: %s", got)
	}
	if got := string(AccountKey("USDC", addr)); got != "lending/USDC/acct/0x00000000000000000000000000000000000000ab" {
		t.Fatalf("unexpected account key: %s", got)
	}
	if got := string(MarketDataKey("weth")); got != "auditor/market/WETH" {
		t.Fatalf("unexpected market key: %s", got)
	}
	deposit := string(PositionKey("USDC", "deposit", 2419200, addr))
	borrow := string(PositionKey("USDC", "borrow", 2419200, addr))
	later := string(PositionKey("USDC", "deposit", 4838400, addr))
	if len(deposit) != len("lending/USDC/pos/deposit/")+64 {
		t.Fatalf("unexpected position key length: %s", deposit)
	}
	if deposit == borrow || deposit == later {
		t.Fatalf("position keys collide")
	}
}

func TestSnapshotRevertRestoresWritesAndEvents(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.KVPut([]byte("k"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap := mgr.Snapshot()
	if err := mgr.KVPut([]byte("k"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.KVPut([]byte("fresh"), uint64(3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.AppendEvent(events.MarketMembership{Type: events.TypeAuditorMarketEntered, Market: "USDC"})

	inner := mgr.Snapshot()
	if err := mgr.KVPut([]byte("k"), uint64(4)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.RevertToSnapshot(inner)
	var v uint64
	if ok, err := mgr.KVGet([]byte("k"), &v); err != nil || !ok || v != 2 {
		t.Fatalf("inner revert: ok=%v err=%v v=%d", ok, err, v)
	}

	mgr.RevertToSnapshot(snap)
	if ok, err := mgr.KVGet([]byte("k"), &v); err != nil || !ok || v != 1 {
		t.Fatalf("outer revert: ok=%v err=%v v=%d", ok, err, v)
	}
	if ok, _ := mgr.KVGet([]byte("fresh"), nil); ok {
		t.Fatalf("expected fresh key to be reverted")
	}
	if len(mgr.PendingEvents()) != 0 {
		t.Fatalf("expected events to be reverted")
	}
}

func TestCommitFlushesAndEmits(t *testing.T) {
	mgr, db := newTestManager(t)
	recorder := &events.Recorder{}
	mgr.SetEmitter(recorder)

	if err := mgr.KVPut([]byte("a"), "alpha"); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.AppendEvent(events.MarketListed{Market: "USDC"})
	if _, err := db.Get([]byte("a")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected write to stay buffered, got %v", err)
	}
	if len(recorder.Events) != 0 {
		t.Fatalf("events delivered before commit")
	}

	written, err := mgr.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if written != 1 || mgr.Dirty() != 0 {
		t.Fatalf("unexpected commit result: written=%d dirty=%d", written, mgr.Dirty())
	}
	if db.Len() != 1 {
		t.Fatalf("expected one persisted key, got %d", db.Len())
	}
	if len(recorder.Events) != 1 || recorder.Events[0].EventType() != events.TypeAuditorMarketListed {
		t.Fatalf("unexpected emitted events: %v", recorder.Types())
	}

	reopened := NewManager(db)
	var out string
	if ok, err := reopened.KVGet([]byte("a"), &out); err != nil || !ok || out != "alpha" {
		t.Fatalf("reload: ok=%v err=%v out=%q", ok, err, out)
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("index")
	for _, v := range [][]byte{{0x01}, {0x02}, {0x01}} {
		if err := mgr.KVAppend(key, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	var empty [][]byte
	if err := mgr.KVGetList([]byte("missing"), &empty); err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty initialised list, got %v err=%v", empty, err)
	}
}

func TestLendingRecordsSurviveCommit(t *testing.T) {
	mgr, db := newTestManager(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	mask := new(uint256.Int).SetUint64(2419200)
	mask.Or(mask, new(uint256.Int).Lsh(uint256.NewInt(1), 33))

	if got, err := mgr.GetAccount("USDC", addr); err != nil || got != nil {
		t.Fatalf("expected missing account, got %v err=%v", got, err)
	}
	account := &lending.Account{
		DepositShares:         big.NewInt(1000),
		BorrowShares:          big.NewInt(7),
		FixedDeposits:         new(uint256.Int),
		FixedBorrows:          mask,
		FixedDepositPrincipal: new(big.Int),
		FixedBorrowPrincipal:  big.NewInt(250),
	}
	if err := mgr.PutAccount("USDC", addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	if err := mgr.PutPosition("USDC", lending.SideBorrow, 2419200, addr, &lending.Position{Principal: big.NewInt(250), Fee: big.NewInt(3)}); err != nil {
		t.Fatalf("put position: %v", err)
	}
	if _, err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reopened := NewManager(db)
	loaded, err := reopened.GetAccount("usdc", addr)
	if err != nil || loaded == nil {
		t.Fatalf("load account: %v", err)
	}
	if loaded.BorrowShares.Cmp(big.NewInt(7)) != 0 || !loaded.FixedBorrows.Eq(mask) {
		t.Fatalf("unexpected account: %+v", loaded)
	}
	pos, err := reopened.GetPosition("USDC", lending.SideBorrow, 2419200, addr)
	if err != nil || pos == nil || pos.Assets().Cmp(big.NewInt(253)) != 0 {
		t.Fatalf("unexpected position: %+v err=%v", pos, err)
	}
	if other, _ := reopened.GetPosition("USDC", lending.SideDeposit, 2419200, addr); other != nil {
		t.Fatalf("deposit side should be empty")
	}
	accounts, err := reopened.MarketAccounts("USDC")
	if err != nil || len(accounts) != 1 || accounts[0] != addr {
		t.Fatalf("unexpected account index: %v err=%v", accounts, err)
	}
}

func TestAuditorRecords(t *testing.T) {
	mgr, _ := newTestManager(t)
	if reg, err := mgr.GetRegistry(); err != nil || reg != nil {
		t.Fatalf("expected empty registry, got %v err=%v", reg, err)
	}
	reg := &auditor.Registry{Markets: []string{"USDC", "WETH"}, LiquidationIncentive: big.NewInt(11e17)}
	if err := mgr.PutRegistry(reg); err != nil {
		t.Fatalf("put registry: %v", err)
	}
	loaded, err := mgr.GetRegistry()
	if err != nil || len(loaded.Markets) != 2 || loaded.LiquidationIncentive.Cmp(reg.LiquidationIncentive) != 0 {
		t.Fatalf("unexpected registry: %+v err=%v", loaded, err)
	}

	addr := common.HexToAddress("0x0000000000000000000000000000000000000002")
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	if err := mgr.PutAccountMarkets(addr, mask); err != nil {
		t.Fatalf("put mask: %v", err)
	}
	got, err := mgr.GetAccountMarkets(addr)
	if err != nil || !got.Eq(mask) {
		t.Fatalf("unexpected mask: %v err=%v", got, err)
	}
	members, err := mgr.Members()
	if err != nil || len(members) != 1 {
		t.Fatalf("unexpected members: %v err=%v", members, err)
	}
}

func TestEnsureStateVersion(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.EnsureStateVersion(false); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	if err := mgr.SetStateVersion(StateVersion + 1); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := mgr.EnsureStateVersion(false); !errors.Is(err, ErrStateVersionMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := mgr.EnsureStateVersion(true); err != nil {
		t.Fatalf("migration allowed: %v", err)
	}
}
