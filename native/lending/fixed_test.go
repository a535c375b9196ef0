package lending

import (
	"math/big"
	"testing"

	fp "termlend/native/fixedpoint"
)

func TestFixedPoolBackupAccounting(t *testing.T) {
	pool := newFixedPool()
	if got := pool.deposit(big.NewInt(50)); got.Sign() != 0 {
		t.Fatalf("deposit into idle pool reduced backup by %s", got)
	}
	if got := pool.borrow(big.NewInt(80)); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("expected backup addition 30, got %s", got)
	}
	if got := pool.BackupSupplied(); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("expected backup supplied 30, got %s", got)
	}
	if got := pool.withdraw(big.NewInt(20)); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected withdraw to add 20 backup, got %s", got)
	}
	if got := pool.repay(big.NewInt(60)); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected repay to retire 50 backup, got %s", got)
	}
	if pool.BackupSupplied().Sign() != 0 {
		t.Fatalf("expected no backup left, got %s", pool.BackupSupplied())
	}
}

func TestFixedPoolAccruesLinearly(t *testing.T) {
	pool := newFixedPool()
	pool.UnassignedEarnings = big.NewInt(1_000)
	pool.LastAccrual = 0
	maturity := uint64(100)

	if got := pool.accrueEarnings(maturity, 25); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("expected 250 after a quarter, got %s", got)
	}
	if got := pool.pendingEarnings(maturity, 25); got.Sign() != 0 {
		t.Fatalf("expected nothing pending at the same timestamp, got %s", got)
	}
	if got := pool.accrueEarnings(maturity, 500); got.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("expected the rest after maturity, got %s", got)
	}
	if pool.LastAccrual != maturity {
		t.Fatalf("expected last accrual capped at maturity, got %d", pool.LastAccrual)
	}
	if got := pool.accrueEarnings(maturity, 600); got.Sign() != 0 {
		t.Fatalf("expected nothing after full release, got %s", got)
	}
}

func TestCalculateDepositYield(t *testing.T) {
	pool := newFixedPool()
	pool.Borrowed = big.NewInt(200)
	pool.UnassignedEarnings = big.NewInt(100)

	yield, fee := pool.calculateDeposit(big.NewInt(50), fp.Fraction(1, 10))
	if yield.Cmp(big.NewInt(23)) != 0 || fee.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("unexpected yield %s fee %s", yield, fee)
	}
	yield, fee = pool.calculateDeposit(big.NewInt(500), fp.Fraction(1, 10))
	if yield.Cmp(big.NewInt(90)) != 0 || fee.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("deposit beyond backup: yield %s fee %s", yield, fee)
	}
	empty := newFixedPool()
	if yield, _ := empty.calculateDeposit(big.NewInt(50), fp.Fraction(1, 10)); yield.Sign() != 0 {
		t.Fatalf("pool without backup must not pay yield, got %s", yield)
	}
}

func TestDistributeEarnings(t *testing.T) {
	pool := newFixedPool()
	pool.Supplied = big.NewInt(100)
	pool.borrow(big.NewInt(160))

	unassigned, lunch := pool.distributeEarnings(big.NewInt(80), big.NewInt(160))
	if unassigned.Cmp(big.NewInt(30)) != 0 || lunch.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected split unassigned=%s backup=%s", unassigned, lunch)
	}
}

func TestPositionProportions(t *testing.T) {
	position := &Position{Principal: big.NewInt(300), Fee: big.NewInt(100)}

	scaled := position.scaleProportionally(big.NewInt(200))
	if scaled.Principal.Cmp(big.NewInt(150)) != 0 || scaled.Fee.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected scaled position %s/%s", scaled.Principal, scaled.Fee)
	}
	reduced := position.reduceProportionally(big.NewInt(100))
	if reduced.Principal.Cmp(big.NewInt(225)) != 0 || reduced.Fee.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("unexpected reduced position %s/%s", reduced.Principal, reduced.Fee)
	}
	if !position.reduceProportionally(big.NewInt(400)).IsZero() {
		t.Fatal("expected full reduction to clear the position")
	}
}
