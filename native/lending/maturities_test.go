package lending

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestMaturityState(t *testing.T) {
	now := 10*Interval + 100
	cases := []struct {
		name     string
		maturity uint64
		want     PoolState
	}{
		{"unaligned", 11*Interval + 1, PoolInvalid},
		{"past", 10 * Interval, PoolMatured},
		{"first", 11 * Interval, PoolValid},
		{"last", 13 * Interval, PoolValid},
		{"beyond", 14 * Interval, PoolNotReady},
	}
	for _, tc := range cases {
		if got := MaturityState(tc.maturity, now, 3); got != tc.want {
			t.Fatalf("%s: want %s got %s", tc.name, tc.want, got)
		}
	}
	if got := MaturityState(11*Interval, 11*Interval, 3); got != PoolMatured {
		t.Fatalf("maturity equal to now must be matured, got %s", got)
	}
}

func TestOpenMaturities(t *testing.T) {
	got := OpenMaturities(10*Interval+5, 3)
	want := []uint64{11 * Interval, 12 * Interval, 13 * Interval}
	if len(got) != len(want) {
		t.Fatalf("want %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v got %v", want, got)
		}
	}
}

func equalMaturities(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPackedMaturities(t *testing.T) {
	base := 100 * Interval
	set, err := setMaturity(new(uint256.Int), base+2*Interval)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	for _, maturity := range []uint64{base + 5*Interval, base} {
		if set, err = setMaturity(set, maturity); err != nil {
			t.Fatalf("set %d: %v", maturity, err)
		}
	}
	want := []uint64{base, base + 2*Interval, base + 5*Interval}
	if got := maturityList(set); !equalMaturities(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}

	set = clearMaturity(set, base)
	if got := maturityList(set); !equalMaturities(got, want[1:]) {
		t.Fatalf("after clearing base want %v got %v", want[1:], got)
	}
	set = clearMaturity(set, base+5*Interval)
	if got := maturityList(set); !equalMaturities(got, want[1:2]) {
		t.Fatalf("after clearing last want %v got %v", want[1:2], got)
	}
	if set = clearMaturity(set, base+2*Interval); !set.IsZero() {
		t.Fatalf("expected empty set, got %s", set)
	}
}

func TestPackedMaturitiesOverflow(t *testing.T) {
	base := 1000 * Interval
	set, err := setMaturity(nil, base)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := setMaturity(set, base+maxMaturityRange*Interval); err != nil {
		t.Fatalf("max offset: %v", err)
	}
	if _, err := setMaturity(set, base+(maxMaturityRange+1)*Interval); err != ErrMaturityOverflow {
		t.Fatalf("expected overflow, got %v", err)
	}
}
