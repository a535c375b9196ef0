package irm

import (
	"errors"
	"math/big"
	"testing"

	"termlend/native/fixedpoint"
)

func testModel() *Model {
	return &Model{
		Fixed:    NewCurve(0.023, -0.0025, 1.02),
		Floating: NewCurve(0.023, -0.0025, 1.02),
	}
}

func TestFloatingRateAtZeroUtilization(t *testing.T) {
	rate, err := testModel().FloatingRate(big.NewInt(0))
	if err != nil {
		t.Fatalf("floating rate: %v", err)
	}
	want := big.NewInt(20_049_019_607_843_137)
	if rate.Cmp(want) != 0 {
		t.Fatalf("unexpected rate: got %s want %s", rate, want)
	}
}

func TestFloatingRateMonotonic(t *testing.T) {
	model := testModel()
	prev := big.NewInt(-1)
	for pct := int64(0); pct <= 100; pct += 5 {
		rate, err := model.FloatingRate(fixedpoint.Fraction(pct, 100))
		if err != nil {
			t.Fatalf("rate at %d%%: %v", pct, err)
		}
		if rate.Cmp(prev) < 0 {
			t.Fatalf("rate decreased at %d%%: %s < %s", pct, rate, prev)
		}
		prev = rate
	}
	// Near the asymptote the curve is far above its intercept.
	if prev.Cmp(fixedpoint.Fraction(1, 2)) < 0 {
		t.Fatalf("expected steep rate at full utilization, got %s", prev)
	}
}

func TestCurveRateIntegralMatchesSimpsonNearThreshold(t *testing.T) {
	curve := NewCurve(0.023, -0.0025, 1.02)
	uBefore := fixedpoint.Fraction(1, 2)
	below := fixedpoint.Add(uBefore, big.NewInt(749_999_999_999_999))
	above := fixedpoint.Add(uBefore, big.NewInt(750_000_000_000_001))

	simpson, err := curve.Rate(uBefore, below)
	if err != nil {
		t.Fatalf("simpson: %v", err)
	}
	integral, err := curve.Rate(uBefore, above)
	if err != nil {
		t.Fatalf("integral: %v", err)
	}
	diff := new(big.Int).Sub(integral, simpson)
	if diff.CmpAbs(big.NewInt(1_000_000_000)) > 0 {
		t.Fatalf("methods diverge: simpson %s integral %s", simpson, integral)
	}
}

func TestCurveRateRejectsOverUtilization(t *testing.T) {
	curve := NewCurve(0.023, -0.0025, 1.02)
	if _, err := curve.Rate(big.NewInt(0), fixedpoint.Fraction(101, 100)); !errors.Is(err, ErrUtilizationExceeded) {
		t.Fatalf("expected utilization exceeded, got %v", err)
	}
}

func TestCurveRateFloorsAtZero(t *testing.T) {
	curve := NewCurve(0.001, -0.01, 1.02)
	rate, err := curve.Rate(big.NewInt(0), big.NewInt(0))
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.Sign() != 0 {
		t.Fatalf("expected zero floor, got %s", rate)
	}
}

func TestUtilizationZeroGuard(t *testing.T) {
	if u := Utilization(big.NewInt(10), big.NewInt(0)); u.Sign() != 0 {
		t.Fatalf("expected zero utilization, got %s", u)
	}
	if u := Utilization(big.NewInt(1), big.NewInt(3)); u.Cmp(big.NewInt(333_333_333_333_333_334)) != 0 {
		t.Fatalf("utilization should round up, got %s", u)
	}
}

func TestFixedRateScalesWithTimeToMaturity(t *testing.T) {
	model := testModel()
	pool := FixedPool{Borrowed: big.NewInt(0), Supplied: big.NewInt(1_000_000)}
	floating := FloatingPool{AssetsAverage: big.NewInt(1_000_000), Debt: big.NewInt(0), BackupBorrowed: big.NewInt(0)}

	full, err := model.FixedRate(Year, 0, big.NewInt(1_000), pool, floating)
	if err != nil {
		t.Fatalf("full year: %v", err)
	}
	half, err := model.FixedRate(Year, Year/2, big.NewInt(1_000), pool, floating)
	if err != nil {
		t.Fatalf("half year: %v", err)
	}
	want := new(big.Int).Quo(full, big.NewInt(2))
	diff := new(big.Int).Sub(half, want)
	if diff.CmpAbs(big.NewInt(1)) > 0 {
		t.Fatalf("half-period rate: got %s want %s", half, want)
	}
}

func TestFixedRateBackupPaysAtLeastFloating(t *testing.T) {
	model := testModel()
	floating := FloatingPool{AssetsAverage: big.NewInt(1_000), Debt: big.NewInt(800), BackupBorrowed: big.NewInt(0)}
	backed, err := model.FixedRate(Year, 0, big.NewInt(100), FixedPool{Borrowed: big.NewInt(0), Supplied: big.NewInt(0)}, floating)
	if err != nil {
		t.Fatalf("backed quote: %v", err)
	}
	floatingRate, err := model.FloatingRate(Utilization(big.NewInt(900), big.NewInt(1_000)))
	if err != nil {
		t.Fatalf("floating: %v", err)
	}
	if backed.Cmp(floatingRate) < 0 {
		t.Fatalf("backup slice priced below floating: %s < %s", backed, floatingRate)
	}
}

func TestFixedRateEdgeCases(t *testing.T) {
	model := testModel()
	empty := FixedPool{Borrowed: big.NewInt(0), Supplied: big.NewInt(0)}
	rate, err := model.FixedRate(Year, 0, big.NewInt(0), empty, FloatingPool{})
	if err != nil || rate.Sign() != 0 {
		t.Fatalf("zero amount should quote zero, got %v err %v", rate, err)
	}
	// with no potential liquidity the whole amount is backup and pays the
	// floating rate at full utilization
	rate, err = model.FixedRate(Year, 0, big.NewInt(10), empty, FloatingPool{})
	if err != nil {
		t.Fatalf("fixed rate: %v", err)
	}
	full, err := model.FloatingRate(fixedpoint.Wad())
	if err != nil {
		t.Fatalf("floating rate: %v", err)
	}
	if rate.Cmp(full) != 0 {
		t.Fatalf("unexpected backup rate: got %s want %s", rate, full)
	}
	if _, err := model.FixedRate(100, 100, big.NewInt(10), empty, FloatingPool{}); !errors.Is(err, ErrAlreadyMatured) {
		t.Fatalf("expected already matured, got %v", err)
	}
	small := FixedPool{Borrowed: big.NewInt(0), Supplied: big.NewInt(10)}
	if _, err := model.FixedRate(Year, 0, big.NewInt(11), small, FloatingPool{}); !errors.Is(err, ErrUtilizationExceeded) {
		t.Fatalf("expected utilization exceeded, got %v", err)
	}
}

func TestModelValidate(t *testing.T) {
	if err := testModel().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bad := testModel()
	bad.Floating.MaxUtilization = fixedpoint.Wad()
	if err := bad.Validate(); !errors.Is(err, ErrInvalidCurve) {
		t.Fatalf("expected invalid curve, got %v", err)
	}
}

func TestFixedRateChargesBackupBeforeAverageSettles(t *testing.T) {
	model := testModel()
	empty := FixedPool{Borrowed: big.NewInt(0), Supplied: big.NewInt(0)}
	// the floating pool holds assets but its damped average has not moved yet
	floating := FloatingPool{
		AssetsAverage:  big.NewInt(0),
		Debt:           big.NewInt(0),
		BackupBorrowed: big.NewInt(0),
	}
	rate, err := model.FixedRate(Year, 0, fixedpoint.Fraction(800, 1), empty, floating)
	if err != nil {
		t.Fatalf("fixed rate: %v", err)
	}
	floor, err := model.FloatingRate(big.NewInt(0))
	if err != nil {
		t.Fatalf("floating rate: %v", err)
	}
	if rate.Cmp(floor) < 0 {
		t.Fatalf("backup slice priced below the floating rate: %s < %s", rate, floor)
	}
}
