package fixedpoint

import (
	"errors"
	"math/big"
	"testing"
)

func within(t *testing.T, name string, got, want, tolerance *big.Int) {
	t.Helper()
	diff := new(big.Int).Sub(got, want)
	if diff.CmpAbs(tolerance) > 0 {
		t.Fatalf("%s: got %s want %s (±%s)", name, got, want, tolerance)
	}
}

func TestMulDivRounding(t *testing.T) {
	x, y, d := big.NewInt(10), big.NewInt(10), big.NewInt(3)
	if got := MulDivDown(x, y, d); got.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("mulDivDown: got %s want 33", got)
	}
	if got := MulDivUp(x, y, d); got.Cmp(big.NewInt(34)) != 0 {
		t.Fatalf("mulDivUp: got %s want 34", got)
	}
	exact := MulDivUp(big.NewInt(9), big.NewInt(2), big.NewInt(3))
	if exact.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("mulDivUp exact: got %s want 6", exact)
	}
	if got := MulDivUp(big.NewInt(0), big.NewInt(7), big.NewInt(3)); got.Sign() != 0 {
		t.Fatalf("mulDivUp zero: got %s", got)
	}
}

func TestWadHelpers(t *testing.T) {
	half := Fraction(1, 2)
	if got := MulWadDown(big.NewInt(3), half); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("mulWadDown: got %s want 1", got)
	}
	if got := MulWadUp(big.NewInt(3), half); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("mulWadUp: got %s want 2", got)
	}
	third := DivWadDown(big.NewInt(1), big.NewInt(3))
	if third.Cmp(mustInt("333333333333333333")) != 0 {
		t.Fatalf("divWadDown: got %s", third)
	}
	if got := DivWadUp(big.NewInt(1), big.NewInt(3)); got.Cmp(mustInt("333333333333333334")) != 0 {
		t.Fatalf("divWadUp: got %s", got)
	}
	if got := Pow10(6); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("pow10: got %s", got)
	}
}

func TestMinMaxSubFloor(t *testing.T) {
	a, b := big.NewInt(4), big.NewInt(9)
	if Min(a, b).Cmp(a) != 0 || Max(a, b).Cmp(b) != 0 {
		t.Fatalf("min/max mismatch")
	}
	if SubFloor(a, b).Sign() != 0 {
		t.Fatalf("subFloor should clamp at zero")
	}
	if SubFloor(b, a).Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("subFloor: got %s", SubFloor(b, a))
	}
	if Cmp(nil, big.NewInt(0)) != 0 || !IsZero(nil) || Positive(nil) {
		t.Fatalf("nil handling mismatch")
	}
}

func TestExpWad(t *testing.T) {
	tolerance := big.NewInt(1_000)
	got, err := ExpWad(big.NewInt(0))
	if err != nil {
		t.Fatalf("exp(0): %v", err)
	}
	within(t, "exp(0)", got, Wad(), tolerance)

	got, err = ExpWad(Wad())
	if err != nil {
		t.Fatalf("exp(1): %v", err)
	}
	within(t, "exp(1)", got, mustInt("2718281828459045235"), tolerance)

	got, err = ExpWad(new(big.Int).Neg(Wad()))
	if err != nil {
		t.Fatalf("exp(-1): %v", err)
	}
	within(t, "exp(-1)", got, mustInt("367879441171442321"), tolerance)

	got, err = ExpWad(mustInt("-42139678854452767551"))
	if err != nil || got.Sign() != 0 {
		t.Fatalf("exp lower bound: got %v err %v", got, err)
	}
	if _, err := ExpWad(mustInt("135305999368893231589")); !errors.Is(err, ErrExpOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestLnWad(t *testing.T) {
	tolerance := big.NewInt(1_000)
	got, err := LnWad(Wad())
	if err != nil {
		t.Fatalf("ln(1): %v", err)
	}
	within(t, "ln(1)", got, big.NewInt(0), tolerance)

	got, err = LnWad(mustInt("2718281828459045235"))
	if err != nil {
		t.Fatalf("ln(e): %v", err)
	}
	within(t, "ln(e)", got, Wad(), tolerance)

	got, err = LnWad(Fraction(1, 2))
	if err != nil {
		t.Fatalf("ln(0.5): %v", err)
	}
	within(t, "ln(0.5)", got, mustInt("-693147180559945309"), tolerance)

	if _, err := LnWad(big.NewInt(0)); !errors.Is(err, ErrLnUndefined) {
		t.Fatalf("expected undefined, got %v", err)
	}
}

func TestExpLnRoundTrip(t *testing.T) {
	x := Fraction(37, 10)
	e, err := ExpWad(x)
	if err != nil {
		t.Fatalf("exp: %v", err)
	}
	back, err := LnWad(e)
	if err != nil {
		t.Fatalf("ln: %v", err)
	}
	within(t, "ln(exp(x))", back, x, big.NewInt(1_000_000))
}
