package fixedpoint

import (
	"math/big"
	"testing"
)

func TestParseWad(t *testing.T) {
	cases := map[string]*big.Int{
		"1":       Wad(),
		"0.9":     Fraction(9, 10),
		"-0.0025": big.NewInt(-2_500_000_000_000_000),
		" 1.02 ":  Fraction(102, 100),
	}
	for input, want := range cases {
		got, err := ParseWad(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got.Cmp(want) != 0 {
			t.Fatalf("parse %q: got %s want %s", input, got, want)
		}
	}
	if _, err := ParseWad("abc"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseWad(""); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestFormatUnits(t *testing.T) {
	if got := FormatUnits(big.NewInt(1_500_000), 6); got != "1.5" {
		t.Fatalf("format: got %s", got)
	}
	if got := FormatWad(Fraction(11, 10)); got != "1.1" {
		t.Fatalf("format wad: got %s", got)
	}
	if got := ToFloat(big.NewInt(2_500_000), 6); got != 2.5 {
		t.Fatalf("to float: got %v", got)
	}
}
