package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/facebookgo/clock"

	fp "termlend/native/fixedpoint"
)

type feedFunc func(asset string) (*big.Int, error)

func (f feedFunc) Price(asset string) (*big.Int, error) { return f(asset) }

func TestManualFeedProvidesPrices(t *testing.T) {
	feed := NewManualFeed(time.Hour)
	if err := feed.SetDecimal("eth", "2000"); err != nil {
		t.Fatalf("set price: %v", err)
	}
	price, err := feed.Price("ETH")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(fp.Fraction(2000, 1)) != 0 {
		t.Fatalf("unexpected price: %s", price)
	}
	price.SetInt64(1)
	again, _ := feed.Price("eth")
	if again.Cmp(fp.Fraction(2000, 1)) != 0 {
		t.Fatalf("price mutated through returned value: %s", again)
	}
}

func TestManualFeedRejectsInvalidAndUnknown(t *testing.T) {
	feed := NewManualFeed(0)
	if err := feed.Set("DAI", new(big.Int)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if err := feed.SetDecimal("DAI", "-1"); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for negative price, got %v", err)
	}
	if _, err := feed.Price("DAI"); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestManualFeedStalePrice(t *testing.T) {
	mock := clock.NewMock()
	feed := NewManualFeed(time.Minute)
	feed.SetClock(mock)
	if err := feed.SetDecimal("USDC", "1"); err != nil {
		t.Fatalf("set price: %v", err)
	}
	mock.Add(time.Minute)
	if _, err := feed.Price("USDC"); err != nil {
		t.Fatalf("price at max age: %v", err)
	}
	mock.Add(time.Second)
	if _, err := feed.Price("USDC"); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
	feed.SetMaxAge(0)
	if _, err := feed.Price("USDC"); err != nil {
		t.Fatalf("freshness disabled: %v", err)
	}
}

func TestAggregatorPriorityFallback(t *testing.T) {
	manual := NewManualFeed(0)
	agg := NewAggregator("primary", "manual")
	agg.Register("primary", feedFunc(func(string) (*big.Int, error) {
		return nil, fmt.Errorf("primary down")
	}))
	agg.Register("manual", manual)
	if err := manual.SetDecimal("WBTC", "30000"); err != nil {
		t.Fatalf("set price: %v", err)
	}
	price, err := agg.Price("WBTC")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(fp.Fraction(30000, 1)) != 0 {
		t.Fatalf("unexpected price: %s", price)
	}
}

func TestAggregatorSurfacesLastError(t *testing.T) {
	agg := NewAggregator()
	if _, err := agg.Price("DAI"); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset without feeds, got %v", err)
	}
	agg.Register("zero", feedFunc(func(string) (*big.Int, error) { return new(big.Int), nil }))
	if _, err := agg.Price("DAI"); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}
