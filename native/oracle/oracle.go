package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	fp "termlend/native/fixedpoint"
)

var (
	// ErrUnknownAsset is returned when no price was ever recorded for an asset.
	ErrUnknownAsset = errors.New("oracle: unknown asset")
	// ErrStalePrice is returned when the latest price is older than MaxAge.
	ErrStalePrice = errors.New("oracle: stale price")
	// ErrInvalidPrice is returned for zero or negative prices.
	ErrInvalidPrice = errors.New("oracle: invalid price")
)

// PriceFeed resolves the USD price of an asset as a WAD scaled integer.
type PriceFeed interface {
	Price(assetID string) (*big.Int, error)
}

// Quote is a recorded price with the time it was observed.
type Quote struct {
	Price     *big.Int
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	return Quote{Price: fp.Copy(q.Price), Timestamp: q.Timestamp, Source: q.Source}
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// ManualFeed is an in-memory feed whose prices are set by an operator, the
// simulator or tests. Reads older than MaxAge fail; a zero MaxAge disables the
// freshness check.
type ManualFeed struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	maxAge time.Duration
	clock  clock.Clock
}

// NewManualFeed constructs an empty feed.
func NewManualFeed(maxAge time.Duration) *ManualFeed {
	return &ManualFeed{quotes: make(map[string]Quote), maxAge: maxAge, clock: clock.New()}
}

// SetClock overrides the time source used for timestamps and staleness.
func (f *ManualFeed) SetClock(c clock.Clock) {
	if f == nil || c == nil {
		return
	}
	f.mu.Lock()
	f.clock = c
	f.mu.Unlock()
}

// SetMaxAge updates the freshness window.
func (f *ManualFeed) SetMaxAge(maxAge time.Duration) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.maxAge = maxAge
	f.mu.Unlock()
}

// SetDecimal records a decimal USD price such as "2000.5" observed now.
func (f *ManualFeed) SetDecimal(asset, price string) error {
	v, err := fp.ParseWad(price)
	if err != nil {
		return fmt.Errorf("oracle: parse price for %s: %w", asset, err)
	}
	return f.Set(asset, v)
}

// Set records a WAD scaled price observed now.
func (f *ManualFeed) Set(asset string, price *big.Int) error {
	if f == nil {
		return fmt.Errorf("manual feed not configured")
	}
	f.mu.RLock()
	now := f.clock.Now()
	f.mu.RUnlock()
	return f.SetAt(asset, price, now)
}

// SetAt records a WAD scaled price with an explicit observation time.
func (f *ManualFeed) SetAt(asset string, price *big.Int, ts time.Time) error {
	if f == nil {
		return fmt.Errorf("manual feed not configured")
	}
	key := normaliseAsset(asset)
	if key == "" {
		return fmt.Errorf("oracle: asset required")
	}
	if !fp.Positive(price) {
		return ErrInvalidPrice
	}
	f.mu.Lock()
	f.quotes[key] = Quote{Price: fp.Copy(price), Timestamp: ts, Source: "manual"}
	f.mu.Unlock()
	return nil
}

// Quote returns the latest recorded quote for the asset regardless of age.
func (f *ManualFeed) Quote(asset string) (Quote, error) {
	if f == nil {
		return Quote{}, fmt.Errorf("manual feed not configured")
	}
	f.mu.RLock()
	stored, ok := f.quotes[normaliseAsset(asset)]
	f.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return stored.Clone(), nil
}

// Price implements PriceFeed.
func (f *ManualFeed) Price(asset string) (*big.Int, error) {
	quote, err := f.Quote(asset)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	maxAge, now := f.maxAge, f.clock.Now()
	f.mu.RUnlock()
	if maxAge > 0 && now.Sub(quote.Timestamp) > maxAge {
		return nil, fmt.Errorf("%w: %s observed %s ago", ErrStalePrice, asset, now.Sub(quote.Timestamp))
	}
	return quote.Price, nil
}

// Assets lists the assets with a recorded price.
func (f *ManualFeed) Assets() []string {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.quotes))
	for asset := range f.quotes {
		out = append(out, asset)
	}
	return out
}
