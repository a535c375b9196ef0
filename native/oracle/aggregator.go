package oracle

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	fp "termlend/native/fixedpoint"
)

// Aggregator consults registered feeds in priority order until one returns a
// valid price.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	feeds    map[string]PriceFeed
}

// NewAggregator constructs an aggregator with the provided priority. Feeds
// registered later under names missing from the priority are appended to it.
func NewAggregator(priority ...string) *Aggregator {
	prio := make([]string, 0, len(priority))
	for _, name := range priority {
		if trimmed := strings.ToLower(strings.TrimSpace(name)); trimmed != "" {
			prio = append(prio, trimmed)
		}
	}
	return &Aggregator{priority: prio, feeds: make(map[string]PriceFeed)}
}

// Register adds or replaces a feed under the supplied name.
func (a *Aggregator) Register(name string, feed PriceFeed) {
	if a == nil || feed == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feeds[trimmed] = feed
	for _, entry := range a.priority {
		if entry == trimmed {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// Price implements PriceFeed. The last feed error is returned when no feed
// produces a price.
func (a *Aggregator) Price(asset string) (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string(nil), a.priority...)
	a.mu.RUnlock()

	lastErr := fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	for _, name := range priority {
		a.mu.RLock()
		feed := a.feeds[name]
		a.mu.RUnlock()
		if feed == nil {
			continue
		}
		price, err := feed.Price(asset)
		if err != nil {
			lastErr = err
			continue
		}
		if !fp.Positive(price) {
			lastErr = fmt.Errorf("%w: feed %s", ErrInvalidPrice, name)
			continue
		}
		return fp.Copy(price), nil
	}
	return nil, lastErr
}
