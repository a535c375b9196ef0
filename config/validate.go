package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"termlend/native/auditor"
	fp "termlend/native/fixedpoint"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

var (
	minAdjust    = fp.Fraction(30, 100)
	maxAdjust    = fp.Fraction(90, 100)
	minIncentive = fp.Fraction(105, 100)
	maxIncentive = fp.Fraction(120, 100)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the configuration against the ranges the ledger accepts.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("config is nil")
	}
	if !common.IsHexAddress(cfg.Admin) {
		return invalid("Admin %q is not an address", cfg.Admin)
	}
	incentive, err := cfg.LiquidationIncentive()
	if err != nil {
		return invalid("auditor.LiquidationIncentive: %v", err)
	}
	if incentive.Cmp(minIncentive) < 0 || incentive.Cmp(maxIncentive) > 0 {
		return invalid("auditor.LiquidationIncentive must be within [1.05, 1.20]")
	}
	if cfg.Gateway.RateLimitPerSecond < 0 || cfg.Gateway.RateLimitBurst < 0 {
		return invalid("gateway rate limits must not be negative")
	}
	if len(cfg.Markets) == 0 {
		return invalid("at least one market is required")
	}
	if len(cfg.Markets) > auditor.MaxMarkets {
		return invalid("at most %d markets are supported", auditor.MaxMarkets)
	}
	prices := make(map[string]struct{}, len(cfg.Oracle.Prices))
	for _, p := range cfg.Oracle.Prices {
		v, err := fp.ParseWad(p.Price)
		if err != nil || v.Sign() <= 0 {
			return invalid("oracle price for %q must be a positive decimal", p.Asset)
		}
		prices[strings.ToUpper(strings.TrimSpace(p.Asset))] = struct{}{}
	}
	seen := make(map[string]struct{}, len(cfg.Markets))
	for _, m := range cfg.Markets {
		if m.ID == "" {
			return invalid("market ID is required")
		}
		if _, dup := seen[m.ID]; dup {
			return invalid("market %s is configured twice", m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.Decimals > 36 {
			return invalid("markets.%s.Decimals out of range", m.ID)
		}
		if _, ok := prices[strings.ToUpper(m.PriceFeed)]; !ok {
			return invalid("markets.%s has no oracle price for %s", m.ID, m.PriceFeed)
		}
		adjust, err := m.Adjust()
		if err != nil {
			return invalid("markets.%s.AdjustFactor: %v", m.ID, err)
		}
		if adjust.Cmp(minAdjust) < 0 || adjust.Cmp(maxAdjust) > 0 {
			return invalid("markets.%s.AdjustFactor must be within [0.30, 0.90]", m.ID)
		}
		params, err := m.Params()
		if err != nil {
			return invalid("%v", err)
		}
		if err := params.Validate(); err != nil {
			return invalid("markets.%s: %v", m.ID, err)
		}
		model, err := m.Model()
		if err != nil {
			return invalid("%v", err)
		}
		if err := model.Validate(); err != nil {
			return invalid("markets.%s: %v", m.ID, err)
		}
	}
	return nil
}
