package config

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	fp "termlend/native/fixedpoint"
	"termlend/native/irm"
	"termlend/native/lending"
	"termlend/observability/logging"
)

type Config struct {
	Environment string    `toml:"Environment"`
	DataDir     string    `toml:"DataDir"`
	Admin       string    `toml:"Admin"`
	Logging     Logging   `toml:"logging"`
	Telemetry   Telemetry `toml:"telemetry"`
	Audit       Audit     `toml:"audit"`
	Gateway     Gateway   `toml:"gateway"`
	Oracle      Oracle    `toml:"oracle"`
	Auditor     Auditor   `toml:"auditor"`
	Markets     []Market  `toml:"markets"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists, then applies TERMLEND_* environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for fresh deployments: a USDC
// and a WETH market priced by the manual feed.
func Default() *Config {
	cfg := &Config{
		Environment: "dev",
		DataDir:     "",
		Admin:       "0x00000000000000000000000000000000000000ad",
		Logging:     Logging{Level: "info"},
		Gateway:     Gateway{ListenAddress: ":8080", RateLimitPerSecond: 20, RateLimitBurst: 40},
		Oracle: Oracle{
			MaxAgeSeconds: 86400,
			Prices:        []Price{{Asset: "USDC", Price: "1"}, {Asset: "WETH", Price: "2000"}},
		},
		Auditor: Auditor{LiquidationIncentive: "1.1"},
		Markets: []Market{
			defaultMarket("USDC", 6, "0.9"),
			defaultMarket("WETH", 18, "0.8"),
		},
	}
	applyDefaults(cfg)
	return cfg
}

func defaultMarket(id string, decimals uint8, adjust string) Market {
	return Market{
		ID:            id,
		Decimals:      decimals,
		PriceFeed:     id,
		AdjustFactor:  adjust,
		FixedCurve:    Curve{A: "0.023", B: "-0.0025", MaxUtilization: "1.02"},
		FloatingCurve: Curve{A: "0.023", B: "-0.0025", MaxUtilization: "1.02"},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Oracle.MaxAgeSeconds == 0 {
		cfg.Oracle.MaxAgeSeconds = 86400
	}
	if strings.TrimSpace(cfg.Auditor.LiquidationIncentive) == "" {
		cfg.Auditor.LiquidationIncentive = "1.1"
	}
	if cfg.Gateway.RateLimitPerSecond == 0 {
		cfg.Gateway.RateLimitPerSecond = 20
	}
	if cfg.Gateway.RateLimitBurst == 0 {
		cfg.Gateway.RateLimitBurst = int(cfg.Gateway.RateLimitPerSecond * 2)
	}
	for i := range cfg.Markets {
		m := &cfg.Markets[i]
		m.ID = strings.ToUpper(strings.TrimSpace(m.ID))
		if strings.TrimSpace(m.PriceFeed) == "" {
			m.PriceFeed = m.ID
		}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// AdminAddress returns the parsed admin account.
func (c *Config) AdminAddress() common.Address { return common.HexToAddress(c.Admin) }

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level { return logging.ParseLevel(c.Logging.Level) }

// LiquidationIncentive returns the configured incentive as a WAD.
func (c *Config) LiquidationIncentive() (*big.Int, error) {
	return fp.ParseWad(c.Auditor.LiquidationIncentive)
}

// Market looks up a market section by identifier.
func (c *Config) Market(id string) (Market, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	for _, m := range c.Markets {
		if m.ID == id {
			return m, true
		}
	}
	return Market{}, false
}

func parseOptional(raw string, fallback *big.Int) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return fp.Copy(fallback), nil
	}
	return fp.ParseWad(raw)
}

// Params converts the market section into ledger parameters, filling unset
// fields from lending.DefaultParams.
func (m Market) Params() (lending.Params, error) {
	params := lending.DefaultParams()
	var err error
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"ReserveFactor", m.ReserveFactor, &params.ReserveFactor},
		{"BackupFeeRate", m.BackupFeeRate, &params.BackupFeeRate},
		{"TreasuryFeeRate", m.TreasuryFeeRate, &params.TreasuryFeeRate},
		{"DampSpeedUp", m.DampSpeedUp, &params.DampSpeedUp},
		{"DampSpeedDown", m.DampSpeedDown, &params.DampSpeedDown},
		{"SmoothFactor", m.SmoothFactor, &params.EarningsAccumulatorSmoothFactor},
	}
	for _, f := range fields {
		if *f.dst, err = parseOptional(f.raw, *f.dst); err != nil {
			return params, fmt.Errorf("markets.%s.%s: %w", m.ID, f.name, err)
		}
	}
	if strings.TrimSpace(m.PenaltyRate) != "" {
		daily, err := fp.ParseWad(m.PenaltyRate)
		if err != nil {
			return params, fmt.Errorf("markets.%s.PenaltyRate: %w", m.ID, err)
		}
		params.PenaltyRate = daily.Quo(daily, big.NewInt(24*60*60))
	}
	if strings.TrimSpace(m.Treasury) != "" {
		if !common.IsHexAddress(m.Treasury) {
			return params, fmt.Errorf("markets.%s.Treasury: invalid address %q", m.ID, m.Treasury)
		}
		params.Treasury = common.HexToAddress(m.Treasury)
	}
	if m.MaxFuturePools != 0 {
		params.MaxFuturePools = m.MaxFuturePools
	}
	return params, nil
}

// Model converts the curve sections into an interest rate model.
func (m Market) Model() (*irm.Model, error) {
	fixed, err := m.FixedCurve.curve()
	if err != nil {
		return nil, fmt.Errorf("markets.%s.FixedCurve: %w", m.ID, err)
	}
	floating, err := m.FloatingCurve.curve()
	if err != nil {
		return nil, fmt.Errorf("markets.%s.FloatingCurve: %w", m.ID, err)
	}
	return &irm.Model{Fixed: fixed, Floating: floating}, nil
}

// Adjust returns the collateral adjust factor as a WAD.
func (m Market) Adjust() (*big.Int, error) {
	return fp.ParseWad(m.AdjustFactor)
}

func (c Curve) curve() (irm.Curve, error) {
	a, err := fp.ParseWad(c.A)
	if err != nil {
		return irm.Curve{}, err
	}
	b, err := fp.ParseWad(c.B)
	if err != nil {
		return irm.Curve{}, err
	}
	umax, err := fp.ParseWad(c.MaxUtilization)
	if err != nil {
		return irm.Curve{}, err
	}
	return irm.Curve{A: a, B: b, MaxUtilization: umax}, nil
}
