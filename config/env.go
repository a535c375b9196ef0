package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TERMLEND_"

type lookupFunc func(string) (string, bool)

// applyEnv overrides scalar settings from TERMLEND_* variables. Market
// sections are only configurable through the file.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("ENV", &cfg.Environment)
	str("DATA_DIR", &cfg.DataDir)
	str("ADMIN", &cfg.Admin)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FILE", &cfg.Logging.File)
	str("AUDIT_DSN", &cfg.Audit.DSN)
	str("GATEWAY_LISTEN", &cfg.Gateway.ListenAddress)
	str("OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("OTEL_HEADERS", &cfg.Telemetry.Headers)
	str("LIQUIDATION_INCENTIVE", &cfg.Auditor.LiquidationIncentive)

	if v, ok := lookup(EnvPrefix + "OTEL_TRACES"); ok {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sOTEL_TRACES: %w", EnvPrefix, err)
		}
		cfg.Telemetry.Traces = enabled
	}
	if v, ok := lookup(EnvPrefix + "ORACLE_MAX_AGE"); ok {
		secs, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sORACLE_MAX_AGE: %w", EnvPrefix, err)
		}
		cfg.Oracle.MaxAgeSeconds = secs
	}
	if v, ok := lookup(EnvPrefix + "GATEWAY_RATE"); ok {
		rate, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sGATEWAY_RATE: %w", EnvPrefix, err)
		}
		cfg.Gateway.RateLimitPerSecond = rate
	}
	return nil
}
