package config

// Logging configures the structured logger and its optional rotating file.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP trace exporter.
type Telemetry struct {
	Traces   bool   `toml:"Traces"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
}

// Audit configures the SQL event store. An empty DSN disables it.
type Audit struct {
	DSN string `toml:"DSN"`
}

// Gateway configures the read-only preview API.
type Gateway struct {
	ListenAddress      string  `toml:"ListenAddress"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Price seeds the manual price feed.
type Price struct {
	Asset string `toml:"Asset"`
	Price string `toml:"Price"`
}

// Oracle configures the manual price feed.
type Oracle struct {
	MaxAgeSeconds uint64  `toml:"MaxAgeSeconds"`
	Prices        []Price `toml:"Prices"`
}

// Auditor configures the cross-market risk engine.
type Auditor struct {
	LiquidationIncentive string `toml:"LiquidationIncentive"`
}

// Curve is an interest rate curve r(u) = A/(MaxUtilization-u) + B in decimal
// form.
type Curve struct {
	A              string `toml:"A"`
	B              string `toml:"B"`
	MaxUtilization string `toml:"MaxUtilization"`
}

// Market describes one deployed market. Ratios are decimal strings such as
// "0.1"; PenaltyRate is expressed per day.
type Market struct {
	ID              string `toml:"ID"`
	Decimals        uint8  `toml:"Decimals"`
	PriceFeed       string `toml:"PriceFeed"`
	AdjustFactor    string `toml:"AdjustFactor"`
	ReserveFactor   string `toml:"ReserveFactor"`
	PenaltyRate     string `toml:"PenaltyRate"`
	BackupFeeRate   string `toml:"BackupFeeRate"`
	TreasuryFeeRate string `toml:"TreasuryFeeRate"`
	Treasury        string `toml:"Treasury"`
	DampSpeedUp     string `toml:"DampSpeedUp"`
	DampSpeedDown   string `toml:"DampSpeedDown"`
	SmoothFactor    string `toml:"SmoothFactor"`
	MaxFuturePools  uint8  `toml:"MaxFuturePools"`
	Paused          bool   `toml:"Paused"`
	FixedCurve      Curve  `toml:"FixedCurve"`
	FloatingCurve   Curve  `toml:"FloatingCurve"`
}
