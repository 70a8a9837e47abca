// Package config loads marketfeed's YAML configuration file, grounded on
// the Load/Validate pattern in internal/config/providers.go of the
// teacher repo.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/arbiq/marketfeed/infra/breakers"
	"github.com/arbiq/marketfeed/internal/canon"
)

// Config is the top-level configuration tree.
type Config struct {
	Tickers   []TickerConfig  `yaml:"tickers"`
	Exchanges []string        `yaml:"exchanges"`
	Bus       BusConfig       `yaml:"bus"`
	Arbitrage ArbitrageConfig `yaml:"arbitrage"`
	Spoof     SpoofConfig     `yaml:"spoof"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	HTTP      HTTPConfig      `yaml:"http"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	LogLevel  string          `yaml:"log_level"`
}

// BreakerConfig is the reconnect circuit breaker's trip thresholds,
// applied per venue. A zero field falls back to breakers.Default.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	MinRequests         uint32        `yaml:"min_requests"`
	ErrorRateThreshold  float64       `yaml:"error_rate_threshold"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
	Interval            time.Duration `yaml:"interval"`
}

func (b BreakerConfig) toCanon() breakers.Config {
	return breakers.Config{
		ConsecutiveFailures: b.ConsecutiveFailures,
		MinRequests:         b.MinRequests,
		ErrorRateThreshold:  b.ErrorRateThreshold,
		OpenTimeout:         b.OpenTimeout,
		Interval:            b.Interval,
	}
}

// TickerConfig mirrors canon.TickerConfig in YAML-friendly form.
type TickerConfig struct {
	Ticker             string `yaml:"ticker"`
	PriceMultiplier    uint64 `yaml:"price_multiplier"`
	QuantityMultiplier uint64 `yaml:"quantity_multiplier"`
	SubscribeTrades    bool   `yaml:"subscribe_trades"`
	SubscribeDepth     bool   `yaml:"subscribe_depth"`
	DepthValue         int    `yaml:"depth_value"`
}

// BusConfig controls the broadcast bus's per-subscriber buffer capacity.
type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

// ArbitrageConfig controls the cross-venue signal threshold.
type ArbitrageConfig struct {
	MinSpreadBps float64 `yaml:"min_spread_bps"`
}

// SpoofConfig mirrors spoof.Config's rate thresholds in YAML-friendly
// form; Period, MaxDepth, and Sides are supplied by the pipeline at
// construction time since they depend on runtime state, not static config.
type SpoofConfig struct {
	SpikeRate     float64 `yaml:"spike_rate"`
	LifetimeRate  float64 `yaml:"lifetime_rate"`
	ExecutedRate  float64 `yaml:"executed_rate"`
	CancelledRate float64 `yaml:"cancelled_rate"`
	// WindowMS is the sliding window width, in milliseconds, the pipeline
	// evaluates rate thresholds over. Zero means the pipeline's default.
	WindowMS uint64 `yaml:"window_ms"`
}

// StoreConfig is the Postgres analytics-store DSN and pool sizing.
type StoreConfig struct {
	DSN         string `yaml:"dsn"`
	MaxOpenConn int    `yaml:"max_open_conns"`
}

// CacheConfig is the Redis symbol-cache connection.
type CacheConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// HTTPConfig is the health/metrics server bind address.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads and validates a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w: reading %s: %v", canon.ErrBuilder, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w: parsing %s: %v", canon.ErrBuilder, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every invariant spec.md §3 and §6 require before the
// configuration is handed to the builders that construct sessions, the
// bus, and the detectors.
func (c *Config) Validate() error {
	if len(c.Tickers) == 0 {
		return fmt.Errorf("config: %w: at least one ticker must be configured", canon.ErrBuilder)
	}
	for _, t := range c.Tickers {
		canonical := t.toCanon()
		if err := canon.ValidateTickerConfig(canonical); err != nil {
			return err
		}
	}
	if c.Bus.Capacity <= 0 {
		return fmt.Errorf("config: %w: bus.capacity must be positive, got %d", canon.ErrBuilder, c.Bus.Capacity)
	}
	if c.Arbitrage.MinSpreadBps < 0 {
		return fmt.Errorf("config: %w: arbitrage.min_spread_bps must be non-negative", canon.ErrBuilder)
	}
	if c.Spoof.ExecutedRate < 0 || c.Spoof.ExecutedRate > 1 {
		return fmt.Errorf("config: %w: spoof.executed_rate must be in [0,1]", canon.ErrBuilder)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("config: %w: store.dsn must be set", canon.ErrBuilder)
	}
	if _, err := c.CanonExchanges(); err != nil {
		return err
	}
	return nil
}

// CanonExchanges resolves Exchanges into the set of venues to run. An empty
// list, or a list containing "all", means every supported venue. At least
// one venue is always required.
func (c *Config) CanonExchanges() ([]canon.Exchange, error) {
	if len(c.Exchanges) == 0 {
		return []canon.Exchange{canon.Binance, canon.Kraken}, nil
	}

	seen := make(map[canon.Exchange]bool, len(c.Exchanges))
	var out []canon.Exchange
	for _, name := range c.Exchanges {
		if strings.EqualFold(name, "all") {
			return []canon.Exchange{canon.Binance, canon.Kraken}, nil
		}
		ex, err := canon.ParseExchange(strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("config: %w: exchanges: %v", canon.ErrBuilder, err)
		}
		if seen[ex] {
			continue
		}
		seen[ex] = true
		out = append(out, ex)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: %w: exchanges: at least one venue must be configured", canon.ErrBuilder)
	}
	return out, nil
}

// CanonBreaker resolves Breaker into the infra/breakers.Config the
// supervisor builds each venue's circuit breaker from.
func (c *Config) CanonBreaker() breakers.Config {
	return c.Breaker.toCanon()
}

// CanonTickers converts every configured ticker to its canonical form.
func (c *Config) CanonTickers() []canon.TickerConfig {
	out := make([]canon.TickerConfig, 0, len(c.Tickers))
	for _, t := range c.Tickers {
		out = append(out, t.toCanon())
	}
	return out
}

func (t TickerConfig) toCanon() canon.TickerConfig {
	ticker := canon.Intern(t.Ticker)
	return canon.TickerConfig{
		Ticker:             ticker,
		PriceMultiplier:    t.PriceMultiplier,
		QuantityMultiplier: t.QuantityMultiplier,
		SubscribeTrades:    t.SubscribeTrades,
		SubscribeDepth:     t.SubscribeDepth,
		DepthValue:         t.DepthValue,
	}
}

// ZerologLevel parses LogLevel, defaulting to info on an empty or invalid
// value.
func (c *Config) ZerologLevel() zerolog.Level {
	if c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
