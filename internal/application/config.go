package application

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/optionrun/internal/broker"
	"github.com/sawpanic/optionrun/internal/clock"
	"github.com/sawpanic/optionrun/internal/lifecycle"
	"github.com/sawpanic/optionrun/internal/risk"
	"github.com/sawpanic/optionrun/internal/selector"
)

// Config is the full, strongly typed configuration surface. Every
// recognized option is enumerated here and defaulted explicitly; it is
// loaded once at startup and immutable for the process lifetime.
type Config struct {
	Session   clock.Config       `yaml:"session"`
	Risk      risk.Limits        `yaml:"risk"`
	Selector  selector.Config    `yaml:"selector"`
	Execution lifecycle.Config   `yaml:"execution"`
	Guard     broker.GuardConfig `yaml:"broker_guard"`

	Trading TradingConfig `yaml:"trading"`
	Feed    FeedConfig    `yaml:"feed"`
	History HistoryConfig `yaml:"history"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// TradingConfig tunes the cycle loop.
type TradingConfig struct {
	Underlyings   []string      `yaml:"underlyings"`    // e.g. [SPY, QQQ]
	OrderQuantity int64         `yaml:"order_quantity"` // contracts per entry, default 1
	CycleInterval time.Duration `yaml:"cycle_interval"` // default 30s
}

// FeedConfig locates the market-snapshot supply.
type FeedConfig struct {
	StreamURL   string        `yaml:"stream_url"`
	RedisAddr   string        `yaml:"redis_addr"`   // empty disables the snapshot cache
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default 10m
	PollTimeout time.Duration `yaml:"poll_timeout"` // feed read deadline, default 10s
}

// HistoryConfig locates the optional external trade sink.
type HistoryConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"` // empty disables persistence
}

// HTTPConfig configures the observability server.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // default :8090
}

// DefaultConfig returns the fully defaulted configuration.
func DefaultConfig() Config {
	return Config{
		Session:   clock.DefaultConfig(),
		Risk:      risk.DefaultLimits(),
		Selector:  selector.DefaultConfig(),
		Execution: lifecycle.DefaultConfig(),
		Guard:     broker.DefaultGuardConfig(),
		Trading: TradingConfig{
			Underlyings:   []string{"SPY"},
			OrderQuantity: 1,
			CycleInterval: 30 * time.Second,
		},
		Feed: FeedConfig{
			CacheTTL:    10 * time.Minute,
			PollTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{Addr: ":8090"},
	}
}

// Load reads path over the defaults: absent keys keep their default value.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects malformed configuration before any order activity
// begins. Component configs validate through their own constructors; the
// checks here cover the application-level surface.
func (c Config) Validate() error {
	if _, err := clock.New(c.Session); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk config: %w", err)
	}
	if err := c.Execution.Validate(); err != nil {
		return fmt.Errorf("execution config: %w", err)
	}
	if len(c.Trading.Underlyings) == 0 {
		return fmt.Errorf("trading config: at least one underlying required")
	}
	if c.Trading.OrderQuantity <= 0 {
		return fmt.Errorf("trading config: order_quantity must be positive, got %d", c.Trading.OrderQuantity)
	}
	if c.Trading.CycleInterval <= 0 {
		return fmt.Errorf("trading config: cycle_interval must be positive")
	}
	if c.Feed.PollTimeout <= 0 {
		return fmt.Errorf("feed config: poll_timeout must be positive")
	}
	return nil
}
