package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Reader    ReaderConfig    `yaml:"reader"`
	Binance   BinanceConfig   `yaml:"binance"`
	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Feishu    FeishuConfig    `yaml:"feishu"`
	Display   DisplayConfig   `yaml:"display"`
	Monitors  MonitorsConfig  `yaml:"monitors"`
}

type AppConfig struct {
	Name    string `yaml:"name" default:"web3-script" validate:"required"`
	Version string `yaml:"version" default:"1.0.0" validate:"required"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `yaml:"format" default:"json" validate:"oneof=json text"`
	Output string `yaml:"output" default:"stdout" validate:"required"`
	MaxAge int    `yaml:"max_age" default:"7" validate:"gte=0"`
}

type MetricsConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address" default:":9100" validate:"required_if=Enabled true"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region" default:"ap-northeast-1" validate:"required_if=Enabled true"`
	Namespace       string `yaml:"namespace" default:"Web3Script" validate:"required_if=Enabled true"`
	Dashboard       string `yaml:"dashboard"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ReaderConfig struct {
	Timeout           time.Duration `yaml:"timeout" default:"8s" validate:"gt=0,lte=9s"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"10" validate:"gte=0"`
	Burst             int           `yaml:"burst" default:"1" validate:"gte=1"`
	Retries           int           `yaml:"retries" default:"1" validate:"gte=0,lte=1"`
	Concurrency       int           `yaml:"concurrency" default:"1" validate:"gte=1,lte=32"`
	MaxIdleConns      int           `yaml:"max_idle_conns" default:"20" validate:"gte=0"`
	MaxConnsPerHost   int           `yaml:"max_conns_per_host" default:"10" validate:"gte=0"`
	IdleConnTimeout   time.Duration `yaml:"idle_conn_timeout" default:"90s"`
	LocalIP           string        `yaml:"local_ip" validate:"omitempty,ip"`
}

type BinanceConfig struct {
	FuturesURL string `yaml:"futures_url" default:"https://fapi.binance.com" validate:"required,url"`
	SpotURL    string `yaml:"spot_url" default:"https://api.binance.com" validate:"required,url"`
}

type CoinGeckoConfig struct {
	Enabled         bool              `yaml:"enabled"`
	BaseURL         string            `yaml:"base_url" default:"https://api.coingecko.com/api/v3" validate:"required,url"`
	RefreshInterval time.Duration     `yaml:"refresh_interval" default:"300s" validate:"gt=0"`
	BatchSize       int               `yaml:"batch_size" default:"200" validate:"gte=1,lte=250"`
	IDs             map[string]string `yaml:"ids"`
}

type FeishuConfig struct {
	WebhookURL string        `yaml:"webhook_url" validate:"omitempty,url"`
	Keyword    string        `yaml:"keyword"`
	MaxLength  int           `yaml:"max_length" default:"3500" validate:"gte=100"`
	Timeout    time.Duration `yaml:"timeout" default:"8s" validate:"gt=0,lte=9s"`
}

type DisplayConfig struct {
	UTCOffsetHours int `yaml:"utc_offset_hours" default:"8" validate:"gte=-12,lte=14"`
}

type MonitorsConfig struct {
	Futures FuturesMonitorConfig `yaml:"futures"`
	OI      OIMonitorConfig      `yaml:"oi"`
	Spot    SpotMonitorConfig    `yaml:"spot"`
}

// ThresholdConfig is a trigger value and its comparison direction. An empty
// direction keeps the signal's usual comparison.
type ThresholdConfig struct {
	Value     float64 `yaml:"value" json:"value" validate:"gte=0"`
	Direction string  `yaml:"direction" json:"direction" validate:"omitempty,oneof=absolute minimum dual"`
}

type FuturesMonitorConfig struct {
	Enabled      bool              `yaml:"enabled" default:"true"`
	PollInterval time.Duration     `yaml:"poll_interval" default:"60s" validate:"gt=0"`
	MaxSymbols   int               `yaml:"max_symbols" default:"9999" validate:"gte=0"`
	Announce     bool              `yaml:"announce" default:"true"`
	OIPeriod     string            `yaml:"oi_period" default:"5m" validate:"required"`
	OILimit      int               `yaml:"oi_limit" default:"3" validate:"gte=2,lte=500"`
	TakerPeriod  string            `yaml:"taker_period" default:"5m" validate:"required"`
	TakerLimit   int               `yaml:"taker_limit" default:"2" validate:"gte=2,lte=500"`
	DepthLimit   int               `yaml:"depth_limit" default:"50" validate:"oneof=5 10 20 50 100 500 1000"`
	Thresholds   FuturesThresholds `yaml:"thresholds"`
}

type FuturesThresholds struct {
	OIGrowth       ThresholdConfig `yaml:"oi_growth" default:"{\"value\":3,\"direction\":\"minimum\"}"`
	PriceChange    ThresholdConfig `yaml:"price_change" default:"{\"value\":2,\"direction\":\"absolute\"}"`
	FundingExtreme float64         `yaml:"funding_extreme" default:"0.01" validate:"gte=0"`
	FundingWatch   float64         `yaml:"funding_watch" default:"0.005" validate:"gte=0"`
	TakerTrend     ThresholdConfig `yaml:"taker_trend" default:"{\"value\":0.2,\"direction\":\"absolute\"}"`
	DepthImbalance ThresholdConfig `yaml:"depth_imbalance" default:"{\"value\":1.8,\"direction\":\"dual\"}"`
	Composite      bool            `yaml:"composite" default:"true"`
}

type OIMonitorConfig struct {
	Enabled          bool           `yaml:"enabled" default:"true"`
	PollInterval     time.Duration  `yaml:"poll_interval" default:"300s" validate:"gt=0"`
	MaxSymbols       int            `yaml:"max_symbols" default:"9999" validate:"gte=0"`
	Announce         bool           `yaml:"announce" default:"true"`
	MinNotional24h   float64        `yaml:"min_notional_24h" default:"1000000" validate:"gte=0"`
	RequireMarketCap bool           `yaml:"require_market_cap"`
	HeadlineWindow   string         `yaml:"headline_window"`
	Windows          []WindowConfig `yaml:"windows" default:"[{\"name\":\"15m\",\"price\":{\"value\":8},\"oi_growth\":{\"value\":8}},{\"name\":\"1h\",\"price\":{\"value\":11},\"oi_growth\":{\"value\":10}}]" validate:"min=1,dive"`
}

type WindowConfig struct {
	Name          string          `yaml:"name" json:"name" validate:"required"`
	KlineInterval string          `yaml:"kline_interval" json:"kline_interval"`
	KlineLimit    int             `yaml:"kline_limit" json:"kline_limit" validate:"gte=0,lte=1500"`
	OIPeriod      string          `yaml:"oi_period" json:"oi_period"`
	OILimit       int             `yaml:"oi_limit" json:"oi_limit" validate:"gte=0,lte=500"`
	Price         ThresholdConfig `yaml:"price" json:"price"`
	OIGrowth      ThresholdConfig `yaml:"oi_growth" json:"oi_growth"`
	Match         string          `yaml:"match" json:"match" validate:"omitempty,oneof=all any"`
}

type SpotMonitorConfig struct {
	Enabled      bool            `yaml:"enabled"`
	PollInterval time.Duration   `yaml:"poll_interval" default:"5s" validate:"gt=0"`
	Announce     bool            `yaml:"announce" default:"true"`
	Symbols      []string        `yaml:"symbols" default:"[\"BTCUSDT\"]" validate:"required_if=Enabled true,dive,required"`
	PriceChange  ThresholdConfig `yaml:"price_change" default:"{\"value\":0.1,\"direction\":\"absolute\"}"`
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

var validate = validator.New()

// ResolvePath returns the configuration file to load, preferring the
// APP_ENV specific file when path is the default.
func ResolvePath(path string) string {
	if path == "" {
		path = defaultConfigPath
	}
	resolved := resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)
	if resolved == path {
		return path
	}
	if _, err := os.Stat(resolved); err != nil {
		return path
	}
	return resolved
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides lets the environment override secrets and the knobs most
// often changed per deployment.
func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("FEISHU_WEBHOOK")); v != "" {
		cfg.Feishu.WebhookURL = v
	}
	if v := strings.TrimSpace(os.Getenv("FEISHU_KEYWORD")); v != "" {
		cfg.Feishu.Keyword = v
	}
	if v := strings.TrimSpace(os.Getenv("POLL_INTERVAL")); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return &ConfigError{Field: "POLL_INTERVAL", Reason: err.Error(), Err: err}
		}
		cfg.Monitors.Futures.PollInterval = d
		cfg.Monitors.OI.PollInterval = d
		cfg.Monitors.Spot.PollInterval = d
	}
	if v := strings.TrimSpace(os.Getenv("MAX_SYMBOLS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "MAX_SYMBOLS", Reason: "not an integer", Err: err}
		}
		cfg.Monitors.Futures.MaxSymbols = n
		cfg.Monitors.OI.MaxSymbols = n
	}
	if v := strings.TrimSpace(os.Getenv("MIN_NOTIONAL_24H")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigError{Field: "MIN_NOTIONAL_24H", Reason: "not a number", Err: err}
		}
		cfg.Monitors.OI.MinNotional24h = f
	}
	if cfg.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}
	return nil
}

// parseInterval accepts plain seconds or a Go duration string.
func parseInterval(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

type namedThreshold struct {
	field string
	cfg   ThresholdConfig
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: fe.Namespace(), Reason: fmt.Sprintf("failed %q check", fe.Tag()), Err: err}
		}
		return &ConfigError{Reason: err.Error(), Err: err}
	}

	m := cfg.Monitors
	if !m.Futures.Enabled && !m.OI.Enabled && !m.Spot.Enabled {
		return &ConfigError{Field: "monitors", Reason: "at least one monitor must be enabled"}
	}
	if m.Futures.Thresholds.FundingWatch > m.Futures.Thresholds.FundingExtreme && m.Futures.Thresholds.FundingExtreme > 0 {
		return &ConfigError{Field: "monitors.futures.thresholds.funding_watch", Reason: "must not exceed funding_extreme"}
	}
	if d := m.Futures.Thresholds.DepthImbalance; d.Value > 0 && d.Value <= 1 && d.Direction == "dual" {
		return &ConfigError{Field: "monitors.futures.thresholds.depth_imbalance", Reason: "dual ratio threshold must be above 1"}
	}
	ft := m.Futures.Thresholds
	percent := []namedThreshold{
		{"monitors.futures.thresholds.oi_growth", ft.OIGrowth},
		{"monitors.futures.thresholds.price_change", ft.PriceChange},
		{"monitors.futures.thresholds.taker_trend", ft.TakerTrend},
		{"monitors.spot.price_change", m.Spot.PriceChange},
	}
	seen := make(map[string]bool, len(m.OI.Windows))
	for _, w := range m.OI.Windows {
		if seen[w.Name] {
			return &ConfigError{Field: "monitors.oi.windows", Reason: fmt.Sprintf("duplicate window %q", w.Name)}
		}
		seen[w.Name] = true
		percent = append(percent,
			namedThreshold{"monitors.oi.windows." + w.Name + ".price", w.Price},
			namedThreshold{"monitors.oi.windows." + w.Name + ".oi_growth", w.OIGrowth},
		)
	}
	// Percentage changes cross zero, so the reciprocal band of dual would
	// match a flat market.
	for _, nt := range percent {
		if nt.cfg.Direction == "dual" {
			return &ConfigError{Field: nt.field, Reason: "dual applies to ratios only, use absolute or minimum"}
		}
	}
	if d := ft.DepthImbalance.Direction; d != "" && d != "dual" {
		return &ConfigError{Field: "monitors.futures.thresholds.depth_imbalance", Reason: "depth imbalance is a ratio and only supports dual"}
	}
	if h := m.OI.HeadlineWindow; h != "" && !seen[h] {
		return &ConfigError{Field: "monitors.oi.headline_window", Reason: fmt.Sprintf("window %q is not configured", h)}
	}
	if cfg.Metrics.CloudWatch.Enabled {
		cw := cfg.Metrics.CloudWatch
		if (cw.AccessKeyID == "") != (cw.SecretAccessKey == "") {
			return &ConfigError{Field: "metrics.cloudwatch", Reason: "access_key_id and secret_access_key must be set together"}
		}
	}
	return nil
}

// DeliveryConfigured reports whether a webhook is set. A missing webhook is
// not fatal; delivery is disabled and monitors still run.
func (c *Config) DeliveryConfigured() error {
	if c.Feishu.WebhookURL == "" {
		return &ConfigError{Field: "feishu.webhook_url", Reason: "not set, alerts will only be logged"}
	}
	return nil
}

// Location is the time zone used for timestamps in messages.
func (d DisplayConfig) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", d.UTCOffsetHours), d.UTCOffsetHours*60*60)
}
