package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTempConfig writes content to a config file in a temp dir and returns
// its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"FEISHU_WEBHOOK", "FEISHU_KEYWORD", "POLL_INTERVAL", "MAX_SYMBOLS", "MIN_NOTIONAL_24H"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "app:\n  name: \"TestApp\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.App.Version != "1.0.0" {
		t.Errorf("unexpected version default: %s", cfg.App.Version)
	}
	if cfg.Reader.Timeout != 8*time.Second {
		t.Errorf("unexpected reader timeout: %v", cfg.Reader.Timeout)
	}
	if cfg.Feishu.MaxLength != 3500 {
		t.Errorf("unexpected max length: %d", cfg.Feishu.MaxLength)
	}

	fut := cfg.Monitors.Futures
	if !fut.Enabled || fut.PollInterval != 60*time.Second || fut.OILimit != 3 || fut.DepthLimit != 50 {
		t.Errorf("unexpected futures defaults: %+v", fut)
	}
	th := fut.Thresholds
	if th.OIGrowth.Value != 3 || th.OIGrowth.Direction != "minimum" {
		t.Errorf("unexpected oi_growth default: %+v", th.OIGrowth)
	}
	if th.DepthImbalance.Value != 1.8 || th.DepthImbalance.Direction != "dual" {
		t.Errorf("unexpected depth default: %+v", th.DepthImbalance)
	}
	if th.FundingExtreme != 0.01 || th.FundingWatch != 0.005 || !th.Composite {
		t.Errorf("unexpected funding/composite defaults: %+v", th)
	}

	oi := cfg.Monitors.OI
	if oi.MinNotional24h != 1_000_000 || oi.PollInterval != 300*time.Second {
		t.Errorf("unexpected oi defaults: %+v", oi)
	}
	if len(oi.Windows) != 2 || oi.Windows[1].Name != "1h" || oi.Windows[1].Price.Value != 11 || oi.Windows[1].OIGrowth.Value != 10 {
		t.Errorf("unexpected default windows: %+v", oi.Windows)
	}
	if cfg.Monitors.Spot.Enabled {
		t.Error("spot monitor should be disabled by default")
	}
	if loc := cfg.Display.Location(); loc.String() != "UTC+8" {
		t.Errorf("unexpected display location: %s", loc)
	}
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
monitors:
  futures:
    enabled: false
    thresholds:
      price_change:
        value: 5
  oi:
    windows:
      - name: 4h
        price:
          value: 15
        oi_growth:
          value: 20
        match: any
  spot:
    enabled: true
    symbols: ["ETHUSDT", "SOLUSDT"]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Monitors.Futures.Enabled {
		t.Error("futures should be disabled from file")
	}
	if pc := cfg.Monitors.Futures.Thresholds.PriceChange; pc.Value != 5 || pc.Direction != "absolute" {
		t.Errorf("partial threshold override lost default direction: %+v", pc)
	}
	if w := cfg.Monitors.OI.Windows; len(w) != 1 || w[0].Name != "4h" || w[0].Match != "any" {
		t.Errorf("unexpected windows: %+v", w)
	}
	if s := cfg.Monitors.Spot.Symbols; len(s) != 2 || s[0] != "ETHUSDT" {
		t.Errorf("unexpected spot symbols: %v", s)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FEISHU_WEBHOOK", "https://open.feishu.cn/open-apis/bot/v2/hook/abc")
	t.Setenv("FEISHU_KEYWORD", "Alert")
	t.Setenv("POLL_INTERVAL", "120")
	t.Setenv("MAX_SYMBOLS", "50")
	t.Setenv("MIN_NOTIONAL_24H", "5000000")

	cfg, err := LoadConfig(writeTempConfig(t, "app:\n  name: x\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feishu.Keyword != "Alert" || cfg.Feishu.WebhookURL == "" {
		t.Errorf("unexpected feishu config: %+v", cfg.Feishu)
	}
	if cfg.Monitors.Futures.PollInterval != 2*time.Minute || cfg.Monitors.OI.PollInterval != 2*time.Minute {
		t.Errorf("POLL_INTERVAL not applied")
	}
	if cfg.Monitors.OI.MaxSymbols != 50 || cfg.Monitors.Futures.MaxSymbols != 50 {
		t.Errorf("MAX_SYMBOLS not applied")
	}
	if cfg.Monitors.OI.MinNotional24h != 5_000_000 {
		t.Errorf("MIN_NOTIONAL_24H not applied: %v", cfg.Monitors.OI.MinNotional24h)
	}
	if err := cfg.DeliveryConfigured(); err != nil {
		t.Errorf("DeliveryConfigured() = %v", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		field   string
	}{
		{
			name:    "bad direction",
			content: "monitors:\n  futures:\n    thresholds:\n      oi_growth:\n        direction: sideways\n",
			field:   "Config.Monitors.Futures.Thresholds.OIGrowth.Direction",
		},
		{
			name:    "no monitor enabled",
			content: "monitors:\n  futures:\n    enabled: false\n  oi:\n    enabled: false\n",
			field:   "monitors",
		},
		{
			name:    "duplicate window",
			content: "monitors:\n  oi:\n    windows:\n      - name: 1h\n      - name: 1h\n",
			field:   "monitors.oi.windows",
		},
		{
			name:    "bad poll interval env",
			content: "app:\n  name: x\n",
			env:     map[string]string{"POLL_INTERVAL": "soon"},
			field:   "POLL_INTERVAL",
		},
		{
			name:    "bad depth limit",
			content: "monitors:\n  futures:\n    depth_limit: 7\n",
			field:   "Config.Monitors.Futures.DepthLimit",
		},
		{
			name:    "dual price change",
			content: "monitors:\n  futures:\n    thresholds:\n      price_change:\n        value: 2\n        direction: dual\n",
			field:   "monitors.futures.thresholds.price_change",
		},
		{
			name:    "dual window threshold",
			content: "monitors:\n  oi:\n    windows:\n      - name: 1h\n        oi_growth:\n          value: 10\n          direction: dual\n",
			field:   "monitors.oi.windows.1h.oi_growth",
		},
		{
			name:    "depth without dual",
			content: "monitors:\n  futures:\n    thresholds:\n      depth_imbalance:\n        value: 1.8\n        direction: minimum\n",
			field:   "monitors.futures.thresholds.depth_imbalance",
		},
		{
			name:    "unknown headline window",
			content: "monitors:\n  oi:\n    headline_window: 4h\n",
			field:   "monitors.oi.headline_window",
		},
		{
			name:    "more than one retry",
			content: "reader:\n  retries: 2\n",
			field:   "Config.Reader.Retries",
		},
		{
			name:    "timeout above bound",
			content: "reader:\n  timeout: 10s\n",
			field:   "Config.Reader.Timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %T: %v", err, err)
			}
			if cerr.Field != tt.field {
				t.Errorf("field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestMissingWebhookIsNotFatal(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeTempConfig(t, "app:\n  name: x\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	var cerr *ConfigError
	if err := cfg.DeliveryConfigured(); !errors.As(err, &cerr) || cerr.Field != "feishu.webhook_url" {
		t.Errorf("DeliveryConfigured() = %v", err)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"300", 5 * time.Minute, false},
		{"90s", 90 * time.Second, false},
		{"0", 0, true},
		{"-5s", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseInterval(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseInterval(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if got := ResolvePath("custom.yml"); got != "custom.yml" {
		t.Errorf("explicit path changed to %s", got)
	}
	// No production file exists in the test working directory.
	if got := ResolvePath(""); got != defaultConfigPath {
		t.Errorf("ResolvePath(\"\") = %s, want %s", got, defaultConfigPath)
	}
	if env := AppEnvironment(); env != EnvironmentProduction {
		t.Errorf("AppEnvironment() = %s", env)
	}
}
