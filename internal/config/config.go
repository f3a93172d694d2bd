package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type CancelMode string

const (
	CancelBySymbol CancelMode = "symbol"
	CancelBySide   CancelMode = "side"
	CancelByPrefix CancelMode = "prefix"
)

type Config struct {
	InstanceID    string              `yaml:"instance_id"`
	HedgeMode     bool                `yaml:"hedge_mode"`
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Cancel        CancelConfig        `yaml:"cancel"`
	Reconnect     ReconnectConfig     `yaml:"reconnect"`
	Status        StatusConfig        `yaml:"status"`
	State         StateConfig         `yaml:"state"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ExchangeConfig struct {
	APIKey                string `yaml:"api_key"`
	APISecret             string `yaml:"api_secret"`
	RestBaseURL           string `yaml:"rest_base_url"`
	WSBaseURL             string `yaml:"ws_base_url"`
	RecvWindowMs          int64  `yaml:"recv_window_ms"`
	HTTPTimeoutSec        int64  `yaml:"http_timeout_sec"`
	ListenKeyKeepaliveSec int64  `yaml:"listen_key_keepalive_sec"`
}

type CancelConfig struct {
	Mode   CancelMode `yaml:"mode"`
	Prefix string     `yaml:"prefix"`
}

type ReconnectConfig struct {
	BackoffFloorSec int64 `yaml:"backoff_floor_sec"`
	BackoffCapSec   int64 `yaml:"backoff_cap_sec"`
}

type StatusConfig struct {
	// Port 0 disables the status endpoint.
	Port int `yaml:"port"`
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockTakeover *bool  `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type ObservabilityConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

type RuntimeConfig struct {
	AlertDropReportSec int64 `yaml:"alert_drop_report_sec"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.InstanceID = strings.ToLower(strings.TrimSpace(c.InstanceID))
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.APISecret = strings.TrimSpace(c.Exchange.APISecret)
	c.Exchange.RestBaseURL = strings.TrimSpace(c.Exchange.RestBaseURL)
	c.Exchange.WSBaseURL = strings.TrimSpace(c.Exchange.WSBaseURL)
	c.Cancel.Mode = CancelMode(strings.ToLower(strings.TrimSpace(string(c.Cancel.Mode))))
	c.Cancel.Prefix = strings.TrimSpace(c.Cancel.Prefix)
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.InstanceID == "" {
		c.InstanceID = "default"
	}
	if c.Cancel.Mode == "" {
		c.Cancel.Mode = CancelBySymbol
	}
	if c.Exchange.RestBaseURL == "" {
		c.Exchange.RestBaseURL = "https://fapi.binance.com"
	}
	if c.Exchange.WSBaseURL == "" {
		c.Exchange.WSBaseURL = "wss://fstream.binance.com"
	}
	if c.Exchange.RecvWindowMs == 0 {
		c.Exchange.RecvWindowMs = 5000
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 15
	}
	if c.Exchange.ListenKeyKeepaliveSec == 0 {
		c.Exchange.ListenKeyKeepaliveSec = 1800
	}
	if c.Reconnect.BackoffFloorSec == 0 {
		c.Reconnect.BackoffFloorSec = 1
	}
	if c.Reconnect.BackoffCapSec == 0 {
		c.Reconnect.BackoffCapSec = 30
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.LockTakeover == nil {
		enabled := true
		c.State.LockTakeover = &enabled
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
	if c.Observability.Runtime.AlertDropReportSec == 0 {
		c.Observability.Runtime.AlertDropReportSec = 60
	}
}

func (c Config) Validate() error {
	if !isValidInstanceID(c.InstanceID) {
		return fmt.Errorf("instance_id must match [a-z0-9_-], length 1..24")
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange api_key/api_secret are required")
	}
	if c.Exchange.RecvWindowMs < 1 || c.Exchange.RecvWindowMs > 60000 {
		return fmt.Errorf("exchange recv_window_ms must be between 1 and 60000")
	}
	if c.Exchange.HTTPTimeoutSec < 1 || c.Exchange.HTTPTimeoutSec > 120 {
		return fmt.Errorf("exchange http_timeout_sec must be between 1 and 120")
	}
	if c.Exchange.ListenKeyKeepaliveSec < 60 || c.Exchange.ListenKeyKeepaliveSec > 3600 {
		return fmt.Errorf("exchange listen_key_keepalive_sec must be between 60 and 3600")
	}
	if err := validateURL(c.Exchange.RestBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("exchange rest_base_url %v", err)
	}
	if err := validateURL(c.Exchange.WSBaseURL, "ws", "wss"); err != nil {
		return fmt.Errorf("exchange ws_base_url %v", err)
	}
	switch c.Cancel.Mode {
	case CancelBySymbol, CancelByPrefix:
	case CancelBySide:
		if !c.HedgeMode {
			// Side filtering against a one-way account would match nothing.
			return fmt.Errorf("cancel mode side requires hedge_mode: true")
		}
	default:
		return fmt.Errorf("cancel mode must be symbol, side, or prefix")
	}
	if c.Cancel.Mode == CancelByPrefix && c.Cancel.Prefix == "" {
		return fmt.Errorf("cancel prefix is required for prefix mode")
	}
	if c.Cancel.Mode != CancelByPrefix && c.Cancel.Prefix != "" {
		return fmt.Errorf("cancel prefix is only valid for prefix mode")
	}
	if c.Reconnect.BackoffFloorSec < 1 || c.Reconnect.BackoffFloorSec > 300 {
		return fmt.Errorf("reconnect backoff_floor_sec must be between 1 and 300")
	}
	if c.Reconnect.BackoffCapSec < c.Reconnect.BackoffFloorSec || c.Reconnect.BackoffCapSec > 3600 {
		return fmt.Errorf("reconnect backoff_cap_sec must be between backoff_floor_sec and 3600")
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return fmt.Errorf("status port must be between 0 and 65535")
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	if c.Observability.Runtime.AlertDropReportSec < 0 || c.Observability.Runtime.AlertDropReportSec > 3600 {
		return fmt.Errorf("observability.runtime.alert_drop_report_sec must be between 0 and 3600")
	}
	return nil
}

func isValidInstanceID(v string) bool {
	if len(v) < 1 || len(v) > 24 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
