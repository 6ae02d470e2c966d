package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Vendor  VendorConfig  `yaml:"vendor"`
	Control ControlConfig `yaml:"control"`
	Session SessionConfig `yaml:"session"`
	Notify  NotifyConfig  `yaml:"notify"`
	Log     LogConfig     `yaml:"log"`
	Demo    DemoConfig    `yaml:"demo"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	AuthToken  string `yaml:"auth_token"`
	RateLimit  int    `yaml:"rate_limit"`
	RateWindow string `yaml:"rate_window"`
	Metrics    *bool  `yaml:"metrics"`
	// TrustedProxies lists the addresses or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers identify the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func (s ServerConfig) MetricsEnabled() bool {
	return s.Metrics == nil || *s.Metrics
}

// Proxies parses TrustedProxies. A bare address is a single-host prefix.
func (s ServerConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: invalid address %q", raw)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

type VendorConfig struct {
	Backend       string              `yaml:"backend"`
	Hubspace      HubspaceConfig      `yaml:"hubspace"`
	Tuya          TuyaConfig          `yaml:"tuya"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
}

type HubspaceConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type TuyaConfig struct {
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"`
	Region   string `yaml:"region"`
}

type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type ControlConfig struct {
	MaxWorkers    int    `yaml:"max_workers"`
	DeviceTimeout string `yaml:"device_timeout"`
	SuccessPolicy string `yaml:"success_policy"`
	ReadState     *bool  `yaml:"read_state"`
}

type SessionConfig struct {
	DeviceClass string `yaml:"device_class"`
	MaxAge      string `yaml:"max_age"`
	// SyncSchedule is a cron spec. Absent means the default, an empty string
	// disables periodic sync.
	SyncSchedule *string `yaml:"sync_schedule"`
}

func (s SessionConfig) Schedule() string {
	if s.SyncSchedule == nil {
		return ""
	}
	return *s.SyncSchedule
}

type NotifyConfig struct {
	Websocket *bool          `yaml:"websocket"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Pushover  PushoverConfig `yaml:"pushover"`
}

func (n NotifyConfig) WebsocketEnabled() bool {
	return n.Websocket == nil || *n.Websocket
}

type MQTTConfig struct {
	URI   string `yaml:"uri"`
	Topic string `yaml:"topic"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DemoConfig struct {
	Hold string `yaml:"hold"`
}

// Load reads the YAML file at path, expanding ${VAR} references, then applies
// environment overrides and defaults. A missing file yields a config built
// from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	override(&c.Vendor.Hubspace.Email, "HUBSPACE_EMAIL")
	override(&c.Vendor.Hubspace.Password, "HUBSPACE_PASSWORD")
	override(&c.Server.AuthToken, "SECRET_TOKEN")
	override(&c.Server.Host, "HOST")
	override(&c.Server.Port, "PORT")
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8000"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 30
	}
	if c.Server.RateWindow == "" {
		c.Server.RateWindow = "1m"
	}
	if c.Vendor.Backend == "" {
		c.Vendor.Backend = "hubspace"
	}
	c.Vendor.Backend = strings.ToLower(c.Vendor.Backend)
	if c.Vendor.Tuya.Region == "" {
		c.Vendor.Tuya.Region = "us"
	}
	if c.Vendor.HomeAssistant.URL == "" {
		c.Vendor.HomeAssistant.URL = "http://homeassistant.local:8123"
	}
	if c.Control.MaxWorkers == 0 {
		c.Control.MaxWorkers = 8
	}
	if c.Control.DeviceTimeout == "" {
		c.Control.DeviceTimeout = "10s"
	}
	if c.Control.SuccessPolicy == "" {
		c.Control.SuccessPolicy = "any"
	}
	if c.Session.DeviceClass == "" {
		c.Session.DeviceClass = "light"
	}
	if c.Session.MaxAge == "" {
		c.Session.MaxAge = "30m"
	}
	if c.Session.SyncSchedule == nil {
		schedule := "@every 15m"
		c.Session.SyncSchedule = &schedule
	}
	if c.Notify.MQTT.Topic == "" {
		c.Notify.MQTT.Topic = "lightctl"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Demo.Hold == "" {
		c.Demo.Hold = "3s"
	}
}

// CredentialsSet reports whether the selected backend has its credentials.
func (c *Config) CredentialsSet() bool {
	switch c.Vendor.Backend {
	case "hubspace":
		return c.Vendor.Hubspace.Email != "" && c.Vendor.Hubspace.Password != ""
	case "tuya":
		return c.Vendor.Tuya.ClientID != "" && c.Vendor.Tuya.Secret != ""
	case "homeassistant":
		return c.Vendor.HomeAssistant.Token != ""
	default:
		return false
	}
}

// Validate checks what the server needs to start. The demo only needs the
// vendor half, see ValidateVendor.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.AuthToken == "" {
		errs = append(errs, errors.New("server.auth_token (SECRET_TOKEN) is required"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit must not be negative, got %d", c.Server.RateLimit))
	}
	if _, err := c.Server.Proxies(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ValidateVendor(); err != nil {
		errs = append(errs, err)
	}
	if c.Control.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("control.max_workers must be positive, got %d", c.Control.MaxWorkers))
	}
	switch c.Control.SuccessPolicy {
	case "any", "all":
	default:
		errs = append(errs, fmt.Errorf("control.success_policy must be any or all, got %q", c.Control.SuccessPolicy))
	}

	for name, value := range map[string]string{
		"server.rate_window":     c.Server.RateWindow,
		"control.device_timeout": c.Control.DeviceTimeout,
		"session.max_age":        c.Session.MaxAge,
		"demo.hold":              c.Demo.Hold,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ValidateVendor() error {
	switch c.Vendor.Backend {
	case "hubspace", "tuya", "homeassistant":
	default:
		return fmt.Errorf("vendor.backend must be hubspace, tuya or homeassistant, got %q", c.Vendor.Backend)
	}
	if !c.CredentialsSet() {
		return fmt.Errorf("credentials for vendor %q are not set", c.Vendor.Backend)
	}
	return nil
}

// Duration parses a duration field that Validate already checked, falling
// back to def for malformed values.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
