package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/rustyeddy/trailguard/feed"
	"github.com/rustyeddy/trailguard/logging"
	"github.com/rustyeddy/trailguard/store"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config represents the complete service configuration
type Config struct {
	Store   StoreConfig    `json:"store" yaml:"store"`
	Monitor MonitorConfig  `json:"monitor" yaml:"monitor"`
	Feed    FeedConfig     `json:"feed" yaml:"feed"`
	Server  ServerConfig   `json:"server" yaml:"server"`
	Logging logging.Config `json:"logging" yaml:"logging"`
	Notify  NotifyConfig   `json:"notify" yaml:"notify"`
}

// StoreConfig selects the database. Driver is "sqlite3" or "postgres".
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// MonitorConfig contains the pass schedule and limits. Durations use Go
// syntax ("30s", "5m", "24h").
type MonitorConfig struct {
	Interval     string `json:"interval" yaml:"interval"`
	Concurrency  int    `json:"concurrency" yaml:"concurrency"`
	Retention    string `json:"retention" yaml:"retention"`
	OfflineAfter string `json:"offline_after" yaml:"offline_after"`
}

// FeedConfig contains market data parameters
type FeedConfig struct {
	Provider    string `json:"provider" yaml:"provider"` // "oanda" or "static"
	Token       string `json:"token,omitempty" yaml:"token,omitempty"`
	Practice    bool   `json:"practice" yaml:"practice"`
	Granularity string `json:"granularity" yaml:"granularity"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// NotifyConfig contains notification delivery parameters. An empty
// WebhookURL logs events only.
type NotifyConfig struct {
	WebhookURL string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	Retries    int    `json:"retries" yaml:"retries"`
	Backoff    string `json:"backoff" yaml:"backoff"`
	Timeout    string `json:"timeout" yaml:"timeout"`
}

// Environment variables that override file values.
const (
	EnvDBDriver   = "TRAILGUARD_DB_DRIVER"
	EnvDBDSN      = "TRAILGUARD_DB_DSN"
	EnvOandaToken = "TRAILGUARD_OANDA_TOKEN"
	EnvLogLevel   = "TRAILGUARD_LOG_LEVEL"
	EnvHTTPAddr   = "TRAILGUARD_HTTP_ADDR"
)

// Load reads path (when not empty), then .env, then environment overrides,
// and validates the result. Without a path it starts from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = readFile(path); err != nil {
			return nil, err
		}
	}

	// A missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TRAILGUARD_* variables that are set.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(EnvDBDriver, &c.Store.Driver)
	set(EnvDBDSN, &c.Store.DSN)
	set(EnvOandaToken, &c.Feed.Token)
	set(EnvLogLevel, &c.Logging.Level)
	set(EnvHTTPAddr, &c.Server.Addr)
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine format by extension
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	case "":
		return fmt.Errorf("store.driver is required")
	default:
		return fmt.Errorf("store.driver must be %q or %q", store.DriverSQLite, store.DriverPostgres)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}

	if d, err := parseDuration("monitor.interval", c.Monitor.Interval); err != nil {
		return err
	} else if d <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if c.Monitor.Concurrency < 1 {
		return fmt.Errorf("monitor.concurrency must be at least 1")
	}
	if _, err := parseDuration("monitor.retention", c.Monitor.Retention); err != nil {
		return err
	}
	if _, err := parseDuration("monitor.offline_after", c.Monitor.OfflineAfter); err != nil {
		return err
	}

	switch c.Feed.Provider {
	case "oanda":
		if c.Feed.Token == "" {
			return fmt.Errorf("feed.token is required for oanda (or set %s)", EnvOandaToken)
		}
	case "static":
	default:
		return fmt.Errorf("feed.provider must be 'oanda' or 'static'")
	}
	if _, err := feed.ParseGranularity(c.Feed.Granularity); err != nil {
		return fmt.Errorf("feed.granularity: %w", err)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if c.Notify.Retries < 0 {
		return fmt.Errorf("notify.retries must not be negative")
	}
	if _, err := parseDuration("notify.backoff", c.Notify.Backoff); err != nil {
		return err
	}
	if _, err := parseDuration("notify.timeout", c.Notify.Timeout); err != nil {
		return err
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// mustDuration is for fields Validate has already checked.
func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (m MonitorConfig) IntervalDuration() time.Duration {
	return mustDuration(m.Interval, time.Minute)
}

func (m MonitorConfig) RetentionDuration() time.Duration {
	return mustDuration(m.Retention, 24*time.Hour)
}

func (m MonitorConfig) OfflineAfterDuration() time.Duration {
	return mustDuration(m.OfflineAfter, 5*time.Minute)
}

func (n NotifyConfig) BackoffDuration() time.Duration {
	return mustDuration(n.Backoff, time.Second)
}

func (n NotifyConfig) TimeoutDuration() time.Duration {
	return mustDuration(n.Timeout, 10*time.Second)
}

// Attempts is the total number of sends per event.
func (n NotifyConfig) Attempts() int {
	return n.Retries + 1
}

// Redacted returns a copy safe to print, with secrets masked.
func (c Config) Redacted() Config {
	if c.Feed.Token != "" {
		c.Feed.Token = "****" + lastN(c.Feed.Token, 4)
	}
	if c.Store.Driver == store.DriverPostgres && c.Store.DSN != "" {
		c.Store.DSN = redactDSN(c.Store.DSN)
	}
	return c
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return ""
	}
	return s[len(s)-n:]
}

// redactDSN masks password=... in a key/value DSN and the userinfo
// password in a URL DSN.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		rest := dsn[i+3:]
		at := strings.Index(rest, "@")
		colon := strings.Index(rest, ":")
		if at > 0 && colon >= 0 && colon < at {
			return dsn[:i+3] + rest[:colon+1] + "****" + rest[at:]
		}
		return dsn
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=****"
		}
	}
	return strings.Join(fields, " ")
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			DSN:    "./trailguard.db",
		},
		Monitor: MonitorConfig{
			Interval:     "1m",
			Concurrency:  4,
			Retention:    "24h",
			OfflineAfter: "5m",
		},
		Feed: FeedConfig{
			Provider:    "static",
			Practice:    true,
			Granularity: string(feed.M5),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: logging.DefaultConfig(),
		Notify: NotifyConfig{
			Retries: 2,
			Backoff: "1s",
			Timeout: "10s",
		},
	}
}

// String renders a redacted one-line summary.
func (c Config) String() string {
	r := c.Redacted()
	return fmt.Sprintf("store=%s(%s) feed=%s/%s monitor=%s x%d addr=%s",
		r.Store.Driver, r.Store.DSN, r.Feed.Provider, r.Feed.Granularity,
		r.Monitor.Interval, r.Monitor.Concurrency, r.Server.Addr)
}
