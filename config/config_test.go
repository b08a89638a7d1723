package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Minute, cfg.Monitor.IntervalDuration())
	assert.Equal(t, 24*time.Hour, cfg.Monitor.RetentionDuration())
	assert.Equal(t, 5*time.Minute, cfg.Monitor.OfflineAfterDuration())
	assert.Equal(t, 3, cfg.Notify.Attempts())
	assert.Equal(t, 10*time.Second, cfg.Notify.TimeoutDuration())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "driver missing", mutate: func(c *Config) { c.Store.Driver = "" }, want: "store.driver is required"},
		{name: "driver unknown", mutate: func(c *Config) { c.Store.Driver = "mysql" }, want: "store.driver must be"},
		{name: "dsn missing", mutate: func(c *Config) { c.Store.DSN = "" }, want: "store.dsn is required"},
		{name: "interval zero", mutate: func(c *Config) { c.Monitor.Interval = "0s" }, want: "monitor.interval must be positive"},
		{name: "interval garbage", mutate: func(c *Config) { c.Monitor.Interval = "soon" }, want: "monitor.interval"},
		{name: "concurrency", mutate: func(c *Config) { c.Monitor.Concurrency = 0 }, want: "monitor.concurrency"},
		{name: "negative retention", mutate: func(c *Config) { c.Monitor.Retention = "-1h" }, want: "monitor.retention must not be negative"},
		{name: "oanda token", mutate: func(c *Config) { c.Feed.Provider = "oanda" }, want: "feed.token is required"},
		{name: "provider", mutate: func(c *Config) { c.Feed.Provider = "bloomberg" }, want: "feed.provider"},
		{name: "granularity", mutate: func(c *Config) { c.Feed.Granularity = "W" }, want: "feed.granularity"},
		{name: "addr", mutate: func(c *Config) { c.Server.Addr = "" }, want: "server.addr is required"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "retries", mutate: func(c *Config) { c.Notify.Retries = -1 }, want: "notify.retries"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Store.Driver = "postgres"
	cfg.Store.DSN = "postgres://trail:secret@db:5432/trail?sslmode=disable"
	cfg.Monitor.Interval = "30s"
	cfg.Notify.WebhookURL = "https://hooks.example.com/t"

	for _, name := range []string{"config.yaml", "config.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveToFile(path))

		got, err := LoadFromFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, cfg, got, name)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0600))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", got.Server.Addr)
	assert.Equal(t, Default().Store, got.Store)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0600))

	_, err := LoadFromFile(path)
	assert.ErrorContains(t, err, "tried YAML and JSON")

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestLoadAppliesEnv(t *testing.T) {
	t.Setenv(EnvDBDriver, "postgres")
	t.Setenv(EnvDBDSN, "host=db user=trail password=hunter2 dbname=trail")
	t.Setenv(EnvHTTPAddr, ":7070")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvOandaToken, "abcd1234")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "abcd1234", cfg.Feed.Token)

	r := cfg.Redacted()
	assert.Equal(t, "****1234", r.Feed.Token)
	assert.Equal(t, "host=db user=trail password=**** dbname=trail", r.Store.DSN)
	assert.Equal(t, "abcd1234", cfg.Feed.Token, "original untouched")
}

func TestRedactURLDSN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "postgres://trail:****@db:5432/trail", redactDSN("postgres://trail:secret@db:5432/trail"))
	assert.Equal(t, "postgres://db:5432/trail", redactDSN("postgres://db:5432/trail"))
}
