package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay())
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, time.Second, cfg.ConnectPoll())
	assert.Equal(t, time.Second, cfg.ThrottleInterval())
	assert.Equal(t, 1000, cfg.Rest.MaxLimit)
	assert.Equal(t, DefaultExchanges, cfg.Exchanges.Enabled)
	assert.False(t, cfg.DatabaseEnabled())
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "datafeed.ini", `
[daemon]
http_port = 9090

[exchanges]
enabled = Binance, bitfinex

[database]
type = postgres
host = localhost
port = 5432
user = feed
password = secret
database = feed

[stream]
throttle_interval = 250

[logging]
level = DEBUG
mode = modular
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 9090, cfg.Daemon.HttpPort)
	assert.Equal(t, []string{"binance", "bitfinex"}, cfg.Exchanges.Enabled)
	assert.True(t, cfg.DatabaseEnabled())
	assert.Equal(t, 250*time.Millisecond, cfg.ThrottleInterval())
	assert.Equal(t, "modular", cfg.Logging.Mode)

	masked := GetConfigForLogging(cfg)
	assert.Equal(t, "*****", masked.Database.Password)
	assert.Equal(t, "secret", cfg.Database.Password)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Database.Type = "sqlite"
	assert.Error(t, Validate(cfg))

	cfg = Default()
	cfg.Stream.ThrottleInterval = 0
	assert.Error(t, Validate(cfg))

	cfg = Default()
	cfg.Logging.Mode = "split"
	assert.Error(t, Validate(cfg))

	assert.Error(t, Validate(nil))
}

func TestCredentialsFromEnvFile(t *testing.T) {
	envPath := writeFile(t, ".env", "COINDCXTEST_API_KEY=key\nCOINDCXTEST_API_SECRET=secret\n")
	t.Cleanup(func() {
		os.Unsetenv("COINDCXTEST_API_KEY")
		os.Unsetenv("COINDCXTEST_API_SECRET")
	})

	require.NoError(t, LoadEnv(envPath))
	creds := CredentialsFromEnv("coindcxtest")
	assert.True(t, creds.HasKey())
	assert.Equal(t, "secret", creds.ApiSecret)
	assert.Empty(t, creds.Password)

	assert.False(t, CredentialsFromEnv("nosuchexchange").HasKey())
}
