package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

type Config struct {
	Daemon struct {
		HttpPort           int
		StateFile          string
		EnvFile            string
		CheckpointInterval int // с
	}
	Exchanges struct {
		Enabled []string
	}
	Database struct {
		Type     string
		Host     string
		Port     int
		User     string
		Password string
		Database string
	}
	WebSocket struct {
		ReconnectDelay int // мс
		ConnectTimeout int // с
		ConnectPoll    int // мс
		PingInterval   int // с, 0 = без пинга
	}
	Stream struct {
		ThrottleInterval int // мс
		PollInterval     int // мс
	}
	Rest struct {
		Timeout           int // с
		RequestsPerSecond float64
		Burst             int
		MaxLimit          int
	}
	Capabilities struct {
		RefreshInterval int // с
	}
	Logging struct {
		Level      string
		File       string
		MaxSizeMB  int
		MaxBackups int
		Mode       string // global или modular
		Dir        string // директория для модульных логов
	}
	Debug struct {
		LogRaw bool // логирование сырых сообщений от и к бирже
	}
}

// DefaultExchanges - список бирж, если в конфиге не указан exchanges.enabled
var DefaultExchanges = []string{
	"binance", "bitfinex", "bitmex", "bittrex", "cobinhood",
	"coinbaseprime", "coindcx", "hitbtc", "kraken", "okex",
}

// Default возвращает конфиг со значениями по умолчанию
func Default() *Config {
	cfg, _ := parse(ini.Empty())
	return cfg
}

// LoadConfig загружает конфиг из файла
func LoadConfig(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	cfg, err := parse(file)
	if err != nil {
		return nil, err
	}
	if cfg.Daemon.EnvFile != "" {
		if err := LoadEnv(cfg.Daemon.EnvFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parse(file *ini.File) (*Config, error) {
	cfg := &Config{}

	cfg.Daemon.HttpPort = file.Section("daemon").Key("http_port").MustInt(8080)
	cfg.Daemon.StateFile = file.Section("daemon").Key("state_file").MustString("state/streams.json")
	cfg.Daemon.EnvFile = file.Section("daemon").Key("env_file").String()
	cfg.Daemon.CheckpointInterval = file.Section("daemon").Key("checkpoint_interval").MustInt(10)

	enabled := file.Section("exchanges").Key("enabled").Strings(",")
	if len(enabled) == 0 {
		enabled = append([]string(nil), DefaultExchanges...)
	}
	for i := range enabled {
		enabled[i] = strings.ToLower(strings.TrimSpace(enabled[i]))
	}
	cfg.Exchanges.Enabled = enabled

	cfg.Database.Type = file.Section("database").Key("type").String()
	cfg.Database.Host = file.Section("database").Key("host").String()
	cfg.Database.Port = file.Section("database").Key("port").MustInt()
	cfg.Database.User = file.Section("database").Key("user").String()
	cfg.Database.Password = file.Section("database").Key("password").String()
	cfg.Database.Database = file.Section("database").Key("database").String()

	cfg.WebSocket.ReconnectDelay = file.Section("websocket").Key("reconnect_delay").MustInt(5000)
	cfg.WebSocket.ConnectTimeout = file.Section("websocket").Key("connect_timeout").MustInt(30)
	cfg.WebSocket.ConnectPoll = file.Section("websocket").Key("connect_poll").MustInt(1000)
	cfg.WebSocket.PingInterval = file.Section("websocket").Key("ping_interval").MustInt(30)

	cfg.Stream.ThrottleInterval = file.Section("stream").Key("throttle_interval").MustInt(1000)
	cfg.Stream.PollInterval = file.Section("stream").Key("poll_interval").MustInt(3000)

	cfg.Rest.Timeout = file.Section("rest").Key("timeout").MustInt(10)
	cfg.Rest.RequestsPerSecond = file.Section("rest").Key("requests_per_second").MustFloat64(5)
	cfg.Rest.Burst = file.Section("rest").Key("burst").MustInt(5)
	cfg.Rest.MaxLimit = file.Section("rest").Key("max_limit").MustInt(1000)

	cfg.Capabilities.RefreshInterval = file.Section("capabilities").Key("refresh_interval").MustInt(300)

	cfg.Logging.Level = file.Section("logging").Key("level").MustString("INFO")
	cfg.Logging.File = file.Section("logging").Key("file").MustString("datafeed.log")
	cfg.Logging.MaxSizeMB = file.Section("logging").Key("max_size_mb").MustInt(10)
	cfg.Logging.MaxBackups = file.Section("logging").Key("max_backups").MustInt(3)
	cfg.Logging.Mode = file.Section("logging").Key("mode").MustString("global")
	cfg.Logging.Dir = file.Section("logging").Key("dir").MustString("")

	cfg.Debug.LogRaw = file.Section("debug").Key("log_raw").MustBool(false)

	return cfg, nil
}

// Durations, которые используют адаптеры
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.WebSocket.ReconnectDelay) * time.Millisecond
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.WebSocket.ConnectTimeout) * time.Second
}

func (c *Config) ConnectPoll() time.Duration {
	return time.Duration(c.WebSocket.ConnectPoll) * time.Millisecond
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.WebSocket.PingInterval) * time.Second
}

func (c *Config) ThrottleInterval() time.Duration {
	return time.Duration(c.Stream.ThrottleInterval) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Stream.PollInterval) * time.Millisecond
}

func (c *Config) RestTimeout() time.Duration {
	return time.Duration(c.Rest.Timeout) * time.Second
}

func (c *Config) CheckpointInterval() time.Duration {
	return time.Duration(c.Daemon.CheckpointInterval) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Capabilities.RefreshInterval) * time.Second
}

// DatabaseEnabled - true, если в конфиге указан тип БД
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Type != ""
}

// GetConfigForLogging returns a copy of config with masked sensitive data for logging
func GetConfigForLogging(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	cfgForLog := *cfg
	cfgForLog.Exchanges.Enabled = append([]string(nil), cfg.Exchanges.Enabled...)
	if cfgForLog.Database.Password != "" {
		cfgForLog.Database.Password = "*****"
	}
	return &cfgForLog
}

// Validate проверяет корректность конфига
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Daemon.HttpPort <= 0 {
		return errors.New("daemon.http_port is required")
	}
	if len(cfg.Exchanges.Enabled) == 0 {
		return errors.New("exchanges.enabled must list at least one exchange")
	}
	if cfg.DatabaseEnabled() {
		switch cfg.Database.Type {
		case "mysql", "postgres":
		default:
			return fmt.Errorf("database.type %q is not supported", cfg.Database.Type)
		}
		if cfg.Database.Host == "" {
			return errors.New("database.host is required")
		}
		if cfg.Database.Port == 0 {
			return errors.New("database.port is required")
		}
		if cfg.Database.User == "" {
			return errors.New("database.user is required")
		}
		if cfg.Database.Database == "" {
			return errors.New("database.database is required")
		}
	}
	if cfg.WebSocket.ReconnectDelay <= 0 {
		return errors.New("websocket.reconnect_delay must be > 0")
	}
	if cfg.WebSocket.ConnectTimeout <= 0 || cfg.WebSocket.ConnectPoll <= 0 {
		return errors.New("websocket.connect_timeout and websocket.connect_poll must be > 0")
	}
	if cfg.Stream.ThrottleInterval <= 0 {
		return errors.New("stream.throttle_interval must be > 0")
	}
	if cfg.Stream.PollInterval <= 0 {
		return errors.New("stream.poll_interval must be > 0")
	}
	if cfg.Rest.RequestsPerSecond <= 0 || cfg.Rest.Burst <= 0 {
		return errors.New("rest.requests_per_second and rest.burst must be > 0")
	}
	if cfg.Rest.MaxLimit <= 0 {
		return errors.New("rest.max_limit must be > 0")
	}
	if cfg.Logging.Level == "" {
		return errors.New("logging.level is required")
	}
	if cfg.Logging.Mode != "global" && cfg.Logging.Mode != "modular" {
		return fmt.Errorf("logging.mode must be global or modular, got %q", cfg.Logging.Mode)
	}
	return nil
}

// LoadEnv подгружает переменные окружения из .env файла (существующие не перезаписываются)
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Credentials - ключи API биржи
type Credentials struct {
	ApiKey    string
	ApiSecret string
	Password  string
}

// HasKey - true, если задан хотя бы ключ API
func (c Credentials) HasKey() bool {
	return c.ApiKey != ""
}

// CredentialsFromEnv читает <EXCHANGE>_API_KEY, <EXCHANGE>_API_SECRET, <EXCHANGE>_API_PASSWORD
func CredentialsFromEnv(exchange string) Credentials {
	prefix := strings.ToUpper(exchange)
	return Credentials{
		ApiKey:    os.Getenv(prefix + "_API_KEY"),
		ApiSecret: os.Getenv(prefix + "_API_SECRET"),
		Password:  os.Getenv(prefix + "_API_PASSWORD"),
	}
}
