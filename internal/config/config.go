// Package config loads trainer settings from an optional YAML file, a .env file and
// environment variables, in that order of increasing precedence. Binaries apply their
// flags on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full trainer configuration.
type Config struct {
	Trader    string `yaml:"trader"`    // wallet practicing
	Authority string `yaml:"authority"` // exercise creator filter, empty for any

	Solana  SolanaConfig  `yaml:"solana"`
	Content ContentConfig `yaml:"content"`
	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// SolanaConfig holds RPC and program settings.
type SolanaConfig struct {
	RPCEndpoint string  `yaml:"rpc_endpoint"`
	WSEndpoint  string  `yaml:"ws_endpoint"`
	ProgramID   string  `yaml:"program_id"`
	KeypairPath string  `yaml:"keypair_path"` // payer; empty gives a read-only client
	Commitment  string  `yaml:"commitment"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst   int     `yaml:"rate_burst"`

	// UseStub runs against the in-memory program instead of a cluster.
	UseStub bool `yaml:"use_stub"`
}

// ContentConfig holds content gateway settings.
type ContentConfig struct {
	Gateway   string `yaml:"gateway"`
	CacheSize int    `yaml:"cache_size"`
	Timeout   string `yaml:"timeout"`
}

// StorageConfig selects the session KV backend and the journal databases.
type StorageConfig struct {
	Backend       string      `yaml:"backend"`
	SQLitePath    string      `yaml:"sqlite_path"`
	Redis         RedisConfig `yaml:"redis"`
	PostgresDSN   string      `yaml:"postgres_dsn"`   // settlement journal, empty keeps it in memory
	ClickHouseDSN string      `yaml:"clickhouse_dsn"` // performance snapshots, empty keeps them in memory
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig tunes session behaviour.
type SessionConfig struct {
	TraderRetries    int    `yaml:"trader_retries"`
	TraderRetryDelay string `yaml:"trader_retry_delay"`
	WatchInterval    string `yaml:"watch_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Solana: SolanaConfig{
			RPCEndpoint: "https://api.devnet.solana.com",
			WSEndpoint:  "wss://api.devnet.solana.com",
			Commitment:  "confirmed",
			RateLimit:   10,
			RateBurst:   5,
		},
		Content: ContentConfig{
			Gateway:   "https://ipfs.io/ipfs",
			CacheSize: 256,
			Timeout:   "15s",
		},
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			SQLitePath: defaultSQLitePath(),
			Redis:      RedisConfig{Addr: "localhost:6379"},
		},
		Session: SessionConfig{
			TraderRetries:    2,
			TraderRetryDelay: "500ms",
			WatchInterval:    "5s",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tradetrainer.db"
	}
	return filepath.Join(dir, "tradetrainer", "state.db")
}

// Load reads path (missing file means defaults), then .env, then the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	_ = godotenv.Load() // .env is optional

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies TRADETRAINER_* and the conventional endpoint variables.
func (c *Config) applyEnvOverrides() {
	setString(&c.Trader, "TRADETRAINER_TRADER")
	setString(&c.Authority, "TRADETRAINER_AUTHORITY")

	setString(&c.Solana.RPCEndpoint, "SOLANA_RPC_ENDPOINT")
	setString(&c.Solana.WSEndpoint, "SOLANA_WS_ENDPOINT")
	setString(&c.Solana.ProgramID, "TRADETRAINER_PROGRAM_ID")
	setString(&c.Solana.KeypairPath, "TRADETRAINER_KEYPAIR")
	setBool(&c.Solana.UseStub, "TRADETRAINER_USE_STUB")

	setString(&c.Content.Gateway, "TRADETRAINER_GATEWAY")

	setString(&c.Storage.Backend, "TRADETRAINER_STORAGE")
	setString(&c.Storage.SQLitePath, "TRADETRAINER_SQLITE_PATH")
	setString(&c.Storage.Redis.Addr, "REDIS_ADDR")
	setString(&c.Storage.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Storage.Redis.DB, "REDIS_DB")
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Storage.ClickHouseDSN, "CLICKHOUSE_DSN")

	setInt(&c.Session.TraderRetries, "TRADETRAINER_TRADER_RETRIES")

	setString(&c.Server.Addr, "TRADETRAINER_ADDR")
	setString(&c.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = v
	}
}

// Validate checks settings every binary needs.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("invalid storage backend %q (valid: memory, sqlite, redis)", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("sqlite backend needs storage.sqlite_path")
	}
	if !c.Solana.UseStub {
		if c.Solana.RPCEndpoint == "" {
			return fmt.Errorf("solana.rpc_endpoint is required")
		}
		if c.Solana.ProgramID == "" {
			return fmt.Errorf("solana.program_id is required (or set use_stub)")
		}
	}
	if c.Session.TraderRetries < 0 {
		return fmt.Errorf("session.trader_retries must not be negative")
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// TraderRetryDelay returns the delay between trader reload attempts.
func (c *Config) TraderRetryDelay() time.Duration {
	return parseDuration(c.Session.TraderRetryDelay, 500*time.Millisecond)
}

// WatchInterval returns the subscription reconcile interval.
func (c *Config) WatchInterval() time.Duration {
	return parseDuration(c.Session.WatchInterval, 5*time.Second)
}

// ContentTimeout returns the gateway request timeout.
func (c *Config) ContentTimeout() time.Duration {
	return parseDuration(c.Content.Timeout, 15*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// NewLogger builds a logger from the logging settings.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
