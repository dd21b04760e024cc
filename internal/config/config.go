package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Retro       RetroConfig       `yaml:"retro"`
	Update      UpdateConfig      `yaml:"update"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver     string `yaml:"driver" env:"STORE_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"STORE_SQLITE_PATH"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host" env:"POSTGRES_HOST"`
	Port            int           `yaml:"port" env:"POSTGRES_PORT"`
	User            string        `yaml:"user" env:"POSTGRES_USER"`
	Password        string        `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" env:"POSTGRES_DB"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// RedisConfig holds Redis connection configuration for the standings cache
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" env:"REDIS_ENABLED"`
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	RequestTopic string   `yaml:"request_topic"`
	EventTopic   string   `yaml:"event_topic"`
	GroupID      string   `yaml:"group_id"`
}

// RetroConfig holds remote achievement API settings.
// Username and APIKey are fallbacks for the settings table.
type RetroConfig struct {
	BaseURL   string        `yaml:"base_url" env:"RETRO_BASE_URL"`
	Username  string        `yaml:"username" env:"RETRO_USERNAME"`
	APIKey    string        `yaml:"api_key" env:"RETRO_API_KEY"`
	Timeout   time.Duration `yaml:"timeout"`
	Window    time.Duration `yaml:"window"`
	PageLimit int           `yaml:"page_limit"`
}

// UpdateConfig holds run-gate and scheduled update configuration
type UpdateConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled" env:"UPDATE_SCHEDULE_ENABLED"`
}

// LeaderboardConfig holds leaderboard read configuration
type LeaderboardConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// Load reads configuration from a YAML file, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Retro.Window < time.Second {
		return fmt.Errorf("retro window must be at least 1s, got %s", c.Retro.Window)
	}
	if c.Retro.PageLimit <= 0 {
		return fmt.Errorf("retro page limit must be positive, got %d", c.Retro.PageLimit)
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// an update request waits for the whole reconciliation run
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DriverPostgres
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "leaderboard.db"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.RequestTopic == "" {
		c.Kafka.RequestTopic = "leaderboard-update-requests"
	}
	if c.Kafka.EventTopic == "" {
		c.Kafka.EventTopic = "leaderboard-runs"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "leaderboard-updater"
	}

	// Remote API defaults
	if c.Retro.BaseURL == "" {
		c.Retro.BaseURL = "https://retroachievements.org/API"
	}
	if c.Retro.Timeout == 0 {
		c.Retro.Timeout = 30 * time.Second
	}
	if c.Retro.Window == 0 {
		// the API allows roughly 14 days per call
		c.Retro.Window = 12 * 24 * time.Hour
	}
	if c.Retro.PageLimit == 0 {
		c.Retro.PageLimit = 500
	}

	// Update defaults
	if c.Update.Cooldown == 0 {
		c.Update.Cooldown = 10 * time.Minute
	}
	if c.Update.Interval == 0 {
		c.Update.Interval = 30 * time.Minute
	}

	// Leaderboard defaults
	if c.Leaderboard.DefaultLimit == 0 {
		c.Leaderboard.DefaultLimit = 10
	}
	if c.Leaderboard.MaxLimit == 0 {
		c.Leaderboard.MaxLimit = 100
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
