package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the application configuration.
type Config struct {
	ServerPort      int      `toml:"port"`
	DatabasePath    string   `toml:"database_path"`
	StoreDriver     string   `toml:"store_driver"` // "sqlite" or "memory"
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"` // "console" or "json"
	CORSOrigins     []string `toml:"cors_origins"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`

	RefreshInterval Duration `toml:"refresh_interval"`
	SweepInterval   Duration `toml:"sweep_interval"`

	Feeds FeedConfig  `toml:"feeds"`
	Kafka KafkaConfig `toml:"kafka"`
}

// FeedConfig controls the external disaster feeds and how they are fetched.
type FeedConfig struct {
	USGSURL   string   `toml:"usgs_url"`
	GDACSURL  string   `toml:"gdacs_url"`
	NWSURL    string   `toml:"nws_url"`
	UserAgent string   `toml:"user_agent"`
	Timeout   Duration `toml:"timeout"`
	Retries   int      `toml:"retries"`
}

// KafkaConfig enables publishing new events to a topic. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Enabled reports whether a Kafka sink should be created.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Duration wraps time.Duration for TOML string parsing (e.g. "5m", "1h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with the production feed URLs and intervals.
func Default() *Config {
	return &Config{
		ServerPort:      8080,
		DatabasePath:    "./disasters.db",
		StoreDriver:     "sqlite",
		LogLevel:        "info",
		LogFormat:       "console",
		CORSOrigins:     []string{"http://localhost:5173"},
		ShutdownTimeout: Duration{10 * time.Second},
		RefreshInterval: Duration{5 * time.Minute},
		SweepInterval:   Duration{10 * time.Minute},
		Feeds: FeedConfig{
			USGSURL:   "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/significant_day.geojson",
			GDACSURL:  "https://www.gdacs.org/xml/rss.xml",
			NWSURL:    "https://api.weather.gov/alerts/active",
			UserAgent: "disaster-tracker/1.0",
			Timeout:   Duration{15 * time.Second},
			Retries:   2,
		},
		Kafka: KafkaConfig{
			Topic: "disaster-events",
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// CONFIG_FILE, and finally environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.ServerPort = port
	}

	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}

	cfg.Feeds.USGSURL = getEnv("USGS_FEED_URL", cfg.Feeds.USGSURL)
	cfg.Feeds.GDACSURL = getEnv("GDACS_FEED_URL", cfg.Feeds.GDACSURL)
	cfg.Feeds.NWSURL = getEnv("NWS_FEED_URL", cfg.Feeds.NWSURL)
	cfg.Feeds.UserAgent = getEnv("FEED_USER_AGENT", cfg.Feeds.UserAgent)
	if v, ok := os.LookupEnv("FETCH_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return errors.New("invalid FETCH_RETRIES")
		}
		cfg.Feeds.Retries = n
	}

	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	durations := []struct {
		key string
		dst *Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"REFRESH_INTERVAL", &cfg.RefreshInterval},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
		{"FETCH_TIMEOUT", &cfg.Feeds.Timeout},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		d.dst.Duration = parsed
	}
	return nil
}

func (c *Config) validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid PORT %d", c.ServerPort)
	}
	switch c.StoreDriver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q (want sqlite or memory)", c.StoreDriver)
	}
	if c.StoreDriver == "sqlite" && c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required for the sqlite store")
	}
	if c.ShutdownTimeout.Duration <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.RefreshInterval.Duration < time.Second {
		return errors.New("REFRESH_INTERVAL must be at least 1s")
	}
	if c.SweepInterval.Duration < time.Second {
		return errors.New("SWEEP_INTERVAL must be at least 1s")
	}
	if c.Feeds.Timeout.Duration <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
