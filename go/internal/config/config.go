package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPageURL = errors.New("invalid page url")
	ErrInvalidConfig  = errors.New("invalid config")
)

// DefaultEndpoint is used when neither an endpoint nor a page URL is configured
const DefaultEndpoint = "ws://localhost:8000/ws"

// Config holds the terminal client settings.
type Config struct {
	Endpoint          string        `yaml:"endpoint"`
	PageURL           string        `yaml:"page_url"`
	PlayerID          string        `yaml:"player_id"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	MaxMessageSize    int           `yaml:"max_message_size"`
	StatusAddr        string        `yaml:"status_addr"`
	NATS              NATSConfig    `yaml:"nats"`
	LogLevel          string        `yaml:"log_level"`
}

// NATSConfig configures the optional session mirror. An empty URL disables it.
type NATSConfig struct {
	URL       string `yaml:"url"`
	Subject   string `yaml:"subject"`
	JetStream bool   `yaml:"jetstream"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		RetryDelay:        300 * time.Millisecond,
		DialTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		KeepaliveInterval: 0,
		MaxMessageSize:    64 * 1024,
		NATS: NATSConfig{
			Subject: "quiz.session",
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path, when path is not empty, over the defaults
// and then applies QUIZ_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Endpoint = getEnv("QUIZ_ENDPOINT", c.Endpoint)
	c.PageURL = getEnv("QUIZ_PAGE_URL", c.PageURL)
	c.PlayerID = getEnv("QUIZ_PLAYER_ID", c.PlayerID)
	c.RetryDelay = getEnvAsDuration("QUIZ_RETRY_DELAY", c.RetryDelay)
	c.DialTimeout = getEnvAsDuration("QUIZ_DIAL_TIMEOUT", c.DialTimeout)
	c.WriteTimeout = getEnvAsDuration("QUIZ_WRITE_TIMEOUT", c.WriteTimeout)
	c.ReadTimeout = getEnvAsDuration("QUIZ_READ_TIMEOUT", c.ReadTimeout)
	c.PingInterval = getEnvAsDuration("QUIZ_PING_INTERVAL", c.PingInterval)
	c.KeepaliveInterval = getEnvAsDuration("QUIZ_KEEPALIVE", c.KeepaliveInterval)
	c.MaxMessageSize = getEnvAsInt("QUIZ_MAX_MESSAGE_SIZE", c.MaxMessageSize)
	c.StatusAddr = getEnv("QUIZ_STATUS_ADDR", c.StatusAddr)
	c.NATS.URL = getEnv("QUIZ_NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("QUIZ_NATS_SUBJECT", c.NATS.Subject)
	c.NATS.JetStream = getEnvAsBool("QUIZ_NATS_JETSTREAM", c.NATS.JetStream)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks the values that would otherwise fail late at runtime
func (c Config) Validate() error {
	if c.RetryDelay <= 0 {
		return fmt.Errorf("%w: retry_delay must be positive", ErrInvalidConfig)
	}
	if c.DialTimeout <= 0 || c.WriteTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		return fmt.Errorf("%w: ping_interval must be positive and shorter than read_timeout", ErrInvalidConfig)
	}
	if c.KeepaliveInterval < 0 {
		return fmt.Errorf("%w: keepalive_interval must not be negative", ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max_message_size must be positive", ErrInvalidConfig)
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("%w: nats.subject is required when nats.url is set", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ResolveEndpoint returns the explicit endpoint, the one derived from the page URL, or the default
func (c Config) ResolveEndpoint() (string, error) {
	if c.Endpoint != "" {
		return c.Endpoint, nil
	}
	if c.PageURL != "" {
		return EndpointFromPageURL(c.PageURL)
	}
	return DefaultEndpoint, nil
}

// Level returns the zerolog level, info when unset
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// EndpointFromPageURL maps the hosting page address to the coordinator socket:
// same host, path /ws, wss when the page is served over https.
func EndpointFromPageURL(page string) (string, error) {
	u, err := url.Parse(page)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPageURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidPageURL, page)
	}

	scheme := "ws"
	switch strings.ToLower(u.Scheme) {
	case "https":
		scheme = "wss"
	case "http":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPageURL, u.Scheme)
	}

	return (&url.URL{Scheme: scheme, Host: u.Host, Path: "/ws"}).String(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
