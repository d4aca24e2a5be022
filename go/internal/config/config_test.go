package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 300*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, "quiz.session", cfg.NATS.Subject)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())

	endpoint, err := cfg.ResolveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, endpoint)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
page_url: https://quiz.example.com/play
retry_delay: 500ms
keepalive_interval: 20s
status_addr: ":9090"
nats:
  url: nats://localhost:4222
  jetstream: true
log_level: debug
`), 0o600))

	t.Setenv("QUIZ_RETRY_DELAY", "1s")
	t.Setenv("QUIZ_PLAYER_ID", "p-42")
	t.Setenv("QUIZ_MAX_MESSAGE_SIZE", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 20*time.Second, cfg.KeepaliveInterval)
	assert.Equal(t, "p-42", cfg.PlayerID)
	assert.Equal(t, ":9090", cfg.StatusAddr)
	assert.Equal(t, 64*1024, cfg.MaxMessageSize)
	assert.True(t, cfg.NATS.JetStream)
	assert.Equal(t, "quiz.session", cfg.NATS.Subject)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())

	endpoint, err := cfg.ResolveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://quiz.example.com/ws", endpoint)
}

func TestExplicitEndpointWins(t *testing.T) {
	t.Setenv("QUIZ_ENDPOINT", "ws://10.0.0.5:8000/ws")
	t.Setenv("QUIZ_PAGE_URL", "https://quiz.example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	endpoint, err := cfg.ResolveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.5:8000/ws", endpoint)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("retry_delay: [1, 2"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("QUIZ_PING_INTERVAL", "2m")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retry", func(c *Config) { c.RetryDelay = 0 }},
		{"negative keepalive", func(c *Config) { c.KeepaliveInterval = -time.Second }},
		{"nats without subject", func(c *Config) { c.NATS.URL = "nats://x"; c.NATS.Subject = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero message size", func(c *Config) { c.MaxMessageSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestEndpointFromPageURL(t *testing.T) {
	tests := []struct {
		page string
		want string
	}{
		{"http://localhost:8000/", "ws://localhost:8000/ws"},
		{"https://quiz.example.com/play?x=1", "wss://quiz.example.com/ws"},
		{"HTTPS://quiz.example.com", "wss://quiz.example.com/ws"},
		{"http://[::1]:8000/index.html", "ws://[::1]:8000/ws"},
	}

	for _, tt := range tests {
		got, err := EndpointFromPageURL(tt.page)
		require.NoError(t, err, tt.page)
		assert.Equal(t, tt.want, got)
	}

	for _, page := range []string{"ftp://host/", "/relative/path", "http://%zz"} {
		_, err := EndpointFromPageURL(page)
		assert.ErrorIs(t, err, ErrInvalidPageURL, page)
	}
}
