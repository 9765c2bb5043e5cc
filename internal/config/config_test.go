package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp isolates Load from any .env in the package directory.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, WSConfig{SendBuffer: 256, MaxMessageSize: 4096, WriteWait: 10 * time.Second, PongWait: 60 * time.Second}, cfg.WS)
	assert.Equal(t, 1024, cfg.QueueSize)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_Environment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("STREAMSYNC_ADDR", ":9090")
	t.Setenv("STREAMSYNC_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("STREAMSYNC_STORE_DRIVER", "valkey")
	t.Setenv("STREAMSYNC_VALKEY_ADDR", "localhost:6379")
	t.Setenv("STREAMSYNC_VALKEY_DB", "2")
	t.Setenv("STREAMSYNC_WS_PONG_WAIT", "30s")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, StoreConfig{Driver: DriverValkey, ValkeyAddr: "localhost:6379", ValkeyDB: 2}, cfg.Store)
	assert.Equal(t, 30*time.Second, cfg.WS.PongWait)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STREAMSYNC_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("STREAMSYNC_LOG_LEVEL") })

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "streamsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_size: 64\nstore:\n  driver: postgres\npostgres:\n  dsn: postgres://localhost/streamsync\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/streamsync", cfg.Store.PostgresDSN)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Addr:      ":8080",
			Store:     StoreConfig{Driver: DriverMemory},
			WS:        WSConfig{SendBuffer: 1, MaxMessageSize: 1, WriteWait: time.Second, PongWait: time.Second},
			QueueSize: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mongo" }, wantErr: `unknown store.driver "mongo"`},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = DriverPostgres }, wantErr: "postgres.dsn is required"},
		{name: "valkey without addr", mutate: func(c *Config) { c.Store.Driver = DriverValkey }, wantErr: "valkey.addr is required"},
		{name: "zero queue", mutate: func(c *Config) { c.QueueSize = 0 }, wantErr: "queue_size must be positive"},
		{name: "zero buffer", mutate: func(c *Config) { c.WS.SendBuffer = 0 }, wantErr: "ws.send_buffer must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
