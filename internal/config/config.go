package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "STREAMSYNC"

// Keys shared with the CLI flag bindings.
const (
	KeyAddr            = "addr"
	KeyLogLevel        = "log_level"
	KeyAllowedOrigins  = "allowed_origins"
	KeyJWTSecret       = "jwt_secret"
	KeyStoreDriver     = "store.driver"
	KeyPostgresDSN     = "postgres.dsn"
	KeyValkeyAddr      = "valkey.addr"
	KeyValkeyPassword  = "valkey.password"
	KeyValkeyDB        = "valkey.db"
	KeySendBuffer      = "ws.send_buffer"
	KeyMaxMessageSize  = "ws.max_message_size"
	KeyWriteWait       = "ws.write_wait"
	KeyPongWait        = "ws.pong_wait"
	KeyQueueSize       = "queue_size"
	KeyShutdownTimeout = "shutdown_timeout"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverValkey   = "valkey"
)

type Config struct {
	Addr            string
	LogLevel        string
	AllowedOrigins  []string
	JWTSecret       string
	Store           StoreConfig
	WS              WSConfig
	QueueSize       int
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Driver         string
	PostgresDSN    string
	ValkeyAddr     string
	ValkeyPassword string
	ValkeyDB       int
}

type WSConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAllowedOrigins, []string{"*"})
	v.SetDefault(KeyJWTSecret, "")
	v.SetDefault(KeyStoreDriver, DriverMemory)
	v.SetDefault(KeyPostgresDSN, "")
	v.SetDefault(KeyValkeyAddr, "")
	v.SetDefault(KeyValkeyPassword, "")
	v.SetDefault(KeyValkeyDB, 0)
	v.SetDefault(KeySendBuffer, 256)
	v.SetDefault(KeyMaxMessageSize, 4096)
	v.SetDefault(KeyWriteWait, 10*time.Second)
	v.SetDefault(KeyPongWait, 60*time.Second)
	v.SetDefault(KeyQueueSize, 1024)
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)
}

// Load reads an optional .env file, then resolves every key from flags,
// STREAMSYNC_* environment variables, the config file and defaults, in
// viper's usual precedence.
func Load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Addr:           v.GetString(KeyAddr),
		LogLevel:       v.GetString(KeyLogLevel),
		AllowedOrigins: splitList(v.GetStringSlice(KeyAllowedOrigins)),
		JWTSecret:      v.GetString(KeyJWTSecret),
		Store: StoreConfig{
			Driver:         strings.ToLower(v.GetString(KeyStoreDriver)),
			PostgresDSN:    v.GetString(KeyPostgresDSN),
			ValkeyAddr:     v.GetString(KeyValkeyAddr),
			ValkeyPassword: v.GetString(KeyValkeyPassword),
			ValkeyDB:       v.GetInt(KeyValkeyDB),
		},
		WS: WSConfig{
			SendBuffer:     v.GetInt(KeySendBuffer),
			MaxMessageSize: v.GetInt64(KeyMaxMessageSize),
			WriteWait:      v.GetDuration(KeyWriteWait),
			PongWait:       v.GetDuration(KeyPongWait),
		},
		QueueSize:       v.GetInt(KeyQueueSize),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres store"))
		}
	case DriverValkey:
		if c.Store.ValkeyAddr == "" {
			errs = append(errs, errors.New("valkey.addr is required for the valkey store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws.send_buffer must be positive"))
	}
	if c.WS.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("ws.max_message_size must be positive"))
	}
	if c.WS.PongWait <= 0 || c.WS.WriteWait <= 0 {
		errs = append(errs, errors.New("ws.pong_wait and ws.write_wait must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("queue_size must be positive"))
	}
	return errors.Join(errs...)
}

// splitList accepts both list values and a single comma-separated string,
// which is how a list arrives from an environment variable.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
