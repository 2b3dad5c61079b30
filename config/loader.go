// =============================================================================
// Parley configuration loader
// =============================================================================
// Unified configuration loading: defaults, then a YAML file, then
// environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("parley.yaml").
//	    WithEnvPrefix("PARLEY").
//	    Load()
//
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full Parley service configuration.
type Config struct {
	// Server holds the HTTP listener settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Conversation holds the turn governor defaults applied to every
	// conversation the service hosts.
	Conversation ConversationConfig `yaml:"conversation" env:"CONVERSATION"`

	// Store selects and configures the transcript archive backend.
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures the OTel SDK.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// HTTPPort serves the observer WebSocket endpoint.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// MetricsPort serves Prometheus metrics.
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// ReadTimeout bounds request header reads.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ConversationConfig holds per-conversation governor defaults.
type ConversationConfig struct {
	// MaxDuration is the wall-clock ceiling for a conversation.
	MaxDuration time.Duration `yaml:"max_duration" env:"MAX_DURATION"`
	// MaxTurns is the turn-count ceiling.
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// TurnTimeout bounds a single speak call.
	TurnTimeout time.Duration `yaml:"turn_timeout" env:"TURN_TIMEOUT"`
	// TurnsPerMinute paces the loop. Zero disables pacing.
	TurnsPerMinute int `yaml:"turns_per_minute" env:"TURNS_PER_MINUTE"`
	// DigestTokenBudget caps the digest injected into speakers.
	// Zero means unbounded.
	DigestTokenBudget int `yaml:"digest_token_budget" env:"DIGEST_TOKEN_BUDGET"`
	// TokenEncoding names the tiktoken encoding used for the budget.
	TokenEncoding string `yaml:"token_encoding" env:"TOKEN_ENCODING"`
}

// StoreConfig selects the transcript archive backend.
type StoreConfig struct {
	// Backend: memory, redis, sqlite
	Backend string `yaml:"backend" env:"BACKEND"`
	// Redis settings, used when Backend is redis.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// SQLite settings, used when Backend is sqlite.
	SQLite SQLiteConfig `yaml:"sqlite" env:"SQLITE"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap output sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig configures the OTel SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the PARLEY env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "PARLEY",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation function run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults, then the YAML
// file, then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile merges the YAML file into cfg. A missing file is not an
// error; the defaults stand.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct recursively, overriding fields whose
// env variable is set.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 需要特殊处理
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Conversation.MaxTurns <= 0 {
		errs = append(errs, "max_turns must be positive")
	}
	if c.Conversation.MaxDuration <= 0 {
		errs = append(errs, "max_duration must be positive")
	}
	if c.Conversation.TurnsPerMinute < 0 {
		errs = append(errs, "turns_per_minute must not be negative")
	}
	switch c.Store.Backend {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
