// =============================================================================
// Parley default configuration
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Conversation: DefaultConversationConfig(),
		Store:        DefaultStoreConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultConversationConfig returns the default governor settings.
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		MaxDuration:       10 * time.Minute,
		MaxTurns:          20,
		TurnTimeout:       90 * time.Second,
		TurnsPerMinute:    0,
		DigestTokenBudget: 0,
		TokenEncoding:     "cl100k_base",
	}
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: "memory",
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		SQLite: SQLiteConfig{
			Path: "parley.db",
		},
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "parley",
		SampleRate:   1.0,
	}
}
