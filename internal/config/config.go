package config

import "time"

// RecorderConfig is the root configuration for a recorder instance.
type RecorderConfig struct {
	API      APIConfig     `yaml:"api"`
	Feed     FeedConfig    `yaml:"feed"`
	Database DBConfig      `yaml:"database"`
	Recorder WriterConfig  `yaml:"recorder"`
	Poller   PollerConfig  `yaml:"poller"`
	Health   HealthConfig  `yaml:"health"`
	Logging  LoggingConfig `yaml:"logging"`
}

// APIConfig holds Laplace API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"` // Passed as the api_key query parameter
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// FeedConfig holds live feed settings.
type FeedConfig struct {
	ExternalUserID    string        `yaml:"external_user_id"`
	Feeds             []string      `yaml:"feeds"`
	Symbols           []string      `yaml:"symbols"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	StaleTimeout      time.Duration `yaml:"stale_timeout"`
}

// DBConfig holds the PostgreSQL connection for recorded ticks.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// PollerConfig holds stats poller settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	ChunkSize   int           `yaml:"chunk_size"`
	Region      string        `yaml:"region"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
