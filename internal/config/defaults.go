package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL           = "https://api.finfree.app/api"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 5 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultBatchSize         = 1000
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 10000
	DefaultPollInterval      = 15 * time.Minute
	DefaultPollConcurrency   = 10
	DefaultPollChunkSize     = 50
	DefaultPollRegion        = "tr"
	DefaultHealthPort        = 8080
	DefaultHealthPath        = "/health"
	DefaultLogLevel          = "info"
)

func (c *RecorderConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Feed defaults
	if c.Feed.ReconnectAttempts == 0 {
		c.Feed.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.Feed.ReconnectDelay == 0 {
		c.Feed.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Feed.MaxReconnectDelay == 0 {
		c.Feed.MaxReconnectDelay = DefaultMaxReconnectDelay
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.ChunkSize == 0 {
		c.Poller.ChunkSize = DefaultPollChunkSize
	}
	if c.Poller.Region == "" {
		c.Poller.Region = DefaultPollRegion
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}
