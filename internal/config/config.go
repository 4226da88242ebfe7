package config

import "time"

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Channels []string       `yaml:"channels"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Writer   WriterConfig   `yaml:"writer"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// RealtimeConfig holds the realtime endpoint and reconnection settings.
type RealtimeConfig struct {
	Host   string `yaml:"host"`
	AppKey string `yaml:"app_key"`
	Secure *bool  `yaml:"secure"` // nil = true

	// AutoReconnect controls whether dropped connections are retried.
	// nil = true.
	AutoReconnect *bool `yaml:"auto_reconnect"`

	// MaxReconnectAttempts bounds scheduled reconnects; absent means
	// unbounded.
	MaxReconnectAttempts *int `yaml:"max_reconnect_attempts"`

	// MaxReconnectGapSeconds caps the backoff delay; absent means no
	// cap.
	MaxReconnectGapSeconds *float64 `yaml:"max_reconnect_gap_seconds"`

	ActivityTimeout time.Duration `yaml:"activity_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	BufferSize      int           `yaml:"buffer_size"`
}

// DatabaseConfig holds the event archive database.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
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

// QueueConfig holds event queue settings.
type QueueConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// WriterConfig holds event writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RealtimeSecure resolves the optional secure flag.
func (c *RealtimeConfig) RealtimeSecure() bool {
	return c.Secure == nil || *c.Secure
}

// ReconnectEnabled resolves the optional auto_reconnect flag.
func (c *RealtimeConfig) ReconnectEnabled() bool {
	return c.AutoReconnect == nil || *c.AutoReconnect
}
