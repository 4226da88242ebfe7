package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultActivityTimeout = 120 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultClientBuffer    = 1024
	DefaultQueueBuffer     = 4096
	DefaultBatchSize       = 500
	DefaultFlushInterval   = 1 * time.Second
)

func (c *GathererConfig) applyDefaults() {
	if c.Realtime.ActivityTimeout == 0 {
		c.Realtime.ActivityTimeout = DefaultActivityTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.BufferSize == 0 {
		c.Realtime.BufferSize = DefaultClientBuffer
	}

	applyDBDefaults(&c.Database.Postgres)

	if c.Queue.BufferSize == 0 {
		c.Queue.BufferSize = DefaultQueueBuffer
	}

	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
