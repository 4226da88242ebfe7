package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Realtime.Host == "" {
		return errors.New("realtime.host is required")
	}
	if c.Realtime.AppKey == "" {
		return errors.New("realtime.app_key is required")
	}
	if c.Realtime.MaxReconnectAttempts != nil && *c.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("realtime.max_reconnect_attempts must be >= 0, got %d",
			*c.Realtime.MaxReconnectAttempts)
	}
	if c.Realtime.MaxReconnectGapSeconds != nil && *c.Realtime.MaxReconnectGapSeconds < 0 {
		return fmt.Errorf("realtime.max_reconnect_gap_seconds must be >= 0, got %v",
			*c.Realtime.MaxReconnectGapSeconds)
	}

	if len(c.Channels) == 0 {
		return errors.New("at least one channel is required")
	}
	for _, ch := range c.Channels {
		if ch == "" {
			return errors.New("channel names must not be empty")
		}
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}
	if c.Queue.BufferSize < 1 {
		return errors.New("queue.buffer_size must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, db.Port)
	}
	return nil
}
