package writer

import "time"

// Config holds writer settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before flush
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics contains writer counters.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// eventRow is the storage shape of one event.
type eventRow struct {
	ID         string // uuid
	Channel    string
	Event      string
	Payload    []byte // JSON-encoded frame
	ReceivedAt int64  // Unix microseconds
}
