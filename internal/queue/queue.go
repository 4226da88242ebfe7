package queue

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmelnik/streamgather/internal/protocol"
)

// Event is one classified data event accepted from the connection.
type Event struct {
	Channel    string         // Channel the event arrived on, "" for global events
	Name       string         // Application event name
	Payload    map[string]any // Verbatim decoded frame
	ReceivedAt time.Time
}

// Config holds queue settings.
type Config struct {
	// BufferSize is the initial buffer capacity; the buffer grows when
	// consumers fall behind.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{BufferSize: 4096}
}

// QueueStats contains runtime counters.
type QueueStats struct {
	Received int64
	Rejected int64
	Buffer   BufferStats
}

// Queue buffers classified data events for downstream consumers. It is
// the connection manager's event sink.
type Queue struct {
	cfg    Config
	logger *slog.Logger

	buf      *Buffer[Event]
	rejected atomic.Int64
}

// New creates an event queue.
func New(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Queue{
		cfg:    cfg,
		logger: logger,
		buf:    NewBuffer[Event](cfg.BufferSize),
	}
}

// Enqueue accepts one classified data event, payload unmodified.
func (q *Queue) Enqueue(payload map[string]any) {
	ev := Event{
		Channel:    protocol.ChannelName(payload),
		Name:       protocol.EventName(payload),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}

	if !q.buf.Push(ev) {
		q.rejected.Add(1)
		q.logger.Warn("event queue closed, dropping event",
			"event", ev.Name,
			"channel", ev.Channel,
		)
	}
}

// Events returns the underlying buffer for consumers.
func (q *Queue) Events() *Buffer[Event] {
	return q.buf
}

// Close marks the queue closed; further events are dropped.
func (q *Queue) Close() {
	q.buf.Close()
}

// Stats returns runtime counters.
func (q *Queue) Stats() QueueStats {
	bs := q.buf.Stats()
	return QueueStats{
		Received: bs.Pushed,
		Rejected: q.rejected.Load(),
		Buffer:   bs,
	}
}
