package connection

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmelnik/streamgather/internal/version"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no activity)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw frame bytes with a receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the socket
	ReceivedAt time.Time // Local timestamp when the read returned
}

// ClientConfig configures a single socket client.
type ClientConfig struct {
	URL             string        // Full endpoint URL (ws:// or wss://)
	ActivityTimeout time.Duration // Max time without inbound activity before the connection is stale
	WriteTimeout    time.Duration // Write deadline for sends
	BufferSize      int           // Inbound message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ActivityTimeout: 120 * time.Second,
		WriteTimeout:    5 * time.Second,
		BufferSize:      1024,
	}
}

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	Host   string // Endpoint host, e.g. "ws.example.com" or "ws.example.com:8443"
	AppKey string // Application key, part of the endpoint path
	Secure bool   // Use wss:// and TLS

	// AutoReconnect controls whether unintentional disconnects schedule
	// a reconnection.
	AutoReconnect bool

	// MaxReconnectAttempts bounds the number of scheduled reconnects.
	// nil means unbounded.
	MaxReconnectAttempts *int

	// MaxReconnectGapSeconds clamps the computed backoff delay. nil
	// means no clamp.
	MaxReconnectGapSeconds *float64

	ActivityTimeout time.Duration // Passed through to the client
	WriteTimeout    time.Duration // Passed through to the client
	BufferSize      int           // Client inbound buffer size
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Secure:          true,
		AutoReconnect:   true,
		ActivityTimeout: 120 * time.Second,
		WriteTimeout:    5 * time.Second,
		BufferSize:      1024,
	}
}

// endpointURL builds the socket endpoint URL from the manager config.
func endpointURL(cfg ManagerConfig) string {
	scheme := "ws"
	if cfg.Secure {
		scheme = "wss"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   cfg.Host,
		Path:   "/app/" + cfg.AppKey,
	}
	q := u.Query()
	q.Set("protocol", "7")
	q.Set("client", "streamgather")
	q.Set("version", version.Version)
	u.RawQuery = q.Encode()

	return u.String()
}

// Stats is a snapshot of the manager's current state.
type Stats struct {
	State             State
	ReconnectAttempts int
	SocketID          string
	TrackedChannels   int
	ActiveChannels    int
}

// String formats the snapshot for diagnostics.
func (s Stats) String() string {
	return fmt.Sprintf("state=%s attempts=%d channels=%d/%d",
		s.State, s.ReconnectAttempts, s.ActiveChannels, s.TrackedChannels)
}
