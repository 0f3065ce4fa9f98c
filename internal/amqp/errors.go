package amqp

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// Connection errors
	ErrConnectionClosed   = errors.New("amqp: connection is closed")
	ErrConnectionNotReady = errors.New("amqp: connection not ready")
	ErrConnectionTimeout  = errors.New("amqp: connection timeout")
	ErrMaxRetriesExceeded = errors.New("amqp: maximum reconnection attempts exceeded")

	// Channel errors
	ErrChannelPoolClosed    = errors.New("amqp: channel pool is closed")
	ErrChannelPoolExhausted = errors.New("amqp: channel pool exhausted")
)

// ConnectionError wraps a connection-level failure.
type ConnectionError struct {
	Op        string
	URL       string // sanitized
	Err       error
	Timestamp time.Time
	Attempts  int
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("amqp connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("amqp connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChannelError wraps a channel-level failure.
type ChannelError struct {
	Op        string
	ChannelID string
	Err       error
	Timestamp time.Time
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("amqp channel error: %s on channel %s: %v", e.Op, e.ChannelID, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// SanitizeURL strips credentials from an AMQP URL for logging.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}
