package ingest

import (
	"errors"
	"time"
)

// Default reconnect delays and sink limits.
const (
	DefaultRetryDelay    = 5 * time.Second
	DefaultErrorDelay    = 10 * time.Second
	DefaultSinkTimeout   = 2 * time.Second
	DefaultSinkQueueSize = 256
)

// Configuration errors.
var (
	ErrInvalidRetryDelay  = errors.New("retry delay must be positive")
	ErrInvalidErrorDelay  = errors.New("error delay must be positive")
	ErrInvalidSinkTimeout = errors.New("sink timeout cannot be negative")
	ErrInvalidSinkQueue   = errors.New("sink queue size cannot be negative")
	ErrNilSource          = errors.New("source cannot be nil")
	ErrNilBuffer          = errors.New("buffer cannot be nil")
)

// Config holds the reconnect timing for the Ingestor.
type Config struct {
	// RetryDelay is the pause after a stream ended cleanly.
	RetryDelay time.Duration

	// ErrorDelay is the pause after a failed connect or a broken stream.
	ErrorDelay time.Duration

	// SinkTimeout bounds a single sink publish. Zero means DefaultSinkTimeout.
	SinkTimeout time.Duration

	// SinkQueueSize is how many entries may wait per sink before new ones
	// are dropped. Zero means DefaultSinkQueueSize.
	SinkQueueSize int
}

// DefaultConfig returns a Config with the default delays.
func DefaultConfig() Config {
	return Config{
		RetryDelay:    DefaultRetryDelay,
		ErrorDelay:    DefaultErrorDelay,
		SinkTimeout:   DefaultSinkTimeout,
		SinkQueueSize: DefaultSinkQueueSize,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.RetryDelay <= 0 {
		return ErrInvalidRetryDelay
	}
	if c.ErrorDelay <= 0 {
		return ErrInvalidErrorDelay
	}
	if c.SinkTimeout < 0 {
		return ErrInvalidSinkTimeout
	}
	if c.SinkQueueSize < 0 {
		return ErrInvalidSinkQueue
	}
	return nil
}
