package sermux

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRecordCapacity is the fixed size of every arena record. A
	// record holds one line-terminated unit plus its terminator.
	DefaultRecordCapacity = 20

	// DefaultArenaSlots is the number of preallocated records. Must cover
	// double-buffered receive, the pending transmit queue and in-flight
	// dispatch.
	DefaultArenaSlots = 16

	// DefaultMaxSessions is the registry size.
	DefaultMaxSessions = 20

	// DefaultSendTimeout bounds the wait for a transport send confirmation.
	DefaultSendTimeout = 150 * time.Millisecond

	// DefaultRearmDelay is the retry interval when the receive path cannot
	// get a buffer from the arena.
	DefaultRearmDelay = 50 * time.Millisecond

	// MaxSessionLimit caps MaxSessions. Routing addresses are two decimal
	// digits and 99 is reserved for broadcast.
	MaxSessionLimit = 99
)

// Config holds the configuration for a Bridge
type Config struct {
	RecordCapacity int
	ArenaSlots     int
	MaxSessions    int
	SendTimeout    time.Duration
	RearmDelay     time.Duration
	Logger         *zap.Logger
	Tap            TapFunc
}

// Option is a functional option for configuring a Bridge
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		RecordCapacity: DefaultRecordCapacity,
		ArenaSlots:     DefaultArenaSlots,
		MaxSessions:    DefaultMaxSessions,
		SendTimeout:    DefaultSendTimeout,
		RearmDelay:     DefaultRearmDelay,
	}
}

// WithRecordCapacity sets the fixed record size (minimum 4: a routing
// prefix plus at least one payload byte and a terminator)
func WithRecordCapacity(n int) Option {
	return func(c *Config) error {
		if n < 4 {
			return fmt.Errorf("%w: record capacity %d below minimum 4", ErrInvalidConfig, n)
		}
		c.RecordCapacity = n
		return nil
	}
}

// WithArenaSlots sets the number of preallocated records (minimum 3)
func WithArenaSlots(n int) Option {
	return func(c *Config) error {
		if n < 3 {
			return fmt.Errorf("%w: arena slots %d below minimum 3", ErrInvalidConfig, n)
		}
		c.ArenaSlots = n
		return nil
	}
}

// WithMaxSessions sets the session registry size (1 to MaxSessionLimit)
func WithMaxSessions(n int) Option {
	return func(c *Config) error {
		if n < 1 || n > MaxSessionLimit {
			return fmt.Errorf("%w: max sessions %d outside 1..%d", ErrInvalidConfig, n, MaxSessionLimit)
		}
		c.MaxSessions = n
		return nil
	}
}

// WithSendTimeout sets the wait for a transport send confirmation
func WithSendTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: send timeout must be positive", ErrInvalidConfig)
		}
		c.SendTimeout = d
		return nil
	}
}

// WithRearmDelay sets the retry interval for receive buffer acquisition
func WithRearmDelay(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: rearm delay must be positive", ErrInvalidConfig)
		}
		c.RearmDelay = d
		return nil
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) error {
		c.Logger = log
		return nil
	}
}

// WithTap registers an observer callback for bridge activity. Used by the
// interactive console; the callback must not block.
func WithTap(tap TapFunc) Option {
	return func(c *Config) error {
		c.Tap = tap
		return nil
	}
}
