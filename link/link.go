// Package link carries the wireless side of the bridge: the listener
// contract, the length-prefixed stream framing, the CBOR hello that opens
// every stream connection, and the client half used by tests and tooling.
//
// Concrete transports live in the subpackages memlink (in-process pipes),
// tcplink, quiclink and blelink. All of them deliver peers to a
// sermux.Handler; the stream transports share ServeConn for the
// per-connection lifecycle.
package link

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sermux/sermux"
)

var (
	ErrFrameTooBig     = errors.New("frame exceeds size limit")
	ErrVersionMismatch = errors.New("peer protocol version mismatch")
	ErrInvalidConfig   = errors.New("invalid link configuration")
)

const (
	// DefaultHelloTimeout bounds the wait for a peer's opening frame.
	DefaultHelloTimeout = 5 * time.Second

	// DefaultMaxFrame caps inbound frame payloads. Records are tiny; the
	// headroom exists for large peer blobs that get chunked bridge-side.
	DefaultMaxFrame = 4096
)

// Config is shared by the stream transports.
type Config struct {
	// HelloTimeout bounds the wait for the opening frame. Zero means
	// DefaultHelloTimeout.
	HelloTimeout time.Duration

	// MaxFrame caps inbound frame payloads. Zero means DefaultMaxFrame.
	MaxFrame int

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = DefaultHelloTimeout
	}
	if c.MaxFrame <= 0 {
		c.MaxFrame = DefaultMaxFrame
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Option is a functional option shared by every stream transport.
type Option func(*Config) error

// NewConfig applies the options over the defaults. Transports call this
// once at construction.
func NewConfig(opts ...Option) (Config, error) {
	var cfg Config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg.withDefaults(), nil
}

// WithHelloTimeout bounds the wait for a peer's opening frame.
func WithHelloTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return ErrInvalidConfig
		}
		c.HelloTimeout = d
		return nil
	}
}

// WithMaxFrame caps inbound frame payloads.
func WithMaxFrame(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return ErrInvalidConfig
		}
		c.MaxFrame = n
		return nil
	}
}

// WithLogger sets the transport logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) error {
		c.Logger = log
		return nil
	}
}

// Listener is a transport accepting peers on behalf of a handler.
type Listener interface {
	// Serve accepts peers and drives them through the handler until ctx
	// is canceled or the listener is closed.
	Serve(ctx context.Context, h sermux.Handler) error

	// Addr describes the listening endpoint.
	Addr() string

	Close() error
}
