package engine

import "time"

// Config holds the engine configuration.
type Config struct {
	// ReadTimeout bounds the read of each segment and of each signal.
	// Zero disables the timeout.
	ReadTimeout time.Duration

	// TransmitRetries is the number of resends after the peer rejects a packet
	TransmitRetries int

	// TransmitRetryDelay is the pause before each resend
	TransmitRetryDelay time.Duration

	// ReceiveRetries is the number of fresh reads after a packet fails validation
	ReceiveRetries int

	// ReceiveRetryDelay is the pause before each fresh read
	ReceiveRetryDelay time.Duration

	// BufferSize is the maximum number of bytes requested per stream read
	BufferSize int

	// MaxPayloadSize rejects payload sizes decoded from a corrupt preamble
	MaxPayloadSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:        10 * time.Second,
		TransmitRetries:    3,
		TransmitRetryDelay: time.Second,
		ReceiveRetries:     3,
		ReceiveRetryDelay:  time.Second,
		BufferSize:         1024,
		MaxPayloadSize:     16 << 20,
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*Config)

// WithReadTimeout sets the per-segment read timeout. Zero disables it.
//
// Example:
//
//	e := engine.New(conn, proto, engine.WithReadTimeout(2*time.Second))
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout >= 0 {
			c.ReadTimeout = timeout
		}
	}
}

// WithTransmitRetries sets how often a rejected packet is resent.
func WithTransmitRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.TransmitRetries = retries
		}
	}
}

// WithTransmitRetryDelay sets the pause before each resend.
func WithTransmitRetryDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.TransmitRetryDelay = delay
		}
	}
}

// WithReceiveRetries sets how often an invalid packet is read again.
func WithReceiveRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.ReceiveRetries = retries
		}
	}
}

// WithReceiveRetryDelay sets the pause before each fresh read.
func WithReceiveRetryDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.ReceiveRetryDelay = delay
		}
	}
}

// WithRetries sets both retry budgets.
//
// Example:
//
//	e := engine.New(conn, proto, engine.WithRetries(5, 500*time.Millisecond))
func WithRetries(retries int, delay time.Duration) Option {
	return func(c *Config) {
		WithTransmitRetries(retries)(c)
		WithReceiveRetries(retries)(c)
		WithTransmitRetryDelay(delay)(c)
		WithReceiveRetryDelay(delay)(c)
	}
}

// WithBufferSize sets the maximum bytes requested per stream read.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.BufferSize = size
		}
	}
}

// WithMaxPayloadSize sets the largest payload the engine will accept.
func WithMaxPayloadSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.MaxPayloadSize = size
		}
	}
}
