package omniarchive

import (
	"log/slog"
	"time"

	"github.com/grokify/mogo/log/slogutil"
)

// MaxObjectSize is the largest buffer a Stream will flush (5 GiB).
const MaxObjectSize int64 = 5 * 1024 * 1024 * 1024

// StreamOption configures a Stream created by NewStream.
type StreamOption func(*StreamConfig)

// StreamConfig holds configuration for creating a Stream.
type StreamConfig struct {
	// Metadata is sent with every flush. NewStream copies it.
	Metadata map[string]string

	// Content presets the buffer. A stream with content starts dirty
	// and never fetches the remote object.
	Content []byte

	// MaxObjectSize caps the flushed buffer length.
	// 0 means MaxObjectSize.
	MaxObjectSize int64

	// Logger receives fetch and flush events. Nil means no logging.
	Logger *slog.Logger

	// Observer receives fetch and flush events. Nil means none.
	Observer Observer
}

// WithMetadata sets the object metadata.
func WithMetadata(metadata map[string]string) StreamOption {
	return func(c *StreamConfig) {
		c.Metadata = metadata
	}
}

// WithContent presets the buffer content.
func WithContent(content []byte) StreamOption {
	return func(c *StreamConfig) {
		c.Content = content
	}
}

// WithMaxObjectSize overrides the flush size cap.
func WithMaxObjectSize(size int64) StreamOption {
	return func(c *StreamConfig) {
		c.MaxObjectSize = size
	}
}

// WithStreamLogger sets the stream logger.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(c *StreamConfig) {
		c.Logger = logger
	}
}

// WithStreamObserver sets the stream observer.
func WithStreamObserver(o Observer) StreamOption {
	return func(c *StreamConfig) {
		c.Observer = o
	}
}

// ApplyStreamOptions applies options to a StreamConfig.
func ApplyStreamOptions(opts ...StreamOption) *StreamConfig {
	config := &StreamConfig{}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// Option configures an Archive created by New.
type Option func(*Config)

// Config holds configuration for an Archive.
type Config struct {
	// Logger is used for structured logging.
	// If nil, a null logger is used (no logging).
	Logger *slog.Logger

	// Observer receives fetch, flush and eviction events.
	Observer Observer

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time

	// Location is the time zone version dates are rendered in.
	// Default: time.Local.
	Location *time.Location

	// MaxObjectSize caps the size of flushed versions.
	// 0 means MaxObjectSize.
	MaxObjectSize int64

	// PageSize is the listing page size. 0 means the store default.
	PageSize int

	// ScratchOnClose runs Scratch after a new version is closed.
	ScratchOnClose bool
}

// WithLogger sets the archive logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithObserver sets the archive observer.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		c.Observer = o
	}
}

// WithClock sets the time source used for physical dates and ages.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLocation sets the time zone version dates are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		c.Location = loc
	}
}

// WithArchiveMaxObjectSize overrides the flush size cap of handles.
func WithArchiveMaxObjectSize(size int64) Option {
	return func(c *Config) {
		c.MaxObjectSize = size
	}
}

// WithPageSize sets the listing page size.
func WithPageSize(n int) Option {
	return func(c *Config) {
		c.PageSize = n
	}
}

// WithScratchOnClose runs a retention sweep each time a handle obtained
// from NewVersion or NewVersionAt is closed.
func WithScratchOnClose() Option {
	return func(c *Config) {
		c.ScratchOnClose = true
	}
}

// ApplyOptions applies options to a Config and fills in defaults.
func ApplyOptions(opts ...Option) *Config {
	config := &Config{}
	for _, opt := range opts {
		opt(config)
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return config
}

// logger returns the configured logger or a null logger if none is set.
func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slogutil.Null()
}

func (c *Config) observer() Observer {
	if c.Observer != nil {
		return c.Observer
	}
	return nopObserver{}
}

// ListOption configures Archive.List.
type ListOption func(*ListOptions)

// WithListPrefix replaces the default "<prefix>." listing filter.
func WithListPrefix(prefix string) ListOption {
	return func(o *ListOptions) {
		o.Prefix = prefix
	}
}

// WithListPageSize sets the number of keys requested per page.
func WithListPageSize(n int) ListOption {
	return func(o *ListOptions) {
		o.MaxKeys = n
	}
}
