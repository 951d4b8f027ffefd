package posthog

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults applied by Config.validate for zero values.
const (
	DefaultEndpoint         = "https://app.posthog.com"
	DefaultInterval         = 500 * time.Millisecond
	DefaultBatchSize        = 100
	DefaultMaxQueueSize     = 10000
	DefaultTimeout          = 15 * time.Second
	DefaultMaxRetries       = 3
	DefaultFlagPollInterval = 30 * time.Second
)

// Callback receives the outcome of every enqueued message once its batch
// has been delivered or given up on. Methods are called from a dedicated
// goroutine and must not block for long; Close waits for them.
type Callback interface {
	Success(Message)
	Failure(Message, error)
}

// Config tunes a Client. The zero value is valid and uses the defaults
// above.
type Config struct {
	// Endpoint is the PostHog instance to send to.
	Endpoint string

	// Interval is the longest a queued message waits before its batch is
	// flushed.
	Interval time.Duration

	// BatchSize is the most messages sent in a single request.
	BatchSize int

	// MaxQueueSize bounds the pending queue. Enqueue drops messages and
	// returns ErrQueueFull beyond it.
	MaxQueueSize int

	// Timeout bounds each delivery attempt.
	Timeout time.Duration

	// MaxRetries is how many times a retryable delivery failure is
	// retried before the batch is reported as failed.
	MaxRetries int

	// GZip compresses batch payloads.
	GZip bool

	// PersonalAPIKey enables local feature flag evaluation.
	PersonalAPIKey string

	// FlagPollInterval is how often feature flag definitions are
	// refreshed when PersonalAPIKey is set.
	FlagPollInterval time.Duration

	// Debug installs a verbose stderr logger when Logger is nil.
	Debug bool

	// Logger receives client diagnostics. Nil discards them unless Debug
	// is set.
	Logger *slog.Logger

	// Callback observes delivery outcomes per message.
	Callback Callback

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper

	// Hooks for tests.
	now func() time.Time
	uid func() string
}

func (c *Config) validate() error {
	if c.Interval < 0 {
		return &ConfigError{Field: "Interval", Value: c.Interval, Reason: "must not be negative"}
	}
	if c.BatchSize < 0 {
		return &ConfigError{Field: "BatchSize", Value: c.BatchSize, Reason: "must not be negative"}
	}
	if c.MaxQueueSize < 0 {
		return &ConfigError{Field: "MaxQueueSize", Value: c.MaxQueueSize, Reason: "must not be negative"}
	}
	if c.MaxRetries < 0 {
		return &ConfigError{Field: "MaxRetries", Value: c.MaxRetries, Reason: "must not be negative"}
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return &ConfigError{Field: "Endpoint", Value: c.Endpoint, Reason: "must be an http(s) URL"}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.FlagPollInterval == 0 {
		c.FlagPollInterval = DefaultFlagPollInterval
	}
	if c.Logger == nil {
		if c.Debug {
			c.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			c.Logger = slog.New(slog.DiscardHandler)
		}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.uid == nil {
		c.uid = func() string { return uuid.New().String() }
	}
}
