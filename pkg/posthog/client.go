package posthog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Client queues messages and delivers them to PostHog in batches.
type Client interface {
	// Enqueue validates msg and adds it to the delivery queue. It never
	// blocks on the network.
	Enqueue(msg Message) error

	// Flush sends everything queued so far and waits for the attempts,
	// including their callbacks, to complete.
	Flush() error

	// IsFeatureEnabled evaluates a feature flag for a user.
	IsFeatureEnabled(ctx context.Context, key, distinctID string) (bool, error)

	// FeatureFlags returns the known flag definitions. It requires a
	// PersonalAPIKey.
	FeatureFlags(ctx context.Context) ([]FeatureFlag, error)

	// Close stops intake, drains the queue and waits for callbacks.
	Close() error
}

type queued struct {
	src Message
	msg wireMessage
}

type client struct {
	apiKey string
	cfg    Config
	log    *slog.Logger
	http   *http.Client
	flags  *flagPoller

	queue    chan queued
	flushReq chan chan struct{}
	quit     chan struct{}
	shutdown chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
	cbWG      sync.WaitGroup
}

// New returns a Client with default configuration.
func New(apiKey string) (Client, error) {
	return NewWithConfig(apiKey, Config{})
}

// NewWithConfig returns a Client for the given project API key.
func NewWithConfig(apiKey string, cfg Config) (Client, error) {
	if apiKey == "" {
		return nil, &ConfigError{Field: "APIKey", Value: apiKey, Reason: "must not be empty"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := &client{
		apiKey: apiKey,
		cfg:    cfg,
		log:    cfg.Logger,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		queue:    make(chan queued, cfg.MaxQueueSize),
		flushReq: make(chan chan struct{}),
		quit:     make(chan struct{}),
		shutdown: make(chan struct{}),
	}
	if cfg.PersonalAPIKey != "" {
		c.flags = newFlagPoller(apiKey, cfg.PersonalAPIKey, cfg.Endpoint, cfg.FlagPollInterval, c.http, c.log)
		go c.flags.run()
	}
	go c.loop()
	return c, nil
}

func (c *client) Enqueue(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}

	entry := queued{src: msg, msg: msg.wire(stamp{timestamp: c.cfg.now(), uuid: c.cfg.uid()})}
	select {
	case c.queue <- entry:
		c.log.Debug("message enqueued", "event", entry.msg.Event, "distinct_id", entry.msg.DistinctID)
		return nil
	default:
		c.log.Error("message queue is full, dropping message", "event", entry.msg.Event)
		return ErrQueueFull
	}
}

func (c *client) Flush() error {
	if c.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case c.flushReq <- done:
		<-done
		return nil
	case <-c.shutdown:
		return ErrClosed
	}
}

func (c *client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
	})
	<-c.shutdown
	return nil
}

// loop is the single sender goroutine. It owns the current batch and is
// the only caller of send.
func (c *client) loop() {
	defer close(c.shutdown)
	if c.flags != nil {
		defer c.flags.stop()
	}
	defer c.cbWG.Wait()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	var batch []queued
	for {
		select {
		case entry := <-c.queue:
			batch = append(batch, entry)
			if len(batch) >= c.cfg.BatchSize {
				c.send(batch)
				batch = nil
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.send(batch)
				batch = nil
			}
		case done := <-c.flushReq:
			batch = c.drain(batch)
			// Let callbacks observe the outcome before Flush returns.
			c.cbWG.Wait()
			close(done)
		case <-c.quit:
			c.drain(batch)
			return
		}
	}
}

// drain empties the queue, sending full batches as they form, then sends
// the remainder.
func (c *client) drain(batch []queued) []queued {
	for {
		select {
		case entry := <-c.queue:
			batch = append(batch, entry)
			if len(batch) >= c.cfg.BatchSize {
				c.send(batch)
				batch = nil
			}
		default:
			if len(batch) > 0 {
				c.send(batch)
			}
			return nil
		}
	}
}

func (c *client) send(batch []queued) {
	msgs := make([]wireMessage, len(batch))
	for i, entry := range batch {
		msgs[i] = entry.msg
	}

	err := c.upload(batchPayload{APIKey: c.apiKey, Batch: msgs})
	if err != nil {
		c.log.Error("batch delivery failed", "size", len(batch), "error", err)
	} else {
		c.log.Debug("batch delivered", "size", len(batch))
	}
	c.report(batch, err)
}

// report runs callbacks off the sender goroutine so a slow callback
// cannot stall delivery.
func (c *client) report(batch []queued, err error) {
	if c.cfg.Callback == nil {
		return
	}
	c.cbWG.Add(1)
	go func() {
		defer c.cbWG.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("callback panicked", "panic", fmt.Sprint(r))
			}
		}()
		for _, entry := range batch {
			if err != nil {
				c.cfg.Callback.Failure(entry.src, err)
			} else {
				c.cfg.Callback.Success(entry.src)
			}
		}
	}()
}
