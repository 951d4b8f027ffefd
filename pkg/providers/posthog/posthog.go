// Package posthog connects LeapFlow tasks to a PostHog project. It
// provides a hook for pulling a configured client out of a connection
// and operators for the common event types.
//
// The connection's extra field must carry the project write key:
//
//	{"project_api_key": "phc_..."}
package posthog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	phclient "github.com/leapstack-labs/leapflow-posthog/pkg/posthog"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

const (
	// ConnType is the connection type this provider registers for.
	ConnType = "posthog"

	// DefaultConnID is the connection used when a task does not name one.
	DefaultConnID = "posthog_default"

	// HookName is how the hook appears in manifests and docs.
	HookName = "PostHogHook"
)

// ErrMissingWriteKey is returned when the connection extra carries no
// project_api_key.
var ErrMissingWriteKey = errors.New("no PostHog write key provided")

// Extra is the provider specific part of a posthog connection. Values
// may arrive as strings when the connection comes from a URI.
type Extra struct {
	ProjectAPIKey  string `mapstructure:"project_api_key"`
	Host           string `mapstructure:"host"`
	PersonalAPIKey string `mapstructure:"personal_api_key"`
	GZip           bool   `mapstructure:"gzip"`
	BatchSize      int    `mapstructure:"batch_size"`
	MaxQueueSize   int    `mapstructure:"max_queue_size"`
	FlushInterval  string `mapstructure:"flush_interval"`
}

// Hook builds and caches a PostHog client from a LeapFlow connection.
type Hook struct {
	connID   string
	debug    bool
	resolver provider.ConnectionResolver
	log      *slog.Logger
	callback phclient.Callback

	mu     sync.Mutex
	client phclient.Client

	errMu       sync.Mutex
	deliveryErr error
}

// HookOption tweaks hook construction.
type HookOption func(*Hook)

// WithDebug puts the underlying client in debug mode.
func WithDebug(debug bool) HookOption {
	return func(h *Hook) { h.debug = debug }
}

// WithCallback registers a delivery callback on the underlying client.
// The hook still records failures for Flush and Err.
func WithCallback(cb phclient.Callback) HookOption {
	return func(h *Hook) { h.callback = cb }
}

// NewHook returns a hook for the given connection. The connection is
// resolved lazily on first use.
func NewHook(cfg provider.HookConfig, opts ...HookOption) *Hook {
	h := &Hook{
		connID:   cfg.ConnID,
		resolver: cfg.Resolver,
		log:      cfg.Logger,
	}
	if h.connID == "" {
		h.connID = DefaultConnID
	}
	if h.log == nil {
		h.log = slog.New(slog.DiscardHandler)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ConnID returns the connection the hook was built from.
func (h *Hook) ConnID() string { return h.connID }

// Conn resolves the connection and returns the configured client,
// building it on first call.
func (h *Hook) Conn(ctx context.Context) (phclient.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		return h.client, nil
	}
	if h.resolver == nil {
		return nil, fmt.Errorf("hook for connection %q has no connection resolver", h.connID)
	}

	conn, err := h.resolver.Resolve(ctx, h.connID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection %q: %w", h.connID, err)
	}

	var extra Extra
	if err := conn.DecodeExtra(&extra); err != nil {
		return nil, err
	}
	if extra.ProjectAPIKey == "" {
		return nil, ErrMissingWriteKey
	}

	h.log.Info("setting write key for PostHog connection", "conn_id", h.connID)
	cfg := phclient.Config{
		Endpoint:       extra.Host,
		BatchSize:      extra.BatchSize,
		MaxQueueSize:   extra.MaxQueueSize,
		GZip:           extra.GZip,
		PersonalAPIKey: extra.PersonalAPIKey,
		Debug:          h.debug,
		Logger:         h.log,
		Callback:       hookCallback{h: h, next: h.callback},
	}
	if extra.FlushInterval != "" {
		interval, err := time.ParseDuration(extra.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("connection %q has an invalid flush_interval: %w", h.connID, err)
		}
		cfg.Interval = interval
	}
	if h.debug {
		h.log.Info("setting PostHog connection to debug mode")
	}

	client, err := phclient.NewWithConfig(extra.ProjectAPIKey, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build PostHog client for connection %q: %w", h.connID, err)
	}
	h.client = client
	return client, nil
}

// Test verifies the connection resolves and carries a write key.
func (h *Hook) Test(ctx context.Context) error {
	_, err := h.Conn(ctx)
	return err
}

// Capture sends a track event for a user.
func (h *Hook) Capture(ctx context.Context, distinctID, event string, properties map[string]any) error {
	client, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	return client.Enqueue(phclient.Capture{
		DistinctID: distinctID,
		Event:      event,
		Properties: phclient.Properties(properties),
	})
}

// Enqueue hands an already built message to the client. Callers that
// need timestamps or message IDs preserved use this over the typed
// helpers.
func (h *Hook) Enqueue(ctx context.Context, msg phclient.Message) error {
	client, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	return client.Enqueue(msg)
}

// Identify sets person properties for a user.
func (h *Hook) Identify(ctx context.Context, distinctID string, properties map[string]any) error {
	client, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	return client.Enqueue(phclient.Identify{
		DistinctID: distinctID,
		Properties: phclient.Properties(properties),
	})
}

// Alias links a new distinct ID to a previously known one.
func (h *Hook) Alias(ctx context.Context, previousID, alias string) error {
	client, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	return client.Enqueue(phclient.Alias{DistinctID: previousID, Alias: alias})
}

// GroupIdentify sets properties on a group.
func (h *Hook) GroupIdentify(ctx context.Context, groupType, groupKey string, properties map[string]any) error {
	client, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	return client.Enqueue(phclient.GroupIdentify{
		Type:       groupType,
		Key:        groupKey,
		Properties: phclient.Properties(properties),
	})
}

// Page records a pageview for a user.
func (h *Hook) Page(ctx context.Context, distinctID, url string, properties map[string]any) error {
	client, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	return client.Enqueue(phclient.Page{
		DistinctID: distinctID,
		URL:        url,
		Properties: phclient.Properties(properties),
	})
}

// IsFeatureEnabled evaluates a feature flag for a user.
func (h *Hook) IsFeatureEnabled(ctx context.Context, key, distinctID string) (bool, error) {
	client, err := h.Conn(ctx)
	if err != nil {
		return false, err
	}
	return client.IsFeatureEnabled(ctx, key, distinctID)
}

// Flush delivers everything queued so far and surfaces any delivery
// failure observed since the hook was built.
func (h *Hook) Flush(ctx context.Context) error {
	client, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	if err := client.Flush(); err != nil {
		return err
	}
	return h.Err()
}

// Err returns the first delivery failure reported by the client, or nil.
func (h *Hook) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.deliveryErr
}

// Close drains and shuts down the client, if one was built.
func (h *Hook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == nil {
		return nil
	}
	err := h.client.Close()
	h.client = nil
	return err
}

func (h *Hook) recordErr(err error) {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	if h.deliveryErr == nil {
		h.deliveryErr = fmt.Errorf("PostHog error: %w", err)
	}
}

// hookCallback forwards client delivery outcomes to the hook.
type hookCallback struct {
	h    *Hook
	next phclient.Callback
}

func (cb hookCallback) Success(msg phclient.Message) {
	if cb.next != nil {
		cb.next.Success(msg)
	}
}

func (cb hookCallback) Failure(msg phclient.Message, err error) {
	cb.h.log.Error("encountered PostHog error", "error", err)
	cb.h.recordErr(err)
	if cb.next != nil {
		cb.next.Failure(msg, err)
	}
}
