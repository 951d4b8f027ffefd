package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay/notifier"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
	"github.com/leapstack-labs/leapflow-posthog/internal/transform"
	phclient "github.com/leapstack-labs/leapflow-posthog/pkg/posthog"
	phprovider "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// ServiceConfig wires a relay service to its connection and stores.
type ServiceConfig struct {
	// ConnID names the posthog connection events are delivered through.
	ConnID string

	// Resolver looks up the connection.
	Resolver provider.ConnectionResolver

	// TransformsDir holds the Starlark transform files, if any.
	TransformsDir string

	// Spool receives events whose delivery failed. Optional; without it
	// failed events are only counted.
	Spool *spool.Store

	Logger *slog.Logger
	Debug  bool
}

// Service accepts raw PostHog events, runs them through the transform
// pipeline and queues them for batched delivery. Delivery outcomes come
// back through the client callback; failures are parked in the spool.
type Service struct {
	connID   string
	resolver provider.ConnectionResolver
	dir      string
	spool    *spool.Store
	log      *slog.Logger
	notify   *notifier.Notifier
	hook     *phprovider.Hook
	stats    Stats

	pipeMu   sync.RWMutex
	pipeline *transform.Pipeline

	inflightMu sync.Mutex
	inflight   map[string]json.RawMessage
}

// NewService builds a service and loads the transform pipeline. The
// connection is resolved lazily on the first event.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.ConnID == "" {
		cfg.ConnID = phprovider.DefaultConnID
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	pipeline := &transform.Pipeline{}
	if cfg.TransformsDir != "" {
		p, err := transform.Load(cfg.TransformsDir, log)
		if err != nil {
			return nil, err
		}
		pipeline = p
	}

	s := &Service{
		connID:   cfg.ConnID,
		resolver: cfg.Resolver,
		dir:      cfg.TransformsDir,
		spool:    cfg.Spool,
		log:      log,
		notify:   notifier.New(),
		pipeline: pipeline,
		inflight: make(map[string]json.RawMessage),
	}
	s.hook = phprovider.NewHook(provider.HookConfig{
		ConnID:   cfg.ConnID,
		Resolver: cfg.Resolver,
		Logger:   log,
	}, phprovider.WithCallback(&deliveryObserver{s: s}), phprovider.WithDebug(cfg.Debug))
	return s, nil
}

// ConnID returns the connection the relay delivers through.
func (s *Service) ConnID() string { return s.connID }

// Notifier exposes the change broadcaster for live dashboard updates.
func (s *Service) Notifier() *notifier.Notifier { return s.notify }

// Spool returns the durable failure store, or nil.
func (s *Service) Spool() *spool.Store { return s.spool }

// TransformsDir returns the directory the pipeline was loaded from.
func (s *Service) TransformsDir() string { return s.dir }

// TransformCount reports how many transforms are loaded.
func (s *Service) TransformCount() int {
	s.pipeMu.RLock()
	defer s.pipeMu.RUnlock()
	return s.pipeline.Len()
}

// Stats returns the current relay counters.
func (s *Service) Stats() StatsSnapshot { return s.stats.Snapshot() }

// SpoolStats reports the durable spool counters.
func (s *Service) SpoolStats(ctx context.Context) (*spool.Stats, error) {
	if s.spool == nil {
		return &spool.Stats{}, nil
	}
	return s.spool.Stats(ctx)
}

// InflightCount reports events queued but not yet resolved.
func (s *Service) InflightCount() int {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	return len(s.inflight)
}

// Test verifies the connection resolves and carries a write key.
func (s *Service) Test(ctx context.Context) error {
	return s.hook.Test(ctx)
}

// Ingest runs one raw event through the transform pipeline and queues it
// for delivery. It reports whether the event was accepted; events dropped
// by a transform return false with no error. When the delivery queue is
// saturated the event goes straight to the spool and counts as accepted.
func (s *Service) Ingest(ctx context.Context, raw map[string]any) (bool, error) {
	s.stats.received.Add(1)
	defer s.notify.Broadcast()

	out, kept, err := s.applyTransforms(raw)
	if err != nil {
		return false, err
	}
	if !kept {
		s.stats.dropped.Add(1)
		s.log.Debug("event dropped by transform", slog.Any("event", raw["event"]))
		return false, nil
	}

	msg, id, err := mapEvent(out)
	if err != nil {
		return false, err
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return false, fmt.Errorf("failed to encode event: %w", err)
	}

	s.trackInflight(id, encoded)
	if err := s.hook.Enqueue(ctx, msg); err != nil {
		s.takeInflight(id)
		if errors.Is(err, phclient.ErrQueueFull) {
			s.spoolRaw(encoded, err)
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// IngestBatch ingests events in order. It stops at the first event that
// fails and reports how many were accepted and dropped before it.
func (s *Service) IngestBatch(ctx context.Context, events []map[string]any) (accepted, dropped int, err error) {
	for i, raw := range events {
		ok, err := s.Ingest(ctx, raw)
		if err != nil {
			return accepted, dropped, fmt.Errorf("event %d: %w", i, err)
		}
		if ok {
			accepted++
		} else {
			dropped++
		}
	}
	return accepted, dropped, nil
}

// Flush pushes everything queued so far to PostHog and waits for the
// outcomes. Delivery failures do not fail the flush, they land in the
// spool for replay.
func (s *Service) Flush(ctx context.Context) error {
	client, err := s.hook.Conn(ctx)
	if err != nil {
		return err
	}
	return client.Flush()
}

// ReloadTransforms reloads the pipeline from the transforms directory.
// The running pipeline stays in place when loading fails.
func (s *Service) ReloadTransforms() error {
	if s.dir == "" {
		return nil
	}
	p, err := transform.Load(s.dir, s.log)
	if err != nil {
		return err
	}
	s.pipeMu.Lock()
	s.pipeline = p
	s.pipeMu.Unlock()
	s.log.Info("transforms reloaded", slog.Int("count", p.Len()))
	s.notify.Broadcast()
	return nil
}

// ReplaySpool redelivers pending spool batches through a dedicated
// client. Batches go one at a time so each flush outcome lands on the
// batch that caused it.
func (s *Service) ReplaySpool(ctx context.Context, opts spool.ReplayOptions) (*spool.ReplayResult, error) {
	if s.spool == nil {
		return &spool.ReplayResult{}, nil
	}
	obs := &replayObserver{}
	hook := phprovider.NewHook(provider.HookConfig{
		ConnID:   s.connID,
		Resolver: s.resolver,
		Logger:   s.log,
	}, phprovider.WithCallback(obs))
	client, err := hook.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := hook.Close(); err != nil {
			s.log.Warn("failed to close replay client", slog.Any("error", err))
		}
	}()

	opts.Workers = 1
	result, err := s.spool.Replay(ctx, &replayDeliverer{client: client, obs: obs}, opts)
	if result != nil && result.Replayed > 0 {
		s.stats.replayed.Add(int64(result.Replayed))
	}
	s.notify.Broadcast()
	return result, err
}

// Close flushes the client and releases the notifier. The spool store is
// owned by the caller and stays open.
func (s *Service) Close() error {
	err := s.hook.Close()
	s.notify.Close()
	return err
}

func (s *Service) applyTransforms(raw map[string]any) (map[string]any, bool, error) {
	s.pipeMu.RLock()
	p := s.pipeline
	s.pipeMu.RUnlock()
	out, kept, err := p.Apply(raw)
	if err != nil {
		return nil, false, fmt.Errorf("transform failed: %w", err)
	}
	return out, kept, nil
}

func (s *Service) trackInflight(id string, raw json.RawMessage) {
	s.inflightMu.Lock()
	s.inflight[id] = raw
	s.inflightMu.Unlock()
}

func (s *Service) takeInflight(id string) (json.RawMessage, bool) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	raw, ok := s.inflight[id]
	if ok {
		delete(s.inflight, id)
	}
	return raw, ok
}

// spoolRaw parks one event in the spool as a single event batch.
func (s *Service) spoolRaw(raw json.RawMessage, cause error) {
	if s.spool == nil {
		return
	}
	payload, err := json.Marshal(spoolEnvelope{Batch: []json.RawMessage{raw}})
	if err != nil {
		s.log.Error("failed to encode spool payload", slog.Any("error", err))
		return
	}
	if _, err := s.spool.Enqueue(context.Background(), s.connID, payload, 1, cause); err != nil {
		s.log.Error("failed to spool event", slog.Any("error", err))
		return
	}
	s.stats.spooled.Add(1)
}

// spoolEnvelope matches the wire shape of a PostHog batch request so
// spooled payloads stay readable by the archive exporter.
type spoolEnvelope struct {
	Batch []json.RawMessage `json:"batch"`
}

// deliveryObserver feeds client callback outcomes back into the relay.
type deliveryObserver struct {
	s *Service
}

func (o *deliveryObserver) Success(msg phclient.Message) {
	o.s.takeInflight(messageID(msg))
	o.s.stats.delivered.Add(1)
	o.s.notify.Broadcast()
}

func (o *deliveryObserver) Failure(msg phclient.Message, err error) {
	o.s.stats.failed.Add(1)
	if raw, ok := o.s.takeInflight(messageID(msg)); ok {
		o.s.spoolRaw(raw, err)
	}
	o.s.notify.Broadcast()
}

// replayObserver collects the first delivery failure since the last take.
type replayObserver struct {
	mu  sync.Mutex
	err error
}

func (o *replayObserver) Success(phclient.Message) {}

func (o *replayObserver) Failure(_ phclient.Message, err error) {
	o.mu.Lock()
	if o.err == nil {
		o.err = err
	}
	o.mu.Unlock()
}

func (o *replayObserver) take() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.err
	o.err = nil
	return err
}

// replayDeliverer feeds spooled batches back through a PostHog client.
type replayDeliverer struct {
	client phclient.Client
	obs    *replayObserver
}

func (d *replayDeliverer) Deliver(_ context.Context, b *spool.Batch) error {
	var env struct {
		Batch []map[string]any `json:"batch"`
	}
	if err := json.Unmarshal(b.Payload, &env); err != nil {
		return fmt.Errorf("batch payload is not a batch envelope: %w", err)
	}
	for i, raw := range env.Batch {
		msg, _, err := mapEvent(raw)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if err := d.client.Enqueue(msg); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	if err := d.client.Flush(); err != nil {
		return err
	}
	return d.obs.take()
}

// mapEvent turns a raw capture payload into the typed message for its
// event name. The event keeps its uuid so redeliveries deduplicate; one
// is stamped in when missing.
func mapEvent(raw map[string]any) (phclient.Message, string, error) {
	name, _ := raw["event"].(string)
	distinctID, _ := raw["distinct_id"].(string)
	props, _ := raw["properties"].(map[string]any)

	id, _ := raw["uuid"].(string)
	if id == "" {
		id = uuid.New().String()
		raw["uuid"] = id
	}

	var ts time.Time
	if v, ok := raw["timestamp"].(string); ok && v != "" {
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, "", fmt.Errorf("event %q has an invalid timestamp: %w", name, err)
		}
		ts = parsed
	}

	switch name {
	case "$identify":
		return phclient.Identify{
			DistinctID: distinctID,
			Properties: subMap(props, "$set"),
			Timestamp:  ts,
			MessageID:  id,
		}, id, nil
	case "$create_alias":
		return phclient.Alias{
			DistinctID: stringProp(props, "distinct_id"),
			Alias:      stringProp(props, "alias"),
			Timestamp:  ts,
			MessageID:  id,
		}, id, nil
	case "$groupidentify":
		return phclient.GroupIdentify{
			Type:       stringProp(props, "$group_type"),
			Key:        stringProp(props, "$group_key"),
			Properties: subMap(props, "$group_set"),
			Timestamp:  ts,
			MessageID:  id,
		}, id, nil
	default:
		return phclient.Capture{
			DistinctID: distinctID,
			Event:      name,
			Properties: phclient.Properties(props),
			Timestamp:  ts,
			MessageID:  id,
		}, id, nil
	}
}

func messageID(msg phclient.Message) string {
	switch m := msg.(type) {
	case phclient.Capture:
		return m.MessageID
	case phclient.Identify:
		return m.MessageID
	case phclient.Alias:
		return m.MessageID
	case phclient.GroupIdentify:
		return m.MessageID
	case phclient.Page:
		return m.MessageID
	default:
		return ""
	}
}

func subMap(props map[string]any, key string) phclient.Properties {
	if props == nil {
		return nil
	}
	if m, ok := props[key].(map[string]any); ok {
		return phclient.Properties(m)
	}
	return nil
}

func stringProp(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	v, _ := props[key].(string)
	return v
}
