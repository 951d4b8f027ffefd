package spool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Deliverer sends a spooled payload back to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, b *Batch) error
}

// DeliverFunc adapts a function to the Deliverer interface.
type DeliverFunc func(ctx context.Context, b *Batch) error

func (f DeliverFunc) Deliver(ctx context.Context, b *Batch) error { return f(ctx, b) }

// ReplayOptions tune a replay pass.
type ReplayOptions struct {
	// MaxAttempts marks a batch dead after this many failed replays.
	// Zero means DefaultMaxAttempts.
	MaxAttempts int

	// Workers bounds concurrent deliveries. Zero means one.
	Workers int

	// Limit caps how many batches this pass takes. Zero means all.
	Limit int
}

// ReplayResult reports what a replay pass did.
type ReplayResult struct {
	Replayed int `json:"replayed"`
	Failed   int `json:"failed"`
	Dead     int `json:"dead"`
	Events   int `json:"events"`
}

// Replay drains pending batches through d. Delivery failures bump the
// attempt counter and leave the batch pending until MaxAttempts is
// reached, then it goes dead. Store errors abort the pass.
func (s *Store) Replay(ctx context.Context, d Deliverer, opts ReplayOptions) (*ReplayResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("spool not opened")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	batches, err := s.ListPending(ctx, opts.Limit)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	result := &ReplayResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, b := range batches {
		g.Go(func() error {
			deliveryErr := d.Deliver(gctx, b)
			if deliveryErr == nil {
				if err := s.MarkReplayed(gctx, b.ID); err != nil {
					return err
				}
				s.log.Debug("batch replayed",
					slog.String("id", b.ID),
					slog.Int("events", b.EventCount))
				mu.Lock()
				result.Replayed++
				result.Events += b.EventCount
				mu.Unlock()
				return nil
			}

			attempts, err := s.RecordFailure(gctx, b.ID, deliveryErr)
			if err != nil {
				return err
			}
			s.log.Warn("batch replay failed",
				slog.String("id", b.ID),
				slog.Int("attempts", attempts),
				slog.String("error", deliveryErr.Error()))

			mu.Lock()
			result.Failed++
			mu.Unlock()

			if attempts >= opts.MaxAttempts {
				if err := s.MarkDead(gctx, b.ID, deliveryErr.Error()); err != nil {
					return err
				}
				mu.Lock()
				result.Dead++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}
