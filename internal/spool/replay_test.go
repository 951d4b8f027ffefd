package spool

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// stubDeliverer fails the batch ids listed in fail, succeeds otherwise.
type stubDeliverer struct {
	mu        sync.Mutex
	fail      map[string]error
	delivered []string
}

func (d *stubDeliverer) Deliver(_ context.Context, b *Batch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.fail[b.ID]; ok {
		return err
	}
	d.delivered = append(d.delivered, b.ID)
	return nil
}

func TestReplay_MarksReplayed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := mustEnqueue(t, s, "ph", `{"batch":[1]}`, 3)
	b := mustEnqueue(t, s, "ph", `{"batch":[2]}`, 2)

	d := &stubDeliverer{}
	result, err := s.Replay(ctx, d, ReplayOptions{})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if result.Replayed != 2 {
		t.Errorf("expected 2 replayed, got %d", result.Replayed)
	}
	if result.Events != 5 {
		t.Errorf("expected 5 events, got %d", result.Events)
	}
	if result.Failed != 0 || result.Dead != 0 {
		t.Errorf("expected clean pass, got failed=%d dead=%d", result.Failed, result.Dead)
	}

	for _, id := range []string{a.ID, b.ID} {
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("failed to get batch: %v", err)
		}
		if got.Status != StatusReplayed {
			t.Errorf("batch %s: expected replayed, got %q", id, got.Status)
		}
	}
}

func TestReplay_FailureStaysPending(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	b := mustEnqueue(t, s, "ph", `{"batch":[]}`, 1)

	d := &stubDeliverer{fail: map[string]error{b.ID: errors.New("posthog unavailable")}}
	result, err := s.Replay(ctx, d, ReplayOptions{})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if result.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", result.Failed)
	}
	if result.Dead != 0 {
		t.Errorf("expected 0 dead, got %d", result.Dead)
	}

	got, err := s.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("failed to get batch: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("expected pending after first failure, got %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}
	if got.Error != "posthog unavailable" {
		t.Errorf("expected delivery error recorded, got %q", got.Error)
	}
}

func TestReplay_DeadAfterMaxAttempts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	b := mustEnqueue(t, s, "ph", `{"batch":[]}`, 1)
	d := &stubDeliverer{fail: map[string]error{b.ID: errors.New("broken payload")}}

	opts := ReplayOptions{MaxAttempts: 3}
	for i := 0; i < 2; i++ {
		if _, err := s.Replay(ctx, d, opts); err != nil {
			t.Fatalf("replay pass %d failed: %v", i, err)
		}
	}

	result, err := s.Replay(ctx, d, opts)
	if err != nil {
		t.Fatalf("final replay failed: %v", err)
	}
	if result.Dead != 1 {
		t.Errorf("expected 1 dead, got %d", result.Dead)
	}

	got, err := s.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("failed to get batch: %v", err)
	}
	if got.Status != StatusDead {
		t.Errorf("expected dead after 3 attempts, got %q", got.Status)
	}
	if got.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", got.Attempts)
	}

	// Dead batches are not picked up again.
	after, err := s.Replay(ctx, d, opts)
	if err != nil {
		t.Fatalf("replay after dead failed: %v", err)
	}
	if after.Failed != 0 {
		t.Errorf("dead batch should not be retried, got %d failures", after.Failed)
	}
}

func TestReplay_MixedOutcome(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	good := mustEnqueue(t, s, "ph", `{"batch":[1]}`, 4)
	bad := mustEnqueue(t, s, "ph", `{"batch":[2]}`, 1)

	d := &stubDeliverer{fail: map[string]error{bad.ID: errors.New("rejected")}}
	result, err := s.Replay(ctx, d, ReplayOptions{Workers: 4})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if result.Replayed != 1 || result.Failed != 1 {
		t.Errorf("expected 1 replayed and 1 failed, got %+v", result)
	}
	if result.Events != 4 {
		t.Errorf("expected 4 replayed events, got %d", result.Events)
	}

	if len(d.delivered) != 1 || d.delivered[0] != good.ID {
		t.Errorf("expected only the good batch delivered, got %v", d.delivered)
	}
}

func TestReplay_Limit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustEnqueue(t, s, "ph", `{"batch":[]}`, 1)
	}

	d := &stubDeliverer{}
	result, err := s.Replay(ctx, d, ReplayOptions{Limit: 2})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if result.Replayed != 2 {
		t.Errorf("expected 2 replayed with limit, got %d", result.Replayed)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	if stats.Pending != 1 {
		t.Errorf("expected 1 still pending, got %d", stats.Pending)
	}
}

func TestReplay_NotOpened(t *testing.T) {
	s := &Store{}
	if _, err := s.Replay(context.Background(), &stubDeliverer{}, ReplayOptions{}); err == nil {
		t.Error("expected error from unopened store")
	}
}
