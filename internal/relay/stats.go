package relay

import "sync/atomic"

// Stats counts events as they move through the relay. All counters are
// safe for concurrent use.
type Stats struct {
	received  atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	spooled   atomic.Int64
	replayed  atomic.Int64
}

// StatsSnapshot is a point in time copy of the relay counters.
type StatsSnapshot struct {
	Received  int64 `json:"received"`
	Dropped   int64 `json:"dropped"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Spooled   int64 `json:"spooled"`
	Replayed  int64 `json:"replayed"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:  s.received.Load(),
		Dropped:   s.dropped.Load(),
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Spooled:   s.spooled.Load(),
		Replayed:  s.replayed.Load(),
	}
}
