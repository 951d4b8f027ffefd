// Package spool is the durable buffer between the relay and PostHog.
// Batches that could not be delivered are written here and replayed
// later, so events survive process restarts and ingestion outages.
package spool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Batch status values.
const (
	StatusPending  = "pending"
	StatusReplayed = "replayed"
	StatusDead     = "dead"
)

// DefaultMaxAttempts is how often a batch is replayed before it is
// marked dead.
const DefaultMaxAttempts = 5

// ErrNotFound is returned when a batch id does not exist.
var ErrNotFound = errors.New("batch not found")

// Batch is one spooled delivery.
type Batch struct {
	ID         string    `json:"id"`
	ConnID     string    `json:"conn_id"`
	Payload    []byte    `json:"payload"`
	EventCount int       `json:"event_count"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Stats summarizes the spool by status.
type Stats struct {
	Pending       int `json:"pending"`
	Replayed      int `json:"replayed"`
	Dead          int `json:"dead"`
	PendingEvents int `json:"pending_events"`
	TotalEvents   int `json:"total_events"`
}

// Store keeps spooled batches in SQLite.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// Open opens (and migrates) the spool database at path. Use ":memory:"
// for an in-memory spool.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool database: %w", err)
	}
	if path == ":memory:" {
		// A pooled second connection would see a fresh empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping spool database: %w", err)
	}

	s := &Store{db: db, path: path, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the spool database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file the store was opened on.
func (s *Store) Path() string { return s.path }

// Enqueue spools a failed batch for later replay.
func (s *Store) Enqueue(ctx context.Context, connID string, payload []byte, eventCount int, deliveryErr error) (*Batch, error) {
	if s.db == nil {
		return nil, fmt.Errorf("spool not opened")
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("payload must not be empty")
	}

	now := time.Now().UTC()
	b := &Batch{
		ID:         uuid.New().String(),
		ConnID:     connID,
		Payload:    payload,
		EventCount: eventCount,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if deliveryErr != nil {
		b.Error = deliveryErr.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spooled_batches (id, conn_id, payload, event_count, error, attempts, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		b.ID, b.ConnID, b.Payload, b.EventCount, b.Error, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue batch: %w", err)
	}

	s.log.Debug("batch spooled",
		slog.String("id", b.ID),
		slog.String("conn_id", connID),
		slog.Int("events", eventCount))
	return b, nil
}

// Get retrieves a batch by id.
func (s *Store) Get(ctx context.Context, id string) (*Batch, error) {
	if s.db == nil {
		return nil, fmt.Errorf("spool not opened")
	}

	b := &Batch{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conn_id, payload, event_count, error, attempts, status, created_at, updated_at
		 FROM spooled_batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.ConnID, &b.Payload, &b.EventCount, &b.Error, &b.Attempts, &b.Status, &b.CreatedAt, &b.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

// ListPending returns pending batches oldest first, up to limit.
// A limit of 0 returns all of them.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*Batch, error) {
	return s.list(ctx, StatusPending, limit)
}

// ListAll returns every batch oldest first, whatever its status.
func (s *Store) ListAll(ctx context.Context) ([]*Batch, error) {
	return s.list(ctx, "", 0)
}

func (s *Store) list(ctx context.Context, status string, limit int) ([]*Batch, error) {
	if s.db == nil {
		return nil, fmt.Errorf("spool not opened")
	}

	query := `SELECT id, conn_id, payload, event_count, error, attempts, status, created_at, updated_at
		 FROM spooled_batches`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b := &Batch{}
		if err := rows.Scan(&b.ID, &b.ConnID, &b.Payload, &b.EventCount, &b.Error, &b.Attempts,
			&b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

// MarkReplayed marks a pending batch as successfully replayed.
func (s *Store) MarkReplayed(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusReplayed, "")
}

// MarkDead marks a batch as dead; it will not be replayed again.
func (s *Store) MarkDead(ctx context.Context, id string, reason string) error {
	return s.setStatus(ctx, id, StatusDead, reason)
}

func (s *Store) setStatus(ctx context.Context, id, status, reason string) error {
	if s.db == nil {
		return fmt.Errorf("spool not opened")
	}

	query := `UPDATE spooled_batches SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{status, time.Now().UTC(), id}
	if reason != "" {
		query = `UPDATE spooled_batches SET status = ?, error = ?, updated_at = ? WHERE id = ?`
		args = []any{status, reason, time.Now().UTC(), id}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark batch %s: %w", status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark batch %s: %w", status, err)
	}
	if affected == 0 {
		return fmt.Errorf("batch %q: %w", id, ErrNotFound)
	}
	return nil
}

// RecordFailure bumps the attempt counter after a failed replay and
// returns the new count.
func (s *Store) RecordFailure(ctx context.Context, id string, deliveryErr error) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("spool not opened")
	}

	msg := ""
	if deliveryErr != nil {
		msg = deliveryErr.Error()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE spooled_batches SET attempts = attempts + 1, error = ?, updated_at = ? WHERE id = ?`,
		msg, time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to record failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to record failure: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("batch %q: %w", id, ErrNotFound)
	}

	var attempts int
	err = s.db.QueryRowContext(ctx,
		`SELECT attempts FROM spooled_batches WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to record failure: %w", err)
	}
	return attempts, nil
}

// Stats counts batches and events by status.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	if s.db == nil {
		return nil, fmt.Errorf("spool not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(event_count), 0)
		 FROM spooled_batches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var status string
		var batches, events int
		if err := rows.Scan(&status, &batches, &events); err != nil {
			return nil, fmt.Errorf("failed to scan spool stats: %w", err)
		}
		stats.TotalEvents += events
		switch status {
		case StatusPending:
			stats.Pending = batches
			stats.PendingEvents = events
		case StatusReplayed:
			stats.Replayed = batches
		case StatusDead:
			stats.Dead = batches
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spool stats: %w", err)
	}
	return stats, nil
}

// Purge deletes replayed and dead batches older than the cutoff and
// returns how many were removed. Pending batches are never purged.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("spool not opened")
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM spooled_batches WHERE status != ? AND updated_at < ?`,
		StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge spool: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge spool: %w", err)
	}

	if affected > 0 {
		s.log.Debug("spool purged", slog.Int64("batches", affected))
	}
	return int(affected), nil
}
