// Package archive exports spool contents to a DuckDB file so spooled
// traffic can be inspected with plain SQL.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS spool_batches (
	batch_id    VARCHAR PRIMARY KEY,
	conn_id     VARCHAR,
	status      VARCHAR,
	event_count INTEGER,
	error       VARCHAR,
	attempts    INTEGER,
	created_at  TIMESTAMP,
	updated_at  TIMESTAMP
);
CREATE TABLE IF NOT EXISTS spool_events (
	batch_id    VARCHAR,
	seq         INTEGER,
	event       VARCHAR,
	distinct_id VARCHAR,
	event_time  VARCHAR,
	event_uuid  VARCHAR,
	properties  VARCHAR
);
`

// ExportResult reports what an export pass wrote.
type ExportResult struct {
	Batches int `json:"batches"`
	Events  int `json:"events"`
	Skipped int `json:"skipped"`
}

// Exporter writes spooled batches into a DuckDB archive.
type Exporter struct {
	store *spool.Store
	log   *slog.Logger
}

// NewExporter builds an exporter over the spool store.
func NewExporter(store *spool.Store, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Exporter{store: store, log: log}
}

// Export writes every spooled batch and its events to the DuckDB file
// at path. Re-running is idempotent: batches already archived are
// skipped.
func (e *Exporter) Export(ctx context.Context, path string) (*ExportResult, error) {
	batches, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping archive: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	archived, err := archivedIDs(ctx, db)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{}
	for _, b := range batches {
		if archived[b.ID] {
			result.Skipped++
			continue
		}
		events, err := e.writeBatch(ctx, db, b)
		if err != nil {
			return nil, err
		}
		result.Batches++
		result.Events += events
	}

	e.log.Debug("spool archived",
		slog.String("path", path),
		slog.Int("batches", result.Batches),
		slog.Int("events", result.Events),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

func archivedIDs(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT batch_id FROM spool_batches`)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan archived batch id: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archived batches: %w", err)
	}
	return ids, nil
}

// envelope is the wire shape of a spooled payload.
type envelope struct {
	Batch []archiveEvent `json:"batch"`
}

type archiveEvent struct {
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Timestamp  string         `json:"timestamp"`
	UUID       string         `json:"uuid"`
	Properties map[string]any `json:"properties"`
}

func (e *Exporter) writeBatch(ctx context.Context, db *sql.DB, b *spool.Batch) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO spool_batches (batch_id, conn_id, status, event_count, error, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ConnID, b.Status, b.EventCount, b.Error, b.Attempts, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to archive batch %s: %w", b.ID, err)
	}

	var env envelope
	if err := json.Unmarshal(b.Payload, &env); err != nil {
		// Unparseable payloads still archive their batch row.
		e.log.Warn("batch payload is not a batch envelope",
			slog.String("id", b.ID),
			slog.String("error", err.Error()))
		return 0, tx.Commit()
	}

	for i, ev := range env.Batch {
		props := ""
		if ev.Properties != nil {
			raw, err := json.Marshal(ev.Properties)
			if err != nil {
				return 0, fmt.Errorf("failed to encode event properties: %w", err)
			}
			props = string(raw)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO spool_events (batch_id, seq, event, distinct_id, event_time, event_uuid, properties)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, i, ev.Event, ev.DistinctID, ev.Timestamp, ev.UUID, props)
		if err != nil {
			return 0, fmt.Errorf("failed to archive event %d of batch %s: %w", i, b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	return len(env.Batch), nil
}
