package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// Metastore keeps connections in a relational database: sqlite for
// single-machine setups, postgres for shared ones.
type Metastore struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

// DriverFor picks the database/sql driver from the DSN shape.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return ":memory:"
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

// OpenMetastore opens (and migrates) the metastore behind dsn. Plain
// paths and ":memory:" open sqlite; postgres:// DSNs open postgres.
func OpenMetastore(dsn string, log *slog.Logger) (*Metastore, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	driver := DriverFor(dsn)
	memory := dsn == ":memory:"
	if driver == "sqlite" {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open metastore: %w", err)
	}
	if memory {
		// A pooled second connection would see a fresh empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping metastore: %w", err)
	}

	m := &Metastore{db: db, driver: driver, log: log}
	if err := m.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// NewMetastoreWithDB wraps an existing database handle. Used by tests.
func NewMetastoreWithDB(db *sql.DB, driver string, log *slog.Logger) *Metastore {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Metastore{db: db, driver: driver, log: log}
}

func (m *Metastore) Name() string { return "metastore" }

// Close closes the underlying database.
func (m *Metastore) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders into the $n form postgres expects.
func (m *Metastore) rebind(query string) string {
	if m.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Resolve implements provider.ConnectionResolver.
func (m *Metastore) Resolve(ctx context.Context, id string) (*provider.Connection, error) {
	return m.Get(ctx, id)
}

// Get retrieves a connection by id.
func (m *Metastore) Get(ctx context.Context, id string) (*provider.Connection, error) {
	if m.db == nil {
		return nil, fmt.Errorf("metastore not opened")
	}

	conn := &provider.Connection{}
	err := m.db.QueryRowContext(ctx, m.rebind(
		`SELECT conn_id, conn_type, description, host, port, schema_name, login, password, extra
		 FROM connections WHERE conn_id = ?`), id,
	).Scan(&conn.ID, &conn.Type, &conn.Description, &conn.Host, &conn.Port,
		&conn.Schema, &conn.Login, &conn.Password, &conn.Extra)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &provider.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// List returns all stored connections ordered by id.
func (m *Metastore) List(ctx context.Context) ([]*provider.Connection, error) {
	if m.db == nil {
		return nil, fmt.Errorf("metastore not opened")
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT conn_id, conn_type, description, host, port, schema_name, login, password, extra
		 FROM connections ORDER BY conn_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*provider.Connection
	for rows.Next() {
		conn := &provider.Connection{}
		if err := rows.Scan(&conn.ID, &conn.Type, &conn.Description, &conn.Host, &conn.Port,
			&conn.Schema, &conn.Login, &conn.Password, &conn.Extra); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// Upsert inserts or replaces a connection.
func (m *Metastore) Upsert(ctx context.Context, conn *provider.Connection) error {
	if m.db == nil {
		return fmt.Errorf("metastore not opened")
	}
	if conn.ID == "" {
		return fmt.Errorf("connection id must not be empty")
	}
	if conn.Type == "" {
		return fmt.Errorf("connection %q needs a type", conn.ID)
	}

	_, err := m.db.ExecContext(ctx, m.rebind(
		`INSERT INTO connections (conn_id, conn_type, description, host, port, schema_name, login, password, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (conn_id) DO UPDATE SET
		   conn_type = excluded.conn_type,
		   description = excluded.description,
		   host = excluded.host,
		   port = excluded.port,
		   schema_name = excluded.schema_name,
		   login = excluded.login,
		   password = excluded.password,
		   extra = excluded.extra,
		   updated_at = CURRENT_TIMESTAMP`),
		conn.ID, conn.Type, conn.Description, conn.Host, conn.Port,
		conn.Schema, conn.Login, conn.Password, conn.Extra)
	if err != nil {
		return fmt.Errorf("failed to upsert connection %q: %w", conn.ID, err)
	}
	m.log.Debug("connection stored", "conn_id", conn.ID, "conn_type", conn.Type)
	return nil
}

// Delete removes a connection by id.
func (m *Metastore) Delete(ctx context.Context, id string) error {
	if m.db == nil {
		return fmt.Errorf("metastore not opened")
	}

	res, err := m.db.ExecContext(ctx, m.rebind(`DELETE FROM connections WHERE conn_id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete connection %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete connection %q: %w", id, err)
	}
	if affected == 0 {
		return &provider.NotFoundError{ID: id}
	}
	return nil
}
