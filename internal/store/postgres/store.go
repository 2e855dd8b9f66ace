// Package postgres persists zones, records, DNSSEC keys, and audit events
// to PostgreSQL, giving internal/zoneauth and internal/dnssign a durable
// backing store instead of the in-memory defaults they otherwise run with.
// Grounded on the teacher's internal/adapters/repository/postgres.go, which
// wraps a plain *sql.DB opened against the pgx stdlib driver rather than a
// pgxpool — kept here for the same reason: database/sql's connection pool
// tuning (SetMaxOpenConns et al.) already covers what the teacher needed,
// and pgx/v5 is still the driver underneath.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store wraps a *sql.DB opened with the pgx driver. Every method is a thin
// query/scan pair, mirroring the teacher's PostgresRepository shape.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB. Callers are expected to have set
// pool limits and called Ping themselves (see cmd's startup sequence),
// matching the teacher's main.go rather than hiding pool configuration
// inside the repository.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a new pgx-backed connection pool against dsn. Exists for
// callers (tests, small tools) that don't need cmd's fuller startup
// sequence of pool tuning and a startup ping.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return New(db), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying pool for callers that need db.Stats() (the
// periodic metrics.DBConnectionsActive updater in cmd's startup sequence)
// without duplicating connection-pool ownership.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies schemaSQL. It is idempotent (every statement is
// CREATE ... IF NOT EXISTS) so it can run unconditionally at startup, the
// way the teacher's integration test applies schema.sql before each run.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// schemaSQL is the table layout records.go, zones.go, keys.go, and audit.go
// query against. dns_records.content stores an RR-type-specific encoded
// string the same way the teacher's dns_records.content column does,
// rather than one column per possible rdata field.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS dns_zones (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	zone_type   TEXT NOT NULL DEFAULT 'primary',
	axfr_policy TEXT NOT NULL DEFAULT 'deny',
	serial      BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS dns_zones_name_idx ON dns_zones (LOWER(name));

CREATE TABLE IF NOT EXISTS dns_records (
	id         TEXT PRIMARY KEY,
	zone_id    TEXT NOT NULL REFERENCES dns_zones(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	class      SMALLINT NOT NULL DEFAULT 1,
	ttl        INTEGER NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS dns_records_zone_idx ON dns_records (zone_id);
CREATE INDEX IF NOT EXISTS dns_records_lookup_idx ON dns_records (LOWER(name), type);

CREATE TABLE IF NOT EXISTS dnssec_keys (
	id          TEXT PRIMARY KEY,
	zone_id     TEXT NOT NULL REFERENCES dns_zones(id) ON DELETE CASCADE,
	key_type    TEXT NOT NULL,
	algorithm   SMALLINT NOT NULL,
	private_key BYTEA NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT true,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS dnssec_keys_zone_idx ON dnssec_keys (zone_id);

CREATE TABLE IF NOT EXISTS audit_logs (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	details       TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_logs_tenant_idx ON audit_logs (tenant_id);
`
