package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool used for snapshot rows.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Postgres archives snapshots as one row per hour slot, topics as jsonb.
type Postgres struct {
	pool  pgPool
	table string
}

// NewPostgres creates a Postgres-backed snapshot store using the provided config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "hot_snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{
		pool:  pool,
		table: table,
	}, nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily for testing).
func NewPostgresWithPool(pool pgPool, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "hot_snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Persist upserts the snapshot row. Re-settling the same slot replaces the
// stored topics, generated_at, and source, which is what the remote-wins
// override needs.
func (s *Postgres) Persist(ctx context.Context, snap *hotspot.Snapshot) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("snapshot store is not configured")
	}
	if err := snap.Validate(); err != nil {
		return err
	}
	topicsJSON, err := json.Marshal(snap.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	snapshot_date,
	snapshot_hour,
	generated_at,
	source,
	topics
) VALUES (
	$1,$2,$3,$4,$5
)
ON CONFLICT (snapshot_date, snapshot_hour) DO UPDATE SET
	generated_at = EXCLUDED.generated_at,
	source = EXCLUDED.source,
	topics = EXCLUDED.topics`, s.table)

	args := []any{
		snap.Date,
		snap.Hour,
		snap.GeneratedAt,
		string(snap.Source),
		topicsJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return &StorageError{Path: fmt.Sprintf("%s/%s %02d", s.table, snap.Date, snap.Hour), Err: err}
	}
	return nil
}

// Load reads the archived snapshot for one hour slot. Absent slots return
// hotspot.ErrNotArchived.
func (s *Postgres) Load(ctx context.Context, date string, hour int) (*hotspot.Snapshot, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("snapshot store is not configured")
	}
	if err := validateSlot(date, hour); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT generated_at, source, topics
FROM %s
WHERE snapshot_date = $1 AND snapshot_hour = $2`, s.table)

	var (
		generatedAt time.Time
		source      string
		topicsJSON  []byte
	)
	err := s.pool.QueryRow(ctx, query, date, hour).Scan(&generatedAt, &source, &topicsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, hotspot.ErrNotArchived
		}
		return nil, &StorageError{Path: fmt.Sprintf("%s/%s %02d", s.table, date, hour), Err: err}
	}
	snap := &hotspot.Snapshot{
		Date:        date,
		Hour:        hour,
		GeneratedAt: generatedAt,
		Source:      hotspot.Origin(source),
	}
	if err := json.Unmarshal(topicsJSON, &snap.Topics); err != nil {
		return nil, &StorageError{Path: fmt.Sprintf("%s/%s %02d", s.table, date, hour), Err: err}
	}
	return snap, nil
}
