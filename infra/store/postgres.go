// Package store persists the belief log in PostgreSQL. The table is keyed by
// (sensor, event start, source, belief time), matching the append-only
// contract; indexing strategy and migrations belong to the application layer.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridflex/flexcore/core/belief"
	"github.com/gridflex/flexcore/core/unit"
)

// Schema is the expected table layout. It is applied by tests and available
// to operators; the core does not run migrations.
const Schema = `CREATE TABLE IF NOT EXISTS beliefs (
    sensor_id              TEXT NOT NULL,
    event_start            TIMESTAMPTZ NOT NULL,
    resolution_s           BIGINT NOT NULL,
    belief_time            TIMESTAMPTZ NOT NULL,
    source                 TEXT NOT NULL,
    value                  DOUBLE PRECISION NOT NULL,
    unit                   TEXT NOT NULL,
    cumulative_probability DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    PRIMARY KEY (sensor_id, event_start, source, belief_time)
);`

const insertBeliefSQL = `INSERT INTO beliefs (
    sensor_id, event_start, resolution_s, belief_time, source, value, unit, cumulative_probability
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

const queryBeliefsSQL = `SELECT DISTINCT ON (event_start, source)
    sensor_id, event_start, resolution_s, belief_time, source, value, unit, cumulative_probability
FROM beliefs
WHERE sensor_id = $1
  AND event_start >= $2
  AND event_start < $3
  AND belief_time <= $4
  AND ($5::text[] IS NULL OR source = ANY($5))
ORDER BY event_start, source, belief_time DESC;`

// Config holds the connection settings.
type Config struct {
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
}

// PostgresStore implements belief.Store on a pgx connection pool. Readers
// never block behind writers: MVCC gives every query a consistent snapshot,
// and batch appends commit in one transaction so no query sees part of a
// schedule.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects a PostgresStore from runtime settings.
func New(ctx context.Context, cfg Config) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// NewWithPool wraps an existing pool, mainly for tests.
func NewWithPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) Record(ctx context.Context, b belief.Belief) error {
	return s.RecordAll(ctx, []belief.Belief{b})
}

func (s *PostgresStore) RecordAll(ctx context.Context, bs []belief.Belief) error {
	if len(bs) == 0 {
		return nil
	}
	for _, b := range bs {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, b := range bs {
		_, err := tx.Exec(ctx, insertBeliefSQL,
			b.SensorID,
			b.EventStart.UTC(),
			int64(b.Resolution/time.Second),
			b.BeliefTime.UTC(),
			b.Source,
			b.Value.Value,
			b.Value.Unit.Symbol,
			b.CP(),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: sensor=%s event=%s source=%s",
					belief.ErrDuplicateBelief, b.SensorID, b.EventStart.Format(time.RFC3339), b.Source)
			}
			return fmt.Errorf("insert belief: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, sensorID string, window belief.TimeWindow, asOf time.Time, sources []string) ([]belief.Belief, error) {
	var srcFilter []string
	if len(sources) > 0 {
		srcFilter = sources
	}
	rows, err := s.pool.Query(ctx, queryBeliefsSQL,
		sensorID, window.Start.UTC(), window.End.UTC(), asOf.UTC(), srcFilter)
	if err != nil {
		return nil, fmt.Errorf("query beliefs: %w", err)
	}
	defer rows.Close()

	var out []belief.Belief
	for rows.Next() {
		var (
			b           belief.Belief
			resolutionS int64
			value       float64
			unitSymbol  string
			cp          float64
		)
		if err := rows.Scan(&b.SensorID, &b.EventStart, &resolutionS, &b.BeliefTime,
			&b.Source, &value, &unitSymbol, &cp); err != nil {
			return nil, fmt.Errorf("scan belief: %w", err)
		}
		b.CumulativeProbability = belief.Probability(cp)
		u, err := unit.Parse(unitSymbol)
		if err != nil {
			return nil, fmt.Errorf("belief for %s: %w", b.SensorID, err)
		}
		b.Resolution = time.Duration(resolutionS) * time.Second
		b.Value = unit.Q(value, u)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Latest(ctx context.Context, sensorID string, window belief.TimeWindow) ([]belief.Belief, error) {
	return s.Query(ctx, sensorID, window, s.now(), nil)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }
