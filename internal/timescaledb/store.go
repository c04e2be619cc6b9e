package timescaledb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"journalread/config"
	"journalread/internal/model"
)

// MetricStore persists metric events derived from journal records.
type MetricStore interface {
	StoreMetricEvents(ctx context.Context, events []model.MetricEvent) error
	Close()
}

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

const MetricEventsTable = "journal_metric_events"

var metricColumns = []string{"time", "metric_name", "unit", "tags"}

// Store writes metric events with COPY.
type Store struct {
	pool  Pool
	table string
}

// NewTimescaleMetricStore connects to TimescaleDB, makes sure the hypertable
// exists and closes the pool when the app stops.
func NewTimescaleMetricStore(lc fx.Lifecycle, cfg *config.Config) (MetricStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.TimescaleDB.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid TimescaleDB DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TimescaleDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping TimescaleDB: %w", err)
	}

	store := NewMetricStore(pool, MetricEventsTable)

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSetup()
	if err := store.EnsureSchema(setupCtx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Str("table", MetricEventsTable).Msg("TimescaleDB metric store ready")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			store.Close()
			return nil
		},
	})
	return store, nil
}

// NewMetricStore wraps an existing pool. Call EnsureSchema before the first
// write when the table may not exist yet.
func NewMetricStore(pool Pool, table string) *Store {
	return &Store{pool: pool, table: table}
}

// SchemaStatements returns the DDL for the metric table and its indexes.
func SchemaStatements(table string) (createTable, createHypertable string, indexes []string) {
	createTable = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	time TIMESTAMPTZ NOT NULL,
	metric_name TEXT NOT NULL,
	unit TEXT NOT NULL,
	tags JSONB
)`, table)
	createHypertable = fmt.Sprintf(
		"SELECT create_hypertable('%s', 'time', if_not_exists => TRUE, chunk_time_interval => INTERVAL '1 day')", table)
	indexes = []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_name_unit_time ON %s (metric_name, unit, time DESC)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_tags ON %s USING GIN (tags)", table, table),
	}
	return createTable, createHypertable, indexes
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	createTable, createHypertable, indexes := SchemaStatements(s.table)

	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}

	var isHypertable bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM timescaledb_information.hypertables WHERE hypertable_name = $1)",
		s.table).Scan(&isHypertable)
	if err != nil {
		log.Warn().Err(err).Msg("Could not query hypertable catalog, assuming plain table")
	}

	if !isHypertable {
		if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
			log.Warn().Err(err).Msg("Failed to ensure timescaledb extension")
		}
		if _, err := s.pool.Exec(ctx, createHypertable); err != nil && !strings.Contains(err.Error(), "already a hypertable") {
			return fmt.Errorf("failed to create hypertable %s: %w", s.table, err)
		}
	}

	for _, stmt := range indexes {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			log.Warn().Err(err).Str("table", s.table).Msg("Failed to create index on metric table")
		}
	}
	return nil
}

// MetricRows converts events into CopyFrom rows in metricColumns order.
func MetricRows(events []model.MetricEvent) ([][]any, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		tags, err := json.Marshal(e.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags of %s: %w", e.MetricName, err)
		}
		rows = append(rows, []any{e.Time.UTC(), e.MetricName, e.Unit, tags})
	}
	return rows, nil
}

func (s *Store) StoreMetricEvents(ctx context.Context, events []model.MetricEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows, err := MetricRows(events)
	if err != nil {
		return err
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, metricColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("timescaledb copy into %s: %w", s.table, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("timescaledb copy into %s: wrote %d of %d rows", s.table, n, len(rows))
	}
	log.Debug().Int64("count", n).Msg("Inserted metric events")
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}
