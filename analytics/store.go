package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonwraymond/realmgate/resilience"
)

// RegionAggregate is one result row.
type RegionAggregate struct {
	Region      string  `json:"region" db:"region"`
	TotalSales  float64 `json:"total_sales" db:"total_sales"`
	OrdersCount int64   `json:"orders_count" db:"orders_count"`
}

// Store runs the aggregation.
type Store interface {
	TopRegions(ctx context.Context, q Query) ([]RegionAggregate, error)
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore reads the sales_data table.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// TopRegions runs the aggregation for q.
func (s *PostgresStore) TopRegions(ctx context.Context, q Query) ([]RegionAggregate, error) {
	sql, args := BuildTopRegionsSQL(q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("analytics: query top regions: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[RegionAggregate])
	if err != nil {
		return nil, fmt.Errorf("analytics: scan top regions: %w", err)
	}
	return out, nil
}

// PoolConfig configures NewPool.
type PoolConfig struct {
	DSN string

	// MaxConns caps open connections. Default: 10
	MaxConns int32

	// Retry governs connection attempts at startup. Default: 5 attempts,
	// exponential backoff from 500ms.
	Retry *resilience.Retry

	// PingTimeout bounds each connectivity check. Default: 2 seconds
	PingTimeout time.Duration
}

// NewPool opens a pgx pool and waits until the database answers a ping.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("analytics: parse database url: %w", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 500 * time.Millisecond,
		})
	}
	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = 1
	pcfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	err = cfg.Retry.Execute(ctx, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: connect: %w", err)
	}
	return pool, nil
}

var _ Store = (*PostgresStore)(nil)
