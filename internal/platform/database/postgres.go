package database

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is a type alias for pgxpool.Pool for use in other packages.
type Pool = pgxpool.Pool

// StatementTimeout bounds every query so a slow list cannot outlive the
// HTTP write deadline.
const StatementTimeout = 25 * time.Second

// Connect opens a pool and verifies it with a ping. Every connection
// carries the application name and StatementTimeout unless the URL
// already sets them.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	params := config.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = "opsboard"
	}
	if params["statement_timeout"] == "" {
		params["statement_timeout"] = fmt.Sprint(StatementTimeout.Milliseconds())
	}
	config.HealthCheckPeriod = 30 * time.Second

	if maxConns > 0 && maxConns <= math.MaxInt32 {
		config.MaxConns = int32(maxConns) // #nosec G115 -- bounds checked above
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
