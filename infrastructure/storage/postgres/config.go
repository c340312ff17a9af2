// Package postgres provides PostgreSQL-backed robot state and run history
// stores for cells that share one database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the connection pool.
type Config struct {
	// DSN is a postgres URL or key/value connection string.
	DSN string

	// Schema holds the robotflow tables.
	Schema string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Schema:          "public",
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  10 * time.Second,
	}
}

// Option configures the connection pool.
type Option func(*Config)

// WithDSN sets the connection string.
func WithDSN(dsn string) Option {
	return func(c *Config) {
		c.DSN = dsn
	}
}

// WithSchema sets the schema.
func WithSchema(schema string) Option {
	return func(c *Config) {
		c.Schema = schema
	}
}

// Errors
var (
	ErrConnectionFailed = errors.New("postgres: connection failed")
	ErrMigrationFailed  = errors.New("postgres: migration failed")
	ErrOperationTimeout = errors.New("postgres: operation timeout")
)

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, cfg Config, opts ...Option) (*pgxpool.Pool, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, errors.Join(ErrConnectionFailed, errors.New("dsn is required"))
	}

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return pool, nil
}

func qualify(schema, table string) string {
	if schema == "" {
		schema = "public"
	}
	return fmt.Sprintf("%s.%s", schema, table)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrOperationTimeout, err)
	}
	return errors.Join(ErrConnectionFailed, err)
}
