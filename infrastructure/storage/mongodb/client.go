// Package mongodb provides MongoDB-backed robot state and run history
// stores. Runs, steps and the state record live in one database so several
// processes can share a cell's history.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Errors
var (
	ErrConnectionFailed = errors.New("mongodb: connection failed")
	ErrOperationTimeout = errors.New("mongodb: operation timeout")
)

// Config holds MongoDB connection configuration.
type Config struct {
	// URI is the mongodb:// connection string.
	URI string

	// Database holds the robotflow collections.
	Database string

	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Database:       "robotflow",
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   5 * time.Second,
	}
}

// Option configures the client.
type Option func(*Config)

// WithURI sets the connection string.
func WithURI(uri string) Option {
	return func(c *Config) {
		c.URI = uri
	}
}

// WithDatabase sets the database name.
func WithDatabase(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.Database = name
		}
	}
}

// Client is a connected database handle shared by the stores.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	config Config
}

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URI == "" {
		return nil, errors.Join(ErrConnectionFailed, errors.New("uri is required"))
	}

	mc, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := mc.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.WithoutCancel(ctx))
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return &Client{client: mc, db: mc.Database(cfg.Database), config: cfg}, nil
}

// Collection returns a collection of the configured database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *Client) queryTimeout() time.Duration {
	if c == nil || c.config.QueryTimeout <= 0 {
		return DefaultConfig().QueryTimeout
	}
	return c.config.QueryTimeout
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
