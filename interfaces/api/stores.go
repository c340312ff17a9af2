package api

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/robotflow/domain/config"
	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/memory"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/sqlite"
)

func (rt *Runtime) openState(ctx context.Context, sc config.StoreConfig) (robot.StateStore, error) {
	switch sc.Backend {
	case config.BackendMemory, "":
		return memory.NewStateStore(), nil
	case config.BackendSQLite:
		s, err := sqlite.NewStateStore(sqlite.DefaultConfig(), sqliteOptions(sc)...)
		if err != nil {
			return nil, err
		}
		rt.onClose("sqlite state", closeFunc(s))
		return s, nil
	case config.BackendPostgres:
		pool, err := rt.pool(ctx, sc.DSN)
		if err != nil {
			return nil, err
		}
		s := postgres.NewStateStore(pool, "")
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMongo:
		client, err := rt.mongo(ctx, sc)
		if err != nil {
			return nil, err
		}
		s := mongodb.NewStateStore(client)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", sc.Backend)
	}
}

func (rt *Runtime) openHistory(ctx context.Context, sc config.StoreConfig) (history.Store, error) {
	switch sc.Backend {
	case config.BackendMemory, "":
		return memory.NewHistoryStore(), nil
	case config.BackendSQLite:
		s, err := sqlite.NewHistoryStore(sqlite.DefaultConfig(), sqliteOptions(sc)...)
		if err != nil {
			return nil, err
		}
		rt.onClose("sqlite history", closeFunc(s))
		return s, nil
	case config.BackendPostgres:
		pool, err := rt.pool(ctx, sc.DSN)
		if err != nil {
			return nil, err
		}
		s := postgres.NewHistoryStore(pool, "")
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMongo:
		client, err := rt.mongo(ctx, sc)
		if err != nil {
			return nil, err
		}
		s := mongodb.NewHistoryStore(client)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", sc.Backend)
	}
}

func sqliteOptions(sc config.StoreConfig) []sqlite.Option {
	opts := []sqlite.Option{sqlite.WithPath(sc.Path)}
	if sc.Driver != "" {
		opts = append(opts, sqlite.WithDriver(sc.Driver))
	}
	return opts
}

// pool returns one connection pool per DSN so state and history can share
// a database.
func (rt *Runtime) pool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.pools == nil {
		rt.pools = make(map[string]*pgxpool.Pool)
	}
	if p, ok := rt.pools[dsn]; ok {
		return p, nil
	}

	p, err := postgres.NewPool(ctx, postgres.DefaultConfig(), postgres.WithDSN(dsn))
	if err != nil {
		return nil, err
	}
	rt.pools[dsn] = p
	rt.closers = append(rt.closers, closer{name: "postgres pool", close: func(context.Context) error {
		p.Close()
		return nil
	}})
	return p, nil
}

// mongo returns one client per DSN and database, shared like the postgres
// pools.
func (rt *Runtime) mongo(ctx context.Context, sc config.StoreConfig) (*mongodb.Client, error) {
	key := sc.DSN + "|" + sc.Database

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.mongos == nil {
		rt.mongos = make(map[string]*mongodb.Client)
	}
	if c, ok := rt.mongos[key]; ok {
		return c, nil
	}

	c, err := mongodb.Connect(ctx, mongodb.DefaultConfig(), mongodb.WithURI(sc.DSN), mongodb.WithDatabase(sc.Database))
	if err != nil {
		return nil, err
	}
	rt.mongos[key] = c
	rt.closers = append(rt.closers, closer{name: "mongodb client", close: c.Close})
	return c, nil
}
