package api

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/robotflow/domain/cache"
	"github.com/felixgeelhaar/robotflow/domain/config"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/infrastructure/knowledge/cached"
	"github.com/felixgeelhaar/robotflow/infrastructure/knowledge/neo4j"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/badger"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/memory"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/redis"
)

// Neo4jConfig maps the neo4j section of the configuration onto driver
// settings, keeping driver defaults for what is not set.
func Neo4jConfig(c config.Neo4jConfig) neo4j.Config {
	nc := neo4j.DefaultConfig()
	nc.URI = c.URI
	if c.User != "" {
		nc.Username = c.User
	}
	nc.Password = c.Password
	nc.Database = c.Database
	return nc
}

// openKnowledge opens the graph backend and puts the query cache in front
// of it. A watched graph file invalidates the cache on every reload.
func (rt *Runtime) openKnowledge(ctx context.Context, kc config.KnowledgeConfig) (knowledge.Store, error) {
	var (
		store knowledge.Store
		file  *memory.KnowledgeStore
	)

	switch kc.Backend {
	case config.BackendNeo4j:
		ns, err := neo4j.New(ctx, Neo4jConfig(kc.Neo4j))
		if err != nil {
			return nil, err
		}
		rt.onClose("neo4j", ns.Close)
		store = ns
	case config.BackendMemory, "":
		ks, err := memory.NewKnowledgeStoreFromFile(kc.GraphFile)
		if err != nil {
			return nil, err
		}
		file = ks
		store = ks
	default:
		return nil, fmt.Errorf("unknown backend %q", kc.Backend)
	}

	c, err := rt.openCache(ctx, kc.Cache)
	if err != nil {
		return nil, err
	}
	var front *cached.Store
	if c != nil {
		front = cached.New(store, c, kc.Cache.TTL.Duration())
		store = front
	}

	if file != nil && kc.Watch {
		w, err := memory.NewWatcher(file, kc.GraphFile, func(path string, err error) {
			if err != nil {
				logging.Warn().
					Add(logging.Component("knowledge")).
					Add(logging.Str("path", path)).
					Add(logging.ErrorField(err)).
					Msg("graph reload failed, keeping previous graph")
				return
			}
			if front != nil {
				if err := front.Invalidate(context.Background()); err != nil {
					logging.Warn().
						Add(logging.Component("knowledge")).
						Add(logging.ErrorField(err)).
						Msg("cache invalidation failed")
				}
			}
			logging.Info().
				Add(logging.Component("knowledge")).
				Add(logging.Str("path", path)).
				Msg("graph reloaded")
		})
		if err != nil {
			return nil, err
		}
		rt.watcher = w
		rt.onClose("graph watcher", closeFunc(w))
	}
	return store, nil
}

// openCache returns nil when caching is off.
func (rt *Runtime) openCache(ctx context.Context, cc config.CacheConfig) (cache.Cache, error) {
	switch cc.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return memory.NewCache(), nil
	case config.BackendRedis:
		c, err := redis.NewCache(redis.DefaultConfig(), redis.WithAddress(cc.Addr))
		if err != nil {
			return nil, err
		}
		rt.onClose("redis cache", closeFunc(c))
		return c, nil
	case config.BackendBadger:
		c, err := badger.NewCache(badger.DefaultConfig(), badger.WithDir(cc.Dir))
		if err != nil {
			return nil, err
		}
		rt.onClose("badger cache", closeFunc(c))
		return c, nil
	case config.BackendDynamo:
		client, err := dynamodb.NewClient(ctx, dynamodb.DefaultConfig(),
			dynamodb.WithRegion(cc.Region),
			dynamodb.WithEndpoint(cc.Endpoint),
			dynamodb.WithTableName(cc.Table))
		if err != nil {
			return nil, err
		}
		if err := client.CreateCacheTable(ctx); err != nil {
			return nil, err
		}
		return dynamodb.NewCache(client), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cc.Backend)
	}
}
