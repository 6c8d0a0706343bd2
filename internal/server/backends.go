package server

import (
	"context"
	"fmt"

	"github.com/matzehuels/restyle/internal/config"
	"github.com/matzehuels/restyle/pkg/cache"
	"github.com/matzehuels/restyle/pkg/session"
)

// OpenCache builds the artifact cache selected by cfg.Cache.Backend and
// the keyer that goes with it.
func OpenCache(ctx context.Context, cfg *config.Config) (cache.Cache, cache.Keyer, error) {
	keyer := cache.NewDefaultKeyer()
	if cfg.Cache.KeyPrefix != "" {
		keyer = cache.NewScopedKeyer(keyer, cfg.Cache.KeyPrefix)
	}

	switch cfg.Cache.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), keyer, nil
	case config.BackendMemory:
		return cache.NewMemoryCache(cfg.Cache.MaxEntries), keyer, nil
	case config.BackendFile:
		dir, err := cfg.CacheDir()
		if err != nil {
			return nil, nil, err
		}
		c, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, nil, err
		}
		return c, keyer, nil
	case config.BackendRedis:
		client, err := cache.NewRedisClient(ctx, redisOptions(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return cache.NewRedisCache(client), keyer, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// OpenSessions builds the session store selected by cfg.Session.Backend.
func OpenSessions(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case config.BackendMemory:
		return session.NewMemoryStore(), nil
	case config.BackendFile:
		return session.NewFileStore(cfg.Session.Dir)
	case config.BackendRedis:
		client, err := cache.NewRedisClient(ctx, redisOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("connect redis sessions: %w", err)
		}
		keyer := cache.NewDefaultKeyer()
		if cfg.Cache.KeyPrefix != "" {
			keyer = cache.NewScopedKeyer(keyer, cfg.Cache.KeyPrefix)
		}
		return session.NewRedisStore(client, keyer), nil
	case config.BackendMongo:
		store, err := session.NewMongoStore(ctx, session.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("connect mongo sessions: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

func redisOptions(cfg *config.Config) cache.RedisOptions {
	return cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}
