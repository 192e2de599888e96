package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memkeep/memkeep/pkg/config"
	"github.com/memkeep/memkeep/pkg/memory/store"
	"github.com/memkeep/memkeep/pkg/memory/store/inmemory"
	"github.com/memkeep/memkeep/pkg/memory/store/mongodb"
	"github.com/memkeep/memkeep/pkg/memory/store/redis"
	"github.com/memkeep/memkeep/pkg/memory/store/sqlite"
)

// NewStore builds the store variant selected by cfg.Backend. Connection
// failures surface here rather than on first use, so a misconfigured
// server refuses to start.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	backend := strings.ToLower(cfg.Backend)
	slog.Info("Selecting store backend", "backend", backend)

	switch backend {
	case config.BackendMemory:
		return inmemory.New(), nil
	case config.BackendSQLite:
		return sqlite.New(cfg.SQLite.Path)
	case config.BackendRedis:
		return redis.New(ctx, redis.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case config.BackendMongoDB:
		return mongodb.New(ctx, mongodb.Options{
			URI:        cfg.MongoDB.URI,
			Database:   cfg.MongoDB.Database,
			Collection: cfg.MongoDB.Collection,
		})
	default:
		return nil, fmt.Errorf("invalid backend '%s': must be one of: %s, %s, %s, %s",
			cfg.Backend, config.BackendMemory, config.BackendSQLite, config.BackendRedis, config.BackendMongoDB)
	}
}
