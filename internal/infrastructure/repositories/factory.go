package repositories

import (
	"context"
	"fmt"

	"livebridge/internal/core/ports"
	"livebridge/internal/infrastructure/repositories/file"
	"livebridge/internal/infrastructure/repositories/memory"
	redisrepo "livebridge/internal/infrastructure/repositories/redis"
	"livebridge/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory picks the config storage backend with fallback support
type RepositoryFactory struct {
	store       ports.KeyValueStore
	backend     string
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory prefers Redis when enabled and reachable, then the
// storage directory, then process memory.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to file storage",
				"error", err,
			)
		} else {
			factory.redisClient = client
			factory.store = redisrepo.NewRedisStore(client)
			factory.backend = "redis"
		}
	}

	if factory.store == nil && cfg.Storage.Dir != "" {
		store, err := file.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		factory.store = store
		factory.backend = "file"
	}

	if factory.store == nil {
		factory.store = memory.NewMemoryStore()
		factory.backend = "memory"
	}

	logger.Infow("config storage ready", "backend", factory.backend)
	return factory, nil
}

// Backend names the storage in use: redis, file or memory.
func (f *RepositoryFactory) Backend() string {
	return f.backend
}

// RedisClient returns the shared client, or nil when Redis is not in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) CreateStreamConfigRepository() ports.StreamConfigRepository {
	return NewStreamConfigRepository(f.store)
}

func (f *RepositoryFactory) CreateEventConfigRepository() ports.EventConfigRepository {
	return NewEventConfigRepository(f.store)
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck pings the active storage backend
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	return f.store.Ping(ctx)
}
