package ports

import (
	"context"

	"livebridge/internal/core/domain"
)

// KeyValueStore is the durable storage behind the config repositories.
// Get returns domain.ErrConfigNotFound when the key is absent.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// StreamConfigRepository loads and saves the Stream Manager config.
// Load returns nil, nil when nothing has been saved yet.
type StreamConfigRepository interface {
	Load(ctx context.Context) (*domain.StreamConfig, error)
	Save(ctx context.Context, cfg *domain.StreamConfig) error
}

// EventConfigRepository loads and saves the Event Manager config.
// Load returns nil, nil when nothing has been saved yet.
type EventConfigRepository interface {
	Load(ctx context.Context) (*domain.EventConfig, error)
	Save(ctx context.Context, cfg *domain.EventConfig) error
}
