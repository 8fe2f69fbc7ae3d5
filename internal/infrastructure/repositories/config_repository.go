package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
)

// Fixed storage keys.
const (
	StreamConfigKey = "streamManagerConfig"
	EventConfigKey  = "eventManagerConfig"
)

type StreamConfigRepository struct {
	store ports.KeyValueStore
}

func NewStreamConfigRepository(store ports.KeyValueStore) *StreamConfigRepository {
	return &StreamConfigRepository{store: store}
}

// Load returns the persisted config with an empty participant list. Malformed
// JSON is returned as an error.
func (r *StreamConfigRepository) Load(ctx context.Context) (*domain.StreamConfig, error) {
	data, err := r.store.Get(ctx, StreamConfigKey)
	if errors.Is(err, domain.ErrConfigNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg domain.StreamConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", StreamConfigKey, err)
	}
	cfg.Normalize()
	cfg.P = []string{}
	return &cfg, nil
}

func (r *StreamConfigRepository) Save(ctx context.Context, cfg *domain.StreamConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", StreamConfigKey, err)
	}
	return r.store.Set(ctx, StreamConfigKey, data)
}

type EventConfigRepository struct {
	store ports.KeyValueStore
}

func NewEventConfigRepository(store ports.KeyValueStore) *EventConfigRepository {
	return &EventConfigRepository{store: store}
}

func (r *EventConfigRepository) Load(ctx context.Context) (*domain.EventConfig, error) {
	data, err := r.store.Get(ctx, EventConfigKey)
	if errors.Is(err, domain.ErrConfigNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg domain.EventConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", EventConfigKey, err)
	}
	return &cfg, nil
}

func (r *EventConfigRepository) Save(ctx context.Context, cfg *domain.EventConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", EventConfigKey, err)
	}
	return r.store.Set(ctx, EventConfigKey, data)
}
