package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "livebridge:sync:"

// Event is the frame exchanged between daemon instances over Redis.
type Event struct {
	InstanceID string          `json:"instance_id"`
	Origin     string          `json:"origin"`
	Timestamp  time.Time       `json:"timestamp"`
	Message    json.RawMessage `json:"message"`
}

// EventBus extends the in-process bus across instances with Redis pub/sub.
// Messages are fanned out locally first; frames that come back from this
// instance are skipped.
type EventBus struct {
	local      *MemoryBus
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger

	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEventBus(
	client *redis.Client,
	instanceID string,
	local *MemoryBus,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		local:      local,
		client:     client,
		instanceID: instanceID,
		logger:     logger.With("component", "redis_sync_bus", "instance_id", instanceID),
	}
}

func redisChannel(ch domain.SyncChannel) string {
	return redisChannelPrefix + string(ch)
}

// Start subscribes to both sync channels and relays remote frames to local
// subscribers until Close.
func (eb *EventBus) Start(ctx context.Context) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx,
		redisChannel(domain.ConfigChannel),
		redisChannel(domain.NowPlayingChannel),
	)
	if _, err := eb.pubsub.Receive(ctx); err != nil {
		eb.pubsub.Close()
		eb.pubsub = nil
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ctx, eb.cancel = context.WithCancel(ctx)
	eb.wg.Add(1)
	go eb.listen(ctx, eb.pubsub.Channel())
	return nil
}

func (eb *EventBus) listen(ctx context.Context, ch <-chan *redis.Message) {
	defer eb.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			eb.handle(msg)
		}
	}
}

func (eb *EventBus) handle(msg *redis.Message) {
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		eb.logger.Warnw("failed to unmarshal event",
			"error", err,
			"channel", msg.Channel,
		)
		return
	}

	// Skip events from this instance
	if event.InstanceID == eb.instanceID {
		return
	}

	channel := domain.SyncChannel(msg.Channel[len(redisChannelPrefix):])
	syncMsg, err := domain.DecodeSyncMessage(channel, event.Message)
	if err != nil {
		eb.logger.Warnw("dropping invalid remote message",
			"error", err,
			"channel", channel,
			"from_instance", event.InstanceID,
		)
		return
	}

	eb.local.metrics.RecordSyncMessage(channel, syncMsg.Type(), "remote")
	if err := eb.local.deliver(domain.SyncDelivery{Origin: event.Origin, Message: syncMsg}); err != nil {
		eb.logger.Debugw("local delivery failed", "error", err)
	}
}

// Publish delivers locally, then forwards to the other instances.
func (eb *EventBus) Publish(ctx context.Context, origin string, msg domain.SyncMessage) error {
	if err := eb.local.Publish(ctx, origin, msg); err != nil {
		return err
	}

	data, err := domain.EncodeSyncMessage(msg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Event{
		InstanceID: eb.instanceID,
		Origin:     origin,
		Timestamp:  time.Now(),
		Message:    data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, redisChannel(msg.Channel()), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", msg.Type(),
		"channel", msg.Channel(),
	)
	return nil
}

func (eb *EventBus) Subscribe(channel domain.SyncChannel) (<-chan domain.SyncDelivery, func()) {
	return eb.local.Subscribe(channel)
}

var _ ports.SyncBus = (*EventBus)(nil)

// Close stops listening and closes local subscribers.
func (eb *EventBus) Close() error {
	if eb.cancel != nil {
		eb.cancel()
	}
	var err error
	if eb.pubsub != nil {
		err = eb.pubsub.Close()
	}
	eb.wg.Wait()
	eb.local.Close()
	return err
}
