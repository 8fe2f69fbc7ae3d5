package distributed

import (
	"context"
	"errors"
	"sync"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"

	"go.uber.org/zap"
)

var ErrBusClosed = errors.New("sync bus closed")

// MemoryBus is an in-process fan-out of sync messages. A subscriber whose
// buffer is full misses the message.
type MemoryBus struct {
	bufferSize int
	metrics    ports.MetricsRecorder
	logger     *zap.SugaredLogger

	mu     sync.RWMutex
	subs   map[domain.SyncChannel]map[uint64]chan domain.SyncDelivery
	nextID uint64
	closed bool
}

func NewMemoryBus(bufferSize int, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *MemoryBus {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &MemoryBus{
		bufferSize: bufferSize,
		metrics:    metrics,
		logger:     logger.With("component", "sync_bus"),
		subs:       make(map[domain.SyncChannel]map[uint64]chan domain.SyncDelivery),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, origin string, msg domain.SyncMessage) error {
	return b.deliver(domain.SyncDelivery{Origin: origin, Message: msg})
}

func (b *MemoryBus) deliver(d domain.SyncDelivery) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	channel := d.Message.Channel()
	b.metrics.RecordSyncMessage(channel, d.Message.Type(), "out")

	for id, ch := range b.subs[channel] {
		select {
		case ch <- d:
		default:
			b.metrics.RecordSyncMessage(channel, d.Message.Type(), "dropped")
			b.logger.Debugw("subscriber buffer full, dropping message",
				"channel", channel,
				"type", d.Message.Type(),
				"subscriber", id,
			)
		}
	}
	return nil
}

// Subscribe returns a delivery channel and a cancel func that unregisters
// and closes it.
func (b *MemoryBus) Subscribe(channel domain.SyncChannel) (<-chan domain.SyncDelivery, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.SyncDelivery, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[uint64]chan domain.SyncDelivery)
	}
	b.subs[channel][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[channel][id]; ok {
				delete(b.subs[channel], id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Close closes every subscriber channel.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subs, channel)
	}
	return nil
}
