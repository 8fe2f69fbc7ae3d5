package ports

import (
	"context"
	"time"

	"livebridge/internal/core/domain"
)

// ControlPlaneHandlers are invoked from the client's read loop.
type ControlPlaneHandlers struct {
	OnConnected     func()
	OnOutputStarted func()
	OnOutputStopped func()
	OnDisconnected  func(err error)
}

// ControlPlane is a session with the broadcasting software.
type ControlPlane interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	SetHandlers(h ControlPlaneHandlers)
}

type LivePublisher interface {
	PublicKey(privateKey string) (string, error)
	PublishLive(ctx context.Context, privateKey string, cfg *domain.StreamConfig, status domain.Status) (domain.PublishResult, error)
	PublishNowPlaying(ctx context.Context, np domain.NowPlaying, privateKey string, cfg *domain.StreamConfig) (domain.PublishResult, error)
	ProbeRelays(ctx context.Context, relays []string) []domain.RelayState
}

// SyncBus fans messages out to every subscriber of a channel. Delivery is
// best effort; slow subscribers lose messages.
type SyncBus interface {
	Publish(ctx context.Context, origin string, msg domain.SyncMessage) error
	Subscribe(channel domain.SyncChannel) (<-chan domain.SyncDelivery, func())
	Close() error
}

type MetricsRecorder interface {
	RecordPublish(kind int, status string, accepted bool, duration time.Duration)
	RecordRelayResult(relay string, ok bool)
	SetControlPlaneConnected(manager string, connected bool)
	SetStreamStatus(status domain.Status)
	RecordSyncMessage(channel domain.SyncChannel, messageType, direction string)
}

type StreamManagerService interface {
	StartSession(ctx context.Context, privateKey string) (domain.StreamView, error)
	EndSession(ctx context.Context) error
	View() domain.StreamView
	UpdateSettings(ctx context.Context, settings domain.EventConfig) (*domain.StreamConfig, error)
	AddRelay(ctx context.Context, raw string) (*domain.StreamConfig, error)
	RemoveRelay(ctx context.Context, url string) (*domain.StreamConfig, error)
	SetParticipants(ctx context.Context, p []string) (*domain.StreamConfig, error)
	RelayStates(ctx context.Context) []domain.RelayState
	ConnectControlPlane(ctx context.Context) error
}

type EventManagerService interface {
	StartSession(ctx context.Context, privateKey string) (domain.EventView, error)
	EndSession(ctx context.Context) error
	View() domain.EventView
	UpdateSettings(ctx context.Context, settings domain.EventConfig) (*domain.EventConfig, error)
	Start(ctx context.Context) (domain.PublishResult, error)
	End(ctx context.Context) (domain.PublishResult, error)
	ConnectControlPlane(ctx context.Context) error
}
