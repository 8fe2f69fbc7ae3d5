package services

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"

	"go.uber.org/zap"
)

const eventManagerName = "event"

// EventManager announces a single recurring event. It keeps no status: it
// publishes "live" when output starts and "ended" when it stops, plus the
// manual Start/End.
type EventManager struct {
	repo      ports.EventConfigRepository
	publisher ports.LivePublisher
	control   ports.ControlPlane
	queue     *PublishQueue
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger
	relays    []string

	mu          sync.Mutex
	cfg         *domain.EventConfig
	privateKey  string
	pubkey      string
	lastPublish *domain.PublishResult
	controlErr  string
}

type EventManagerDeps struct {
	Repo          ports.EventConfigRepository
	Publisher     ports.LivePublisher
	Control       ports.ControlPlane
	Queue         *PublishQueue
	Metrics       ports.MetricsRecorder
	Logger        *zap.SugaredLogger
	DefaultRelays []string
}

func NewEventManager(ctx context.Context, deps EventManagerDeps) (*EventManager, error) {
	cfg, err := deps.Repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load event config: %w", err)
	}
	if cfg == nil {
		def := domain.DefaultEventConfig()
		cfg = &def
	}

	m := &EventManager{
		repo:      deps.Repo,
		publisher: deps.Publisher,
		control:   deps.Control,
		queue:     deps.Queue,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("component", "event_manager"),
		relays:    slices.Clone(deps.DefaultRelays),
		cfg:       cfg,
	}

	m.control.SetHandlers(ports.ControlPlaneHandlers{
		OnConnected: func() {
			m.setControlErr("")
			m.metrics.SetControlPlaneConnected(eventManagerName, true)
		},
		OnOutputStarted: func() { m.enqueue(domain.StatusLive) },
		OnOutputStopped: func() { m.enqueue(domain.StatusEnded) },
		OnDisconnected: func(err error) {
			m.setControlErr(err.Error())
			m.metrics.SetControlPlaneConnected(eventManagerName, false)
			m.logger.Warnw("control plane disconnected, reconnect manually", "error", err)
		},
	})

	return m, nil
}

func (m *EventManager) setControlErr(msg string) {
	m.mu.Lock()
	m.controlErr = msg
	m.mu.Unlock()
}

func (m *EventManager) View() domain.EventView {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := *m.cfg
	view := domain.EventView{
		Config:            &cfg,
		Pubkey:            m.pubkey,
		SessionActive:     m.privateKey != "",
		Connected:         m.control.Connected(),
		ControlPlaneError: m.controlErr,
	}
	if m.lastPublish != nil {
		last := *m.lastPublish
		view.LastPublish = &last
	}
	return view
}

func (m *EventManager) StartSession(ctx context.Context, privateKey string) (domain.EventView, error) {
	pubkey, err := m.publisher.PublicKey(privateKey)
	if err != nil {
		return domain.EventView{}, fieldError("private_key", err)
	}

	if err := m.EndSession(ctx); err != nil {
		return domain.EventView{}, err
	}

	m.mu.Lock()
	m.privateKey = privateKey
	m.pubkey = pubkey
	m.controlErr = ""
	m.mu.Unlock()

	m.logger.Infow("session started", "pubkey", pubkey)

	if err := m.ConnectControlPlane(ctx); err != nil {
		m.logger.Warnw("control plane unavailable", "error", err)
	}
	return m.View(), nil
}

func (m *EventManager) EndSession(ctx context.Context) error {
	m.mu.Lock()
	if m.privateKey == "" {
		m.mu.Unlock()
		return nil
	}
	m.privateKey = ""
	m.pubkey = ""
	m.mu.Unlock()

	if err := m.control.Close(); err != nil {
		m.logger.Warnw("failed to close control plane", "error", err)
	}
	m.metrics.SetControlPlaneConnected(eventManagerName, false)
	m.logger.Info("session ended")
	return nil
}

func (m *EventManager) ConnectControlPlane(ctx context.Context) error {
	m.mu.Lock()
	active := m.privateKey != ""
	m.mu.Unlock()
	if !active {
		return domain.ErrNoSession
	}

	if err := m.control.Connect(ctx); err != nil {
		m.setControlErr(err.Error())
		m.metrics.SetControlPlaneConnected(eventManagerName, false)
		return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
	}
	return nil
}

func (m *EventManager) UpdateSettings(ctx context.Context, settings domain.EventConfig) (*domain.EventConfig, error) {
	if err := ValidateEventConfig(&settings); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if *m.cfg == settings {
		cfg := *m.cfg
		return &cfg, nil
	}
	m.cfg = &settings
	if err := m.repo.Save(ctx, &settings); err != nil {
		m.logger.Errorw("failed to persist event config", "error", err)
	}

	cfg := settings
	return &cfg, nil
}

// Start publishes "live" now and waits for the result.
func (m *EventManager) Start(ctx context.Context) (domain.PublishResult, error) {
	return m.publishAndWait(ctx, domain.StatusLive)
}

// End publishes "ended" now and waits for the result.
func (m *EventManager) End(ctx context.Context) (domain.PublishResult, error) {
	return m.publishAndWait(ctx, domain.StatusEnded)
}

func (m *EventManager) publishAndWait(ctx context.Context, status domain.Status) (domain.PublishResult, error) {
	done, ok := m.enqueue(status)
	if !ok {
		return domain.PublishResult{}, domain.ErrNoSession
	}

	select {
	case out := <-done:
		return out.Result, out.Err
	case <-ctx.Done():
		// the publish keeps running; only the caller stops waiting
		return domain.PublishResult{}, ctx.Err()
	}
}

func (m *EventManager) enqueue(status domain.Status) (<-chan PublishOutcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.privateKey == "" {
		return nil, false
	}

	sk := m.privateKey
	cfg := &domain.StreamConfig{
		Status:      status,
		PrevStatus:  status,
		P:           []string{},
		EventConfig: *m.cfg,
		Relays:      slices.Clone(m.relays),
	}

	return m.queue.Enqueue("event_"+string(status), func(ctx context.Context) (domain.PublishResult, error) {
		res, err := m.publisher.PublishLive(ctx, sk, cfg, status)
		if err != nil {
			if res.Error == "" {
				res.Error = err.Error()
			}
			m.logger.Errorw("publish failed", "status", status, "error", err)
		}
		m.mu.Lock()
		m.lastPublish = &res
		m.mu.Unlock()
		return res, err
	}), true
}

func (m *EventManager) Close(ctx context.Context) error {
	err := m.EndSession(ctx)
	m.queue.Close()
	return err
}
