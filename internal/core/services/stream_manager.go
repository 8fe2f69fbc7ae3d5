package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
	apperrors "livebridge/pkg/errors"
	"livebridge/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const streamManagerName = "stream"

// StreamManager is the lifecycle orchestrator. It owns the StreamConfig, reacts
// to control-plane events and sync messages, and decides when to publish.
type StreamManager struct {
	repo      ports.StreamConfigRepository
	publisher ports.LivePublisher
	control   ports.ControlPlane
	bus       ports.SyncBus
	queue     *PublishQueue
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger

	// origin tags the messages this manager posts on the bus
	origin string

	// sessionMu serializes StartSession and EndSession
	sessionMu sync.Mutex

	mu          sync.Mutex
	cfg         *domain.StreamConfig
	privateKey  string
	unsubscribe func()
	listenDone  chan struct{}
	lastPublish *domain.PublishResult
	controlErr  string
}

type StreamManagerDeps struct {
	Repo          ports.StreamConfigRepository
	Publisher     ports.LivePublisher
	Control       ports.ControlPlane
	Bus           ports.SyncBus
	Queue         *PublishQueue
	Metrics       ports.MetricsRecorder
	Logger        *zap.SugaredLogger
	DefaultRelays []string
}

// NewStreamManager loads the persisted config. A malformed stored config is
// returned as an error.
func NewStreamManager(ctx context.Context, deps StreamManagerDeps) (*StreamManager, error) {
	cfg, err := deps.Repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream config: %w", err)
	}
	if cfg == nil {
		cfg = domain.DefaultStreamConfig(deps.DefaultRelays)
	}
	cfg.Normalize()

	m := &StreamManager{
		repo:      deps.Repo,
		publisher: deps.Publisher,
		control:   deps.Control,
		bus:       deps.Bus,
		queue:     deps.Queue,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("component", "stream_manager"),
		origin:    "stream-manager-" + uuid.NewString(),
		cfg:       cfg,
	}

	m.control.SetHandlers(ports.ControlPlaneHandlers{
		OnConnected:     m.onConnected,
		OnOutputStarted: func() { m.HandleOutputStarted(context.Background()) },
		OnOutputStopped: func() { m.HandleOutputStopped(context.Background()) },
		OnDisconnected:  m.onDisconnected,
	})
	m.metrics.SetStreamStatus(cfg.Status)

	return m, nil
}

// Config returns a copy of the current config.
func (m *StreamManager) Config() *domain.StreamConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone()
}

func (m *StreamManager) View() domain.StreamView {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := domain.StreamView{
		Config:            m.cfg.Clone(),
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

// StartSession activates privateKey: the pubkey is synced, the config channel
// is listened to and the control plane is connected. A connection failure is
// reported in the view, not as an error.
func (m *StreamManager) StartSession(ctx context.Context, privateKey string) (domain.StreamView, error) {
	pubkey, err := m.publisher.PublicKey(privateKey)
	if err != nil {
		return domain.StreamView{}, fieldError("private_key", err)
	}

	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if err := m.endSession(); err != nil {
		return domain.StreamView{}, err
	}

	deliveries, unsubscribe := m.bus.Subscribe(domain.ConfigChannel)
	done := make(chan struct{})

	m.mu.Lock()
	m.privateKey = privateKey
	m.unsubscribe = unsubscribe
	m.listenDone = done
	m.controlErr = ""
	m.mu.Unlock()

	go m.listen(deliveries, done)

	if _, err := m.SyncPubkey(ctx, pubkey); err != nil {
		m.logger.Errorw("failed to sync pubkey", "error", err)
	}

	m.logger.Infow("session started", "pubkey", pubkey)

	if err := m.ConnectControlPlane(ctx); err != nil {
		m.logger.Warnw("control plane unavailable", "error", err)
	}
	return m.View(), nil
}

// EndSession closes the control plane and stops listening. Queued publishes
// still run.
func (m *StreamManager) EndSession(ctx context.Context) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	return m.endSession()
}

func (m *StreamManager) endSession() error {
	m.mu.Lock()
	if m.privateKey == "" {
		m.mu.Unlock()
		return nil
	}
	m.privateKey = ""
	unsubscribe, done := m.unsubscribe, m.listenDone
	m.unsubscribe, m.listenDone = nil, nil
	m.mu.Unlock()

	// Close runs without m.mu so in-flight control-plane callbacks can finish.
	if err := m.control.Close(); err != nil {
		m.logger.Warnw("failed to close control plane", "error", err)
	}
	m.metrics.SetControlPlaneConnected(streamManagerName, false)

	unsubscribe()
	<-done

	m.logger.Info("session ended")
	return nil
}

func (m *StreamManager) sessionActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.privateKey != ""
}

// ConnectControlPlane is the manual (re)connect. There is no automatic retry.
func (m *StreamManager) ConnectControlPlane(ctx context.Context) error {
	if !m.sessionActive() {
		return domain.ErrNoSession
	}

	if err := m.control.Connect(ctx); err != nil {
		m.mu.Lock()
		m.controlErr = err.Error()
		m.mu.Unlock()
		m.metrics.SetControlPlaneConnected(streamManagerName, false)
		return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
	}
	return nil
}

func (m *StreamManager) onConnected() {
	m.mu.Lock()
	m.controlErr = ""
	m.mu.Unlock()
	m.metrics.SetControlPlaneConnected(streamManagerName, true)
	m.logger.Info("control plane connected")
}

func (m *StreamManager) onDisconnected(err error) {
	m.mu.Lock()
	m.controlErr = err.Error()
	m.mu.Unlock()
	m.metrics.SetControlPlaneConnected(streamManagerName, false)
	m.logger.Warnw("control plane disconnected, reconnect manually", "error", err)
}

// transition moves to target. Requesting the status already held changes
// nothing.
func (m *StreamManager) transition(ctx context.Context, target domain.Status) {
	_, err := m.mutate(ctx, func(cfg *domain.StreamConfig) error {
		if cfg.Status == target {
			return nil
		}
		cfg.PrevStatus = cfg.Status
		cfg.Status = target
		return nil
	})
	if err != nil {
		m.logger.Errorw("status transition failed", "target", target, "error", err)
	}
}

// HandleOutputStarted and HandleOutputStopped are the control-plane events.
func (m *StreamManager) HandleOutputStarted(ctx context.Context) { m.transition(ctx, domain.StatusLive) }

func (m *StreamManager) HandleOutputStopped(ctx context.Context) { m.transition(ctx, domain.StatusEnded) }

func (m *StreamManager) SyncPubkey(ctx context.Context, pubkey string) (*domain.StreamConfig, error) {
	return m.mutate(ctx, func(cfg *domain.StreamConfig) error {
		cfg.Pubkey = pubkey
		return nil
	})
}

func (m *StreamManager) SetParticipants(ctx context.Context, p []string) (*domain.StreamConfig, error) {
	cleaned := make([]string, 0, len(p))
	for _, v := range p {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return m.mutate(ctx, func(cfg *domain.StreamConfig) error {
		cfg.P = cleaned
		return nil
	})
}

func (m *StreamManager) UpdateSettings(ctx context.Context, settings domain.EventConfig) (*domain.StreamConfig, error) {
	if err := ValidateEventConfig(&settings); err != nil {
		return nil, err
	}
	return m.mutate(ctx, func(cfg *domain.StreamConfig) error {
		cfg.EventConfig = settings
		return nil
	})
}

// AddRelay validates raw as typed, then appends it trimmed. Invalid or
// duplicate relays are rejected before anything changes.
func (m *StreamManager) AddRelay(ctx context.Context, raw string) (*domain.StreamConfig, error) {
	if err := validation.ValidateRelayURL(raw); err != nil {
		return nil, fieldError("newRelay", fmt.Errorf("%w: %v", domain.ErrInvalidRelayURL, err))
	}
	relay := strings.TrimSpace(raw)

	return m.mutate(ctx, func(cfg *domain.StreamConfig) error {
		if slices.Contains(cfg.Relays, relay) {
			return fieldError("newRelay", domain.ErrRelayExists)
		}
		cfg.Relays = append(cfg.Relays, relay)
		return nil
	})
}

func (m *StreamManager) RemoveRelay(ctx context.Context, url string) (*domain.StreamConfig, error) {
	url = strings.TrimSpace(url)
	return m.mutate(ctx, func(cfg *domain.StreamConfig) error {
		i := slices.Index(cfg.Relays, url)
		if i < 0 {
			return domain.ErrRelayNotFound
		}
		cfg.Relays = slices.Delete(cfg.Relays, i, i+1)
		return nil
	})
}

func (m *StreamManager) RelayStates(ctx context.Context) []domain.RelayState {
	return m.publisher.ProbeRelays(ctx, m.Config().Relays)
}

// ApplySnapshot takes the metadata, participants and relays from a config
// received from another view. Status, PrevStatus and Pubkey follow only the
// control plane and the session, so the local values are kept.
func (m *StreamManager) ApplySnapshot(ctx context.Context, snapshot *domain.StreamConfig) (*domain.StreamConfig, error) {
	incoming := snapshot.Clone()
	incoming.Normalize()
	return m.mutate(ctx, func(cfg *domain.StreamConfig) error {
		cfg.EventConfig = incoming.EventConfig
		cfg.P = incoming.P
		cfg.Relays = incoming.Relays
		return nil
	})
}

// AnnounceTrack handles a participant's now-playing announcement: the
// participant slot is overwritten, the track is forwarded to now-playing
// views, and while live a now-playing event is published.
func (m *StreamManager) AnnounceTrack(ctx context.Context, ta domain.TrackAnnouncement) error {
	cfg, err := m.mutate(ctx, func(cfg *domain.StreamConfig) error {
		cfg.P = []string{ta.Pubkey}
		return nil
	})
	if err != nil {
		return err
	}

	if err := m.bus.Publish(ctx, m.origin, domain.NowPlayingUpdate{NowPlaying: ta.NowPlaying}); err != nil {
		m.logger.Warnw("failed to forward now playing", "error", err)
	}

	if cfg.Status != domain.StatusLive {
		return nil
	}

	m.mu.Lock()
	sk := m.privateKey
	m.mu.Unlock()
	if sk == "" {
		return nil
	}

	np := ta.NowPlaying
	m.queue.Enqueue("now_playing", func(ctx context.Context) (domain.PublishResult, error) {
		res, err := m.publisher.PublishNowPlaying(ctx, np, sk, cfg)
		m.recordPublish(ctx, res, err)
		return res, err
	})
	return nil
}

// Refresh republishes the live event while live so relays and clients keep
// treating it as current.
func (m *StreamManager) Refresh(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.privateKey == "" || m.cfg.Status != domain.StatusLive {
		return
	}
	m.enqueueLive(m.privateKey, m.cfg.Clone(), domain.StatusLive)
}

// mutate applies fn to a copy of the config. When the copy differs, it
// becomes current, is persisted and broadcast, and the publish decision runs.
func (m *StreamManager) mutate(ctx context.Context, fn func(cfg *domain.StreamConfig) error) (*domain.StreamConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.cfg
	next := before.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.Equal(before) {
		return before.Clone(), nil
	}
	m.cfg = next
	snapshot := next.Clone()

	if err := m.repo.Save(ctx, snapshot); err != nil {
		m.logger.Errorw("failed to persist stream config", "error", err)
	}
	if err := m.bus.Publish(ctx, m.origin, domain.ConfigSnapshot{Config: snapshot.Clone()}); err != nil {
		m.logger.Warnw("failed to broadcast stream config", "error", err)
	}
	m.metrics.SetStreamStatus(next.Status)

	if status, ok := decidePublish(before, next); ok && m.privateKey != "" {
		m.enqueueLive(m.privateKey, snapshot, status)
	}

	if before.Status != next.Status {
		m.logger.Infow("stream status changed",
			"status", next.Status,
			"prev_status", next.PrevStatus,
		)
	}
	return snapshot.Clone(), nil
}

// decidePublish compares two configs and returns the live-event status to
// publish, if any.
func decidePublish(before, after *domain.StreamConfig) (domain.Status, bool) {
	switch {
	case before.Status != domain.StatusLive && after.Status == domain.StatusLive:
		return domain.StatusLive, true
	case before.Status == domain.StatusLive && after.Status == domain.StatusEnded:
		return domain.StatusEnded, true
	case after.Status == domain.StatusLive && !after.Equal(before):
		return domain.StatusLive, true
	default:
		return "", false
	}
}

// enqueueLive must be called with m.mu held so jobs queue in mutation order.
func (m *StreamManager) enqueueLive(sk string, cfg *domain.StreamConfig, status domain.Status) {
	m.queue.Enqueue("live_"+string(status), func(ctx context.Context) (domain.PublishResult, error) {
		res, err := m.publisher.PublishLive(ctx, sk, cfg, status)
		m.recordPublish(ctx, res, err)
		return res, err
	})
}

// recordPublish keeps the outcome for the status view and tells the views.
func (m *StreamManager) recordPublish(ctx context.Context, res domain.PublishResult, err error) {
	if err != nil {
		if res.Error == "" {
			res.Error = err.Error()
		}
		m.logger.Errorw("publish failed", "kind", res.Kind, "status", res.Status, "error", err)
	}

	m.mu.Lock()
	m.lastPublish = &res
	m.mu.Unlock()

	if err := m.bus.Publish(ctx, m.origin, domain.PublishNotice{Result: res}); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Debugw("failed to broadcast publish notice", "error", err)
	}
}

// listen applies messages from other views until the subscription closes.
func (m *StreamManager) listen(deliveries <-chan domain.SyncDelivery, done chan struct{}) {
	defer close(done)

	for d := range deliveries {
		if d.Origin == m.origin {
			continue
		}

		ctx := context.Background()
		switch msg := d.Message.(type) {
		case domain.ConfigSnapshot:
			if _, err := m.ApplySnapshot(ctx, msg.Config); err != nil {
				m.logger.Warnw("failed to apply config snapshot", "origin", d.Origin, "error", err)
			}
		case domain.TrackAnnouncement:
			if err := m.AnnounceTrack(ctx, msg); err != nil {
				m.logger.Warnw("failed to handle track announcement", "origin", d.Origin, "error", err)
			}
		case domain.PublishNotice:
			// informational for views only
		}
	}
}

// Close ends the session and drains queued publishes.
func (m *StreamManager) Close(ctx context.Context) error {
	err := m.EndSession(ctx)
	m.queue.Close()
	return err
}

func fieldError(field string, cause error) error {
	appErr := apperrors.NewFieldError(field, cause.Error())
	appErr.Cause = cause
	return appErr
}

// ValidateEventConfig checks the settings form and trims its fields.
func ValidateEventConfig(cfg *domain.EventConfig) error {
	cfg.Title = strings.TrimSpace(cfg.Title)
	cfg.Summary = strings.TrimSpace(cfg.Summary)
	cfg.D = strings.TrimSpace(cfg.D)
	cfg.Image = strings.TrimSpace(cfg.Image)
	cfg.Streaming = strings.TrimSpace(cfg.Streaming)

	if err := validation.ValidateIdentifier(cfg.D); err != nil {
		return fieldError("d", err)
	}
	if err := validation.ValidateMetadataText(cfg.Title, "title"); err != nil {
		return fieldError("title", err)
	}
	if err := validation.ValidateMetadataText(cfg.Summary, "summary"); err != nil {
		return fieldError("summary", err)
	}
	if err := validation.ValidateOptionalHTTPURL(cfg.Image, "image"); err != nil {
		return fieldError("image", err)
	}
	if err := validation.ValidateOptionalHTTPURL(cfg.Streaming, "streaming"); err != nil {
		return fieldError("streaming", err)
	}
	return nil
}
