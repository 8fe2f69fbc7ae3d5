package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
	"livebridge/internal/infrastructure/distributed"
	"livebridge/internal/infrastructure/monitoring"
	"livebridge/internal/infrastructure/repositories"
	"livebridge/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

const testKey = "7f7ff03d123792d6ac594bfa67bf6d0c0ab55b6b1fdb6249303fe861f1ccba9a"

type MockLivePublisher struct {
	mock.Mock
}

func (m *MockLivePublisher) PublicKey(privateKey string) (string, error) {
	args := m.Called(privateKey)
	return args.String(0), args.Error(1)
}

func (m *MockLivePublisher) PublishLive(ctx context.Context, privateKey string, cfg *domain.StreamConfig, status domain.Status) (domain.PublishResult, error) {
	args := m.Called(ctx, privateKey, cfg, status)
	return args.Get(0).(domain.PublishResult), args.Error(1)
}

func (m *MockLivePublisher) PublishNowPlaying(ctx context.Context, np domain.NowPlaying, privateKey string, cfg *domain.StreamConfig) (domain.PublishResult, error) {
	args := m.Called(ctx, np, privateKey, cfg)
	return args.Get(0).(domain.PublishResult), args.Error(1)
}

func (m *MockLivePublisher) ProbeRelays(ctx context.Context, relays []string) []domain.RelayState {
	args := m.Called(ctx, relays)
	return args.Get(0).([]domain.RelayState)
}

// publishedStatuses returns the statuses passed to PublishLive, in call order.
func (m *MockLivePublisher) publishedStatuses() []domain.Status {
	var out []domain.Status
	for _, call := range m.Calls {
		if call.Method == "PublishLive" {
			out = append(out, call.Arguments.Get(3).(domain.Status))
		}
	}
	return out
}

func newMockPublisher() *MockLivePublisher {
	pub := &MockLivePublisher{}
	pub.On("PublicKey", testKey).Return("pubkey-hex", nil)
	pub.On("PublicKey", mock.Anything).Return("", domain.ErrInvalidKey)
	pub.On("PublishLive", mock.Anything, mock.Anything, mock.Anything, domain.StatusLive).
		Return(domain.PublishResult{Kind: domain.KindLiveEvent, Status: domain.StatusLive, Relays: []domain.RelayResult{{URL: "wss://a", OK: true}}}, nil)
	pub.On("PublishLive", mock.Anything, mock.Anything, mock.Anything, domain.StatusEnded).
		Return(domain.PublishResult{Kind: domain.KindLiveEvent, Status: domain.StatusEnded, Relays: []domain.RelayResult{{URL: "wss://a", OK: true}}}, nil)
	pub.On("PublishNowPlaying", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.PublishResult{Kind: domain.KindLiveMessage, Relays: []domain.RelayResult{{URL: "wss://a", OK: true}}}, nil)
	return pub
}

// fakeControlPlane records handlers so tests can fire output events.
type fakeControlPlane struct {
	mu         sync.Mutex
	handlers   ports.ControlPlaneHandlers
	connected  bool
	connectErr error
	closes     int
}

func (f *fakeControlPlane) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.connectErr != nil {
		f.mu.Unlock()
		return f.connectErr
	}
	f.connected = true
	h := f.handlers
	f.mu.Unlock()
	if h.OnConnected != nil {
		h.OnConnected()
	}
	return nil
}

func (f *fakeControlPlane) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closes++
	return nil
}

func (f *fakeControlPlane) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeControlPlane) SetHandlers(h ports.ControlPlaneHandlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
}

func (f *fakeControlPlane) outputStarted() { f.handlers.OnOutputStarted() }
func (f *fakeControlPlane) outputStopped() { f.handlers.OnOutputStopped() }

// countingStreamRepo counts saves on top of the real repository.
type countingStreamRepo struct {
	*repositories.StreamConfigRepository
	mu    sync.Mutex
	saves int
}

func (r *countingStreamRepo) Save(ctx context.Context, cfg *domain.StreamConfig) error {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return r.StreamConfigRepository.Save(ctx, cfg)
}

func (r *countingStreamRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type streamFixture struct {
	manager *StreamManager
	pub     *MockLivePublisher
	control *fakeControlPlane
	repo    *countingStreamRepo
	store   *memory.MemoryStore
	bus     *distributed.MemoryBus
	queue   *PublishQueue
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	store := memory.NewMemoryStore()
	return newStreamFixtureWithStore(t, store)
}

func newStreamFixtureWithStore(t *testing.T, store *memory.MemoryStore) *streamFixture {
	t.Helper()

	logger := zap.NewNop().Sugar()
	f := &streamFixture{
		pub:     newMockPublisher(),
		control: &fakeControlPlane{},
		repo:    &countingStreamRepo{StreamConfigRepository: repositories.NewStreamConfigRepository(store)},
		store:   store,
		bus:     distributed.NewMemoryBus(16, monitoring.NopRecorder{}, logger),
		queue:   NewPublishQueue(time.Second, logger),
	}

	m, err := NewStreamManager(context.Background(), StreamManagerDeps{
		Repo:          f.repo,
		Publisher:     f.pub,
		Control:       f.control,
		Bus:           f.bus,
		Queue:         f.queue,
		Metrics:       monitoring.NopRecorder{},
		Logger:        logger,
		DefaultRelays: []string{"wss://relay.damus.io"},
	})
	if err != nil {
		t.Fatalf("NewStreamManager: %v", err)
	}
	f.manager = m

	t.Cleanup(func() {
		m.Close(context.Background())
		f.bus.Close()
	})
	return f
}

// drain waits until every publish queued so far has run.
func (f *streamFixture) drain() {
	<-f.queue.Enqueue("drain", func(ctx context.Context) (domain.PublishResult, error) {
		return domain.PublishResult{}, nil
	})
}
