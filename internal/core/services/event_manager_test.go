package services

import (
	"context"
	"testing"
	"time"

	"livebridge/internal/core/domain"
	"livebridge/internal/infrastructure/monitoring"
	"livebridge/internal/infrastructure/repositories"
	"livebridge/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventFixture struct {
	manager *EventManager
	pub     *MockLivePublisher
	control *fakeControlPlane
	repo    *repositories.EventConfigRepository
	queue   *PublishQueue
}

func newEventFixture(t *testing.T) *eventFixture {
	t.Helper()

	logger := zap.NewNop().Sugar()
	f := &eventFixture{
		pub:     newMockPublisher(),
		control: &fakeControlPlane{},
		repo:    repositories.NewEventConfigRepository(memory.NewMemoryStore()),
		queue:   NewPublishQueue(time.Second, logger),
	}

	m, err := NewEventManager(context.Background(), EventManagerDeps{
		Repo:          f.repo,
		Publisher:     f.pub,
		Control:       f.control,
		Queue:         f.queue,
		Metrics:       monitoring.NopRecorder{},
		Logger:        logger,
		DefaultRelays: []string{"wss://relay.damus.io", "wss://nos.lol"},
	})
	require.NoError(t, err)
	f.manager = m

	t.Cleanup(func() { m.Close(context.Background()) })
	return f
}

func (f *eventFixture) drain() {
	<-f.queue.Enqueue("drain", func(ctx context.Context) (domain.PublishResult, error) {
		return domain.PublishResult{}, nil
	})
}

func TestEventManager_StartAndEndNeedSession(t *testing.T) {
	f := newEventFixture(t)

	_, err := f.manager.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoSession)
	_, err = f.manager.End(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestEventManager_StartPublishesWithDefaultRelays(t *testing.T) {
	f := newEventFixture(t)
	view, err := f.manager.StartSession(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "pubkey-hex", view.Pubkey)

	res, err := f.manager.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, res.Status)

	f.pub.AssertCalled(t, "PublishLive", mock.Anything, testKey,
		mock.MatchedBy(func(cfg *domain.StreamConfig) bool {
			return len(cfg.Relays) == 2 && cfg.Status == domain.StatusLive && len(cfg.P) == 0
		}), domain.StatusLive)

	res, err = f.manager.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, res.Status)

	last := f.manager.View().LastPublish
	require.NotNil(t, last)
	assert.Equal(t, domain.StatusEnded, last.Status)
}

func TestEventManager_OutputEventsPublishEachTime(t *testing.T) {
	f := newEventFixture(t)
	_, err := f.manager.StartSession(context.Background(), testKey)
	require.NoError(t, err)

	// no status is kept, so repeated events publish again
	f.control.outputStarted()
	f.control.outputStarted()
	f.control.outputStopped()
	f.drain()

	assert.Equal(t, []domain.Status{domain.StatusLive, domain.StatusLive, domain.StatusEnded}, f.pub.publishedStatuses())
}

func TestEventManager_UpdateSettingsPersists(t *testing.T) {
	f := newEventFixture(t)

	settings := f.manager.View().Config
	settings.Title = " Weekly show "
	cfg, err := f.manager.UpdateSettings(context.Background(), *settings)
	require.NoError(t, err)
	assert.Equal(t, "Weekly show", cfg.Title)

	stored, err := f.repo.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Weekly show", stored.Title)
}

func TestEventManager_UpdateSettingsRejectsBadIdentifier(t *testing.T) {
	f := newEventFixture(t)

	settings := *f.manager.View().Config
	settings.D = "has space"
	_, err := f.manager.UpdateSettings(context.Background(), settings)
	require.Error(t, err)

	stored, err := f.repo.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestEventManager_EndSessionStopsPublishing(t *testing.T) {
	f := newEventFixture(t)
	_, err := f.manager.StartSession(context.Background(), testKey)
	require.NoError(t, err)
	require.NoError(t, f.manager.EndSession(context.Background()))

	f.control.outputStarted()
	f.drain()

	assert.Empty(t, f.pub.publishedStatuses())
	assert.False(t, f.manager.View().SessionActive)
}
