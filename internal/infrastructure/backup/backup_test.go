package backup

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"livebridge/internal/core/domain"
	"livebridge/internal/infrastructure/repositories"
	"livebridge/internal/infrastructure/repositories/memory"
	"livebridge/pkg/backup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	service    *backup.BackupService
	streamRepo *repositories.StreamConfigRepository
	eventRepo  *repositories.EventConfigRepository
	logger     *zap.SugaredLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	store := memory.NewMemoryStore()
	return &fixture{
		service:    backup.NewBackupService(storage, "test"),
		streamRepo: repositories.NewStreamConfigRepository(store),
		eventRepo:  repositories.NewEventConfigRepository(store),
		logger:     zap.NewNop().Sugar(),
	}
}

func (f *fixture) seed(t *testing.T) (*domain.StreamConfig, *domain.EventConfig) {
	t.Helper()
	ctx := context.Background()

	stream := domain.DefaultStreamConfig([]string{"wss://relay.damus.io"})
	stream.Title = "Friday set"
	stream.Status = domain.StatusLive
	require.NoError(t, f.streamRepo.Save(ctx, stream))

	event := &domain.EventConfig{D: "weekly", Title: "Weekly show"}
	require.NoError(t, f.eventRepo.Save(ctx, event))
	return stream, event
}

func TestCollect_SkipsUnsavedConfigs(t *testing.T) {
	f := newFixture(t)

	data, err := Collect(context.Background(), f.streamRepo, f.eventRepo)
	require.NoError(t, err)
	assert.Empty(t, data.Stream)
	assert.Empty(t, data.Event)
}

func TestScheduler_RunOnceAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stream, event := f.seed(t)

	scheduler := NewScheduler(f.service, f.streamRepo, f.eventRepo, Config{Retention: 24 * time.Hour}, f.logger)
	name, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)

	data, err := f.service.RestoreBackup(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "scheduled", data.Metadata["backup_type"])
	assert.Equal(t, stream.D, data.Metadata["stream_d"])

	// overwrite, then restore the snapshot
	changed := stream.Clone()
	changed.Title = "something else"
	require.NoError(t, f.streamRepo.Save(ctx, changed))
	require.NoError(t, f.eventRepo.Save(ctx, &domain.EventConfig{D: "other"}))

	restorer := NewRestoreService(f.service, f.streamRepo, f.eventRepo, f.logger)
	require.NoError(t, restorer.RestoreFromBackup(ctx, name, DefaultRestoreOptions()))

	gotStream, err := f.streamRepo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Friday set", gotStream.Title)
	assert.Equal(t, domain.StatusLive, gotStream.Status)

	gotEvent, err := f.eventRepo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, *event, *gotEvent)
}

func TestRestore_OnlySelectedConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t)

	data, err := Collect(ctx, f.streamRepo, f.eventRepo)
	require.NoError(t, err)
	name, err := f.service.CreateBackup(ctx, data)
	require.NoError(t, err)

	require.NoError(t, f.eventRepo.Save(ctx, &domain.EventConfig{D: "other"}))

	restorer := NewRestoreService(f.service, f.streamRepo, f.eventRepo, f.logger)
	require.NoError(t, restorer.RestoreFromBackup(ctx, name, RestoreOptions{RestoreStream: true}))

	gotEvent, err := f.eventRepo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "other", gotEvent.D)
}

func TestRestore_BadSnapshotChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stream, _ := f.seed(t)

	name, err := f.service.CreateBackup(ctx, &backup.BackupData{
		Stream: json.RawMessage(`{"d":"restored","status":"live"}`),
		Event:  json.RawMessage(`{"title":"no identifier"}`),
	})
	require.NoError(t, err)

	restorer := NewRestoreService(f.service, f.streamRepo, f.eventRepo, f.logger)
	assert.Error(t, restorer.RestoreFromBackup(ctx, name, DefaultRestoreOptions()))

	gotStream, err := f.streamRepo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, stream.D, gotStream.D)
}

func TestScheduler_StartValidatesSchedule(t *testing.T) {
	f := newFixture(t)

	disabled := NewScheduler(f.service, f.streamRepo, f.eventRepo, Config{}, f.logger)
	require.NoError(t, disabled.Start())
	disabled.Stop()

	bad := NewScheduler(f.service, f.streamRepo, f.eventRepo, Config{Schedule: "not a schedule"}, f.logger)
	assert.Error(t, bad.Start())
}
