package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
	"livebridge/pkg/backup"

	"go.uber.org/zap"
)

// RestoreService writes a snapshot back into the config repositories. The
// managers read their config at startup, so restore runs while the daemon
// is stopped.
type RestoreService struct {
	backupService *backup.BackupService
	streamRepo    ports.StreamConfigRepository
	eventRepo     ports.EventConfigRepository
	logger        *zap.SugaredLogger
}

type RestoreOptions struct {
	RestoreStream bool
	RestoreEvent  bool
}

func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{RestoreStream: true, RestoreEvent: true}
}

func NewRestoreService(
	backupService *backup.BackupService,
	streamRepo ports.StreamConfigRepository,
	eventRepo ports.EventConfigRepository,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		streamRepo:    streamRepo,
		eventRepo:     eventRepo,
		logger:        logger.With("component", "backup_restore"),
	}
}

// RestoreFromBackup decodes both payloads before saving either, so a bad
// snapshot changes nothing.
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, name string, opts RestoreOptions) error {
	data, err := rs.backupService.RestoreBackup(ctx, name)
	if err != nil {
		return err
	}

	var stream *domain.StreamConfig
	if opts.RestoreStream && len(data.Stream) > 0 {
		stream = &domain.StreamConfig{}
		if err := json.Unmarshal(data.Stream, stream); err != nil {
			return fmt.Errorf("malformed stream config in %s: %w", name, err)
		}
		if stream.D == "" {
			return fmt.Errorf("stream config in %s has no d identifier", name)
		}
		stream.Normalize()
	}

	var event *domain.EventConfig
	if opts.RestoreEvent && len(data.Event) > 0 {
		event = &domain.EventConfig{}
		if err := json.Unmarshal(data.Event, event); err != nil {
			return fmt.Errorf("malformed event config in %s: %w", name, err)
		}
		if event.D == "" {
			return fmt.Errorf("event config in %s has no d identifier", name)
		}
	}

	if stream != nil {
		if err := rs.streamRepo.Save(ctx, stream); err != nil {
			return fmt.Errorf("failed to restore stream config: %w", err)
		}
	}
	if event != nil {
		if err := rs.eventRepo.Save(ctx, event); err != nil {
			return fmt.Errorf("failed to restore event config: %w", err)
		}
	}

	rs.logger.Infow("restore completed",
		"backup_name", name,
		"stream", stream != nil,
		"event", event != nil,
	)
	return nil
}
