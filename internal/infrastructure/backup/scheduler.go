package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"livebridge/internal/core/ports"
	"livebridge/pkg/backup"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler snapshots the stored manager configs on a cron schedule and
// prunes snapshots past the retention period.
type Scheduler struct {
	backupService *backup.BackupService
	streamRepo    ports.StreamConfigRepository
	eventRepo     ports.EventConfigRepository
	cron          *cron.Cron
	schedule      string
	retention     time.Duration
	logger        *zap.SugaredLogger
}

type Config struct {
	Schedule  string
	Retention time.Duration
}

func NewScheduler(
	backupService *backup.BackupService,
	streamRepo ports.StreamConfigRepository,
	eventRepo ports.EventConfigRepository,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		backupService: backupService,
		streamRepo:    streamRepo,
		eventRepo:     eventRepo,
		cron:          cron.New(),
		schedule:      cfg.Schedule,
		retention:     cfg.Retention,
		logger:        logger.With("component", "backup_scheduler"),
	}
}

// Start registers the backup job. An empty schedule disables it.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("scheduled backups disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Errorw("scheduled backup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Infow("backups scheduled", "schedule", s.schedule, "retention", s.retention)
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce takes a snapshot now, then prunes old ones. A prune failure is
// logged and does not fail the run.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	data, err := Collect(ctx, s.streamRepo, s.eventRepo)
	if err != nil {
		return "", err
	}
	data.Metadata["backup_type"] = "scheduled"

	name, err := s.backupService.CreateBackup(ctx, data)
	if err != nil {
		return "", err
	}
	s.logger.Infow("backup created", "backup_name", name)

	if s.retention > 0 {
		deleted, err := s.backupService.Prune(ctx, time.Now().Add(-s.retention))
		if err != nil {
			s.logger.Warnw("failed to prune old backups", "error", err)
		} else if deleted > 0 {
			s.logger.Infow("pruned old backups", "deleted", deleted)
		}
	}
	return name, nil
}

// Collect reads both configs. A config that was never saved is left out.
func Collect(ctx context.Context, streamRepo ports.StreamConfigRepository, eventRepo ports.EventConfigRepository) (*backup.BackupData, error) {
	data := &backup.BackupData{Metadata: make(map[string]any)}

	stream, err := streamRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream config: %w", err)
	}
	if stream != nil {
		if data.Stream, err = json.Marshal(stream); err != nil {
			return nil, err
		}
		data.Metadata["stream_d"] = stream.D
		data.Metadata["stream_status"] = string(stream.Status)
	}

	event, err := eventRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load event config: %w", err)
	}
	if event != nil {
		if data.Event, err = json.Marshal(event); err != nil {
			return nil, err
		}
		data.Metadata["event_d"] = event.D
	}
	return data, nil
}
