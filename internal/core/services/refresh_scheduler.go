package services

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RefreshScheduler fires a callback on a cron schedule. The Stream Manager
// uses it to keep the live event fresh on relays.
type RefreshScheduler struct {
	cron     *cron.Cron
	schedule string
	logger   *zap.SugaredLogger
}

func NewRefreshScheduler(schedule string, logger *zap.SugaredLogger) *RefreshScheduler {
	return &RefreshScheduler{
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger.With("component", "refresh_scheduler"),
	}
}

// Start registers fn and starts the ticker. An empty schedule disables it.
func (r *RefreshScheduler) Start(fn func(ctx context.Context)) error {
	if r.schedule == "" {
		r.logger.Info("live event refresh disabled")
		return nil
	}

	_, err := r.cron.AddFunc(r.schedule, func() {
		r.logger.Debug("refreshing live event")
		fn(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.logger.Infow("live event refresh scheduled", "schedule", r.schedule)
	return nil
}

// Stop stops the ticker and waits for a running callback.
func (r *RefreshScheduler) Stop() {
	<-r.cron.Stop().Done()
}
