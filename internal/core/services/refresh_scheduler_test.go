package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRefreshScheduler_Fires(t *testing.T) {
	s := NewRefreshScheduler("@every 1s", zap.NewNop().Sugar())

	var calls atomic.Int32
	require.NoError(t, s.Start(func(ctx context.Context) { calls.Add(1) }))
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestRefreshScheduler_InvalidSchedule(t *testing.T) {
	s := NewRefreshScheduler("every half hour", zap.NewNop().Sugar())
	assert.Error(t, s.Start(func(ctx context.Context) {}))
}

func TestRefreshScheduler_EmptyScheduleDisables(t *testing.T) {
	s := NewRefreshScheduler("", zap.NewNop().Sugar())
	require.NoError(t, s.Start(func(ctx context.Context) { t.Error("must not fire") }))
	s.Stop()
}
