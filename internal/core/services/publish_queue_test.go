package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"livebridge/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishQueue_RunsInOrder(t *testing.T) {
	q := NewPublishQueue(time.Second, zap.NewNop().Sugar())
	defer q.Close()

	var (
		mu    sync.Mutex
		order []int
	)
	var outcomes []<-chan PublishOutcome
	for i := 0; i < 5; i++ {
		i := i
		outcomes = append(outcomes, q.Enqueue("job", func(ctx context.Context) (domain.PublishResult, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return domain.PublishResult{Kind: i}, nil
		}))
	}

	for i, ch := range outcomes {
		out := <-ch
		require.NoError(t, out.Err)
		assert.Equal(t, i, out.Result.Kind)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPublishQueue_JobHasItsOwnDeadline(t *testing.T) {
	q := NewPublishQueue(20*time.Millisecond, zap.NewNop().Sugar())
	defer q.Close()

	out := <-q.Enqueue("slow", func(ctx context.Context) (domain.PublishResult, error) {
		<-ctx.Done()
		return domain.PublishResult{}, ctx.Err()
	})
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestPublishQueue_CloseDrainsQueuedJobs(t *testing.T) {
	q := NewPublishQueue(time.Second, zap.NewNop().Sugar())

	release := make(chan struct{})
	first := q.Enqueue("blocking", func(ctx context.Context) (domain.PublishResult, error) {
		<-release
		return domain.PublishResult{}, nil
	})
	second := q.Enqueue("queued", func(ctx context.Context) (domain.PublishResult, error) {
		return domain.PublishResult{EventID: "second"}, nil
	})

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before queued jobs ran")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-closed

	assert.NoError(t, (<-first).Err)
	assert.Equal(t, "second", (<-second).Result.EventID)

	late := <-q.Enqueue("late", func(ctx context.Context) (domain.PublishResult, error) {
		return domain.PublishResult{}, nil
	})
	assert.ErrorIs(t, late.Err, ErrQueueClosed)
}

func TestPublishQueue_RecoversFromPanic(t *testing.T) {
	q := NewPublishQueue(time.Second, zap.NewNop().Sugar())
	defer q.Close()

	out := <-q.Enqueue("panics", func(ctx context.Context) (domain.PublishResult, error) {
		panic("boom")
	})
	require.Error(t, out.Err)

	out = <-q.Enqueue("after", func(ctx context.Context) (domain.PublishResult, error) {
		return domain.PublishResult{}, errors.New("still running")
	})
	assert.EqualError(t, out.Err, "still running")
}
