package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"livebridge/internal/core/domain"

	"go.uber.org/zap"
)

var ErrQueueClosed = errors.New("publish queue closed")

// PublishOutcome is delivered once a queued publish has run.
type PublishOutcome struct {
	Result domain.PublishResult
	Err    error
}

type PublishFunc func(ctx context.Context) (domain.PublishResult, error)

type publishJob struct {
	name string
	run  PublishFunc
	done chan PublishOutcome
}

// PublishQueue runs publishes one at a time in the order they were queued.
// Each job gets its own timeout and is never cancelled by the caller going
// away.
type PublishQueue struct {
	timeout time.Duration
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	jobs   []publishJob
	notify chan struct{}
	closed bool
	done   chan struct{}
}

func NewPublishQueue(timeout time.Duration, logger *zap.SugaredLogger) *PublishQueue {
	q := &PublishQueue{
		timeout: timeout,
		logger:  logger.With("component", "publish_queue"),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.worker()
	return q
}

// Enqueue schedules fn. The returned channel receives exactly one outcome.
func (q *PublishQueue) Enqueue(name string, fn PublishFunc) <-chan PublishOutcome {
	done := make(chan PublishOutcome, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		done <- PublishOutcome{Err: ErrQueueClosed}
		return done
	}
	q.jobs = append(q.jobs, publishJob{name: name, run: fn, done: done})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return done
}

func (q *PublishQueue) worker() {
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.notify
			continue
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		q.run(job)
	}
}

func (q *PublishQueue) run(job publishJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorw("publish panicked", "job", job.name, "panic", r)
			job.done <- PublishOutcome{Err: errors.New("publish panicked")}
		}
	}()

	res, err := job.run(ctx)
	job.done <- PublishOutcome{Result: res, Err: err}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *PublishQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	<-q.done
}
