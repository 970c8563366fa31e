package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

// MemoryQueue keeps jobs in process. Jobs are lost on restart, so it is meant
// for development and tests.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []envelope
	ready   chan struct{}
	timers  sync.WaitGroup

	limiter port.Limiter
	policy  Policy
	logger  *slog.Logger
}

var _ port.JobQueue = (*MemoryQueue)(nil)

func NewMemoryQueue(limiter port.Limiter, policy Policy, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		ready:   make(chan struct{}, 1),
		limiter: limiter,
		policy:  policy,
		logger:  logger.With(slog.String("queue", "memory")),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job domain.SyncJob) (string, error) {
	env := envelope{ID: uuid.NewString(), Job: job, Attempt: 1}
	q.push(env)
	return env.ID, nil
}

// Len is the number of jobs waiting for a consumer, scheduled retries excluded.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) Consume(ctx context.Context, handler port.JobHandler) error {
	for {
		ok, err := waitTurn(ctx, q.limiter)
		if !ok {
			return err
		}

		env, ok := q.next(ctx)
		if !ok {
			return nil
		}

		switch verdict, delay := q.policy.deliver(ctx, q.logger, handler, env); verdict {
		case retry:
			env.Attempt++
			q.pushAfter(env, delay)
		case leave:
			q.push(env)
		}
	}
}

// Wait blocks until every scheduled retry has been put back on the queue.
func (q *MemoryQueue) Wait() {
	q.timers.Wait()
}

func (q *MemoryQueue) push(env envelope) {
	q.mu.Lock()
	q.pending = append(q.pending, env)
	q.mu.Unlock()
	q.signal()
}

func (q *MemoryQueue) pushAfter(env envelope, delay time.Duration) {
	q.timers.Add(1)
	time.AfterFunc(delay, func() {
		defer q.timers.Done()
		q.push(env)
	})
}

func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) next(ctx context.Context) (envelope, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			env := q.pending[0]
			q.pending = q.pending[1:]
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return env, true
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return envelope{}, false
		}
	}
}
