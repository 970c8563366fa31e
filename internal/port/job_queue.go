package port

import (
	"context"

	"github.com/rl1809/record-store/internal/core/domain"
)

// JobHandler processes one delivery of a sync job. A nil error acknowledges it.
type JobHandler func(ctx context.Context, job domain.SyncJob) error

type JobQueue interface {
	// Enqueue stores the job without backpressure and returns its handle
	Enqueue(ctx context.Context, job domain.SyncJob) (string, error)

	// Consume delivers jobs to handler at the queue's rate until ctx is done
	Consume(ctx context.Context, handler JobHandler) error
}

// Limiter bounds how often a consumer may take the next job.
type Limiter interface {
	Wait(ctx context.Context) error
}
