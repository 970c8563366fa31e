package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 2 * time.Second
	DefaultMaxBackoff  = 5 * time.Minute
	DefaultJobTimeout  = 30 * time.Second
	DefaultRate        = 1.0 // jobs per second
)

// Policy is the retry behaviour shared by every backend.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	JobTimeout  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
		JobTimeout:  DefaultJobTimeout,
	}
}

// Backoff returns the delay before the next try after the given failed attempt (1 based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// LocalLimiter paces a single process. Use RedisLimiter to share the budget between processes.
func LocalLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

var _ port.Limiter = (*rate.Limiter)(nil)

// envelope is the wire form of a queued job.
type envelope struct {
	ID        string         `json:"id"`
	Job       domain.SyncJob `json:"job"`
	Attempt   int            `json:"attempt"`
	NotBefore time.Time      `json:"notBefore,omitzero"`
}

func (e envelope) encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", e.ID, err)
	}
	return b, nil
}

func decodeEnvelope(b []byte) (envelope, error) {
	var e envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return envelope{}, fmt.Errorf("decode job: %w", err)
	}
	if e.Attempt < 1 {
		e.Attempt = 1
	}
	return e, nil
}

type verdict int

const (
	// ack removes the job: it succeeded or will never succeed.
	ack verdict = iota
	// retry schedules the job again after the returned delay.
	retry
	// leave keeps the job unacknowledged so the backend redelivers it.
	leave
)

// deliver runs handler for one job and decides what the backend does with it.
func (p Policy) deliver(ctx context.Context, logger *slog.Logger, handler port.JobHandler, env envelope) (verdict, time.Duration) {
	jobCtx := ctx
	if p.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.JobTimeout)
		defer cancel()
	}

	attrs := []any{
		slog.String("job", env.ID),
		slog.String("record_id", env.Job.RecordID),
		slog.Int("attempt", env.Attempt),
	}

	err := handler(jobCtx, env.Job)
	switch {
	case err == nil:
		logger.DebugContext(ctx, "job done", attrs...)
		return ack, 0
	case ctx.Err() != nil:
		logger.InfoContext(ctx, "job interrupted by shutdown", attrs...)
		return leave, 0
	case !domain.Retryable(err):
		logger.ErrorContext(ctx, "job failed permanently, discarding", append(attrs, slog.Any("error", err))...)
		return ack, 0
	case env.Attempt >= p.MaxAttempts:
		logger.ErrorContext(ctx, "job exhausted retries, discarding", append(attrs, slog.Any("error", err))...)
		return ack, 0
	}

	delay := p.Backoff(env.Attempt)
	logger.WarnContext(ctx, "job failed, retrying",
		append(attrs, slog.Duration("delay", delay), slog.Any("error", err))...)
	return retry, delay
}

// waitTurn blocks on the limiter. It reports false once ctx is done.
func waitTurn(ctx context.Context, limiter port.Limiter) (bool, error) {
	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("rate limiter: %w", err)
	}
	return true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
