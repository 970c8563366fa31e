package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

const (
	payloadField     = "job"
	delayedSuffix    = ":delayed"
	promoteBatch     = 100
	readBlock        = 2 * time.Second
	DefaultClaimIdle = time.Minute
)

// promoteScript moves retries whose time has come from the delayed set back
// onto the stream. Running it as a script keeps concurrent consumers from
// promoting the same entry twice.
var promoteScript = redis.NewScript(`
local delayed = KEYS[1]
local stream = KEYS[2]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local due = redis.call('ZRANGEBYSCORE', delayed, '-inf', now, 'LIMIT', 0, limit)
for _, payload in ipairs(due) do
	redis.call('XADD', stream, '*', 'job', payload)
	redis.call('ZREM', delayed, payload)
end

return #due
`)

type RedisConfig struct {
	Stream   string
	Group    string
	Consumer string
	// ClaimIdle is how long a delivered but unacknowledged job waits before
	// another consumer takes it over.
	ClaimIdle time.Duration
}

// RedisQueue is a Redis Streams consumer group. A job is acknowledged only
// after the handler returns, so a consumer that dies mid-job leaves it
// pending and another consumer claims it after ClaimIdle.
type RedisQueue struct {
	client  *redis.Client
	cfg     RedisConfig
	delayed string
	limiter port.Limiter
	policy  Policy
	logger  *slog.Logger
}

var _ port.JobQueue = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client, cfg RedisConfig, limiter port.Limiter, policy Policy, logger *slog.Logger) *RedisQueue {
	if cfg.Consumer == "" {
		cfg.Consumer = uuid.NewString()
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = DefaultClaimIdle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client:  client,
		cfg:     cfg,
		delayed: cfg.Stream + delayedSuffix,
		limiter: limiter,
		policy:  policy,
		logger: logger.With(
			slog.String("queue", "redis"),
			slog.String("stream", cfg.Stream),
			slog.String("consumer", cfg.Consumer),
		),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job domain.SyncJob) (string, error) {
	env := envelope{ID: uuid.NewString(), Job: job, Attempt: 1}
	payload, err := env.encode()
	if err != nil {
		return "", err
	}

	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return env.ID, nil
}

func (q *RedisQueue) Consume(ctx context.Context, handler port.JobHandler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		ok, err := waitTurn(ctx, q.limiter)
		if !ok {
			return err
		}

		msg, found, err := q.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.ErrorContext(ctx, "read stream failed", slog.Any("error", err))
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}
		if !found {
			continue
		}

		q.handle(ctx, handler, msg)
	}
}

func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// next returns the oldest stalled job first, then new ones.
func (q *RedisQueue) next(ctx context.Context) (redis.XMessage, bool, error) {
	now := time.Now().UnixMilli()
	if err := promoteScript.Run(ctx, q.client, []string{q.delayed, q.cfg.Stream}, now, promoteBatch).Err(); err != nil {
		return redis.XMessage{}, false, fmt.Errorf("promote retries: %w", err)
	}

	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		MinIdle:  q.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		return redis.XMessage{}, false, fmt.Errorf("claim stalled jobs: %w", err)
	}
	if len(claimed) > 0 {
		return claimed[0], true, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    1,
		Block:    readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return redis.XMessage{}, false, nil
	}
	if err != nil {
		return redis.XMessage{}, false, fmt.Errorf("read group: %w", err)
	}
	for _, s := range streams {
		if len(s.Messages) > 0 {
			return s.Messages[0], true, nil
		}
	}
	return redis.XMessage{}, false, nil
}

func (q *RedisQueue) handle(ctx context.Context, handler port.JobHandler, msg redis.XMessage) {
	raw, _ := msg.Values[payloadField].(string)
	env, err := decodeEnvelope([]byte(raw))
	if err != nil {
		q.logger.ErrorContext(ctx, "dropping malformed job",
			slog.String("entry", msg.ID), slog.Any("error", err))
		q.ack(ctx, msg.ID)
		return
	}

	verdict, delay := q.policy.deliver(ctx, q.logger, handler, env)
	switch verdict {
	case ack:
		q.ack(ctx, msg.ID)
	case retry:
		env.Attempt++
		env.NotBefore = time.Now().Add(delay)
		if err := q.schedule(ctx, msg.ID, env); err != nil {
			q.logger.ErrorContext(ctx, "schedule retry failed",
				slog.String("job", env.ID), slog.Any("error", err))
		}
	}
}

func (q *RedisQueue) ack(ctx context.Context, entryID string) {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, entryID)
		pipe.XDel(ctx, q.cfg.Stream, entryID)
		return nil
	})
	if err != nil {
		q.logger.ErrorContext(ctx, "ack failed", slog.String("entry", entryID), slog.Any("error", err))
	}
}

// schedule parks the job in the delayed set and acknowledges the stream
// entry in the same transaction.
func (q *RedisQueue) schedule(ctx context.Context, entryID string, env envelope) error {
	payload, err := env.encode()
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, q.delayed, redis.Z{Score: float64(env.NotBefore.UnixMilli()), Member: payload})
		pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, entryID)
		pipe.XDel(ctx, q.cfg.Stream, entryID)
		return nil
	})
	return err
}

// Delayed is the number of jobs waiting for a retry.
func (q *RedisQueue) Delayed(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.delayed).Result()
}

var acquireSlotScript = redis.NewScript(`
local key = KEYS[1]
local interval = tonumber(ARGV[1])

if redis.call('SET', key, '1', 'NX', 'PX', interval) then
	return 0
end

return redis.call('PTTL', key)
`)

// RedisLimiter hands out at most one slot per interval across every process
// sharing key.
type RedisLimiter struct {
	client   *redis.Client
	key      string
	interval time.Duration
}

var _ port.Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, key string, perSecond float64) *RedisLimiter {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	interval := time.Duration(float64(time.Second) / perSecond)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return &RedisLimiter{client: client, key: key, interval: interval}
}

func (l *RedisLimiter) Wait(ctx context.Context) error {
	for {
		wait, err := acquireSlotScript.Run(ctx, l.client, []string{l.key}, l.interval.Milliseconds()).Int64()
		if err != nil {
			return fmt.Errorf("acquire slot: %w", err)
		}
		if wait == 0 {
			return nil
		}
		// key without ttl or gone in between: try again right away
		if wait < 0 {
			wait = 1
		}
		if !sleepCtx(ctx, time.Duration(wait)*time.Millisecond) {
			return ctx.Err()
		}
	}
}
