package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageWriter and messageReader are the parts of kafka-go the queue uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkaGo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// KafkaQueue publishes jobs keyed by record id, so jobs for one record stay
// on one partition. Offsets are committed after the handler returns. A retry
// is published again with a not-before time that the consumer waits out.
type KafkaQueue struct {
	cfg       KafkaConfig
	writer    messageWriter
	newReader func() messageReader
	limiter   port.Limiter
	policy    Policy
	logger    *slog.Logger
}

var _ port.JobQueue = (*KafkaQueue)(nil)

func NewKafkaQueue(cfg KafkaConfig, limiter port.Limiter, policy Policy, logger *slog.Logger) *KafkaQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaQueue{
		cfg: cfg,
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafkaGo.Hash{},
			AllowAutoTopicCreation: true,
		},
		newReader: func() messageReader {
			return kafkaGo.NewReader(kafkaGo.ReaderConfig{
				Brokers: cfg.Brokers,
				Topic:   cfg.Topic,
				GroupID: cfg.GroupID,
			})
		},
		limiter: limiter,
		policy:  policy,
		logger: logger.With(
			slog.String("queue", "kafka"),
			slog.String("topic", cfg.Topic),
		),
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job domain.SyncJob) (string, error) {
	env := envelope{ID: uuid.NewString(), Job: job, Attempt: 1}
	if err := q.publish(ctx, env); err != nil {
		return "", err
	}
	return env.ID, nil
}

func (q *KafkaQueue) publish(ctx context.Context, env envelope) error {
	payload, err := env.encode()
	if err != nil {
		return err
	}
	err = q.writer.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(env.Job.RecordID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", env.ID, err)
	}
	return nil
}

// Consume returns nil once ctx is done. It returns an error when a retry
// cannot be published; the message is then left uncommitted for the group.
func (q *KafkaQueue) Consume(ctx context.Context, handler port.JobHandler) error {
	reader := q.newReader()
	defer reader.Close()

	for {
		ok, err := waitTurn(ctx, q.limiter)
		if !ok {
			return err
		}

		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				q.logger.InfoContext(ctx, "consumer shutting down")
				return nil
			}
			q.logger.ErrorContext(ctx, "fetch message failed", slog.Any("error", err))
			continue
		}

		commit, err := q.handle(ctx, handler, msg)
		if err != nil {
			return err
		}
		if !commit {
			// shutting down: offset stays uncommitted and the group redelivers it
			return nil
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			q.logger.ErrorContext(ctx, "commit failed",
				slog.Int64("offset", msg.Offset), slog.Any("error", err))
		}
	}
}

// handle reports whether msg may be committed. It is false only when ctx is done.
func (q *KafkaQueue) handle(ctx context.Context, handler port.JobHandler, msg kafkaGo.Message) (bool, error) {
	env, err := decodeEnvelope(msg.Value)
	if err != nil {
		q.logger.ErrorContext(ctx, "dropping malformed job",
			slog.Int64("offset", msg.Offset), slog.Any("error", err))
		return true, nil
	}

	if !sleepCtx(ctx, time.Until(env.NotBefore)) {
		return false, nil
	}

	verdict, delay := q.policy.deliver(ctx, q.logger, handler, env)
	switch verdict {
	case leave:
		return false, nil
	case retry:
		env.Attempt++
		env.NotBefore = time.Now().Add(delay)
		if err := q.publish(ctx, env); err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			q.logger.ErrorContext(ctx, "schedule retry failed",
				slog.String("job", env.ID), slog.Any("error", err))
			return false, fmt.Errorf("schedule retry at offset %d: %w", msg.Offset, err)
		}
	}
	return true, nil
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}
