package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OutboxConfig names the Redis lists used by the outbox.
type OutboxConfig struct {
	QueueKey      string
	DeadLetterKey string
	// PollTimeout bounds each blocking pop so Run notices cancellation.
	PollTimeout time.Duration
	// SendTimeout bounds a detached delivery.
	SendTimeout time.Duration
}

// Outbox queues messages on a Redis list and delivers them from Run
// through the inner notifier. Jobs that exhaust the retry policy move to
// the dead-letter list. When the queue cannot be reached Send delivers on
// a detached goroutine instead.
type Outbox struct {
	client   *redis.Client
	inner    Notifier
	policy   RetryPolicy
	cfg      OutboxConfig
	logger   *zap.Logger
	fallback *Async
}

// NewOutbox wires an outbox around inner.
func NewOutbox(client *redis.Client, inner Notifier, policy RetryPolicy, cfg OutboxConfig, logger *zap.Logger) *Outbox {
	if cfg.QueueKey == "" {
		cfg.QueueKey = "mail:outbox"
	}
	if cfg.DeadLetterKey == "" {
		cfg.DeadLetterKey = cfg.QueueKey + ":dead"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = time.Minute
	}
	return &Outbox{
		client:   client,
		inner:    inner,
		policy:   policy,
		cfg:      cfg,
		logger:   logger,
		fallback: NewAsync(inner, policy, cfg.SendTimeout, logger),
	}
}

// Init initializes the inner notifier.
func (o *Outbox) Init(ctx context.Context) error {
	return o.inner.Init(ctx)
}

// Send enqueues msg. It only fails when msg cannot be encoded.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	j := job{ID: uuid.NewString(), To: msg.To, Subject: msg.Subject, Body: msg.Body, EnqueuedAt: time.Now().UTC()}
	data, err := encodeJob(j)
	if err != nil {
		return err
	}
	if err := o.client.LPush(ctx, o.cfg.QueueKey, data).Err(); err != nil {
		o.logger.Warn("mail outbox unavailable; delivering directly",
			zap.String("job_id", j.ID), zap.Error(err))
		return o.fallback.Send(ctx, msg)
	}
	return nil
}

// Wait blocks until detached deliveries finish.
func (o *Outbox) Wait() {
	o.fallback.Wait()
}

// Run drains the queue until ctx ends.
func (o *Outbox) Run(ctx context.Context) error {
	o.logger.Info("mail outbox worker started", zap.String("queue", o.cfg.QueueKey))
	for {
		if _, err := o.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				o.logger.Info("mail outbox worker stopped")
				return nil
			}
			o.logger.Warn("mail outbox poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(o.cfg.PollTimeout):
			}
		}
	}
}

// ProcessOne pops and delivers at most one job. It reports whether a job
// was handled.
func (o *Outbox) ProcessOne(ctx context.Context) (bool, error) {
	res, err := o.client.BRPop(ctx, o.cfg.PollTimeout, o.cfg.QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// BRPop returns [key, value].
	j, err := decodeJob([]byte(res[1]))
	if err != nil {
		o.logger.Error("dropping undecodable mail job", zap.Error(err))
		return true, nil
	}
	sendErr := o.policy.Do(ctx, func(ctx context.Context) error { return o.inner.Send(ctx, j.message()) })
	if sendErr == nil {
		return true, nil
	}
	o.logger.Error("mail delivery failed; moving to dead letter",
		zap.String("job_id", j.ID), zap.String("to", j.To), zap.Error(sendErr))
	j.LastError = sendErr.Error()
	data, err := encodeJob(j)
	if err != nil {
		return true, err
	}
	return true, o.client.LPush(context.WithoutCancel(ctx), o.cfg.DeadLetterKey, data).Err()
}
