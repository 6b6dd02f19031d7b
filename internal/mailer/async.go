package mailer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async delivers each message on its own goroutine so callers never wait
// on the relay. Failures after retries are logged.
type Async struct {
	inner   Notifier
	policy  RetryPolicy
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps inner.
func NewAsync(inner Notifier, policy RetryPolicy, timeout time.Duration, logger *zap.Logger) *Async {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Async{inner: inner, policy: policy, timeout: timeout, logger: logger}
}

func (a *Async) Init(ctx context.Context) error {
	return a.inner.Init(ctx)
}

// Send returns immediately. The delivery context is detached from ctx so
// it outlives the request that triggered it.
func (a *Async) Send(ctx context.Context, msg Message) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		err := a.policy.Do(sendCtx, func(ctx context.Context) error { return a.inner.Send(ctx, msg) })
		if err != nil {
			a.logger.Error("mail delivery failed", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (a *Async) Wait() {
	a.wg.Wait()
}
