// Package worker runs background loops that live for the whole process.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Queue is a mail queue drained by Run until its context ends. Wait
// blocks until deliveries started outside Run have finished.
type Queue interface {
	Run(ctx context.Context) error
	Wait()
}

// MailWorker drains a mail queue on its own goroutine.
type MailWorker struct {
	queue  Queue
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMailWorker builds a worker for queue.
func NewMailWorker(queue Queue, logger *zap.Logger) *MailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailWorker{queue: queue, logger: logger}
}

// Start launches the drain loop. It is a no-op while already running.
func (w *MailWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := w.queue.Run(ctx); err != nil {
			w.logger.Error("mail worker exited", zap.Error(err))
		}
	}(w.done)
}

// Stop cancels the loop and waits for it and any detached deliveries.
func (w *MailWorker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	w.queue.Wait()
}
