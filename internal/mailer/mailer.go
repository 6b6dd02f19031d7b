// Package mailer delivers outbound email. Delivery is best effort: callers
// log Send failures and carry on.
package mailer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrNotInitialized is returned by Send before a successful Init.
var ErrNotInitialized = errors.New("mailer: notifier not initialized")

// Message is one plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier is the delivery contract. Init is called once at startup and
// must succeed before Send is used.
type Notifier interface {
	Init(ctx context.Context) error
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of sending them. It is
// used when no SMTP relay is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Init(context.Context) error { return nil }

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("email (log only)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// Recorder keeps every message in memory. Err, when set, is returned from
// Send after the message is recorded.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) Init(context.Context) error { return nil }

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// SentTo returns the recorded messages addressed to to.
func (r *Recorder) SentTo(to string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.To == to {
			out = append(out, m)
		}
	}
	return out
}
