package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SMTPConfig addresses the relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends through an SMTP relay with retries.
type SMTPNotifier struct {
	cfg    SMTPConfig
	policy RetryPolicy
	logger *zap.Logger
	send   sendFunc
	ready  atomic.Bool
}

// NewSMTPNotifier builds a notifier; call Init before Send.
func NewSMTPNotifier(cfg SMTPConfig, policy RetryPolicy, logger *zap.Logger) *SMTPNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPNotifier{cfg: cfg, policy: policy, logger: logger, send: smtp.SendMail}
}

// Init validates the configuration and probes the relay. An unreachable
// relay is logged but not fatal; Send retries per message.
func (n *SMTPNotifier) Init(ctx context.Context) error {
	if n.cfg.Host == "" {
		return errors.New("mailer: smtp host required")
	}
	if n.cfg.From == "" {
		return errors.New("mailer: sender address required")
	}
	dialer := net.Dialer{Timeout: n.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.addr())
	if err != nil {
		n.logger.Warn("smtp relay unreachable at startup", zap.String("addr", n.addr()), zap.Error(err))
	} else {
		_ = conn.Close()
	}
	n.ready.Store(true)
	return nil
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if !n.ready.Load() {
		return ErrNotInitialized
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("mailer: recipient required")
	}
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	body := compose(n.cfg.From, msg, time.Now())
	return n.policy.Do(ctx, func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- n.send(n.addr(), auth, n.cfg.From, []string{msg.To}, body) }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (n *SMTPNotifier) addr() string {
	return net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
}

var headerSanitizer = strings.NewReplacer("\r", " ", "\n", " ")

func compose(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerSanitizer.Replace(from))
	fmt.Fprintf(&b, "To: %s\r\n", headerSanitizer.Replace(msg.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", headerSanitizer.Replace(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
