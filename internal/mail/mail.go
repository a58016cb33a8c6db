// Package mail delivers recovery codes. The API server either sends directly
// over SMTP, hands messages to the queue for the mail worker, or, in
// development, only logs them.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/movielist/apiserver/config"
	"github.com/movielist/apiserver/internal/mq"
	"github.com/movielist/apiserver/types"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg types.Mail) error
}

// NewFromConfig returns the sender selected by cfg.Transport. queue is only
// required for the "queue" transport.
func NewFromConfig(cfg config.MailConfig, queue *mq.MQ, logger *slog.Logger) (Sender, error) {
	switch cfg.Transport {
	case "smtp":
		return NewSMTPSender(cfg.SMTP)
	case "queue":
		if queue == nil {
			return nil, errors.New("mail transport queue requires a message queue")
		}
		return NewQueueSender(queue, cfg.Channel), nil
	case "log":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}

// LogSender records that a message would have been sent. The body is never
// logged since it carries the recovery code.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg types.Mail) error {
	s.logger.InfoContext(ctx, "mail not delivered (log transport)",
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return nil
}
