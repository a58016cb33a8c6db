package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/movielist/apiserver/internal/mq"
	"github.com/movielist/apiserver/types"
)

// QueueSender publishes messages for the mail worker.
type QueueSender struct {
	queue   *mq.MQ
	channel string
}

func NewQueueSender(queue *mq.MQ, channel string) *QueueSender {
	return &QueueSender{queue: queue, channel: channel}
}

func (s *QueueSender) Send(ctx context.Context, msg types.Mail) error {
	if _, err := s.queue.PublishJSON(ctx, s.channel, msg); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// Worker drains the mail channel into a Sender.
type Worker struct {
	queue   *mq.MQ
	channel string
	sender  Sender
	logger  *slog.Logger
}

func NewWorker(queue *mq.MQ, channel string, sender Sender, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, channel: channel, sender: sender, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "mail worker started", "channel", w.channel)
	return w.queue.Subscribe(ctx, w.channel, w.handle)
}

func (w *Worker) handle(ctx context.Context, msg mq.Message) error {
	var m types.Mail
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		w.logger.ErrorContext(ctx, "dropping undecodable mail message", "message_id", msg.ID, "error", err)
		return nil
	}
	if err := w.sender.Send(ctx, m); err != nil {
		w.logger.WarnContext(ctx, "mail delivery failed", "message_id", msg.ID, "to", m.To, "error", err)
		return err
	}
	w.logger.InfoContext(ctx, "mail delivered", "message_id", msg.ID, "to", m.To)
	return nil
}
