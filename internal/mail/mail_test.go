package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movielist/apiserver/config"
	"github.com/movielist/apiserver/internal/mq"
	"github.com/movielist/apiserver/types"
)

// loopback delivers each published message straight to the subscriber.
type loopback struct {
	published [][]byte
	handler   mq.Handler
}

func (l *loopback) Publish(_ context.Context, _ string, data []byte, _ map[string]string) (string, error) {
	l.published = append(l.published, data)
	return "id", nil
}

func (l *loopback) Subscribe(ctx context.Context, _ string, handler mq.Handler) error {
	var errs []error
	for _, data := range l.published {
		if err := handler(ctx, mq.Message{ID: "id", Data: data}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *loopback) Close() error { return nil }

type captureSender struct {
	sent []types.Mail
	err  error
}

func (c *captureSender) Send(_ context.Context, msg types.Mail) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueSenderAndWorker(t *testing.T) {
	backend := &loopback{}
	queue := mq.New(backend)
	ctx := context.Background()

	msg := types.Mail{To: "reader@example.com", Subject: "OTP for Forgot Password request", Body: "123456"}
	require.NoError(t, NewQueueSender(queue, "mail.outbound").Send(ctx, msg))
	require.Len(t, backend.published, 1)

	sink := &captureSender{}
	require.NoError(t, NewWorker(queue, "mail.outbound", sink, discardLogger()).Run(ctx))
	assert.Equal(t, []types.Mail{msg}, sink.sent)
}

func TestWorkerDropsUndecodable(t *testing.T) {
	backend := &loopback{published: [][]byte{[]byte("not json")}}
	sink := &captureSender{}

	require.NoError(t, NewWorker(mq.New(backend), "mail.outbound", sink, discardLogger()).Run(context.Background()))
	assert.Empty(t, sink.sent)
}

func TestWorkerNacksFailedDelivery(t *testing.T) {
	backend := &loopback{}
	queue := mq.New(backend)
	require.NoError(t, NewQueueSender(queue, "c").Send(context.Background(), types.Mail{To: "a@b.c"}))

	boom := errors.New("relay down")
	err := NewWorker(queue, "c", &captureSender{err: boom}, discardLogger()).Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewFromConfig(t *testing.T) {
	s, err := NewFromConfig(config.MailConfig{Transport: "log"}, nil, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	_, err = NewFromConfig(config.MailConfig{}, nil, discardLogger())
	assert.EqualError(t, err, `unknown mail transport ""`)

	_, err = NewFromConfig(config.MailConfig{Transport: "queue"}, nil, discardLogger())
	assert.Error(t, err)

	_, err = NewFromConfig(config.MailConfig{Transport: "smtp"}, nil, discardLogger())
	assert.EqualError(t, err, "SMTP host is required")

	s, err = NewFromConfig(config.MailConfig{
		Transport: "smtp",
		SMTP:      config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"},
	}, nil, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)
}

func TestLogSenderOmitsBody(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, s.Send(context.Background(), types.Mail{
		To:      "reader@example.com",
		Subject: "OTP for Forgot Password request",
		Body:    "This is the OTP for your Forgot Password request: 482913",
	}))

	assert.Contains(t, buf.String(), "reader@example.com")
	assert.NotContains(t, buf.String(), "482913")
}

func TestSMTPMessage(t *testing.T) {
	s, err := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: 465, From: "noreply@example.com", FromName: "Movielist", TLS: true})
	require.NoError(t, err)

	m, err := s.message(types.Mail{To: "reader@example.com", Subject: "hi", Body: "body"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, m.GetGenHeader("Subject"))

	_, err = s.message(types.Mail{To: "not an address"})
	assert.ErrorContains(t, err, "setting to address")
	assert.Len(t, s.options(), 3)
}
