package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeVerificationEmail delivers an email verification link.
	TaskTypeVerificationEmail = "mail:verification"
)

// VerificationEmailPayload describes one verification mail.
type VerificationEmailPayload struct {
	To    string `json:"to"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// NewVerificationEmailTask constructs an Asynq task.
func NewVerificationEmailTask(payload VerificationEmailPayload) (*asynq.Task, error) {
	if payload.To == "" || payload.Token == "" {
		return nil, fmt.Errorf("jobs: verification mail needs recipient and token")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeVerificationEmail, data, asynq.MaxRetry(5)), nil
}

// Message is a rendered transactional mail.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Delivery hands a rendered message to a transport.
type Delivery interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogDelivery writes messages to the log instead of sending them. It backs
// development and test environments.
type LogDelivery struct {
	Logger *slog.Logger
}

// Deliver implements Delivery.
func (d LogDelivery) Deliver(ctx context.Context, msg Message) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail delivered",
		slog.String("from", msg.From),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// VerificationMailer renders verification tasks into messages.
type VerificationMailer struct {
	Delivery Delivery
	// BaseURL is the public origin used to build the verification link.
	BaseURL string
	From    string
}

// VerificationLink returns the link a user follows to verify token.
func (m VerificationMailer) VerificationLink(token string) string {
	return strings.TrimRight(m.BaseURL, "/") + "/verify-email?" + url.Values{"token": {token}}.Encode()
}

// Handle processes TaskTypeVerificationEmail tasks.
func (m VerificationMailer) Handle(ctx context.Context, t *asynq.Task) error {
	var payload VerificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: decode verification payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" || payload.Token == "" {
		return fmt.Errorf("jobs: incomplete verification payload: %w", asynq.SkipRetry)
	}
	name := payload.Name
	if name == "" {
		name = "there"
	}
	return m.Delivery.Deliver(ctx, Message{
		From:    m.From,
		To:      payload.To,
		Subject: "Verify your CivicConnect email address",
		Body: fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening the link below. It expires in 24 hours.\n\n%s\n",
			name, m.VerificationLink(payload.Token)),
	})
}
