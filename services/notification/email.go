package notification

import (
	"context"
	"fmt"
	"time"

	"voltslot/models"

	"github.com/mailersend/mailersend-go"
	"go.uber.org/zap"
)

// EmailNotifier sends plain-text email through MailerSend.
type EmailNotifier struct {
	client    *mailersend.Mailersend
	fromEmail string
	fromName  string
	logger    *zap.Logger
}

func NewEmailNotifier(apiKey, fromName, fromEmail string, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailNotifier{
		client:    mailersend.NewMailersend(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger,
	}
}

func (e *EmailNotifier) Channel() string { return "email" }

func (e *EmailNotifier) Notify(ctx context.Context, n models.Notification) error {
	if n.Email == "" {
		return ErrNoRecipient
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	message := e.client.Email.NewMessage()
	message.SetFrom(mailersend.From{Name: e.fromName, Email: e.fromEmail})
	message.SetRecipients([]mailersend.Recipient{{Email: n.Email}})
	message.SetSubject(n.Subject)
	message.SetText(n.Body)

	res, err := e.client.Email.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("email: failed to send: %w", err)
	}
	e.logger.Debug("email sent", zap.String("messageId", res.Header.Get("X-Message-Id")))
	return nil
}
