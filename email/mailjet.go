package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

// MailjetProvider sends emails via the Mailjet API.
type MailjetProvider struct {
	client   *mailjet.Client
	logger   *slog.Logger
	fromAddr string
	fromName string
}

// NewMailjetProvider creates a new Mailjet email provider.
func NewMailjetProvider(publicKey, privateKey, fromAddr, fromName string, logger *slog.Logger) *MailjetProvider {
	return &MailjetProvider{
		client:   mailjet.NewMailjetClient(publicKey, privateKey),
		logger:   logger,
		fromAddr: fromAddr,
		fromName: fromName,
	}
}

// Send sends an email via the Mailjet API.
func (m *MailjetProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	messages := mailjet.MessagesV31{
		Info: []mailjet.InfoMessagesV31{{
			From: &mailjet.RecipientV31{
				Email: m.fromAddr,
				Name:  m.fromName,
			},
			To: &mailjet.RecipientsV31{
				mailjet.RecipientV31{Email: to},
			},
			Subject:  subject,
			HTMLPart: htmlBody,
		}},
	}

	return retry.Do(
		func() error {
			startTime := time.Now()
			_, err := m.client.SendMailV31(&messages)
			duration := time.Since(startTime)

			if err != nil {
				m.logger.Warn("Mailjet send failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return fmt.Errorf("send mail: %w", err)
			}

			m.logger.Info("Mailjet send completed",
				"to", to,
				"duration_ms", duration.Milliseconds(),
				"status", "success")

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Info("Retrying Mailjet email send after error", "attempt", n, "error", err)
		}),
	)
}
