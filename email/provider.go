// Package email handles outbound mail via multiple providers.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tvalert/pkg/tvalert"
)

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send sends an email with the given parameters.
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Sender sends TV Alert emails using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	baseURL  string // API base URL for links in emails
	now      func() time.Time
}

// New creates a new email sender with the given provider. now may be nil, in
// which case time.Now is used.
func New(provider Provider, logger *slog.Logger, baseURL string, now func() time.Time) *Sender {
	if now == nil {
		now = time.Now
	}
	return &Sender{
		provider: provider,
		logger:   logger,
		baseURL:  baseURL,
		now:      now,
	}
}

// SendMagicLink emails a login link carrying the signed token triple.
func (s *Sender) SendMagicLink(ctx context.Context, tok tvalert.Token) error {
	link := s.baseURL + "/auth/redirect?" + tok.Query().Encode()
	body := formatMagicLinkBody(link)

	s.logger.Info("Sending magic link email", "to", tok.Email)

	return s.provider.Send(ctx, tok.Email, "Verify Your Email to Access TV Alert", body)
}

// SendDailyNotification emails the list of series premiering today. The token
// is freshly signed by the caller and backs the manage and unsubscribe links.
func (s *Sender) SendDailyNotification(ctx context.Context, tok tvalert.Token, showNames []string) error {
	if len(showNames) == 0 {
		return nil
	}

	manageLink := s.baseURL + "/auth/redirect?" + tok.Query().Encode()
	unsubscribeLink := s.baseURL + "/auth/blacklist?" + tok.Query().Encode()
	body := formatDailyNotificationBody(showNames, manageLink, unsubscribeLink)

	subject := fmt.Sprintf("New Episodes of Your Favorite Shows (%s)", s.now().UTC().Format("January 2"))

	s.logger.Info("Sending daily notification email", "to", tok.Email, "show_count", len(showNames))

	return s.provider.Send(ctx, tok.Email, subject, body)
}
