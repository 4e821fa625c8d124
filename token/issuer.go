package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tvalert/pkg/tvalert"
)

// Validity is the fixed token lifetime. Not configurable per call.
const Validity = 24 * time.Hour

// SuppressionGate answers whether an email has opted out.
type SuppressionGate interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// MagicLinkMailer delivers a signed token as a login link.
type MagicLinkMailer interface {
	SendMagicLink(ctx context.Context, tok tvalert.Token) error
}

// Issuer mints signed tokens and delivers them by email.
type Issuer struct {
	codec        *Codec
	suppressions SuppressionGate
	mailer       MagicLinkMailer
	logger       *slog.Logger
	now          func() time.Time
}

// NewIssuer creates an issuer. now may be nil, in which case time.Now is used.
func NewIssuer(codec *Codec, suppressions SuppressionGate, mailer MagicLinkMailer, logger *slog.Logger, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		codec:        codec,
		suppressions: suppressions,
		mailer:       mailer,
		logger:       logger,
		now:          now,
	}
}

// Issue signs a fresh token for the email, valid for the fixed window.
func (i *Issuer) Issue(email string) (tvalert.Token, error) {
	email = tvalert.NormalizeEmail(email)
	expires := i.now().Add(Validity).UnixMilli()

	sig, err := i.codec.Sign(email, expires)
	if err != nil {
		return tvalert.Token{}, err
	}

	return tvalert.Token{Email: email, Expires: expires, Signature: sig}, nil
}

// SendMagicLink issues a token and emails it as a login link. If the email is
// suppressed this is a silent no-op: callers observe the same outcome as a
// successful send, so suppression state cannot be probed through this path.
func (i *Issuer) SendMagicLink(ctx context.Context, email string) error {
	email = tvalert.NormalizeEmail(email)

	suppressed, err := i.suppressions.IsSuppressed(ctx, email)
	if err != nil {
		return fmt.Errorf("check suppression: %w", err)
	}
	if suppressed {
		i.logger.Info("Magic link skipped for suppressed email", "email", email)
		return nil
	}

	tok, err := i.Issue(email)
	if err != nil {
		return err
	}

	if err := i.mailer.SendMagicLink(ctx, tok); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}

	i.logger.Info("Magic link sent", "email", email, "expires", tok.Expires)
	return nil
}
