package token

import (
	"context"
	"fmt"
	"time"

	"tvalert/pkg/tvalert"
)

// Verdict is the terminal state of one verification attempt.
type Verdict int

const (
	// Authenticated means the token is usable for the requested operation.
	Authenticated Verdict = iota
	// InvalidSignature means the token was not produced by this server.
	InvalidSignature
	// Expired means the signature is valid but the validity window has passed.
	Expired
	// Suppressed means the email has opted out of the service.
	Suppressed
)

// String returns the rejection label used in logs and error redirects.
func (v Verdict) String() string {
	switch v {
	case Authenticated:
		return "authenticated"
	case InvalidSignature:
		return "invalid_signature"
	case Expired:
		return "expired"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a verification attempt. Email is set only when
// the verdict is Authenticated.
type Result struct {
	Email   string
	Verdict Verdict
}

// Verifier proves that a token triple was issued by this server and is still
// usable. Checks run strictly in order: signature, then expiry, then
// suppression. An invalid signature makes the other fields untrustworthy,
// and an expired token must not consume a suppression lookup.
type Verifier struct {
	codec        *Codec
	suppressions SuppressionGate
	now          func() time.Time
}

// NewVerifier creates a verifier. now may be nil, in which case time.Now is used.
func NewVerifier(codec *Codec, suppressions SuppressionGate, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{codec: codec, suppressions: suppressions, now: now}
}

// Verify runs the full state machine, including the suppression check.
// The returned error is reserved for suppression-store failures; every
// protocol-level failure is expressed as a rejected Result.
func (v *Verifier) Verify(ctx context.Context, tok tvalert.Token) (Result, error) {
	res := v.verifySignatureAndExpiry(tok)
	if res.Verdict != Authenticated {
		return res, nil
	}

	suppressed, err := v.suppressions.IsSuppressed(ctx, res.Email)
	if err != nil {
		return Result{Verdict: Suppressed}, fmt.Errorf("check suppression: %w", err)
	}
	if suppressed {
		return Result{Verdict: Suppressed}, nil
	}

	return res, nil
}

// VerifyForSuppression checks signature and expiry only. The blacklist
// confirmation flow must accept tokens for already-suppressed emails; there,
// duplicate suppression is itself the terminal error.
func (v *Verifier) VerifyForSuppression(tok tvalert.Token) Result {
	return v.verifySignatureAndExpiry(tok)
}

func (v *Verifier) verifySignatureAndExpiry(tok tvalert.Token) Result {
	email := tvalert.NormalizeEmail(tok.Email)

	if !v.codec.Verify(email, tok.Expires, tok.Signature) {
		return Result{Verdict: InvalidSignature}
	}

	if v.now().UnixMilli() > tok.Expires {
		return Result{Verdict: Expired}
	}

	return Result{Email: email, Verdict: Authenticated}
}
