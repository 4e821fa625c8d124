// Package tvalert contains the core domain types for the TV Alert notification service.
package tvalert

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Token is the stateless bearer credential: the triple is reconstructed and
// verified on every request, never stored server-side.
type Token struct {
	Email     string // Normalized subscriber email
	Expires   int64  // Expiry as Unix milliseconds
	Signature string // Adaptive salted hash over {email, expires, secret}
}

// Query returns the triple in its wire form, as sent in links and re-sent by
// the client on every authenticated request.
func (t Token) Query() url.Values {
	return url.Values{
		"email":     {t.Email},
		"expires":   {strconv.FormatInt(t.Expires, 10)},
		"signature": {t.Signature},
	}
}

// Subscription represents one user's set of tracked series.
type Subscription struct {
	Email    string   `json:"email"`     // Subscriber email, unique key
	MediaIDs []string `json:"media_ids"` // Tracked series IDs, duplicate-free
}

// Tracks reports whether the subscription already tracks the given series.
func (s *Subscription) Tracks(mediaID string) bool {
	for _, id := range s.MediaIDs {
		if id == mediaID {
			return true
		}
	}
	return false
}

// Suppression records an opt-out. Its presence blocks both new magic links
// and authentication for the email.
type Suppression struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ShowSummary is series metadata resolved live from the content API.
type ShowSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	NextAirDate string `json:"nextAiredDate,omitempty"` // ISO date of the next episode, if scheduled
	Image       string `json:"image,omitempty"`
	Overview    string `json:"overview,omitempty"`
}

// NormalizeEmail canonicalizes an email address for use as a storage key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
