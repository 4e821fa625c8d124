// Package storage handles persistence of subscriptions and suppression records.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"tvalert/pkg/tvalert"
)

const (
	subscriptionPrefix = "sub-"
	suppressionPrefix  = "blk-"
)

// ErrNotFound indicates no record exists for the requested key.
var ErrNotFound = errors.New("storage: object doesn't exist")

// ErrAlreadySuppressed indicates the email is already on the suppression list.
// Unlike token issuance, explicit suppression fails loudly on duplicates: it
// is a direct user action that deserves feedback.
var ErrAlreadySuppressed = errors.New("storage: email already suppressed")

// Store persists one JSON object per subscription and per suppression record,
// in Cloud Storage or a local directory for development.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new storage handler. When localPath is non-empty the store
// reads and writes the local filesystem and never touches Cloud Storage.
func New(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// subscriptionKey generates a stable object name from an email address.
func subscriptionKey(email string) string {
	h := sha256.Sum256([]byte(tvalert.NormalizeEmail(email)))
	return fmt.Sprintf("%s%x.json", subscriptionPrefix, h[:8])
}

// suppressionKey generates a stable object name for a suppression record.
func suppressionKey(email string) string {
	h := sha256.Sum256([]byte(tvalert.NormalizeEmail(email)))
	return fmt.Sprintf("%s%x.json", suppressionPrefix, h[:8])
}

// IsNotFound checks if an error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || (err != nil && strings.Contains(err.Error(), "storage: object doesn't exist"))
}

// SaveSubscription writes a subscription record.
func (s *Store) SaveSubscription(ctx context.Context, sub *tvalert.Subscription) error {
	sub.Email = tvalert.NormalizeEmail(sub.Email)
	key := subscriptionKey(sub.Email)
	s.logger.Debug("Saving subscription", "key", key, "email", sub.Email)

	if err := s.writeObject(ctx, key, sub); err != nil {
		return err
	}

	s.logger.Info("Subscription saved", "key", key, "email", sub.Email, "media_count", len(sub.MediaIDs))
	return nil
}

// LoadSubscription loads a subscription by email. Returns ErrNotFound when no
// record exists.
func (s *Store) LoadSubscription(ctx context.Context, email string) (*tvalert.Subscription, error) {
	data, err := s.readObject(ctx, subscriptionKey(email))
	if err != nil {
		return nil, err
	}

	var sub tvalert.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("unmarshal subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions lists all subscription records.
func (s *Store) ListSubscriptions(ctx context.Context) ([]*tvalert.Subscription, error) {
	var subs []*tvalert.Subscription

	err := s.eachObject(ctx, subscriptionPrefix, func(data []byte, name string) {
		var sub tvalert.Subscription
		if err := json.Unmarshal(data, &sub); err != nil {
			s.logger.Warn("Failed to decode subscription", "key", name, "error", err)
			return
		}
		subs = append(subs, &sub)
	})
	if err != nil {
		return nil, err
	}

	return subs, nil
}

// AddMedia adds a series ID to the email's tracked set, creating the
// subscription record if none exists. Adding an already-tracked ID is a no-op.
func (s *Store) AddMedia(ctx context.Context, email, mediaID string) error {
	email = tvalert.NormalizeEmail(email)

	sub, err := s.LoadSubscription(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			return err
		}
		sub = &tvalert.Subscription{Email: email}
	}

	if sub.Tracks(mediaID) {
		return nil
	}

	sub.MediaIDs = append(sub.MediaIDs, mediaID)
	return s.SaveSubscription(ctx, sub)
}

// RemoveMedia removes a series ID from the email's tracked set. Removing an
// absent ID, or from a missing record, is a no-op rather than an error.
func (s *Store) RemoveMedia(ctx context.Context, email, mediaID string) error {
	email = tvalert.NormalizeEmail(email)

	sub, err := s.LoadSubscription(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}

	if !sub.Tracks(mediaID) {
		return nil
	}

	kept := sub.MediaIDs[:0]
	for _, id := range sub.MediaIDs {
		if id != mediaID {
			kept = append(kept, id)
		}
	}
	sub.MediaIDs = kept

	return s.SaveSubscription(ctx, sub)
}

// MediaIDs returns the tracked series IDs for an email. A missing record
// reads as an empty set.
func (s *Store) MediaIDs(ctx context.Context, email string) ([]string, error) {
	sub, err := s.LoadSubscription(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return sub.MediaIDs, nil
}

// IsSuppressed reports whether the email has opted out.
func (s *Store) IsSuppressed(ctx context.Context, email string) (bool, error) {
	_, err := s.readObject(ctx, suppressionKey(email))
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Suppress adds the email to the suppression list. A second call for the
// same email fails with ErrAlreadySuppressed.
func (s *Store) Suppress(ctx context.Context, email string) error {
	email = tvalert.NormalizeEmail(email)

	suppressed, err := s.IsSuppressed(ctx, email)
	if err != nil {
		return err
	}
	if suppressed {
		return ErrAlreadySuppressed
	}

	rec := &tvalert.Suppression{Email: email, CreatedAt: time.Now().UTC()}
	if err := s.writeObject(ctx, suppressionKey(email), rec); err != nil {
		return err
	}

	s.logger.Info("Email suppressed", "email", email)
	return nil
}

// ListSuppressed returns all suppressed emails.
func (s *Store) ListSuppressed(ctx context.Context) ([]string, error) {
	var emails []string

	err := s.eachObject(ctx, suppressionPrefix, func(data []byte, name string) {
		var rec tvalert.Suppression
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("Failed to decode suppression record", "key", name, "error", err)
			return
		}
		emails = append(emails, rec.Email)
	})
	if err != nil {
		return nil, err
	}

	return emails, nil
}

func (s *Store) writeObject(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	return nil
}

func (s *Store) readObject(ctx context.Context, key string) ([]byte, error) {
	// Local filesystem storage
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, key))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	// Cloud Storage with retry logic for reliability
	var readData []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				// Don't retry on "not found" errors
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(ErrNotFound)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			readData, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load after retries: %w", err)
	}

	return readData, nil
}

func (s *Store) eachObject(ctx context.Context, prefix string, fn func(data []byte, name string)) error {
	// Local filesystem storage
	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			return fmt.Errorf("read local storage directory: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}

			data, err := s.readObject(ctx, entry.Name())
			if err != nil {
				s.logger.Warn("Failed to load record", "file", entry.Name(), "error", err)
				continue
			}
			fn(data, entry.Name())
		}

		return nil
	}

	// Cloud Storage
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("iterate storage: %w", err)
		}

		data, err := s.readObject(ctx, attrs.Name)
		if err != nil {
			s.logger.Warn("Failed to load record", "key", attrs.Name, "error", err)
			continue
		}
		fn(data, attrs.Name)
	}

	return nil
}
