// Package tvdb is the client for the external show-metadata API. Lookups are
// live; nothing is cached, and each series ID can fail independently.
package tvdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"tvalert/pkg/tvalert"
)

// Client fetches series metadata.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
}

// New creates a metadata client for the given API base URL.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Show resolves one series ID to its metadata.
func (c *Client) Show(ctx context.Context, mediaID string) (*tvalert.ShowSummary, error) {
	var show tvalert.ShowSummary
	if err := c.getJSON(ctx, c.baseURL+"/shows/"+url.PathEscape(mediaID), &show); err != nil {
		return nil, fmt.Errorf("fetch show %s: %w", mediaID, err)
	}
	return &show, nil
}

// Search finds series matching the query.
func (c *Client) Search(ctx context.Context, query string) ([]tvalert.ShowSummary, error) {
	var shows []tvalert.ShowSummary
	u := c.baseURL + "/search?query=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, u, &shows); err != nil {
		return nil, fmt.Errorf("search shows: %w", err)
	}
	return shows, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			if c.apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", u, err)
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			// Client errors won't heal on retry; server errors might.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d for %s", resp.StatusCode, u))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d for %s", resp.StatusCode, u)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if err := json.Unmarshal(body, v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying metadata fetch after error", "attempt", n, "url", u, "error", err)
		}),
	)
}

// PremieresToday reports whether the show's next air date falls on the same
// UTC calendar date as now. Time of day and zone offsets are ignored beyond
// the UTC interpretation.
func PremieresToday(show *tvalert.ShowSummary, now time.Time) bool {
	if show.NextAirDate == "" {
		return false
	}

	aired, err := parseAirDate(show.NextAirDate)
	if err != nil {
		return false
	}

	y1, m1, d1 := aired.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func parseAirDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
