// Package pipeline implements the nightly notification run: bounded fan-out
// over all non-suppressed subscriptions, the premiering-today test, and
// rate-limited dispatch of notification emails.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"tvalert/pkg/tvalert"
	"tvalert/tvdb"
)

// lookupLimit caps in-flight metadata lookups across the entire run. The
// content API is rate-limited, so this is a single global ceiling, not a
// per-subscription one.
const lookupLimit = 10

// ContentLookup resolves a series ID to its metadata.
type ContentLookup interface {
	Show(ctx context.Context, mediaID string) (*tvalert.ShowSummary, error)
}

// Source supplies the subscription and suppression sets for a run.
type Source interface {
	ListSubscriptions(ctx context.Context) ([]*tvalert.Subscription, error)
	ListSuppressed(ctx context.Context) ([]string, error)
}

// Report summarizes one pipeline run. Dispatched counts identities handed to
// the dispatcher: eligibility, not confirmed delivery.
type Report struct {
	Dispatched int
	Processed  int
}

// Pipeline orchestrates one nightly run.
type Pipeline struct {
	source     Source
	lookup     ContentLookup
	dispatcher *Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a pipeline. now may be nil, in which case time.Now is used.
func New(source Source, lookup ContentLookup, dispatcher *Dispatcher, logger *slog.Logger, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		source:     source,
		lookup:     lookup,
		dispatcher: dispatcher,
		logger:     logger,
		now:        now,
	}
}

// Run executes one full lookup-filter-dispatch cycle. Every subscription is
// attempted regardless of other subscriptions' outcomes; only a failure to
// load the input sets aborts the run.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	p.logger.Info("Starting nightly poll")

	suppressed, err := p.source.ListSuppressed(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list suppressed emails: %w", err)
	}
	blocked := make(map[string]bool, len(suppressed))
	for _, email := range suppressed {
		blocked[tvalert.NormalizeEmail(email)] = true
	}

	subs, err := p.source.ListSubscriptions(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list subscriptions: %w", err)
	}

	// One global ceiling for the whole run.
	sem := semaphore.NewWeighted(lookupLimit)
	now := p.now()

	var dispatched atomic.Int64
	var wg sync.WaitGroup

	for _, sub := range subs {
		if blocked[tvalert.NormalizeEmail(sub.Email)] {
			p.logger.Debug("Skipping suppressed subscription", "email", sub.Email)
			continue
		}

		wg.Add(1)
		go func(sub *tvalert.Subscription) {
			defer wg.Done()

			names := p.premieringToday(ctx, sem, sub, now)
			if len(names) == 0 {
				return
			}

			// The counter reflects hand-off, not confirmed delivery: a send
			// failure reported later must not change the run's numbers.
			dispatched.Add(1)
			p.dispatcher.Dispatch(ctx, sub.Email, names)
		}(sub)
	}

	wg.Wait()
	p.dispatcher.Wait()

	report := Report{
		Dispatched: int(dispatched.Load()),
		Processed:  len(subs),
	}

	p.logger.Info("Nightly poll completed",
		"dispatched", report.Dispatched,
		"processed", report.Processed)

	return report, nil
}

// premieringToday resolves the subscription's tracked series and returns the
// names of those premiering today. A failed lookup is logged and excluded; it
// never aborts the identity's other lookups.
func (p *Pipeline) premieringToday(ctx context.Context, sem *semaphore.Weighted, sub *tvalert.Subscription, now time.Time) []string {
	var (
		mu    sync.Mutex
		names []string
		wg    sync.WaitGroup
	)

	for _, mediaID := range sub.MediaIDs {
		wg.Add(1)
		go func(mediaID string) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				p.logger.Warn("Lookup cancelled", "email", sub.Email, "media_id", mediaID, "error", err)
				return
			}
			defer sem.Release(1)

			show, err := p.lookup.Show(ctx, mediaID)
			if err != nil {
				p.logger.Warn("Failed to retrieve media content", "email", sub.Email, "media_id", mediaID, "error", err)
				return
			}

			if tvdb.PremieresToday(show, now) {
				mu.Lock()
				names = append(names, show.Name)
				mu.Unlock()
			}
		}(mediaID)
	}

	wg.Wait()
	return names
}
