package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"tvalert/pkg/tvalert"
)

// sendLimit caps simultaneous outbound sends. Independent of the lookup
// ceiling; sends for resolved identities may overlap in time with lookups
// still in flight for others.
const sendLimit = 3

// TokenMinter signs fresh tokens for manage/unsubscribe links.
type TokenMinter interface {
	Issue(email string) (tvalert.Token, error)
}

// Notifier delivers the daily notification email.
type Notifier interface {
	SendDailyNotification(ctx context.Context, tok tvalert.Token, showNames []string) error
}

// Dispatcher sends one email per qualifying identity under its own
// concurrency ceiling, isolating individual send failures.
type Dispatcher struct {
	minter TokenMinter
	mailer Notifier
	logger *slog.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(minter TokenMinter, mailer Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		minter: minter,
		mailer: mailer,
		logger: logger,
		sem:    semaphore.NewWeighted(sendLimit),
	}
}

// Dispatch queues a notification send for the identity. Failures are logged,
// never returned: one identity's failed send must not affect any other, nor
// the run's aggregate counts.
func (d *Dispatcher) Dispatch(ctx context.Context, email string, showNames []string) {
	if len(showNames) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.Warn("Send cancelled", "email", email, "error", err)
			return
		}
		defer d.sem.Release(1)

		// Fresh token per send so every email carries a working manage link.
		// Never cached across identities.
		tok, err := d.minter.Issue(email)
		if err != nil {
			d.logger.Warn("Failed to sign notification token", "email", email, "error", err)
			return
		}

		if err := d.mailer.SendDailyNotification(ctx, tok, showNames); err != nil {
			d.logger.Warn("Failed to send notification email", "email", email, "error", err)
			return
		}

		d.logger.Info("Notification email sent", "email", email, "show_count", len(showNames))
	}()
}

// Wait blocks until every queued send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
