package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tvalert/pkg/tvalert"
)

// slowMailer records its concurrent high-water mark while holding each send
// open briefly.
type slowMailer struct {
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	sent     atomic.Int64
}

func (s *slowMailer) SendDailyNotification(_ context.Context, _ tvalert.Token, _ []string) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxSeen.Load()
		if n <= max || s.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.sent.Add(1)
	return nil
}

func TestDispatchSendCeiling(t *testing.T) {
	mailer := &slowMailer{}
	d := NewDispatcher(&fakeMinter{}, mailer, discardLogger())

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		d.Dispatch(ctx, string(rune('a'+i))+"@example.com", []string{"Severance"})
	}
	d.Wait()

	if got := mailer.sent.Load(); got != 10 {
		t.Errorf("sent %d mails, want 10", got)
	}
	if max := mailer.maxSeen.Load(); max > sendLimit {
		t.Errorf("observed %d concurrent sends, ceiling is %d", max, sendLimit)
	}
}

// TestDispatchMintsFreshTokens verifies each send signs its own token rather
// than reusing one across identities.
func TestDispatchMintsFreshTokens(t *testing.T) {
	minter := &fakeMinter{}
	mailer := &fakeMailer{}
	d := NewDispatcher(minter, mailer, discardLogger())

	ctx := context.Background()
	d.Dispatch(ctx, "a@example.com", []string{"Severance"})
	d.Dispatch(ctx, "b@example.com", []string{"Severance"})
	d.Wait()

	if got := minter.calls.Load(); got != 2 {
		t.Errorf("minter called %d times, want once per send", got)
	}
	if len(mailer.sends) != 2 {
		t.Fatalf("mailer received %d sends, want 2", len(mailer.sends))
	}
	seen := map[string]bool{}
	for _, send := range mailer.sends {
		if seen[send.email] {
			t.Errorf("duplicate send to %s", send.email)
		}
		seen[send.email] = true
	}
}

func TestDispatchEmptyShowListIsNoOp(t *testing.T) {
	minter := &fakeMinter{}
	mailer := &fakeMailer{}
	d := NewDispatcher(minter, mailer, discardLogger())

	d.Dispatch(context.Background(), "a@example.com", nil)
	d.Wait()

	if got := minter.calls.Load(); got != 0 {
		t.Errorf("minter called %d times for an empty show list, want 0", got)
	}
	if len(mailer.sends) != 0 {
		t.Errorf("mailer received %d sends for an empty show list, want 0", len(mailer.sends))
	}
}

// TestDispatchIsolatesMintFailures verifies a token-signing failure for one
// identity does not disturb sends for others.
func TestDispatchIsolatesMintFailures(t *testing.T) {
	mailer := &fakeMailer{}

	failing := NewDispatcher(&fakeMinter{err: errors.New("signing failed")}, mailer, discardLogger())
	failing.Dispatch(context.Background(), "a@example.com", []string{"Severance"})
	failing.Wait()

	if len(mailer.sends) != 0 {
		t.Fatalf("mailer received %d sends after mint failure, want 0", len(mailer.sends))
	}

	working := NewDispatcher(&fakeMinter{}, mailer, discardLogger())
	working.Dispatch(context.Background(), "b@example.com", []string{"Severance"})
	working.Wait()

	if len(mailer.sends) != 1 || mailer.sends[0].email != "b@example.com" {
		t.Errorf("sends = %+v, want a single send to b@example.com", mailer.sends)
	}
}
