package staterepo

import (
	"context"
	"time"
)

// IStateStore is the ephemeral bookkeeping behind a payment attempt: the
// confirmed flag and start timestamp, both expiring together, plus the
// email-by-username identity records, which do not expire.
type IStateStore interface {
	// InitAttempt records a fresh attempt: confirmed=false and the start
	// time, both under the attempt TTL.
	InitAttempt(ctx context.Context, walletAddress string, startedAt time.Time) error

	// ConfirmPayment flips the confirmed flag false -> true atomically and
	// reports whether this call performed the transition. The flag never
	// transitions back.
	ConfirmPayment(ctx context.Context, walletAddress string) (bool, error)

	// Status returns the confirmed flag and start time for an attempt.
	// ok is false when no attempt record exists (never started or expired).
	Status(ctx context.Context, walletAddress string) (confirmed bool, startedAt time.Time, ok bool, err error)

	SetEmail(ctx context.Context, username, email string) error
	GetEmail(ctx context.Context, username string) (string, bool, error)
}
