package watcher

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/zemetsskiy/subgate/internal/domain"
)

// ChainSource reads a deposit address's token balance.
type ChainSource interface {
	Balance(ctx context.Context, network domain.Network, token domain.Token, address string) (decimal.Decimal, error)
}

// Notifier delivers the plain-text confirmation email.
type Notifier interface {
	Send(recipient, subject, body string) error
}

// RoleGranter attaches the entitlement role to a guild member.
type RoleGranter interface {
	GrantRole(userID, displayName string) error
}

// StatusBroadcaster pushes a status report to live status subscribers.
type StatusBroadcaster interface {
	BroadcastStatus(walletAddress string, report domain.StatusReport)
}

// IWatcherService tracks in-flight payment attempts. Each Watch call runs
// one bounded background poll loop against the attempt's deposit address.
type IWatcherService interface {
	Watch(attempt domain.PaymentAttempt) error
	Cancel(walletAddress string)
	Active() int
	Shutdown()
}
