package watcher

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zemetsskiy/subgate/internal/domain"
	"github.com/zemetsskiy/subgate/internal/repositories/receiptrepo"
	"github.com/zemetsskiy/subgate/internal/repositories/staterepo"
	"github.com/zemetsskiy/subgate/pkg/config"
	"github.com/zemetsskiy/subgate/pkg/currency"
)

type watcherService struct {
	chain         ChainSource
	state         staterepo.IStateStore
	notifier      Notifier
	granter       RoleGranter
	receipts      receiptrepo.IReceiptRepository
	broadcaster   StatusBroadcaster
	config        config.PaymentConfig
	currencyUtils *currency.CurrencyUtils
	logger        zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	sem     chan struct{}
	wg      sync.WaitGroup
}

// New builds the watcher registry. notifier, granter, receipts and
// broadcaster may be nil; the corresponding side effect is skipped.
func New(
	chain ChainSource,
	state staterepo.IStateStore,
	notifier Notifier,
	granter RoleGranter,
	receipts receiptrepo.IReceiptRepository,
	broadcaster StatusBroadcaster,
	cfg config.PaymentConfig,
	logger zerolog.Logger,
) IWatcherService {
	ctx, cancel := context.WithCancel(context.Background())
	return &watcherService{
		chain:         chain,
		state:         state,
		notifier:      notifier,
		granter:       granter,
		receipts:      receipts,
		broadcaster:   broadcaster,
		config:        cfg,
		currencyUtils: currency.NewCurrencyUtils(),
		logger:        logger.With().Str("component", "watcher").Logger(),
		baseCtx:       ctx,
		baseCancel:    cancel,
		cancels:       make(map[string]context.CancelFunc),
		sem:           make(chan struct{}, cfg.MaxWatchers),
	}
}

// Watch registers the attempt and starts its poll loop in the background.
// Capacity is bounded: when every watcher slot is busy the attempt is
// rejected instead of queued, so spikes cannot grow tasks without limit.
func (s *watcherService) Watch(attempt domain.PaymentAttempt) error {
	select {
	case s.sem <- struct{}{}:
	default:
		return domain.ErrTooManyAttempts
	}

	ctx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	if _, exists := s.cancels[attempt.WalletAddress]; exists {
		s.mu.Unlock()
		cancel()
		<-s.sem
		return fmt.Errorf("attempt already being watched for %s", attempt.WalletAddress)
	}
	s.cancels[attempt.WalletAddress] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.cancels, attempt.WalletAddress)
			s.mu.Unlock()
			cancel()
			<-s.sem
			s.wg.Done()
		}()
		s.run(ctx, attempt)
	}()

	return nil
}

func (s *watcherService) Cancel(walletAddress string) {
	s.mu.Lock()
	cancel, ok := s.cancels[walletAddress]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *watcherService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

// Shutdown cancels every running watcher and waits for the loops to exit.
func (s *watcherService) Shutdown() {
	s.baseCancel()
	s.wg.Wait()
}

// run polls the chain until the balance clears the tolerance threshold or
// the attempt window closes. The deadline stop is silent: nothing is
// written, and a later status check reports the timeout.
func (s *watcherService) run(ctx context.Context, attempt domain.PaymentAttempt) {
	deadline := attempt.StartedAt.Add(s.config.Window)
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info().
		Str("wallet_address", attempt.WalletAddress).
		Str("plan", attempt.Plan).
		Str("token", string(attempt.Token)).
		Str("network", string(attempt.Network)).
		Str("expected_amount", attempt.ExpectedAmount.String()).
		Msg("Watching deposit address")

	for {
		if time.Now().After(deadline) {
			s.logger.Info().
				Str("wallet_address", attempt.WalletAddress).
				Msg("Attempt window closed without confirmation")
			return
		}

		if done := s.poll(ctx, attempt); done {
			return
		}

		select {
		case <-ctx.Done():
			s.logger.Info().
				Str("wallet_address", attempt.WalletAddress).
				Msg("Watcher cancelled")
			return
		case <-ticker.C:
		}
	}
}

// poll runs one balance check. It returns true when the loop should stop:
// payment confirmed, or a permanent error.
func (s *watcherService) poll(ctx context.Context, attempt domain.PaymentAttempt) bool {
	balance, err := s.chain.Balance(ctx, attempt.Network, attempt.Token, attempt.WalletAddress)
	if err != nil {
		if isTransientError(err) {
			s.logger.Warn().Err(err).
				Str("wallet_address", attempt.WalletAddress).
				Msg("Transient error reading balance, will retry next tick")
			return false
		}
		s.logger.Error().Err(err).
			Str("wallet_address", attempt.WalletAddress).
			Msg("Permanent error reading balance, stopping watcher")
		return true
	}

	if !s.currencyUtils.MeetsThreshold(balance, attempt.ExpectedAmount, s.config.Tolerance) {
		return false
	}

	first, err := s.state.ConfirmPayment(ctx, attempt.WalletAddress)
	if err != nil {
		s.logger.Error().Err(err).
			Str("wallet_address", attempt.WalletAddress).
			Msg("Failed to persist confirmation, will retry next tick")
		return false
	}

	if first {
		s.logger.Info().
			Str("wallet_address", attempt.WalletAddress).
			Str("balance", balance.String()).
			Str("expected_amount", attempt.ExpectedAmount.String()).
			Msg("Payment confirmed")
		s.settle(ctx, attempt)
	}
	return true
}

// settle runs the confirmation side effects, in order, best effort. Only
// the poll tick that won the confirmed-flag CAS ever gets here, so each
// effect fires at most once per attempt.
func (s *watcherService) settle(ctx context.Context, attempt domain.PaymentAttempt) {
	if s.notifier != nil {
		s.sendConfirmationEmail(ctx, attempt)
	}

	if s.granter != nil {
		bareName := strings.SplitN(attempt.Username, "#", 2)[0]
		if err := s.granter.GrantRole(attempt.UserID, bareName); err != nil {
			s.logger.Error().Err(err).
				Str("wallet_address", attempt.WalletAddress).
				Str("username", bareName).
				Msg("Failed to grant role")
		}
	}

	if s.receipts != nil {
		receipt := domain.Receipt{
			ID:            uuid.New().String(),
			WalletAddress: attempt.WalletAddress,
			Plan:          attempt.Plan,
			Token:         attempt.Token,
			Network:       attempt.Network,
			Amount:        attempt.ExpectedAmount,
			Username:      attempt.Username,
			ConfirmedAt:   time.Now(),
		}
		if err := s.receipts.Create(ctx, receipt); err != nil {
			s.logger.Error().Err(err).
				Str("wallet_address", attempt.WalletAddress).
				Msg("Failed to archive receipt")
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastStatus(attempt.WalletAddress, domain.StatusReport{
			Confirmed: true,
			Timeout:   false,
		})
	}
}

func (s *watcherService) sendConfirmationEmail(ctx context.Context, attempt domain.PaymentAttempt) {
	email, ok, err := s.state.GetEmail(ctx, attempt.Username)
	if err != nil {
		s.logger.Error().Err(err).
			Str("username", attempt.Username).
			Msg("Failed to look up email")
		return
	}
	if !ok {
		s.logger.Info().
			Str("username", attempt.Username).
			Msg("No email on file, skipping notification")
		return
	}

	subject := "Payment confirmed"
	body := fmt.Sprintf(
		"Your payment for the %s plan has been confirmed.\n\nAmount: %s %s\nAddress: %s\n",
		attempt.Plan,
		s.currencyUtils.FormatAmount(attempt.ExpectedAmount),
		attempt.Token,
		attempt.WalletAddress,
	)
	if err := s.notifier.Send(email, subject, body); err != nil {
		s.logger.Error().Err(err).
			Str("recipient", email).
			Msg("Failed to send confirmation email")
	}
}

func isTransientError(err error) bool {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "RPC request failed with status") {
		if strings.Contains(msg, "429") {
			return true
		}
		if strings.Contains(msg, "400") || strings.Contains(msg, "401") {
			return false
		}
		return true
	}
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "context deadline exceeded") {
		return true
	}

	if strings.Contains(msg, "no RPC endpoint configured") ||
		strings.Contains(msg, "contract configured") ||
		strings.Contains(msg, "invalid address") ||
		strings.Contains(msg, "failed to parse JSON response") {
		return false
	}

	return true
}
