package staterepo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyConfirmedPrefix = "payment_confirmed_"
	keyStartTimePrefix = "payment_start_time_"
	keyEmailPrefix     = "email_"
)

// confirmScript performs the false -> true compare-and-set. It preserves
// the remaining TTL of the flag so a confirmation does not extend the
// attempt's lifetime, and returns 1 only for the call that actually flipped
// the flag.
var confirmScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == "true" then
  return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], "true", "PX", ttl)
else
  redis.call("SET", KEYS[1], "true", "PX", ARGV[1])
end
return 1
`)

type stateStoreImpl struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New builds a Redis-backed state store. ttl is the retention window shared
// by every key belonging to one attempt.
func New(rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) IStateStore {
	return &stateStoreImpl{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "state_store").Logger(),
	}
}

func (s *stateStoreImpl) InitAttempt(ctx context.Context, walletAddress string, startedAt time.Time) error {
	start := strconv.FormatFloat(float64(startedAt.UnixMilli())/1000.0, 'f', 3, 64)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyConfirmedPrefix+walletAddress, "false", s.ttl)
	pipe.Set(ctx, keyStartTimePrefix+walletAddress, start, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to init attempt %s: %w", walletAddress, err)
	}
	return nil
}

func (s *stateStoreImpl) ConfirmPayment(ctx context.Context, walletAddress string) (bool, error) {
	flipped, err := confirmScript.Run(ctx, s.rdb,
		[]string{keyConfirmedPrefix + walletAddress},
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to confirm payment %s: %w", walletAddress, err)
	}
	if flipped == 1 {
		s.logger.Info().
			Str("wallet_address", walletAddress).
			Msg("Payment marked confirmed")
	}
	return flipped == 1, nil
}

func (s *stateStoreImpl) Status(ctx context.Context, walletAddress string) (bool, time.Time, bool, error) {
	values, err := s.rdb.MGet(ctx,
		keyConfirmedPrefix+walletAddress,
		keyStartTimePrefix+walletAddress,
	).Result()
	if err != nil {
		return false, time.Time{}, false, fmt.Errorf("failed to read attempt %s: %w", walletAddress, err)
	}

	confirmedRaw, okConfirmed := values[0].(string)
	startRaw, okStart := values[1].(string)
	if !okConfirmed && !okStart {
		return false, time.Time{}, false, nil
	}

	var startedAt time.Time
	if okStart {
		epoch, err := strconv.ParseFloat(startRaw, 64)
		if err != nil {
			return false, time.Time{}, false, fmt.Errorf("corrupt start time for %s: %w", walletAddress, err)
		}
		startedAt = time.UnixMilli(int64(epoch * 1000))
	}

	return okConfirmed && confirmedRaw == "true", startedAt, true, nil
}

func (s *stateStoreImpl) SetEmail(ctx context.Context, username, email string) error {
	if err := s.rdb.Set(ctx, keyEmailPrefix+username, email, 0).Err(); err != nil {
		return fmt.Errorf("failed to store email for %s: %w", username, err)
	}
	return nil
}

func (s *stateStoreImpl) GetEmail(ctx context.Context, username string) (string, bool, error) {
	email, err := s.rdb.Get(ctx, keyEmailPrefix+username).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read email for %s: %w", username, err)
	}
	return email, true, nil
}
