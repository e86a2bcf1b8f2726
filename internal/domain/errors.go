package domain

import "errors"

var (
	// ErrPriceUnavailable means the live quote service could not supply an
	// exchange rate; pricing must abort before any wallet is issued.
	ErrPriceUnavailable = errors.New("price unavailable")

	ErrUnknownPlan     = errors.New("unknown plan")
	ErrUnknownToken    = errors.New("unknown token")
	ErrUnknownNetwork  = errors.New("unknown network")
	ErrNoSession       = errors.New("payment session not started")
	ErrTooManyAttempts = errors.New("too many concurrent payment attempts")

	ErrGuildNotFound  = errors.New("guild not found")
	ErrMemberNotFound = errors.New("guild member not found")
	ErrRoleNotFound   = errors.New("guild role not found")
)
