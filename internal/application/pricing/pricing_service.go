package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/zemetsskiy/subgate/internal/domain"
)

// QuoteSource supplies a live USD exchange rate for a quote-service asset
// identifier (e.g. "ethereum").
type QuoteSource interface {
	USDRate(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// IPricingService converts a plan and payment token into the amount the
// buyer owes on chain.
type IPricingService interface {
	Price(ctx context.Context, planID string, token domain.Token) (decimal.Decimal, error)
}
