package pricing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zemetsskiy/subgate/internal/domain"
)

// ethAssetID is the quote-service identifier for the one volatile asset we
// accept. Stablecoins are charged at the catalog's USD figure directly.
const ethAssetID = "ethereum"

type pricingService struct {
	catalog *domain.Catalog
	quotes  QuoteSource
	logger  zerolog.Logger
}

func New(catalog *domain.Catalog, quotes QuoteSource, logger zerolog.Logger) IPricingService {
	return &pricingService{
		catalog: catalog,
		quotes:  quotes,
		logger:  logger.With().Str("component", "pricing").Logger(),
	}
}

func (s *pricingService) Price(ctx context.Context, planID string, token domain.Token) (decimal.Decimal, error) {
	plan, ok := s.catalog.Lookup(planID)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnknownPlan, planID)
	}

	switch token {
	case domain.TokenUSDT, domain.TokenUSDC:
		return plan.PriceUSD, nil
	case domain.TokenETH:
		rate, err := s.quotes.USDRate(ctx, ethAssetID)
		if err != nil {
			s.logger.Error().Err(err).
				Str("plan", planID).
				Msg("Quote service unreachable")
			return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
		}
		amount := plan.PriceUSD.Div(rate)
		s.logger.Info().
			Str("plan", planID).
			Str("rate", rate.String()).
			Str("amount", amount.String()).
			Msg("Priced plan in ETH")
		return amount, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnknownToken, token)
	}
}
