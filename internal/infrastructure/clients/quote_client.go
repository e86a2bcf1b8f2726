package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zemetsskiy/subgate/pkg/config"
)

// QuoteClient fetches live USD exchange rates from the CoinGecko simple
// price API. Pricing uses it to convert a plan's fixed USD figure into the
// equivalent amount of a volatile asset.
type QuoteClient struct {
	baseURL    string
	httpClient *http.Client
	config     *config.QuoteConfig
	logger     zerolog.Logger
}

func NewQuoteClient(cfg *config.QuoteConfig, logger zerolog.Logger) *QuoteClient {
	return &QuoteClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		config: cfg,
		logger: logger.With().Str("component", "coingecko_client").Logger(),
	}
}

// USDRate returns the current USD price of one unit of the given asset.
func (c *QuoteClient) USDRate(ctx context.Context, assetID string) (decimal.Decimal, error) {
	return c.usdRateWithRetry(ctx, assetID, 0)
}

func (c *QuoteClient) usdRateWithRetry(ctx context.Context, assetID string, attempt int) (decimal.Decimal, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = "/api/v3/simple/price"
	q := u.Query()
	q.Set("ids", assetID)
	q.Set("vs_currencies", "usd")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creating request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if shouldRetry(err) && attempt < c.config.MaxRetries {
			backoff := calculateBackoff(attempt, c.config.RetryBackoffBase)
			c.logger.Info().
				Err(err).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Quote request failed, retrying after backoff")
			time.Sleep(backoff)
			return c.usdRateWithRetry(ctx, assetID, attempt+1)
		}
		return decimal.Zero, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if shouldRetryStatusCode(resp.StatusCode) && attempt < c.config.MaxRetries {
			backoff := calculateBackoff(attempt, c.config.RetryBackoffBase)
			c.logger.Warn().
				Int("status_code", resp.StatusCode).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Quote service returned non-200, retrying after backoff")
			time.Sleep(backoff)
			return c.usdRateWithRetry(ctx, assetID, attempt+1)
		}
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("quote service HTTP error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading response body failed: %w", err)
	}

	return parseSimplePrice(body, assetID)
}

func parseSimplePrice(body []byte, assetID string) (decimal.Decimal, error) {
	var payload map[string]map[string]json.Number
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("parsing JSON response failed: %w", err)
	}

	asset, ok := payload[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("asset %s missing from quote response", assetID)
	}
	usd, ok := asset["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("usd rate missing for asset %s", assetID)
	}

	rate, err := decimal.NewFromString(usd.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate format: %w", err)
	}
	if rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive rate %s for asset %s", rate, assetID)
	}
	return rate, nil
}

func shouldRetry(err error) bool {
	if err, ok := err.(interface{ Timeout() bool }); ok && err.Timeout() {
		return true
	}
	if err, ok := err.(interface{ Temporary() bool }); ok && err.Temporary() {
		return true
	}
	return false
}

func shouldRetryStatusCode(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

func calculateBackoff(attempt, base int) time.Duration {
	if base <= 0 {
		base = 2
	}
	backoff := time.Duration(base<<attempt) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
