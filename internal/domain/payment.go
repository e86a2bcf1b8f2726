package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Token string

const (
	TokenETH  Token = "ETH"
	TokenUSDT Token = "USDT"
	TokenUSDC Token = "USDC"
)

type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
	NetworkArbitrum Network = "arbitrum"
	NetworkSepolia  Network = "sepolia"
)

type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusConfirmed AttemptStatus = "confirmed"
	AttemptStatusExpired   AttemptStatus = "expired"
)

// PaymentAttempt is one deposit watch: a freshly issued wallet address, the
// amount expected on it, and the identity of the buyer. Addresses are never
// reused, so the wallet address doubles as the attempt key.
type PaymentAttempt struct {
	ID             string          `json:"id"`
	WalletAddress  string          `json:"wallet_address"`
	Plan           string          `json:"plan"`
	Token          Token           `json:"token"`
	Network        Network         `json:"network"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	Username       string          `json:"username"`
	UserID         string          `json:"user_id"`
	StartedAt      time.Time       `json:"started_at"`
}

// StatusReport is what the status endpoint hands back to the polling client.
type StatusReport struct {
	Confirmed        bool   `json:"payment_confirmed"`
	Timeout          bool   `json:"payment_timeout"`
	SecondsRemaining int64  `json:"seconds_remaining,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Receipt is the durable record written once a deposit is confirmed.
type Receipt struct {
	ID            string          `json:"id"`
	WalletAddress string          `json:"wallet_address"`
	Plan          string          `json:"plan"`
	Token         Token           `json:"token"`
	Network       Network         `json:"network"`
	Amount        decimal.Decimal `json:"amount"`
	Username      string          `json:"username"`
	ConfirmedAt   time.Time       `json:"confirmed_at"`
}

func ParseToken(s string) (Token, bool) {
	switch Token(strings.ToUpper(s)) {
	case TokenETH:
		return TokenETH, true
	case TokenUSDT:
		return TokenUSDT, true
	case TokenUSDC:
		return TokenUSDC, true
	}
	return "", false
}

func ParseNetwork(s string) (Network, bool) {
	switch Network(strings.ToLower(s)) {
	case NetworkEthereum:
		return NetworkEthereum, true
	case NetworkPolygon:
		return NetworkPolygon, true
	case NetworkArbitrum:
		return NetworkArbitrum, true
	case NetworkSepolia:
		return NetworkSepolia, true
	}
	return "", false
}
