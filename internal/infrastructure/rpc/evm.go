package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zemetsskiy/subgate/internal/domain"
	"github.com/zemetsskiy/subgate/pkg/config"
)

const (
	selectorBalanceOf = "0x70a08231"
	selectorDecimals  = "0x313ce567"
)

// EVMClient talks JSON-RPC to the configured EVM endpoints. One client
// serves every configured network; the network argument selects the
// endpoint and token contract table.
type EVMClient struct {
	chains     config.ChainsConfig
	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.Mutex
	decimals map[string]int // network/token -> decimals resolved on chain
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewEVMClient(chains config.ChainsConfig, logger zerolog.Logger) *EVMClient {
	return &EVMClient{
		chains: chains,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:   logger.With().Str("component", "evm_client").Logger(),
		decimals: make(map[string]int),
	}
}

// Balance returns the address balance for the given token in whole token
// units (ETH for the native token, otherwise the ERC-20 unit).
func (c *EVMClient) Balance(ctx context.Context, network domain.Network, token domain.Token, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid address %q", address)
	}
	if token == domain.TokenETH {
		return c.NativeBalance(ctx, network, address)
	}
	return c.TokenBalance(ctx, network, token, address)
}

// NativeBalance queries eth_getBalance and converts wei to ether.
func (c *EVMClient) NativeBalance(ctx context.Context, network domain.Network, address string) (decimal.Decimal, error) {
	chain, err := c.chain(network)
	if err != nil {
		return decimal.Zero, err
	}

	result, err := c.call(ctx, chain.RPCURL, "eth_getBalance", []interface{}{
		common.HexToAddress(address).Hex(), "latest",
	})
	if err != nil {
		return decimal.Zero, err
	}

	wei, err := parseHexBig(result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed balance for %s on %s: %w", address, network, err)
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

// TokenBalance queries the ERC-20 balanceOf for the address and scales the
// raw units by the token's decimals.
func (c *EVMClient) TokenBalance(ctx context.Context, network domain.Network, token domain.Token, address string) (decimal.Decimal, error) {
	chain, err := c.chain(network)
	if err != nil {
		return decimal.Zero, err
	}
	tokenCfg, ok := chain.Tokens[string(token)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no %s contract configured on %s", token, network)
	}

	calldata := selectorBalanceOf + leftPadAddress(address)
	result, err := c.call(ctx, chain.RPCURL, "eth_call", []interface{}{
		map[string]string{
			"to":   common.HexToAddress(tokenCfg.Contract).Hex(),
			"data": calldata,
		},
		"latest",
	})
	if err != nil {
		return decimal.Zero, err
	}

	raw, err := parseHexBig(result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed %s balance for %s on %s: %w", token, address, network, err)
	}

	decimals := tokenCfg.Decimals
	if decimals == 0 {
		decimals, err = c.tokenDecimals(ctx, network, token, chain.RPCURL, tokenCfg.Contract)
		if err != nil {
			return decimal.Zero, err
		}
	}
	return decimal.NewFromBigInt(raw, int32(-decimals)), nil
}

// tokenDecimals resolves decimals() on chain once per network/token pair.
func (c *EVMClient) tokenDecimals(ctx context.Context, network domain.Network, token domain.Token, rpcURL, contract string) (int, error) {
	key := string(network) + "/" + string(token)

	c.mu.Lock()
	if d, ok := c.decimals[key]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	result, err := c.call(ctx, rpcURL, "eth_call", []interface{}{
		map[string]string{
			"to":   common.HexToAddress(contract).Hex(),
			"data": selectorDecimals,
		},
		"latest",
	})
	if err != nil {
		return 0, err
	}

	v, err := parseHexBig(result)
	if err != nil {
		return 0, fmt.Errorf("malformed decimals for %s on %s: %w", token, network, err)
	}
	d := int(v.Int64())

	c.mu.Lock()
	c.decimals[key] = d
	c.mu.Unlock()

	c.logger.Debug().
		Str("network", string(network)).
		Str("token", string(token)).
		Int("decimals", d).
		Msg("Resolved token decimals")
	return d, nil
}

func (c *EVMClient) chain(network domain.Network) (config.ChainConfig, error) {
	chain, ok := c.chains[string(network)]
	if !ok {
		return config.ChainConfig{}, fmt.Errorf("no RPC endpoint configured for network %s", network)
	}
	return chain, nil
}

func (c *EVMClient) call(ctx context.Context, rpcURL, method string, params []interface{}) (string, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", rpcURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Str("method", method).
			Int("status_code", resp.StatusCode).
			Str("response_body", string(body)).
			Msg("RPC request failed")
		return "", fmt.Errorf("RPC request failed with status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if rpcResp.Result == "" {
		return "", fmt.Errorf("empty RPC result for %s", method)
	}
	return rpcResp.Result, nil
}

func parseHexBig(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}

// leftPadAddress encodes an address as a 32-byte ABI argument.
func leftPadAddress(address string) string {
	hex := strings.ToLower(strings.TrimPrefix(address, "0x"))
	return strings.Repeat("0", 64-len(hex)) + hex
}
