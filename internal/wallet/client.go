// Package wallet reads on-chain account balances for display. It is a
// thin JSON-RPC client over two Ethereum calls: eth_getBalance for the
// native asset and an ERC-20 balanceOf eth_call for the configured
// token contract. Nothing here is ever written on-chain.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// USDTContract is the mainnet Tether contract, the default token whose
// balance is displayed alongside the native ETH balance.
const USDTContract = "0xdAC17F958D2ee523a2206206994597C13D831ec7"

// balanceOfSelector is the 4-byte selector of balanceOf(address).
const balanceOfSelector = "0x70a08231"

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ErrInvalidAddress marks a malformed account address. Every other
// error from Balances is a transport/RPC failure callers may treat as
// transient.
var ErrInvalidAddress = errors.New("invalid address")

// Client is a read-only Ethereum JSON-RPC client.
type Client struct {
	rpcURL        string
	tokenAddr     string
	tokenDecimals int
	httpClient    *http.Client
}

// NewClient creates a wallet client against the given JSON-RPC endpoint
// and ERC-20 token contract. tokenDecimals is the token's display
// precision (6 for USDT).
func NewClient(rpcURL, tokenAddr string, tokenDecimals int) *Client {
	return &Client{
		rpcURL:        rpcURL,
		tokenAddr:     tokenAddr,
		tokenDecimals: tokenDecimals,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Balances holds the display balances of a connected account.
type Balances struct {
	Address string  `json:"address"`
	ETH     float64 `json:"eth"`
	Token   float64 `json:"token"` // in whole token units (e.g. USDT)
}

// Balances fetches the native and token balance for an address.
func (c *Client) Balances(ctx context.Context, address string) (Balances, error) {
	if !addressRe.MatchString(address) {
		return Balances{}, fmt.Errorf("wallet: %w: %q", ErrInvalidAddress, address)
	}

	wei, err := c.call(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return Balances{}, fmt.Errorf("wallet: eth_getBalance: %w", err)
	}

	callObj := map[string]string{
		"to":   c.tokenAddr,
		"data": balanceOfData(address),
	}
	units, err := c.call(ctx, "eth_call", callObj, "latest")
	if err != nil {
		return Balances{}, fmt.Errorf("wallet: balanceOf: %w", err)
	}

	return Balances{
		Address: address,
		ETH:     formatUnits(wei, 18),
		Token:   formatUnits(units, c.tokenDecimals),
	}, nil
}

// balanceOfData builds the eth_call payload: selector plus the address
// left-padded to 32 bytes.
func balanceOfData(address string) string {
	addr := strings.ToLower(strings.TrimPrefix(address, "0x"))
	return balanceOfSelector + strings.Repeat("0", 24) + addr
}

// rpcRequest / rpcResponse are the JSON-RPC 2.0 wire frames.
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

// call performs one JSON-RPC call and decodes the hex result.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc status %d: %s", resp.StatusCode, raw)
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}

	return parseHex(out.Result)
}

// parseHex decodes a 0x-prefixed hex quantity.
func parseHex(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("bad hex quantity %q", s)
	}
	return n, nil
}

// formatUnits converts a raw integer amount to whole units with the
// given number of decimals, as a float64 for display.
func formatUnits(raw *big.Int, decimals int) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), scale).Float64()
	return out
}
