package pricing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/httpx"
)

const defaultBase = "https://coins.llama.fi"

// Client fetches USD reference prices from DefiLlama. Prices are for display
// next to quotes only and never feed ranking or execution.
type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBase}
}

func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

type pricesResponse struct {
	Coins map[string]struct {
		Price     float64 `json:"price"`
		Symbol    string  `json:"symbol"`
		Timestamp int64   `json:"timestamp"`
	} `json:"coins"`
}

// Prices returns USD prices keyed by token ID for the tokens it knows.
// Missing tokens are simply absent from the result.
func (c *Client) Prices(ctx context.Context, tokens []chain.Token) (map[string]float64, error) {
	if len(tokens) == 0 {
		return map[string]float64{}, nil
	}

	keys := make([]string, 0, len(tokens))
	byKey := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		key := llamaKey(tok)
		keys = append(keys, key)
		byKey[key] = tok.ID
	}

	url := fmt.Sprintf("%s/prices/current/%s", c.baseURL, strings.Join(keys, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "build price request", err)
	}

	var resp pricesResponse
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(resp.Coins))
	cutoff := time.Now().Add(-24 * time.Hour).Unix()
	for key, coin := range resp.Coins {
		tokenID, ok := byKey[key]
		if !ok || coin.Price <= 0 {
			continue
		}
		if coin.Timestamp > 0 && coin.Timestamp < cutoff {
			continue
		}
		out[tokenID] = coin.Price
	}
	return out, nil
}

func llamaKey(tok chain.Token) string {
	switch tok.Family {
	case chain.FamilySolana:
		return "solana:" + tok.Address
	default:
		if chain.AddressEqual(chain.FamilyEVM, tok.Address, chain.NativeETH) {
			return "coingecko:ethereum"
		}
		return "ethereum:" + tok.Address
	}
}
