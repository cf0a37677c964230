package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/httpx"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
)

const defaultBase = "https://api.1inch.dev"

// Client quotes and builds EVM swaps through the 1inch aggregation API.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	chainID int64
	now     func() time.Time
}

func New(httpClient *httpx.Client, apiKey string, chainID int64) *Client {
	return &Client{
		http:    httpClient,
		baseURL: defaultBase,
		apiKey:  apiKey,
		chainID: chainID,
		now:     time.Now,
	}
}

// WithBaseURL points the client at a different endpoint, for tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

func (c *Client) Name() string         { return "1inch" }
func (c *Client) Family() chain.Family { return chain.FamilyEVM }

func (c *Client) Info() model.SourceInfo {
	return model.SourceInfo{Name: c.Name(), Family: c.Family(), RequiresKey: true, CanExecute: true}
}

type quoteResponse struct {
	DstAmount string         `json:"dstAmount"`
	Gas       json.Number    `json:"gas"`
	Protocols [][][]routeHop `json:"protocols"`
}

type routeHop struct {
	Name             string  `json:"name"`
	Part             float64 `json:"part"`
	FromTokenAddress string  `json:"fromTokenAddress"`
	ToTokenAddress   string  `json:"toTokenAddress"`
}

func (c *Client) Quote(ctx context.Context, req sources.Request) (model.Quote, error) {
	if c.apiKey == "" {
		return model.Quote{}, apperr.New(apperr.CodeAuth, "missing required API key for 1inch (TRADEDESK_1INCH_API_KEY)")
	}

	vals := url.Values{}
	vals.Set("src", req.FromToken.Address)
	vals.Set("dst", req.ToToken.Address)
	vals.Set("amount", req.AmountBaseUnits)
	vals.Set("includeGas", "true")
	vals.Set("includeProtocols", "true")

	endpoint := fmt.Sprintf("%s/swap/v6.0/%d/quote?%s", c.baseURL, c.chainID, vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Quote{}, apperr.Wrap(apperr.CodeInternal, "build 1inch quote request", err)
	}
	hReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var raw json.RawMessage
	if _, err := c.http.DoJSON(ctx, hReq, &raw); err != nil {
		return model.Quote{}, err
	}
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Quote{}, apperr.Wrap(apperr.CodeUnavailable, "decode 1inch quote", err)
	}
	if resp.DstAmount == "" {
		return model.Quote{}, apperr.New(apperr.CodeUnavailable, "1inch quote missing destination amount")
	}

	outDecimal := chain.FormatBaseUnitsString(resp.DstAmount, req.ToToken.Decimals)
	return model.Quote{
		ID:     sources.QuoteID(c.Name(), req.FromToken, req.ToToken),
		Source: c.Name(),
		Family: c.Family(),

		FromToken: req.FromToken,
		ToToken:   req.ToToken,
		FromAmount: model.AmountInfo{
			AmountBaseUnits: req.AmountBaseUnits,
			AmountDecimal:   req.AmountDecimal,
			Decimals:        req.FromToken.Decimals,
		},
		ToAmount: model.AmountInfo{
			AmountBaseUnits: resp.DstAmount,
			AmountDecimal:   outDecimal,
			Decimals:        req.ToToken.Decimals,
		},
		Price:          sources.ExecutionPrice(req.AmountDecimal, outDecimal),
		PriceImpactPct: sources.EstimateImpactPct(req.AmountDecimal),
		FeeEstimate:    gasEstimate(resp.Gas),
		Route:          routeFromProtocols(resp.Protocols),
		SlippageBps:    req.SlippageBps,
		FetchedAt:      c.now().UTC(),
		Payload:        raw,
	}, nil
}

type swapResponse struct {
	Tx struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"tx"`
}

// BuildSwap fetches ready-to-sign calldata for a quoted pair. 1inch rebuilds
// the route server-side from the same parameters the quote used.
func (c *Client) BuildSwap(ctx context.Context, quote model.Quote, walletAddress string) (sources.SwapTx, error) {
	if c.apiKey == "" {
		return sources.SwapTx{}, apperr.New(apperr.CodeAuth, "missing required API key for 1inch (TRADEDESK_1INCH_API_KEY)")
	}

	vals := url.Values{}
	vals.Set("src", quote.FromToken.Address)
	vals.Set("dst", quote.ToToken.Address)
	vals.Set("amount", quote.FromAmount.AmountBaseUnits)
	vals.Set("from", walletAddress)
	vals.Set("slippage", strconv.FormatFloat(float64(quote.SlippageBps)/100, 'f', -1, 64))
	vals.Set("disableEstimate", "true")

	endpoint := fmt.Sprintf("%s/swap/v6.0/%d/swap?%s", c.baseURL, c.chainID, vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return sources.SwapTx{}, apperr.Wrap(apperr.CodeInternal, "build 1inch swap request", err)
	}
	hReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var resp swapResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return sources.SwapTx{}, err
	}
	if resp.Tx.Data == "" {
		return sources.SwapTx{}, apperr.New(apperr.CodeUnavailable, "1inch swap missing transaction data")
	}
	return sources.SwapTx{
		Source: c.Name(),
		Data:   resp.Tx.Data,
		To:     resp.Tx.To,
		Value:  resp.Tx.Value,
	}, nil
}

func gasEstimate(gas json.Number) string {
	if gas == "" {
		return ""
	}
	return gas.String() + " gas"
}

func routeFromProtocols(protocols [][][]routeHop) []model.RouteStep {
	var steps []model.RouteStep
	for _, path := range protocols {
		for _, hop := range path {
			for _, leg := range hop {
				steps = append(steps, model.RouteStep{
					Protocol: leg.Name,
					TokenIn:  leg.FromTokenAddress,
					TokenOut: leg.ToTokenAddress,
					Percent:  leg.Part,
				})
			}
		}
	}
	return steps
}
