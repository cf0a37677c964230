package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/httpx"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
)

const (
	defaultLiteBase = "https://lite-api.jup.ag/swap/v1"
	defaultProBase  = "https://api.jup.ag/swap/v1"
)

// Client quotes and builds Solana swaps through the Jupiter aggregator.
// Works without a key on the lite tier; a key switches to the pro endpoint.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	apiKey = strings.TrimSpace(apiKey)
	baseURL := defaultLiteBase
	if apiKey != "" {
		baseURL = defaultProBase
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		apiKey:  apiKey,
		now:     time.Now,
	}
}

func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

func (c *Client) Name() string         { return "jupiter" }
func (c *Client) Family() chain.Family { return chain.FamilySolana }

func (c *Client) Info() model.SourceInfo {
	return model.SourceInfo{Name: c.Name(), Family: c.Family(), RequiresKey: false, CanExecute: true}
}

type quoteResponse struct {
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	PlatformFee    *struct {
		Amount string `json:"amount"`
	} `json:"platformFee"`
	RoutePlan []struct {
		Percent  float64 `json:"percent"`
		SwapInfo struct {
			Label      string `json:"label"`
			AmmKey     string `json:"ammKey"`
			InputMint  string `json:"inputMint"`
			OutputMint string `json:"outputMint"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

func (c *Client) Quote(ctx context.Context, req sources.Request) (model.Quote, error) {
	vals := url.Values{}
	vals.Set("inputMint", req.FromToken.Address)
	vals.Set("outputMint", req.ToToken.Address)
	vals.Set("amount", req.AmountBaseUnits)
	vals.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))

	endpoint := fmt.Sprintf("%s/quote?%s", strings.TrimRight(c.baseURL, "/"), vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Quote{}, apperr.Wrap(apperr.CodeInternal, "build jupiter quote request", err)
	}
	if c.apiKey != "" {
		hReq.Header.Set("x-api-key", c.apiKey)
	}

	var raw json.RawMessage
	if _, err := c.http.DoJSON(ctx, hReq, &raw); err != nil {
		return model.Quote{}, err
	}
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Quote{}, apperr.Wrap(apperr.CodeUnavailable, "decode jupiter quote", err)
	}
	if strings.TrimSpace(resp.OutAmount) == "" {
		return model.Quote{}, apperr.New(apperr.CodeUnavailable, "jupiter quote missing output amount")
	}

	outDecimal := chain.FormatBaseUnitsString(resp.OutAmount, req.ToToken.Decimals)
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
			AmountBaseUnits: resp.OutAmount,
			AmountDecimal:   outDecimal,
			Decimals:        req.ToToken.Decimals,
		},
		Price:          sources.ExecutionPrice(req.AmountDecimal, outDecimal),
		PriceImpactPct: parseImpactPct(resp.PriceImpactPct),
		FeeEstimate:    platformFee(resp, req.ToToken.Decimals),
		Route:          routeFromPlan(resp),
		SlippageBps:    req.SlippageBps,
		FetchedAt:      c.now().UTC(),
		Payload:        raw,
	}, nil
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildSwap posts the stored quote response back to Jupiter and receives a
// base64-encoded transaction for the wallet to sign.
func (c *Client) BuildSwap(ctx context.Context, quote model.Quote, walletAddress string) (sources.SwapTx, error) {
	if len(quote.Payload) == 0 {
		return sources.SwapTx{}, apperr.New(apperr.CodeExecutionFailed, "jupiter quote payload missing, refresh quotes before executing")
	}

	payload := map[string]any{
		"quoteResponse": json.RawMessage(quote.Payload),
		"userPublicKey": walletAddress,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return sources.SwapTx{}, apperr.Wrap(apperr.CodeInternal, "marshal jupiter swap request", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["x-api-key"] = c.apiKey
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + "/swap"
	var resp swapResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, endpoint, buf, headers, &resp); err != nil {
		return sources.SwapTx{}, err
	}
	if resp.SwapTransaction == "" {
		return sources.SwapTx{}, apperr.New(apperr.CodeUnavailable, "jupiter swap missing transaction data")
	}
	return sources.SwapTx{
		Source: c.Name(),
		Data:   resp.SwapTransaction,
	}, nil
}

// parseImpactPct keeps Jupiter's reported impact as-is; it is already a
// percentage. Unparseable or negative values degrade to 0.
func parseImpactPct(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func platformFee(resp quoteResponse, decimals int) string {
	if resp.PlatformFee == nil || resp.PlatformFee.Amount == "" {
		return ""
	}
	return chain.FormatBaseUnitsString(resp.PlatformFee.Amount, decimals)
}

func routeFromPlan(resp quoteResponse) []model.RouteStep {
	var steps []model.RouteStep
	for _, hop := range resp.RoutePlan {
		steps = append(steps, model.RouteStep{
			Protocol: hop.SwapInfo.Label,
			PoolID:   hop.SwapInfo.AmmKey,
			TokenIn:  hop.SwapInfo.InputMint,
			TokenOut: hop.SwapInfo.OutputMint,
			Percent:  hop.Percent,
		})
	}
	return steps
}
