package uniswap

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/httpx"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
)

const defaultBase = "https://trade-api.gateway.uniswap.org"

// Client quotes and builds EVM swaps through the Uniswap trading API.
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

func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

func (c *Client) Name() string         { return "uniswap" }
func (c *Client) Family() chain.Family { return chain.FamilyEVM }

func (c *Client) Info() model.SourceInfo {
	return model.SourceInfo{Name: c.Name(), Family: c.Family(), RequiresKey: true, CanExecute: true}
}

// quoteOnlySwapper is a deterministic placeholder the quote endpoint accepts
// when no wallet is involved yet.
const quoteOnlySwapper = "0x0000000000000000000000000000000000000001"

type quoteResponse struct {
	Quote struct {
		Output struct {
			Amount string `json:"amount"`
		} `json:"output"`
		GasFeeUSD json.RawMessage `json:"gasFeeUSD"`
		Route     [][]struct {
			Type     string `json:"type"`
			Address  string `json:"address"`
			TokenIn  struct {
				Address string `json:"address"`
			} `json:"tokenIn"`
			TokenOut struct {
				Address string `json:"address"`
			} `json:"tokenOut"`
		} `json:"route"`
	} `json:"quote"`
	AmountOut string `json:"amountOut"`
}

func (c *Client) Quote(ctx context.Context, req sources.Request) (model.Quote, error) {
	if c.apiKey == "" {
		return model.Quote{}, apperr.New(apperr.CodeAuth, "missing required API key for uniswap (TRADEDESK_UNISWAP_API_KEY)")
	}

	payload := map[string]any{
		"tokenInChainId":    c.chainID,
		"tokenOutChainId":   c.chainID,
		"tokenIn":           req.FromToken.Address,
		"tokenOut":          req.ToToken.Address,
		"amount":            req.AmountBaseUnits,
		"type":              "EXACT_INPUT",
		"swapper":           quoteOnlySwapper,
		"slippageTolerance": float64(req.SlippageBps) / 100,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return model.Quote{}, apperr.Wrap(apperr.CodeInternal, "marshal uniswap request", err)
	}

	headers := map[string]string{"x-api-key": c.apiKey}
	var raw json.RawMessage
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/v1/quote", buf, headers, &raw); err != nil {
		return model.Quote{}, err
	}
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Quote{}, apperr.Wrap(apperr.CodeUnavailable, "decode uniswap quote", err)
	}

	amountOut := resp.AmountOut
	if amountOut == "" {
		amountOut = resp.Quote.Output.Amount
	}
	if amountOut == "" {
		return model.Quote{}, apperr.New(apperr.CodeUnavailable, "uniswap quote missing output amount")
	}

	outDecimal := chain.FormatBaseUnitsString(amountOut, req.ToToken.Decimals)
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
			AmountBaseUnits: amountOut,
			AmountDecimal:   outDecimal,
			Decimals:        req.ToToken.Decimals,
		},
		Price:          sources.ExecutionPrice(req.AmountDecimal, outDecimal),
		PriceImpactPct: sources.EstimateImpactPct(req.AmountDecimal),
		FeeEstimate:    feeFromGasUSD(resp.Quote.GasFeeUSD),
		Route:          routeFromQuote(resp),
		SlippageBps:    req.SlippageBps,
		FetchedAt:      c.now().UTC(),
		Payload:        raw,
	}, nil
}

type swapResponse struct {
	Swap struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"swap"`
}

// BuildSwap exchanges a stored quote response for signable calldata.
// The trading API requires the original quote object back verbatim.
func (c *Client) BuildSwap(ctx context.Context, quote model.Quote, walletAddress string) (sources.SwapTx, error) {
	if c.apiKey == "" {
		return sources.SwapTx{}, apperr.New(apperr.CodeAuth, "missing required API key for uniswap (TRADEDESK_UNISWAP_API_KEY)")
	}
	if len(quote.Payload) == 0 {
		return sources.SwapTx{}, apperr.New(apperr.CodeExecutionFailed, "uniswap quote payload missing, refresh quotes before executing")
	}

	var stored struct {
		Quote json.RawMessage `json:"quote"`
	}
	if err := json.Unmarshal(quote.Payload, &stored); err != nil || len(stored.Quote) == 0 {
		return sources.SwapTx{}, apperr.New(apperr.CodeExecutionFailed, "uniswap quote payload unreadable, refresh quotes before executing")
	}

	payload := map[string]any{
		"quote":   json.RawMessage(stored.Quote),
		"swapper": walletAddress,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return sources.SwapTx{}, apperr.Wrap(apperr.CodeInternal, "marshal uniswap swap request", err)
	}

	headers := map[string]string{"x-api-key": c.apiKey}
	var resp swapResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/v1/swap", buf, headers, &resp); err != nil {
		return sources.SwapTx{}, err
	}
	if resp.Swap.Data == "" {
		return sources.SwapTx{}, apperr.New(apperr.CodeUnavailable, "uniswap swap missing transaction data")
	}
	return sources.SwapTx{
		Source: c.Name(),
		Data:   resp.Swap.Data,
		To:     resp.Swap.To,
		Value:  resp.Swap.Value,
	}, nil
}

func feeFromGasUSD(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && f > 0 {
		return "~$" + trimFloat(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" && s != "null" {
		return "~$" + s
	}
	return ""
}

func trimFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func routeFromQuote(resp quoteResponse) []model.RouteStep {
	var steps []model.RouteStep
	for _, path := range resp.Quote.Route {
		for _, hop := range path {
			steps = append(steps, model.RouteStep{
				Protocol: "uniswap-" + hop.Type,
				PoolID:   hop.Address,
				TokenIn:  hop.TokenIn.Address,
				TokenOut: hop.TokenOut.Address,
				Percent:  100,
			})
		}
	}
	return steps
}
