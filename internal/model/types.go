package model

import (
	"encoding/json"
	"time"

	"tradedesk/internal/chain"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Command   string         `json:"command"`
	Sources   []SourceStatus `json:"sources,omitempty"`
	Cache     CacheStatus    `json:"cache"`
	Partial   bool           `json:"partial"`
}

// SourceStatus records the outcome of one quote source call during a fan-out.
type SourceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

const (
	SourceOK          = "ok"
	SourceFailed      = "failed"
	SourceRateLimited = "rate_limited"
	SourceTimeout     = "timeout"
	SourceSkipped     = "skipped"
)

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

// RouteStep is one hop of a swap route as reported by the source.
type RouteStep struct {
	Protocol string  `json:"protocol"`
	PoolID   string  `json:"pool_id,omitempty"`
	TokenIn  string  `json:"token_in"`
	TokenOut string  `json:"token_out"`
	Percent  float64 `json:"percent"`
}

// Quote is one priced swap candidate from a single source. Payload carries
// the source's raw quote response, opaque to everything except the executor
// that hands it back to the same source's swap-build endpoint.
type Quote struct {
	ID             string          `json:"id"`
	Source         string          `json:"source"`
	Family         chain.Family    `json:"family"`
	FromToken      chain.Token     `json:"from_token"`
	ToToken        chain.Token     `json:"to_token"`
	FromAmount     AmountInfo      `json:"from_amount"`
	ToAmount       AmountInfo      `json:"to_amount"`
	Price          float64         `json:"price"`
	PriceImpactPct float64         `json:"price_impact_pct"`
	FeeEstimate    string          `json:"fee_estimate,omitempty"`
	Route          []RouteStep     `json:"route,omitempty"`
	SlippageBps    uint16          `json:"slippage_bps"`
	ValidUntil     time.Time       `json:"valid_until"`
	FetchedAt      time.Time       `json:"fetched_at"`
	Payload        json.RawMessage `json:"-"`
}

// Expired reports whether the quote's validity window has passed.
func (q Quote) Expired(now time.Time) bool {
	return !now.Before(q.ValidUntil)
}

const (
	TradePending   = "pending"
	TradeConfirmed = "confirmed"
	TradeFailed    = "failed"
)

// Trade is a submitted swap recorded in history.
type Trade struct {
	ID            string       `json:"id"`
	QuoteID       string       `json:"quote_id"`
	Source        string       `json:"source"`
	Family        chain.Family `json:"family"`
	WalletAddress string       `json:"wallet_address"`
	FromTokenID   string       `json:"from_token_id"`
	ToTokenID     string       `json:"to_token_id"`
	FromAmount    AmountInfo   `json:"from_amount"`
	ToAmount      AmountInfo   `json:"to_amount"`
	TxHash        string       `json:"tx_hash,omitempty"`
	Status        string       `json:"status"`
	SubmittedAt   time.Time    `json:"submitted_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Wallet is one connected account on a chain family.
type Wallet struct {
	Family      chain.Family `json:"family"`
	Address     string       `json:"address"`
	DisplayName string       `json:"display_name,omitempty"`
	Connected   bool         `json:"connected"`
}

// SourceInfo describes a registered quote source for listing.
type SourceInfo struct {
	Name        string       `json:"name"`
	Family      chain.Family `json:"family"`
	RequiresKey bool         `json:"requires_key"`
	CanExecute  bool         `json:"can_execute"`
}
