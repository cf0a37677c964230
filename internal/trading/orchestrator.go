package trading

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradedesk/internal/aggregator"
	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
	"tradedesk/internal/wallet"
)

// Swap form lifecycle.
const (
	StatusIdle     = "idle"
	StatusFetching = "fetching"
	StatusReady    = "ready"
	StatusFailed   = "failed"
)

// DefaultDebounce is how long input must settle before a refresh fires.
const DefaultDebounce = time.Second

// Recorder receives executed trades. Satisfied by the history store.
type Recorder interface {
	Save(trade model.Trade) error
}

// Quoter is the aggregation entry point the orchestrator drives.
type Quoter interface {
	Quotes(ctx context.Context, family chain.Family, req sources.Request) (aggregator.Result, error)
}

// Orchestrator owns the swap form: the token pair, the amount, the fetched
// quote set and the user's selection. Every input change invalidates
// in-flight work through a monotonically increasing revision; a response
// carrying a stale revision is discarded instead of applied.
type Orchestrator struct {
	mu       sync.Mutex
	log      *zap.Logger
	quoter   Quoter
	coord    *wallet.Coordinator
	resolver *chain.Resolver
	executor Executor
	recorder Recorder
	now      func() time.Time

	debounce time.Duration
	timer    *time.Timer

	family        chain.Family
	from          chain.Token
	to            chain.Token
	amountDecimal string
	amountBase    string
	slippageBps   uint16

	status         string
	revision       uint64
	quotes         []model.Quote
	sourceStatuses []model.SourceStatus
	selectedID     string
	lastErr        string
}

type OrchestratorOption func(*Orchestrator)

func WithDebounce(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.debounce = d }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(log *zap.Logger, quoter Quoter, coord *wallet.Coordinator, resolver *chain.Resolver, executor Executor, recorder Recorder, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		log:         log,
		quoter:      quoter,
		coord:       coord,
		resolver:    resolver,
		executor:    executor,
		recorder:    recorder,
		now:         time.Now,
		debounce:    DefaultDebounce,
		slippageBps: 50,
		status:      StatusIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetFromToken resolves and installs the input token. Changing chain family
// clears the opposite side of the pair.
func (o *Orchestrator) SetFromToken(family chain.Family, input string) error {
	tok, err := o.resolver.Resolve(family, input)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.family != family {
		o.to = chain.Token{}
	}
	o.family = family
	o.from = tok
	o.invalidateLocked()
	return nil
}

func (o *Orchestrator) SetToToken(family chain.Family, input string) error {
	tok, err := o.resolver.Resolve(family, input)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.family != family {
		o.from = chain.Token{}
	}
	o.family = family
	o.to = tok
	o.invalidateLocked()
	return nil
}

// SetAmount installs the input amount in decimal form. The from token must
// already be set so the amount can be converted to base units.
func (o *Orchestrator) SetAmount(decimal string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.from.IsZero() {
		return apperr.New(apperr.CodeValidation, "set the input token before the amount")
	}
	base, err := chain.ParseAmount(decimal, o.from.Decimals)
	if err != nil {
		return err
	}
	o.amountDecimal = chain.NormalizeDecimal(decimal)
	o.amountBase = base.String()
	o.invalidateLocked()
	return nil
}

func (o *Orchestrator) SetSlippage(bps uint16) error {
	if bps == 0 || bps > 5000 {
		return apperr.New(apperr.CodeValidation, "slippage must be between 1 and 5000 bps")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.slippageBps = bps
	o.invalidateLocked()
	return nil
}

// SwapTokens flips the pair direction. The amount no longer describes either
// side, so it is cleared along with the quotes.
func (o *Orchestrator) SwapTokens() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.from, o.to = o.to, o.from
	o.amountDecimal = ""
	o.amountBase = ""
	o.bumpLocked()
	o.clearQuotesLocked()
	o.selectedID = ""
	o.status = StatusIdle
	o.stopTimerLocked()
}

// invalidateLocked marks current quotes stale and re-arms the debounce
// window. Only the last mutation within the window triggers a fetch. The
// selection id is kept: quote ids are stable per source and pair, so the
// refreshed set re-applies it when the same quote comes back.
func (o *Orchestrator) invalidateLocked() {
	o.bumpLocked()
	o.clearQuotesLocked()
	if !o.readyToFetchLocked() {
		o.status = StatusIdle
		o.stopTimerLocked()
		return
	}
	o.status = StatusFetching
	if o.timer == nil {
		o.timer = time.AfterFunc(o.debounce, func() {
			if err := o.Refresh(context.Background()); err != nil {
				o.log.Debug("debounced refresh failed", zap.Error(err))
			}
		})
		return
	}
	o.timer.Reset(o.debounce)
}

// Refresh fetches quotes for the current form immediately. A mutation that
// lands while the fetch is in flight wins: the stale response is dropped.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	if !o.readyToFetchLocked() {
		o.status = StatusIdle
		o.mu.Unlock()
		return apperr.New(apperr.CodeValidation, "both tokens and a positive amount are required")
	}
	o.stopTimerLocked()
	rev := o.revision
	family := o.family
	req := sources.Request{
		FromToken:       o.from,
		ToToken:         o.to,
		AmountBaseUnits: o.amountBase,
		AmountDecimal:   o.amountDecimal,
		SlippageBps:     o.slippageBps,
	}
	o.status = StatusFetching
	o.mu.Unlock()

	res, err := o.quoter.Quotes(ctx, family, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	if rev != o.revision {
		o.log.Debug("discarding stale quote response",
			zap.Uint64("got", rev), zap.Uint64("want", o.revision))
		return nil
	}
	o.sourceStatuses = res.Sources
	if err != nil {
		o.status = StatusFailed
		o.lastErr = err.Error()
		o.quotes = nil
		o.selectedID = ""
		return err
	}

	o.status = StatusReady
	o.lastErr = ""
	o.quotes = res.Quotes
	if o.selectedID != "" && findQuote(res.Quotes, o.selectedID) == nil {
		o.selectedID = ""
	}
	if o.selectedID == "" && len(res.Quotes) > 0 {
		o.selectedID = res.Quotes[0].ID
	}
	return nil
}

// SelectQuote pins a quote from the current set.
func (o *Orchestrator) SelectQuote(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if findQuote(o.quotes, id) == nil {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("no quote with id %s in the current set", id))
	}
	o.selectedID = id
	return nil
}

// ExecuteSwap builds a transaction for the selected quote and records the
// trade as pending. Any failure leaves the form exactly as it was.
func (o *Orchestrator) ExecuteSwap(ctx context.Context) (model.Trade, sources.SwapTx, error) {
	o.mu.Lock()
	if o.status != StatusReady || o.selectedID == "" {
		o.mu.Unlock()
		return model.Trade{}, sources.SwapTx{}, apperr.New(apperr.CodeValidation, "no quote selected, fetch and select a quote first")
	}
	selected := findQuote(o.quotes, o.selectedID)
	if selected == nil {
		o.mu.Unlock()
		return model.Trade{}, sources.SwapTx{}, apperr.New(apperr.CodeValidation, "selected quote is no longer available")
	}
	quote := *selected
	now := o.now()
	o.mu.Unlock()

	if quote.Expired(now) {
		return model.Trade{}, sources.SwapTx{}, apperr.New(apperr.CodeQuoteExpired,
			fmt.Sprintf("quote %s expired at %s, refresh before executing", quote.ID, quote.ValidUntil.Format(time.RFC3339)))
	}

	w, ok := o.coord.Active()
	if !ok {
		return model.Trade{}, sources.SwapTx{}, apperr.New(apperr.CodeWalletNotConnected, "connect a wallet before executing")
	}
	if w.Family != quote.Family {
		return model.Trade{}, sources.SwapTx{}, apperr.New(apperr.CodeWalletNotConnected,
			fmt.Sprintf("active wallet is %s but the quote is for %s, switch wallets first", w.Family, quote.Family))
	}

	tx, err := o.executor.Execute(ctx, quote, w)
	if err != nil {
		o.log.Warn("swap execution failed",
			zap.String("quote_id", quote.ID),
			zap.String("source", quote.Source),
			zap.Error(err))
		return model.Trade{}, sources.SwapTx{}, err
	}

	trade := model.Trade{
		ID:            newTradeID(),
		QuoteID:       quote.ID,
		Source:        quote.Source,
		Family:        quote.Family,
		WalletAddress: w.Address,
		FromTokenID:   quote.FromToken.ID,
		ToTokenID:     quote.ToToken.ID,
		FromAmount:    quote.FromAmount,
		ToAmount:      quote.ToAmount,
		Status:        model.TradePending,
		SubmittedAt:   now.UTC(),
		UpdatedAt:     now.UTC(),
	}
	if err := o.recorder.Save(trade); err != nil {
		return model.Trade{}, sources.SwapTx{}, apperr.Wrap(apperr.CodeInternal, "record trade", err)
	}

	o.log.Info("swap submitted",
		zap.String("trade_id", trade.ID),
		zap.String("source", trade.Source),
		zap.String("family", string(trade.Family)))
	return trade, tx, nil
}

// View is a read-only copy of the form for rendering.
type View struct {
	Status        string               `json:"status"`
	Family        chain.Family         `json:"family,omitempty"`
	FromToken     chain.Token          `json:"from_token,omitempty"`
	ToToken       chain.Token          `json:"to_token,omitempty"`
	AmountDecimal string               `json:"amount_decimal,omitempty"`
	SlippageBps   uint16               `json:"slippage_bps"`
	Quotes        []model.Quote        `json:"quotes,omitempty"`
	Sources       []model.SourceStatus `json:"sources,omitempty"`
	SelectedID    string               `json:"selected_quote_id,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
}

func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := View{
		Status:        o.status,
		Family:        o.family,
		FromToken:     o.from,
		ToToken:       o.to,
		AmountDecimal: o.amountDecimal,
		SlippageBps:   o.slippageBps,
		SelectedID:    o.selectedID,
		LastError:     o.lastErr,
	}
	v.Quotes = append(v.Quotes, o.quotes...)
	v.Sources = append(v.Sources, o.sourceStatuses...)
	return v
}

func (o *Orchestrator) bumpLocked() { o.revision++ }

func (o *Orchestrator) clearQuotesLocked() {
	o.quotes = nil
	o.sourceStatuses = nil
	o.lastErr = ""
}

func (o *Orchestrator) readyToFetchLocked() bool {
	return !o.from.IsZero() && !o.to.IsZero() && o.amountBase != ""
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
	}
}

func findQuote(quotes []model.Quote, id string) *model.Quote {
	for i := range quotes {
		if quotes[i].ID == id {
			return &quotes[i]
		}
	}
	return nil
}

func newTradeID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("trade-%d", time.Now().UnixNano())
	}
	return "trade-" + hex.EncodeToString(buf)
}
