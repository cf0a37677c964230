package trading

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradedesk/internal/aggregator"
	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
	"tradedesk/internal/wallet"
)

const evmWallet = "0x1111111111111111111111111111111111111111"

// fakeQuoter serves canned aggregation rounds and counts calls.
type fakeQuoter struct {
	mu     sync.Mutex
	calls  atomic.Int64
	quotes []model.Quote
	err    error
	block  chan struct{}
}

func (f *fakeQuoter) Quotes(ctx context.Context, family chain.Family, req sources.Request) (aggregator.Result, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return aggregator.Result{}, f.err
	}
	return aggregator.Result{Quotes: f.quotes}, nil
}

func (f *fakeQuoter) setQuotes(quotes []model.Quote) {
	f.mu.Lock()
	f.quotes = quotes
	f.mu.Unlock()
}

type fakeExecutor struct {
	err   error
	calls atomic.Int64
}

func (f *fakeExecutor) Execute(ctx context.Context, quote model.Quote, w model.Wallet) (sources.SwapTx, error) {
	f.calls.Add(1)
	if f.err != nil {
		return sources.SwapTx{}, f.err
	}
	return sources.SwapTx{Source: quote.Source, Data: "0xsigned"}, nil
}

type memRecorder struct {
	mu     sync.Mutex
	trades []model.Trade
}

func (m *memRecorder) Save(trade model.Trade) error {
	m.mu.Lock()
	m.trades = append(m.trades, trade)
	m.mu.Unlock()
	return nil
}

func quoteFor(source, out string, validUntil time.Time) model.Quote {
	r := chain.NewResolver()
	from, _ := r.Resolve(chain.FamilyEVM, "USDC")
	to, _ := r.Resolve(chain.FamilyEVM, "WETH")
	return model.Quote{
		ID:         sources.QuoteID(source, from, to),
		Source:     source,
		Family:     chain.FamilyEVM,
		FromToken:  from,
		ToToken:    to,
		FromAmount: model.AmountInfo{AmountBaseUnits: "1000000", AmountDecimal: "1", Decimals: 6},
		ToAmount:   model.AmountInfo{AmountBaseUnits: out, AmountDecimal: chain.FormatBaseUnitsString(out, 18), Decimals: 18},
		ValidUntil: validUntil,
		FetchedAt:  validUntil.Add(-30 * time.Second),
	}
}

type fixture struct {
	orch     *Orchestrator
	quoter   *fakeQuoter
	executor *fakeExecutor
	recorder *memRecorder
	coord    *wallet.Coordinator
}

func newFixture(t *testing.T, opts ...OrchestratorOption) *fixture {
	t.Helper()
	quoter := &fakeQuoter{}
	executor := &fakeExecutor{}
	recorder := &memRecorder{}
	coord := wallet.NewCoordinator(zap.NewNop(),
		wallet.NewStaticConnector(chain.FamilyEVM, evmWallet, ""),
		wallet.NewStaticConnector(chain.FamilySolana, chain.WrappedSOL, ""),
	)
	orch := NewOrchestrator(zap.NewNop(), quoter, coord, chain.NewResolver(), executor, recorder, opts...)
	return &fixture{orch: orch, quoter: quoter, executor: executor, recorder: recorder, coord: coord}
}

func (f *fixture) fillForm(t *testing.T) {
	t.Helper()
	require.NoError(t, f.orch.SetFromToken(chain.FamilyEVM, "USDC"))
	require.NoError(t, f.orch.SetToToken(chain.FamilyEVM, "WETH"))
	require.NoError(t, f.orch.SetAmount("1"))
}

func TestRefreshRequiresCompleteForm(t *testing.T) {
	f := newFixture(t)
	err := f.orch.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Equal(t, int64(0), f.quoter.calls.Load())
}

func TestRefreshRanksAndSelectsTopQuote(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	valid := time.Now().Add(30 * time.Second)
	f.quoter.setQuotes([]model.Quote{
		quoteFor("alpha", "2000000000000000000", valid),
		quoteFor("beta", "1000000000000000000", valid),
	})

	f.fillForm(t)
	require.NoError(t, f.orch.Refresh(context.Background()))

	v := f.orch.View()
	assert.Equal(t, StatusReady, v.Status)
	require.Len(t, v.Quotes, 2)
	assert.Equal(t, v.Quotes[0].ID, v.SelectedID, "top quote selected by default")
}

func TestDebounceCoalescesMutations(t *testing.T) {
	f := newFixture(t, WithDebounce(20*time.Millisecond))
	valid := time.Now().Add(30 * time.Second)
	f.quoter.setQuotes([]model.Quote{quoteFor("alpha", "5", valid)})

	require.NoError(t, f.orch.SetFromToken(chain.FamilyEVM, "USDC"))
	require.NoError(t, f.orch.SetToToken(chain.FamilyEVM, "WETH"))
	require.NoError(t, f.orch.SetAmount("1"))
	require.NoError(t, f.orch.SetAmount("2"))
	require.NoError(t, f.orch.SetAmount("3"))

	require.Eventually(t, func() bool {
		return f.orch.View().Status == StatusReady
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), f.quoter.calls.Load(), "rapid edits collapse into one fetch")
}

func TestStaleResponseDiscarded(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	valid := time.Now().Add(30 * time.Second)
	f.quoter.setQuotes([]model.Quote{quoteFor("alpha", "5", valid)})
	f.quoter.block = make(chan struct{})

	f.fillForm(t)

	done := make(chan error, 1)
	go func() { done <- f.orch.Refresh(context.Background()) }()

	// Wait for the fetch to be in flight, then mutate the form under it.
	require.Eventually(t, func() bool {
		return f.quoter.calls.Load() == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, f.orch.SetAmount("9"))

	close(f.quoter.block)
	require.NoError(t, <-done)

	v := f.orch.View()
	assert.Empty(t, v.Quotes, "response from before the edit must not land")
	assert.NotEqual(t, StatusReady, v.Status)
}

func TestSelectionSurvivesRefreshWhenQuoteStillPresent(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	valid := time.Now().Add(30 * time.Second)
	alpha := quoteFor("alpha", "2000000000000000000", valid)
	beta := quoteFor("beta", "1000000000000000000", valid)
	f.quoter.setQuotes([]model.Quote{alpha, beta})

	f.fillForm(t)
	require.NoError(t, f.orch.Refresh(context.Background()))
	require.NoError(t, f.orch.SelectQuote(beta.ID))

	require.NoError(t, f.orch.Refresh(context.Background()))
	assert.Equal(t, beta.ID, f.orch.View().SelectedID)

	// Source disappears; selection falls back to the new top quote.
	f.quoter.setQuotes([]model.Quote{alpha})
	require.NoError(t, f.orch.Refresh(context.Background()))
	assert.Equal(t, alpha.ID, f.orch.View().SelectedID)
}

func TestSelectionSurvivesInputMutation(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	valid := time.Now().Add(30 * time.Second)
	alpha := quoteFor("alpha", "2000000000000000000", valid)
	beta := quoteFor("beta", "1000000000000000000", valid)
	f.quoter.setQuotes([]model.Quote{alpha, beta})

	f.fillForm(t)
	require.NoError(t, f.orch.Refresh(context.Background()))
	require.NoError(t, f.orch.SelectQuote(beta.ID))

	// Editing the amount refetches the same pair; beta's id is stable, so the
	// user's pick must not snap back to the top-ranked quote.
	require.NoError(t, f.orch.SetAmount("2"))
	require.NoError(t, f.orch.Refresh(context.Background()))
	assert.Equal(t, beta.ID, f.orch.View().SelectedID)
}

func TestSelectQuoteRejectsUnknownID(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	err := f.orch.SelectQuote("nope")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestSwapTokensClearsAmountAndQuotes(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	valid := time.Now().Add(30 * time.Second)
	f.quoter.setQuotes([]model.Quote{quoteFor("alpha", "5", valid)})

	f.fillForm(t)
	require.NoError(t, f.orch.Refresh(context.Background()))

	f.orch.SwapTokens()
	v := f.orch.View()
	assert.Equal(t, "WETH", v.FromToken.Symbol)
	assert.Equal(t, "USDC", v.ToToken.Symbol)
	assert.Empty(t, v.AmountDecimal)
	assert.Empty(t, v.Quotes)
	assert.Empty(t, v.SelectedID)
	assert.Equal(t, StatusIdle, v.Status)
}

func TestRefreshFailureSetsFailedState(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	f.quoter.err = apperr.New(apperr.CodeAllSourcesFailed, "everything is down")

	f.fillForm(t)
	err := f.orch.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeAllSourcesFailed))

	v := f.orch.View()
	assert.Equal(t, StatusFailed, v.Status)
	assert.Contains(t, v.LastError, "everything is down")
}

func TestExecuteSwapHappyPath(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	valid := time.Now().Add(30 * time.Second)
	f.quoter.setQuotes([]model.Quote{quoteFor("alpha", "2000000000000000000", valid)})

	_, err := f.coord.Connect(context.Background(), chain.FamilyEVM)
	require.NoError(t, err)

	f.fillForm(t)
	require.NoError(t, f.orch.Refresh(context.Background()))

	trade, tx, err := f.orch.ExecuteSwap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TradePending, trade.Status)
	assert.Equal(t, "alpha", trade.Source)
	assert.Equal(t, evmWallet, trade.WalletAddress)
	assert.Equal(t, "0xsigned", tx.Data)
	require.Len(t, f.recorder.trades, 1)
	assert.Equal(t, trade.ID, f.recorder.trades[0].ID)
}

func TestExecuteSwapWithoutQuote(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.orch.ExecuteSwap(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestExecuteSwapExpiredQuote(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	f.quoter.setQuotes([]model.Quote{quoteFor("alpha", "5", time.Now().Add(-time.Second))})

	_, err := f.coord.Connect(context.Background(), chain.FamilyEVM)
	require.NoError(t, err)

	f.fillForm(t)
	require.NoError(t, f.orch.Refresh(context.Background()))

	_, _, err = f.orch.ExecuteSwap(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeQuoteExpired))
	assert.Equal(t, int64(0), f.executor.calls.Load())
	assert.Empty(t, f.recorder.trades)
}

func TestExecuteSwapRequiresMatchingWalletFamily(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	valid := time.Now().Add(30 * time.Second)
	f.quoter.setQuotes([]model.Quote{quoteFor("alpha", "5", valid)})

	f.fillForm(t)
	require.NoError(t, f.orch.Refresh(context.Background()))

	// No wallet at all.
	_, _, err := f.orch.ExecuteSwap(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeWalletNotConnected))

	// Wrong family active.
	_, err = f.coord.Connect(context.Background(), chain.FamilySolana)
	require.NoError(t, err)
	_, _, err = f.orch.ExecuteSwap(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeWalletNotConnected))
	assert.Empty(t, f.recorder.trades)
}

func TestExecuteSwapFailureLeavesFormIntact(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	valid := time.Now().Add(30 * time.Second)
	f.quoter.setQuotes([]model.Quote{quoteFor("alpha", "5", valid)})
	f.executor.err = apperr.New(apperr.CodeExecutionFailed, "router rejected")

	_, err := f.coord.Connect(context.Background(), chain.FamilyEVM)
	require.NoError(t, err)

	f.fillForm(t)
	require.NoError(t, f.orch.Refresh(context.Background()))
	before := f.orch.View()

	_, _, err = f.orch.ExecuteSwap(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeExecutionFailed))

	after := f.orch.View()
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.SelectedID, after.SelectedID)
	assert.Equal(t, len(before.Quotes), len(after.Quotes))
	assert.Empty(t, f.recorder.trades)
}

func TestChangingFamilyClearsOtherSide(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orch.SetFromToken(chain.FamilyEVM, "USDC"))
	require.NoError(t, f.orch.SetToToken(chain.FamilyEVM, "WETH"))

	require.NoError(t, f.orch.SetFromToken(chain.FamilySolana, "SOL"))
	v := f.orch.View()
	assert.Equal(t, chain.FamilySolana, v.Family)
	assert.True(t, v.ToToken.IsZero())
}
