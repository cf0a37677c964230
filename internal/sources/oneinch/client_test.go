package oneinch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/httpx"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func testRequest(t *testing.T) sources.Request {
	t.Helper()
	r := chain.NewResolver()
	from, err := r.Resolve(chain.FamilyEVM, "USDC")
	require.NoError(t, err)
	to, err := r.Resolve(chain.FamilyEVM, "WETH")
	require.NoError(t, err)
	return sources.Request{
		FromToken:       from,
		ToToken:         to,
		AmountBaseUnits: "250000000",
		AmountDecimal:   "250",
		SlippageBps:     50,
	}
}

func TestQuoteRequiresAPIKey(t *testing.T) {
	c := New(httpx.New(2*time.Second), "", 1)
	_, err := c.Quote(context.Background(), testRequest(t))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeAuth))
}

func TestQuoteParsesResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/swap/v6.0/1/quote", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "250000000", r.URL.Query().Get("amount"))
		_, _ = w.Write([]byte(`{
			"dstAmount":"55000000000000000",
			"gas":210000,
			"protocols":[[[{"name":"UNISWAP_V3","part":100,"fromTokenAddress":"0xa","toTokenAddress":"0xb"}]]]
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(httpx.New(2*time.Second), "test-key", 1).WithBaseURL(srv.URL)
	got, err := c.Quote(context.Background(), testRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "1inch", got.Source)
	assert.Equal(t, chain.FamilyEVM, got.Family)
	assert.Equal(t, "55000000000000000", got.ToAmount.AmountBaseUnits)
	assert.Equal(t, "0.055", got.ToAmount.AmountDecimal)
	assert.Equal(t, "210000 gas", got.FeeEstimate)
	require.Len(t, got.Route, 1)
	assert.Equal(t, "UNISWAP_V3", got.Route[0].Protocol)
	// 250 units lands in the 100..1000 impact band.
	assert.Equal(t, 0.75, got.PriceImpactPct)
	assert.NotEmpty(t, got.Payload)
}

func TestQuoteMissingDstAmount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/swap/v6.0/1/quote", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"gas":1}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(httpx.New(2*time.Second), "test-key", 1).WithBaseURL(srv.URL)
	_, err := c.Quote(context.Background(), testRequest(t))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnavailable))
}

func TestBuildSwapUsesQuoteParameters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/swap/v6.0/1/swap", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, testWallet, q.Get("from"))
		assert.Equal(t, "0.5", q.Get("slippage"))
		assert.Equal(t, "250000000", q.Get("amount"))
		assert.Equal(t, "true", q.Get("disableEstimate"))
		_, _ = w.Write([]byte(`{"tx":{"to":"0xrouter","data":"0xdeadbeef","value":"0"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	req := testRequest(t)
	c := New(httpx.New(2*time.Second), "test-key", 1).WithBaseURL(srv.URL)
	tx, err := c.BuildSwap(context.Background(), model.Quote{
		FromToken:   req.FromToken,
		ToToken:     req.ToToken,
		FromAmount:  model.AmountInfo{AmountBaseUnits: req.AmountBaseUnits, AmountDecimal: req.AmountDecimal, Decimals: req.FromToken.Decimals},
		SlippageBps: 50,
	}, testWallet)
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", tx.Data)
	assert.Equal(t, "0xrouter", tx.To)
	assert.Equal(t, "1inch", tx.Source)
}
