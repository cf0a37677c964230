package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/chain"
	"tradedesk/internal/model"
)

type stubSource struct {
	name   string
	family chain.Family
}

func (s stubSource) Name() string         { return s.name }
func (s stubSource) Family() chain.Family { return s.family }
func (s stubSource) Quote(context.Context, Request) (model.Quote, error) {
	return model.Quote{Source: s.name}, nil
}

func TestRegistryForFamilySorted(t *testing.T) {
	r := NewRegistry()
	r.Register(stubSource{name: "uniswap", family: chain.FamilyEVM})
	r.Register(stubSource{name: "1inch", family: chain.FamilyEVM})
	r.Register(stubSource{name: "jupiter", family: chain.FamilySolana})

	evm := r.ForFamily(chain.FamilyEVM)
	require.Len(t, evm, 2)
	assert.Equal(t, "1inch", evm[0].Name())
	assert.Equal(t, "uniswap", evm[1].Name())

	sol := r.ForFamily(chain.FamilySolana)
	require.Len(t, sol, 1)
	assert.Equal(t, "jupiter", sol[0].Name())

	assert.Empty(t, r.ForFamily(chain.Family("cosmos")))
}

func TestQuoteIDDeterministic(t *testing.T) {
	from := chain.Token{ID: "evm:0xaaa"}
	to := chain.Token{ID: "evm:0xbbb"}

	a := QuoteID("1inch", from, to)
	b := QuoteID("1inch", from, to)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	assert.NotEqual(t, a, QuoteID("uniswap", from, to))
	assert.NotEqual(t, a, QuoteID("1inch", to, from))
}

func TestExecutionPrice(t *testing.T) {
	assert.InDelta(t, 2500.0, ExecutionPrice("2", "5000"), 1e-9)
	assert.Zero(t, ExecutionPrice("0", "5000"))
	assert.Zero(t, ExecutionPrice("junk", "5000"))
}

func TestEstimateImpactPctBands(t *testing.T) {
	cases := []struct {
		amount string
		want   float64
	}{
		{"0.5", 0.05},
		{"5", 0.10},
		{"50", 0.30},
		{"500", 0.75},
		{"5000", 1.50},
		{"50000", 3.00},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EstimateImpactPct(tc.amount), "amount %s", tc.amount)
	}
}
