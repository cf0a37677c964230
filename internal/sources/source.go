package sources

import (
	"context"
	"sort"
	"sync"

	"tradedesk/internal/chain"
	"tradedesk/internal/model"
)

// Request carries everything a source needs to price a swap. Tokens are
// already resolved and the amount already validated.
type Request struct {
	FromToken       chain.Token
	ToToken         chain.Token
	AmountBaseUnits string
	AmountDecimal   string
	SlippageBps     uint16
}

// Source is one quote venue on a single chain family.
type Source interface {
	Name() string
	Family() chain.Family
	Quote(ctx context.Context, req Request) (model.Quote, error)
}

// SwapBuilder is implemented by sources that can turn one of their own
// quotes into a signable transaction.
type SwapBuilder interface {
	// BuildSwap exchanges a quote payload for serialized transaction data.
	// The payload must come from this source's own Quote call.
	BuildSwap(ctx context.Context, quote model.Quote, walletAddress string) (SwapTx, error)
}

// SwapTx is the source-built transaction handed to a wallet for signing.
type SwapTx struct {
	Source string `json:"source"`
	// Data is the serialized transaction: hex calldata for EVM sources,
	// a base64 transaction for Solana sources.
	Data string `json:"data"`
	To   string `json:"to,omitempty"`
	// Value is the native amount attached to the transaction, base units.
	Value string `json:"value,omitempty"`
}

// Registry holds the configured sources keyed by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

func (r *Registry) Register(s Source) {
	r.mu.Lock()
	r.sources[s.Name()] = s
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// ForFamily returns the sources serving one chain family, ordered by name.
func (r *Registry) ForFamily(family chain.Family) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Source
	for _, s := range r.sources {
		if s.Family() == family {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// All returns every registered source ordered by name.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
