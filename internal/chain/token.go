package chain

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apperr "tradedesk/internal/errors"
)

// Token is an immutable description of a tradable asset. Resolved once per
// symbol or address and cached for the session.
type Token struct {
	ID       string `json:"id"`
	Family   Family `json:"family"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

func (t Token) IsZero() bool { return t.ID == "" }

// TokenID builds the canonical chain-qualified identity of a token.
func TokenID(family Family, address string) string {
	return fmt.Sprintf("%s:%s", family, NormalizeAddress(family, address))
}

// NativeETH is the pseudo-address EVM quote APIs use for the chain's
// native asset.
const NativeETH = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// WrappedSOL mint, used by Solana quote APIs for native SOL.
const WrappedSOL = "So11111111111111111111111111111111111111112"

// Bootstrap registry for deterministic symbol resolution. Unknown tokens can
// still be addressed directly by address/mint.
var builtinTokens = map[Family][]Token{
	FamilyEVM: {
		{Family: FamilyEVM, Address: NativeETH, Symbol: "ETH", Name: "Ether", Decimals: 18},
		{Family: FamilyEVM, Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
		{Family: FamilyEVM, Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		{Family: FamilyEVM, Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Symbol: "USDT", Name: "Tether USD", Decimals: 6},
		{Family: FamilyEVM, Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
		{Family: FamilyEVM, Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Symbol: "WBTC", Name: "Wrapped BTC", Decimals: 8},
	},
	FamilySolana: {
		{Family: FamilySolana, Address: WrappedSOL, Symbol: "SOL", Name: "Solana", Decimals: 9},
		{Family: FamilySolana, Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		{Family: FamilySolana, Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Symbol: "USDT", Name: "Tether USD", Decimals: 6},
		{Family: FamilySolana, Address: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", Symbol: "JUP", Name: "Jupiter", Decimals: 6},
	},
}

// Resolver turns user input (symbol or raw address) into a Token exactly once
// per session; subsequent lookups hit the in-memory cache.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]Token
}

func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]Token)}
}

// Resolve accepts a known symbol or a raw address/mint for the family.
// Raw addresses of unknown tokens resolve with the default decimals for the
// family (18 for EVM, 9 for Solana) and an empty symbol.
func (r *Resolver) Resolve(family Family, input string) (Token, error) {
	if !family.Valid() {
		return Token{}, apperr.New(apperr.CodeUnsupportedChain, fmt.Sprintf("unsupported chain family: %s", family))
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return Token{}, apperr.New(apperr.CodeValidation, "token is required")
	}

	key := string(family) + "|" + strings.ToLower(input)
	r.mu.RLock()
	if tok, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return tok, nil
	}
	r.mu.RUnlock()

	tok, err := resolveUncached(family, input)
	if err != nil {
		return Token{}, err
	}

	r.mu.Lock()
	r.cache[key] = tok
	r.mu.Unlock()
	return tok, nil
}

func resolveUncached(family Family, input string) (Token, error) {
	if matches := findBySymbol(family, input); len(matches) == 1 {
		tok := matches[0]
		tok.ID = TokenID(family, tok.Address)
		tok.Address = NormalizeAddress(family, tok.Address)
		return tok, nil
	} else if len(matches) > 1 {
		addrs := make([]string, 0, len(matches))
		for _, m := range matches {
			addrs = append(addrs, m.Address)
		}
		sort.Strings(addrs)
		return Token{}, apperr.New(apperr.CodeValidation,
			fmt.Sprintf("symbol %s is ambiguous on %s, use an address (%s)", input, family, strings.Join(addrs, ", ")))
	}

	if err := ValidateAddress(family, input); err != nil {
		return Token{}, apperr.New(apperr.CodeValidation,
			fmt.Sprintf("token %s is neither a known symbol nor a valid %s address", input, family))
	}
	addr := NormalizeAddress(family, input)
	if tok, ok := findByAddress(family, addr); ok {
		tok.ID = TokenID(family, tok.Address)
		tok.Address = NormalizeAddress(family, tok.Address)
		return tok, nil
	}
	decimals := 18
	if family == FamilySolana {
		decimals = 9
	}
	return Token{
		ID:       TokenID(family, addr),
		Family:   family,
		Address:  addr,
		Decimals: decimals,
	}, nil
}

func findBySymbol(family Family, symbol string) []Token {
	var matches []Token
	for _, t := range builtinTokens[family] {
		if strings.EqualFold(t.Symbol, symbol) {
			matches = append(matches, t)
		}
	}
	return matches
}

func findByAddress(family Family, address string) (Token, bool) {
	for _, t := range builtinTokens[family] {
		if AddressEqual(family, t.Address, address) {
			return t, true
		}
	}
	return Token{}, false
}
