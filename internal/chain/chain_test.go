package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "tradedesk/internal/errors"
)

func TestParseFamily(t *testing.T) {
	cases := map[string]Family{
		"evm":      FamilyEVM,
		"Ethereum": FamilyEVM,
		"eth":      FamilyEVM,
		"eip155":   FamilyEVM,
		"solana":   FamilySolana,
		"SOL":      FamilySolana,
	}
	for input, want := range cases {
		got, err := ParseFamily(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseFamily("bitcoin")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnsupportedChain))
}

func TestValidateAddress(t *testing.T) {
	require.NoError(t, ValidateAddress(FamilyEVM, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))
	require.NoError(t, ValidateAddress(FamilySolana, WrappedSOL))

	err := ValidateAddress(FamilyEVM, "0x1234")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	err = ValidateAddress(FamilySolana, "not-base58-0OIl")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	err = ValidateAddress(Family("cosmos"), "anything")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnsupportedChain))
}

func TestAddressEqualCaseRules(t *testing.T) {
	assert.True(t, AddressEqual(FamilyEVM, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"))
	assert.False(t, AddressEqual(FamilySolana, WrappedSOL, "so11111111111111111111111111111111111111112"))
}

func TestResolverKnownSymbol(t *testing.T) {
	r := NewResolver()

	tok, err := r.Resolve(FamilyEVM, "usdc")
	require.NoError(t, err)
	assert.Equal(t, "USDC", tok.Symbol)
	assert.Equal(t, 6, tok.Decimals)
	assert.Equal(t, "evm:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", tok.ID)

	// Same symbol on the other family resolves independently.
	sol, err := r.Resolve(FamilySolana, "USDC")
	require.NoError(t, err)
	assert.Equal(t, FamilySolana, sol.Family)
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", sol.Address)
}

func TestResolverUnknownAddressDefaults(t *testing.T) {
	r := NewResolver()

	tok, err := r.Resolve(FamilyEVM, "0x514910771AF9Ca656af840dff83E8264EcF986CA")
	require.NoError(t, err)
	assert.Equal(t, 18, tok.Decimals)
	assert.Empty(t, tok.Symbol)
	assert.Equal(t, "0x514910771af9ca656af840dff83e8264ecf986ca", tok.Address)
}

func TestResolverRejectsGarbage(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve(FamilyEVM, "NOTATOKEN")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = r.Resolve(FamilyEVM, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestResolverCaches(t *testing.T) {
	r := NewResolver()

	first, err := r.Resolve(FamilySolana, "sol")
	require.NoError(t, err)
	second, err := r.Resolve(FamilySolana, "SOL")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseAmount(t *testing.T) {
	n, err := ParseAmount("1.25", 6)
	require.NoError(t, err)
	assert.Equal(t, "1250000", n.String())

	n, err = ParseAmount("0.000001", 6)
	require.NoError(t, err)
	assert.Equal(t, "1", n.String())

	_, err = ParseAmount("0", 6)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = ParseAmount("1.2345678", 6)
	require.Error(t, err)

	_, err = ParseAmount("-1", 6)
	require.Error(t, err)

	_, err = ParseAmount("abc", 6)
	require.Error(t, err)
}

func TestFormatBaseUnits(t *testing.T) {
	assert.Equal(t, "1.25", FormatBaseUnits(big.NewInt(1250000), 6))
	assert.Equal(t, "0.000001", FormatBaseUnits(big.NewInt(1), 6))
	assert.Equal(t, "42", FormatBaseUnits(big.NewInt(42), 0))
	assert.Equal(t, "1.25", FormatBaseUnitsString("1250000", 6))
	assert.Equal(t, "not-a-number", FormatBaseUnitsString("not-a-number", 6))
}
