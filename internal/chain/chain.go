package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	apperr "tradedesk/internal/errors"
)

// Family identifies the execution environment a token or wallet lives on.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

// Families lists every supported chain family.
func Families() []Family {
	return []Family{FamilyEVM, FamilySolana}
}

func (f Family) Valid() bool {
	return f == FamilyEVM || f == FamilySolana
}

func ParseFamily(input string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "evm", "ethereum", "eth", "eip155":
		return FamilyEVM, nil
	case "solana", "sol":
		return FamilySolana, nil
	default:
		return "", apperr.New(apperr.CodeUnsupportedChain, fmt.Sprintf("unsupported chain family: %s", input))
	}
}

// ValidateAddress checks that address is a well-formed token address or mint
// for the given family. EVM addresses are hex; Solana mints are 32-byte
// base58 strings.
func ValidateAddress(family Family, address string) error {
	address = strings.TrimSpace(address)
	switch family {
	case FamilyEVM:
		if !common.IsHexAddress(address) {
			return apperr.New(apperr.CodeValidation, fmt.Sprintf("invalid EVM address: %s", address))
		}
		return nil
	case FamilySolana:
		raw, err := base58.Decode(address)
		if err != nil || len(raw) != 32 {
			return apperr.New(apperr.CodeValidation, fmt.Sprintf("invalid Solana mint: %s", address))
		}
		return nil
	default:
		return apperr.New(apperr.CodeUnsupportedChain, fmt.Sprintf("unsupported chain family: %s", family))
	}
}

// NormalizeAddress canonicalizes an address for identity comparisons.
// EVM addresses compare case-insensitively; Solana mints are case-sensitive.
func NormalizeAddress(family Family, address string) string {
	address = strings.TrimSpace(address)
	if family == FamilyEVM {
		return strings.ToLower(address)
	}
	return address
}

// AddressEqual reports whether two addresses refer to the same token.
func AddressEqual(family Family, a, b string) bool {
	return NormalizeAddress(family, a) == NormalizeAddress(family, b)
}
