package chain

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	apperr "tradedesk/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount converts a human decimal amount like "1.25" into base units for
// a token with the given decimals. Amounts must be strictly positive.
func ParseAmount(decimal string, decimals int) (*big.Int, error) {
	decimal = strings.TrimSpace(decimal)
	if decimal == "" {
		return nil, apperr.New(apperr.CodeValidation, "amount is required")
	}
	if decimals < 0 {
		return nil, apperr.New(apperr.CodeValidation, "decimals must be >= 0")
	}
	if !decimalPattern.MatchString(decimal) {
		return nil, apperr.New(apperr.CodeValidation, "amount must be in decimal form like 1.25")
	}

	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("amount precision exceeds token decimals (%d)", decimals))
	}

	combined := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	n, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, apperr.New(apperr.CodeValidation, "invalid decimal amount")
	}
	if n.Sign() <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "amount must be greater than zero")
	}
	return n, nil
}

// FormatBaseUnits renders base units back into a trimmed decimal string.
func FormatBaseUnits(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	s := baseUnits.String()
	if decimals == 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

// FormatBaseUnitsString is FormatBaseUnits for amounts already held as
// integer strings, as returned by source APIs.
func FormatBaseUnitsString(baseUnits string, decimals int) string {
	n, ok := new(big.Int).SetString(baseUnits, 10)
	if !ok {
		return baseUnits
	}
	return FormatBaseUnits(n, decimals)
}

// NormalizeDecimal strips leading and trailing zeroes from a decimal string.
func NormalizeDecimal(v string) string {
	if !strings.Contains(v, ".") {
		out := strings.TrimLeft(v, "0")
		if out == "" {
			return "0"
		}
		return out
	}
	parts := strings.SplitN(v, ".", 2)
	intPart := strings.TrimLeft(parts[0], "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart := strings.TrimRight(parts[1], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
