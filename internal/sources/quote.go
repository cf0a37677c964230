package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"tradedesk/internal/chain"
)

// QuoteID derives a stable identity for a quote from its venue and pair.
// A refreshed quote for the same pair from the same source keeps its ID,
// which lets a selection survive a refresh.
func QuoteID(source string, from, to chain.Token) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", source, from.ID, to.ID)))
	return hex.EncodeToString(sum[:8])
}

// ExecutionPrice computes output per unit of input from decimal amounts.
// Returns 0 when either side fails to parse.
func ExecutionPrice(inDecimal, outDecimal string) float64 {
	in, err := strconv.ParseFloat(inDecimal, 64)
	if err != nil || in == 0 {
		return 0
	}
	out, err := strconv.ParseFloat(outDecimal, 64)
	if err != nil {
		return 0
	}
	return out / in
}
