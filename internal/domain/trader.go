package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TrackedTrader is one account whose source-exchange trades are copied.
// Which traders to track is external curation data; the system only consumes
// the list.
type TrackedTrader struct {
	Address          string // checksummed 0x wallet address
	Label            string
	BankrollEstimate decimal.Decimal // zero means estimate from observed trades
	AddedAt          time.Time
}

// NormalizeTraderAddress validates a wallet address and returns its
// checksummed form. Comparisons elsewhere use the lowercased hex.
func NormalizeTraderAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid trader address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// SameTrader compares two wallet addresses case-insensitively.
func SameTrader(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
