package feed

import (
	"math"
	"strings"
)

// Quote is one extracted (symbol, price) observation.
type Quote struct {
	Symbol string
	Price  float64
}

// Parser extracts quotes from one exchange's already-fetched payload.
// Parse returns an error only for a malformed payload; individually
// invalid prices are dropped silently.
type Parser interface {
	Parse(payload []byte) ([]Quote, error)
	Name() string
}

// validPrice rejects zero, negative and non-finite prices.
func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

func lower(s string) string { return strings.ToLower(s) }
