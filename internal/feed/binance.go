package feed

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Binance parses the binance ticker/price array. Symbols quoted in one
// of the recognized stablecoins have the suffix stripped; everything
// else is skipped. A symbol listed against both stablecoins is averaged
// within the feed before it reaches the shared accumulator.
type Binance struct{}

func (Binance) Name() string { return "binance" }

var stableSuffixes = []string{"USDT", "BUSD"}

type binanceRow struct {
	Symbol string      `json:"symbol"`
	Price  looseNumber `json:"price"`
}

// looseNumber accepts both a JSON number and a number-in-string, which
// is how binance serializes prices. A string that does not parse as a
// number decodes to zero, dropping just that row as an invalid price.
type looseNumber float64

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = looseNumber(v)
	return nil
}

func (Binance) Parse(payload []byte) ([]Quote, error) {
	var rows []binanceRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("binance decode: %w", err)
	}

	type acc struct {
		sum   float64
		count int
	}
	local := make(map[string]acc)
	for _, row := range rows {
		var symbol string
		for _, suffix := range stableSuffixes {
			if strings.HasSuffix(row.Symbol, suffix) {
				symbol = row.Symbol[:len(row.Symbol)-len(suffix)]
				break
			}
		}
		price := float64(row.Price)
		if symbol == "" || !validPrice(price) {
			continue
		}
		a := local[lower(symbol)]
		a.sum += price
		a.count++
		local[lower(symbol)] = a
	}

	quotes := make([]Quote, 0, len(local))
	for symbol, a := range local {
		quotes = append(quotes, Quote{Symbol: symbol, Price: a.sum / float64(a.count)})
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
	return quotes, nil
}
