package feed

import (
	"encoding/json"
	"fmt"
	"strings"
)

// lastPriceField is the position of the last-trade price in a bitfinex
// ticker row.
const lastPriceField = 7

// Bitfinex parses the bitfinex tickers array. Pairs are encoded as
// "tBASE:QUOTE" or, without the colon, "tBASEQUOTE" with a 3-character
// base. Only USD-quoted pairs are kept.
type Bitfinex struct{}

func (Bitfinex) Name() string { return "bitfinex" }

func (Bitfinex) Parse(payload []byte) ([]Quote, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("bitfinex decode: %w", err)
	}
	var quotes []Quote
	for _, row := range rows {
		if len(row) <= lastPriceField {
			continue
		}
		var pair string
		if err := json.Unmarshal(row[0], &pair); err != nil {
			continue
		}
		if len(pair) < 2 || pair[0] != 't' {
			continue
		}
		asset, currency, ok := strings.Cut(pair[1:], ":")
		if !ok {
			if len(asset) <= 3 {
				continue
			}
			currency = asset[3:]
			asset = asset[:3]
		}
		if currency != "USD" {
			continue
		}
		var price float64
		if err := json.Unmarshal(row[lastPriceField], &price); err != nil {
			continue
		}
		if !validPrice(price) {
			continue
		}
		quotes = append(quotes, Quote{Symbol: lower(asset), Price: price})
	}
	return quotes, nil
}
