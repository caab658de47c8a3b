package feed

import (
	"encoding/json"
	"fmt"
)

// Cryptowatch parses the cryptowat.ch market summary: rows of already
// USD-quoted (symbol, price) pairs.
type Cryptowatch struct{}

func (Cryptowatch) Name() string { return "cryptowatch" }

type cryptowatchBody struct {
	Result struct {
		Rows []struct {
			Symbol string  `json:"symbol"`
			Price  float64 `json:"price"`
		} `json:"rows"`
	} `json:"result"`
}

func (Cryptowatch) Parse(payload []byte) ([]Quote, error) {
	var body cryptowatchBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("cryptowatch decode: %w", err)
	}
	quotes := make([]Quote, 0, len(body.Result.Rows))
	for _, row := range body.Result.Rows {
		if !validPrice(row.Price) {
			continue
		}
		quotes = append(quotes, Quote{Symbol: lower(row.Symbol), Price: row.Price})
	}
	return quotes, nil
}
