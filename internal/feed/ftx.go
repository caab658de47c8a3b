package feed

import (
	"encoding/json"
	"fmt"
)

// FTX parses the FTX markets list. Futures keep their name with the
// expiry digits stripped ("BTC-1231" -> "btc-fut"); perpetuals and other
// names without a trailing separator stay as-is. Spot markets use the
// base currency and are skipped unless quoted in USD.
type FTX struct{}

func (FTX) Name() string { return "ftx" }

type ftxBody struct {
	Result []struct {
		Type          string  `json:"type"`
		Name          string  `json:"name"`
		BaseCurrency  string  `json:"baseCurrency"`
		QuoteCurrency string  `json:"quoteCurrency"`
		Price         float64 `json:"price"`
	} `json:"result"`
}

func (FTX) Parse(payload []byte) ([]Quote, error) {
	var body ftxBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("ftx decode: %w", err)
	}
	quotes := make([]Quote, 0, len(body.Result))
	for _, row := range body.Result {
		var symbol string
		if row.Type == "future" {
			symbol = futureSymbol(row.Name)
		} else {
			if row.QuoteCurrency != "USD" {
				continue
			}
			symbol = row.BaseCurrency
		}
		if !validPrice(row.Price) {
			continue
		}
		quotes = append(quotes, Quote{Symbol: lower(symbol), Price: row.Price})
	}
	return quotes, nil
}

func futureSymbol(name string) string {
	stripped := name
	for len(stripped) > 0 && stripped[len(stripped)-1] >= '0' && stripped[len(stripped)-1] <= '9' {
		stripped = stripped[:len(stripped)-1]
	}
	if len(stripped) > 0 && stripped[len(stripped)-1] == '-' {
		return stripped + "fut"
	}
	return name
}
