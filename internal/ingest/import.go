package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ondra-novak/mmbot-prices/internal/store"
)

type importBody struct {
	Rows []struct {
		ID  string `json:"id"`
		Doc struct {
			Prices map[string]float64 `json:"prices"`
		} `json:"doc"`
	} `json:"rows"`
}

// Import loads a CouchDB dump of historical snapshots. Each row's id is
// the snapshot timestamp divided by ten; each document maps symbols to
// prices. Rows are committed one batch at a time, so a mid-dump failure
// keeps the rows already written.
func (c *Collector) Import(payload []byte) (int, error) {
	var body importBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return 0, fmt.Errorf("import payload: %w", err)
	}

	rows := 0
	for _, row := range body.Rows {
		id, err := strconv.ParseUint(row.ID, 10, 64)
		if err != nil {
			return rows, fmt.Errorf("import row id %q: %w", row.ID, err)
		}
		ts := id * 10
		var batch store.Batch
		for symbol, price := range row.Doc.Prices {
			batch.Set(strings.ToLower(symbol), ts, price)
		}
		if err := c.st.Commit(&batch); err != nil {
			return rows, fmt.Errorf("import row %s: %w", row.ID, err)
		}
		rows++
	}
	return rows, nil
}
