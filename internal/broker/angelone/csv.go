package angelone

import (
	"fmt"
	"io"
	"sort"

	"github.com/gocarina/gocsv"

	"indian-stock-api/internal/types"
)

// WriteEquityCSV writes the records of one exchange as CSV, sorted by symbol
func WriteEquityCSV(w io.Writer, table types.EquityTable, exchange types.ExchangeCode) error {
	records := make([]*types.EquityRecord, 0, len(table[exchange]))
	for _, rec := range table[exchange] {
		rec := rec
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Symbol < records[j].Symbol
	})

	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("failed to write %s equity csv: %w", exchange, err)
	}
	return nil
}
