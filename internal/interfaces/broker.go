package interfaces

import (
	"context"

	"indian-stock-api/internal/types"
)

// Broker is a broker namespace able to download and normalize its instrument master
type Broker interface {
	// ID returns the broker namespace, e.g. "angelone"
	ID() string

	// FetchEquityTokens returns the canonical per-exchange equity table
	FetchEquityTokens(ctx context.Context) (types.EquityTable, error)

	// FetchOptionRows returns index options of the tracked roots
	FetchOptionRows(ctx context.Context) ([]types.OptionRow, error)
}
