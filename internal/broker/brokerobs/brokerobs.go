package brokerobs

import (
	"context"
	"fmt"

	"indian-stock-api/internal/interfaces"
	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

// ID returns the wrapped broker's namespace
func (ob *observableBroker) ID() string {
	return ob.broker.ID()
}

func (ob *observableBroker) String() string {
	if s, ok := ob.broker.(fmt.Stringer); ok {
		return s.String()
	}
	return ob.broker.ID()
}

// FetchEquityTokens loads the equity token tables with observability
func (ob *observableBroker) FetchEquityTokens(ctx context.Context) (types.EquityTable, error) {
	ctx, span := logger.StartSpan(ctx, "broker.FetchEquityTokens")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching equity tokens", "broker", ob.broker.ID())

	table, err := ob.broker.FetchEquityTokens(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch equity tokens", err, "broker", ob.broker.ID())
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Equity tokens fetched successfully",
		"broker", ob.broker.ID(),
		"nse", len(table[types.NSE]),
		"bse", len(table[types.BSE]),
	)
	return table, nil
}

// FetchOptionRows loads the index option rows with observability
func (ob *observableBroker) FetchOptionRows(ctx context.Context) ([]types.OptionRow, error) {
	ctx, span := logger.StartSpan(ctx, "broker.FetchOptionRows")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching option rows", "broker", ob.broker.ID())

	rows, err := ob.broker.FetchOptionRows(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch option rows", err, "broker", ob.broker.ID())
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Option rows fetched successfully", "broker", ob.broker.ID(), "count", len(rows))
	return rows, nil
}
