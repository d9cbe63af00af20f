package brokerobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indian-stock-api/internal/types"
)

type stubBroker struct {
	table types.EquityTable
	rows  []types.OptionRow
	err   error
}

func (s *stubBroker) ID() string { return "stub" }

func (s *stubBroker) FetchEquityTokens(ctx context.Context) (types.EquityTable, error) {
	return s.table, s.err
}

func (s *stubBroker) FetchOptionRows(ctx context.Context) ([]types.OptionRow, error) {
	return s.rows, s.err
}

func TestWrapPassesThrough(t *testing.T) {
	inner := &stubBroker{
		table: types.EquityTable{types.NSE: {"INFY": {Token: 1, Symbol: "INFY-EQ"}}},
		rows:  []types.OptionRow{{Token: 2, Root: types.NIFTY}},
	}
	b := Wrap(inner)

	assert.Equal(t, "stub", b.ID())

	table, err := b.FetchEquityTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inner.table, table)

	rows, err := b.FetchOptionRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inner.rows, rows)
}

func TestWrapReturnsErrors(t *testing.T) {
	boom := errors.New("boom")
	b := Wrap(&stubBroker{err: boom})

	_, err := b.FetchEquityTokens(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = b.FetchOptionRows(context.Background())
	assert.ErrorIs(t, err, boom)
}
