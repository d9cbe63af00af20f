package angelone

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/types"
)

// optionIndex is the instrument type of index options
const optionIndex = "OPTIDX"

// expiryLayout is the master expiry format, e.g. 26MAR2026
const expiryLayout = "02Jan2006"

// FetchOptionRows returns the index options of the tracked roots from the master
func (a *AngelOne) FetchOptionRows(ctx context.Context) ([]types.OptionRow, error) {
	rows, err := a.FetchTokens(ctx)
	if err != nil {
		return nil, err
	}

	options, skipped := OptionRows(rows, a.roots)
	logger.Info(ctx, "Option rows loaded", "broker", ID, "rows", len(options), "skipped", skipped)
	return options, nil
}

// OptionRows picks OPTIDX rows of roots and tags them with root, expiry,
// strike and option type. Strikes are published in paise. Rows that cannot
// be parsed are skipped and counted.
func OptionRows(rows []types.InstrumentRow, roots []types.Root) ([]types.OptionRow, int) {
	wanted := make(map[string]types.Root, len(roots))
	for _, r := range roots {
		wanted[string(r)] = r
	}

	var out []types.OptionRow
	skipped := 0
	for _, row := range rows {
		if stringField(row, colInstType) != optionIndex {
			continue
		}
		root, ok := wanted[stringField(row, colName)]
		if !ok {
			continue
		}

		opt, ok := optionRow(row, root)
		if !ok {
			skipped++
			continue
		}
		out = append(out, opt)
	}
	return out, skipped
}

func optionRow(row types.InstrumentRow, root types.Root) (types.OptionRow, bool) {
	symbol := stringField(row, colSymbol)
	var side types.OptionType
	switch {
	case strings.HasSuffix(symbol, string(types.CE)):
		side = types.CE
	case strings.HasSuffix(symbol, string(types.PE)):
		side = types.PE
	default:
		return types.OptionRow{}, false
	}

	expiry, err := time.ParseInLocation(expiryLayout, stringField(row, colExpiry), time.Local)
	if err != nil {
		return types.OptionRow{}, false
	}

	strike, err := decimal.NewFromString(strings.TrimSpace(stringField(row, colStrike)))
	if err != nil {
		return types.OptionRow{}, false
	}

	token, err := intField(row, colToken)
	if err != nil {
		return types.OptionRow{}, false
	}
	tick, err := TickSize(row[colTickSize])
	if err != nil {
		return types.OptionRow{}, false
	}

	lot, err := intField(row, colLotSize)
	if err != nil {
		return types.OptionRow{}, false
	}

	return types.OptionRow{
		Token:    token,
		Symbol:   symbol,
		Root:     root,
		Expiry:   expiry,
		Strike:   int(strike.Div(hundred).IntPart()),
		Option:   side,
		TickSize: tick,
		LotSize:  lot,
		Exchange: stringField(row, colExchange),
	}, true
}
