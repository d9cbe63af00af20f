package angelone

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/brokererr"
	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/metrics"
	"indian-stock-api/internal/types"
)

// Instrument master columns
const (
	colToken    = "token"
	colSymbol   = "symbol"
	colName     = "name"
	colExpiry   = "expiry"
	colStrike   = "strike"
	colLotSize  = "lotsize"
	colInstType = "instrumenttype"
	colExchange = "exch_seg"
	colTickSize = "tick_size"
)

// equitySuffix marks NSE cash-segment symbols
const equitySuffix = "-EQ"

var hundred = decimal.NewFromInt(100)

// masterHeaders mimic a browser navigation to the master file
func masterHeaders() map[string]string {
	h := api.BrowserHeaders()
	h["Accept-Language"] = "en-GB,en-US;q=0.9,en;q=0.8,hi;q=0.7"
	h["Cache-Control"] = "max-age=0"
	h["Upgrade-Insecure-Requests"] = "1"
	return h
}

// FetchTokens returns the raw instrument master, from today's cache when
// present, otherwise downloaded and cached
func (a *AngelOne) FetchTokens(ctx context.Context) ([]types.InstrumentRow, error) {
	return a.tokens.GetOrCompute(ctx, a.downloadTokens)
}

func (a *AngelOne) downloadTokens(ctx context.Context) ([]types.InstrumentRow, error) {
	timer := logger.StartOperation(ctx, "angelone.downloadTokens", "url", a.masterURL)

	resp, err := a.Fetch(timer.GetContext(), api.FetchRequest{
		Method:  http.MethodGet,
		URL:     a.masterURL,
		Headers: masterHeaders(),
		Timeout: MasterTimeout,
	})
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}

	a.mu.Lock()
	for _, c := range resp.Cookies {
		a.cookies[c.Name] = c.Value
	}
	a.mu.Unlock()

	rows, err := api.DecodeList(resp)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}

	timer.End("rows", len(rows))
	return rows, nil
}

// FetchEquityTokens returns the NSE and BSE equity tables
func (a *AngelOne) FetchEquityTokens(ctx context.Context) (types.EquityTable, error) {
	rows, err := a.FetchTokens(ctx)
	if err != nil {
		return nil, err
	}

	table, err := NormalizeEquities(rows)
	if err != nil {
		return nil, err
	}

	for exchange, records := range table {
		metrics.TokensLoaded.WithLabelValues(ID, string(exchange)).Set(float64(len(records)))
	}
	logger.Info(ctx, "Equity tokens loaded", "broker", ID,
		"nse", len(table[types.NSE]), "bse", len(table[types.BSE]))
	return table, nil
}

// NormalizeEquities reshapes the raw master into per-exchange equity tables.
//
// BSE rows are keyed by symbol; NSE rows are those whose symbol ends in -EQ,
// keyed by name. Within an exchange the first row of a key wins. Tick sizes
// are published in paise and scaled down by 100.
func NormalizeEquities(rows []types.InstrumentRow) (types.EquityTable, error) {
	if len(rows) == 0 {
		return nil, brokererr.New(brokererr.KindTokenDownload, "No data fetched from AngelOne API.")
	}
	if !hasColumn(rows, colTickSize) {
		return nil, brokererr.New(brokererr.KindTokenDownload, "Required 'tick_size' column not found in fetched data.")
	}

	table := types.EquityTable{
		types.NSE: make(map[string]types.EquityRecord),
		types.BSE: make(map[string]types.EquityRecord),
	}

	for _, row := range rows {
		symbol := stringField(row, colSymbol)
		isBSE := stringField(row, colExchange) == string(types.BSE)
		isNSE := strings.HasSuffix(symbol, equitySuffix)
		if !isBSE && !isNSE {
			continue
		}

		rec, err := equityRecord(row)
		if err != nil {
			return nil, err
		}

		if isBSE {
			if _, seen := table[types.BSE][symbol]; !seen {
				table[types.BSE][symbol] = rec
			}
		}
		if isNSE {
			name := stringField(row, colName)
			if _, seen := table[types.NSE][name]; !seen {
				table[types.NSE][name] = rec
			}
		}
	}
	return table, nil
}

func equityRecord(row types.InstrumentRow) (types.EquityRecord, error) {
	token, err := intField(row, colToken)
	if err != nil {
		return types.EquityRecord{}, err
	}
	tick, err := TickSize(row[colTickSize])
	if err != nil {
		return types.EquityRecord{}, err
	}
	return types.EquityRecord{
		Token:    token,
		Symbol:   stringField(row, colSymbol),
		TickSize: tick,
		LotSize:  stringField(row, colLotSize),
		Exchange: stringField(row, colExchange),
	}, nil
}

// TickSize converts a raw tick size in paise to rupees
func TickSize(raw interface{}) (float64, error) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		d = decimal.NewFromFloat(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return 0, brokererr.Wrap(brokererr.KindTokenDownload, err, fmt.Sprintf("invalid tick_size %q", s))
		}
		d = parsed
	default:
		return 0, brokererr.Newf(brokererr.KindTokenDownload, "invalid tick_size %v", raw)
	}
	f, _ := d.Div(hundred).Float64()
	return f, nil
}

// hasColumn reports whether any row carries key
func hasColumn(rows []types.InstrumentRow, key string) bool {
	for _, row := range rows {
		if _, ok := row[key]; ok {
			return true
		}
	}
	return false
}

// stringField reads a column as text; numbers keep their shortest form
func stringField(row types.InstrumentRow, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(row types.InstrumentRow, key string) (int, error) {
	switch v := row[key].(type) {
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, brokererr.Wrap(brokererr.KindTokenDownload, err, fmt.Sprintf("invalid %s %q", key, v))
		}
		return n, nil
	default:
		return 0, brokererr.Newf(brokererr.KindTokenDownload, "missing %s in row %v", key, row[colSymbol])
	}
}
