package zerodha

import (
	"sync"

	"indian-stock-api/internal/types"
)

// instrumentKey identifies a trading symbol on an exchange
type instrumentKey struct {
	exchange string
	symbol   string
}

// instrumentMapper manages bidirectional mapping between symbols and tokens
type instrumentMapper struct {
	symbolToToken map[instrumentKey]int
	tokenToSymbol map[int]instrumentKey
	mu            sync.RWMutex
}

// newInstrumentMapper creates a new instrument mapper
func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		symbolToToken: make(map[instrumentKey]int),
		tokenToSymbol: make(map[int]instrumentKey),
	}
}

// load replaces all mappings with the equities and options given
func (im *instrumentMapper) load(equities types.EquityTable, options []types.OptionRow) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.symbolToToken = make(map[instrumentKey]int)
	im.tokenToSymbol = make(map[int]instrumentKey)

	for _, records := range equities {
		for _, rec := range records {
			im.add(instrumentKey{exchange: rec.Exchange, symbol: rec.Symbol}, rec.Token)
		}
	}
	for _, opt := range options {
		im.add(instrumentKey{exchange: opt.Exchange, symbol: opt.Symbol}, opt.Token)
	}
}

func (im *instrumentMapper) add(key instrumentKey, token int) {
	im.symbolToToken[key] = token
	im.tokenToSymbol[token] = key
}

// getToken retrieves the token for a symbol
func (im *instrumentMapper) getToken(exchange, symbol string) (int, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	token, exists := im.symbolToToken[instrumentKey{exchange: exchange, symbol: symbol}]
	return token, exists
}

// getSymbol retrieves the exchange and symbol for a token
func (im *instrumentMapper) getSymbol(token int) (string, string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	key, exists := im.tokenToSymbol[token]
	return key.exchange, key.symbol, exists
}

// size returns the number of mapped tokens
func (im *instrumentMapper) size() int {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return len(im.tokenToSymbol)
}
