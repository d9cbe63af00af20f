package types

import "time"

// InstrumentRow is one raw row of a broker instrument master.
type InstrumentRow = map[string]interface{}

// EquityRecord is the canonical equity entry of a symbol table.
type EquityRecord struct {
	Token    int     `json:"Token" csv:"token"`
	Symbol   string  `json:"Symbol" csv:"symbol"`
	TickSize float64 `json:"TickSize" csv:"tick_size"`
	LotSize  string  `json:"LotSize" csv:"lot_size"`
	Exchange string  `json:"Exchange" csv:"exchange"`
}

// EquityTable maps exchange -> display symbol -> record.
type EquityTable map[ExchangeCode]map[string]EquityRecord

// OptionRow is an option instrument already tagged with root, expiry, strike and type.
type OptionRow struct {
	Token      int        `json:"Token"`
	Symbol     string     `json:"Symbol"`
	Root       Root       `json:"Root"`
	Expiry     time.Time  `json:"Expiry"`
	Strike     int        `json:"StrikePrice"`
	Option     OptionType `json:"Option"`
	TickSize   float64    `json:"TickSize"`
	LotSize    int        `json:"LotSize"`
	Exchange   string     `json:"Exchange"`
	ExpiryName BucketKey  `json:"ExpiryName,omitempty"`
}

// ExpiryDate returns the expiry as YYYY-MM-DD
func (r OptionRow) ExpiryDate() string {
	return r.Expiry.Format("2006-01-02")
}
