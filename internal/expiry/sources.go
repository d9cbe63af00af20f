package expiry

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/brokererr"
	"indian-stock-api/internal/types"
)

// Upstream endpoints
const (
	NSEOptionChainURL = "https://www.nseindia.com/api/option-chain-indices"
	NSECookieURL      = "https://www.nseindia.com/option-chain"
	BSEExpiryURL      = "https://api.bseindia.com/BseIndiaAPI/api/ddlExpiry_IV/w"
)

// bseScripCodes maps BSE roots to their index scrip codes
var bseScripCodes = map[types.Root]string{
	types.SENSEX: "1",
	types.BANKEX: "12",
}

// endpoint is one upstream call that yields raw expiry dates
type endpoint struct {
	source  string
	url     string
	params  map[string]string
	headers map[string]string
	extract func(body []byte) ([]string, error)
}

// fullURL returns the endpoint URL with its query string
func (e endpoint) fullURL() string {
	if len(e.params) == 0 {
		return e.url
	}
	q := url.Values{}
	for k, v := range e.params {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(e.url, "?") {
		sep = "&"
	}
	return e.url + sep + q.Encode()
}

// endpointFor picks the upstream of root: the NSE option chain for NSE
// indices, the BSE expiry list for SENSEX and BANKEX.
func (d *Discoverer) endpointFor(root types.Root) (endpoint, error) {
	if scrip, ok := bseScripCodes[root]; ok {
		return endpoint{
			source:  "bse",
			url:     d.cfg.BSEURL,
			params:  map[string]string{"ProductType": "IO", "scrip_cd": scrip},
			headers: api.BSEHeaders(),
			extract: extractBSE,
		}, nil
	}

	switch root {
	case types.BANKNIFTY, types.NIFTY, types.FINNIFTY, types.MIDCPNIFTY:
		return endpoint{
			source:  "nse",
			url:     d.cfg.NSEURL,
			params:  map[string]string{"symbol": string(root)},
			headers: api.NSEHeaders(),
			extract: extractNSE,
		}, nil
	}
	return endpoint{}, brokererr.Newf(brokererr.KindInput, "unknown root %q", root)
}

type nseOptionChain struct {
	Records struct {
		ExpiryDates []string `json:"expiryDates"`
	} `json:"records"`
}

// extractNSE reads records.expiryDates
func extractNSE(body []byte) ([]string, error) {
	var chain nseOptionChain
	if err := json.Unmarshal(body, &chain); err != nil {
		return nil, fmt.Errorf("failed to parse NSE option chain: %w", err)
	}
	if chain.Records.ExpiryDates == nil {
		return nil, fmt.Errorf("NSE option chain has no records.expiryDates")
	}
	return chain.Records.ExpiryDates, nil
}

type bseExpiryList struct {
	Table1 []struct {
		ExpiryDate string `json:"ExpiryDate"`
	} `json:"Table1"`
}

// extractBSE reads Table1[].ExpiryDate
func extractBSE(body []byte) ([]string, error) {
	var list bseExpiryList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse BSE expiry list: %w", err)
	}
	if list.Table1 == nil {
		return nil, fmt.Errorf("BSE expiry list has no Table1")
	}

	dates := make([]string, 0, len(list.Table1))
	for _, row := range list.Table1 {
		dates = append(dates, row.ExpiryDate)
	}
	return dates, nil
}
