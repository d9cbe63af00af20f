package angelone

import (
	"strings"
	"sync"
	"time"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/broker"
	"indian-stock-api/internal/cache"
	"indian-stock-api/internal/types"
)

// ID is the AngelOne broker namespace
const ID = "angelone"

// Base URLs
const (
	APIDocURL      = "https://smartapi.angelbroking.com/docs"
	AccessTokenURL = "https://apiconnect.angelbroking.com/rest/auth/angelbroking/user/v1/loginByPassword"
	BaseURL        = "https://apiconnect.angelbroking.com/rest/secure/angelbroking"
	ScripMasterURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"
)

// DefaultCacheKey is the token master cache file under the cache directory
const DefaultCacheKey = "angelone_tokens_cache.json"

// MasterTimeout bounds the instrument master download
const MasterTimeout = 15 * time.Second

// URLs of the order and account endpoints
var URLs = map[string]string{
	"place_order":  BaseURL + "/order/v1/placeOrder",
	"modify_order": BaseURL + "/order/v1/modifyOrder",
	"cancel_order": BaseURL + "/order/v1/cancelOrder",
	"orderbook":    BaseURL + "/order/v1/getOrderBook",
	"tradebook":    BaseURL + "/order/v1/getTradeBook",
	"positions":    BaseURL + "/order/v1/getPosition",
	"holdings":     BaseURL + "/portfolio/v1/getAllHolding",
	"rms_limits":   BaseURL + "/user/v1/getRMS",
	"profile":      BaseURL + "/user/v1/getProfile",
}

// AngelOne is the AngelOne broker
type AngelOne struct {
	*broker.Base
	masterURL string
	tokens    *cache.Daily[[]types.InstrumentRow]
	roots     []types.Root

	mu      sync.Mutex
	cookies map[string]string
}

// Option configures AngelOne
type Option func(*config)

type config struct {
	store      cache.Store
	cacheKey   string
	masterURL  string
	clientOpts []api.ClientOption
	cacheOpts  []cache.Option
	roots      []types.Root
}

// WithStore sets the backing store of the token master cache
func WithStore(store cache.Store) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithCacheKey overrides the token master cache key
func WithCacheKey(key string) Option {
	return func(c *config) {
		c.cacheKey = key
	}
}

// WithMasterURL overrides the instrument master endpoint
func WithMasterURL(u string) Option {
	return func(c *config) {
		c.masterURL = u
	}
}

// WithClientOptions passes options to the broker session
func WithClientOptions(opts ...api.ClientOption) Option {
	return func(c *config) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// WithCacheOptions passes options to the token master cache
func WithCacheOptions(opts ...cache.Option) Option {
	return func(c *config) {
		c.cacheOpts = append(c.cacheOpts, opts...)
	}
}

// WithRoots restricts option rows to the given roots
func WithRoots(roots ...types.Root) Option {
	return func(c *config) {
		c.roots = roots
	}
}

// New creates the AngelOne broker
func New(opts ...Option) *AngelOne {
	cfg := config{
		cacheKey:  DefaultCacheKey,
		masterURL: ScripMasterURL,
		roots:     types.Roots,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = cache.NewFileStore("")
	}

	cacheOpts := append([]cache.Option{cache.WithName(ID + "_tokens")}, cfg.cacheOpts...)
	return &AngelOne{
		Base:      broker.NewBase(ID, cfg.clientOpts...),
		masterURL: cfg.masterURL,
		tokens:    cache.NewDaily[[]types.InstrumentRow](cfg.store, cfg.cacheKey, cacheOpts...),
		cookies:   map[string]string{},
		roots:     cfg.roots,
	}
}

// Cookies returns the cookies captured from the last master download
func (a *AngelOne) Cookies() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]string, len(a.cookies))
	for k, v := range a.cookies {
		out[k] = v
	}
	return out
}

var reqExchange = map[types.ExchangeCode]string{
	types.NSE: "NSE",
	types.BSE: "BSE",
	types.NFO: "NFO",
	types.MCX: "MCX",
}

var reqSide = map[types.Side]string{
	types.BUY:  "BUY",
	types.SELL: "SELL",
}

var reqProduct = map[types.Product]string{
	types.MIS:    "INTRADAY",
	types.NRML:   "CARRYFORWARD",
	types.CNC:    "DELIVERY",
	types.MARGIN: "MARGIN",
	types.BO:     "BO",
}

var reqOrderType = map[types.OrderType]string{
	types.MARKET: "MARKET",
	types.LIMIT:  "LIMIT",
	types.SL:     "STOPLOSS_LIMIT",
	types.SLM:    "STOPLOSS_MARKET",
}

var reqVariety = map[types.Variety]string{
	types.REGULAR:  "NORMAL",
	types.STOPLOSS: "STOPLOSS",
	types.AMO:      "AMO",
	types.BRACKET:  "ROBO",
}

var reqValidity = map[types.Validity]string{
	types.DAY: "DAY",
	types.IOC: "IOC",
}

var respStatus = map[string]types.Status{
	"open pending":                           types.PENDING,
	"not modified":                           types.PENDING,
	"not cancelled":                          types.PENDING,
	"modify pending":                         types.PENDING,
	"trigger pending":                        types.PENDING,
	"cancel pending":                         types.PENDING,
	"validation pending":                     types.PENDING,
	"put order req received":                 types.PENDING,
	"modify validation pending":              types.PENDING,
	"after market order req received":        types.PENDING,
	"modify after market order req received": types.PENDING,
	"cancelled":                              types.CANCELLED,
	"cancelled after market order":           types.CANCELLED,
	"open":                                   types.OPEN,
	"complete":                               types.FILLED,
	"rejected":                               types.REJECTED,
	"modified":                               types.MODIFIED,
}

var respOrderType = map[string]types.OrderType{
	"MARKET":          types.MARKET,
	"LIMIT":           types.LIMIT,
	"STOPLOSS_LIMIT":  types.SL,
	"STOPLOSS_MARKET": types.SLM,
}

var respProduct = map[string]types.Product{
	"DELIVERY":     types.CNC,
	"CARRYFORWARD": types.NRML,
	"MARGIN":       types.MARGIN,
	"INTRADAY":     types.MIS,
	"BO":           types.BO,
}

var respVariety = map[string]types.Variety{
	"NORMAL":   types.REGULAR,
	"STOPLOSS": types.STOPLOSS,
	"AMO":      types.AMO,
	"ROBO":     types.BRACKET,
}

// ReqExchange translates an exchange to its AngelOne request value
func ReqExchange(e types.ExchangeCode) (string, bool) {
	v, ok := reqExchange[e]
	return v, ok
}

// ReqSide translates an order side
func ReqSide(s types.Side) (string, bool) {
	v, ok := reqSide[s]
	return v, ok
}

// ReqProduct translates a product
func ReqProduct(p types.Product) (string, bool) {
	v, ok := reqProduct[p]
	return v, ok
}

// ReqOrderType translates an order type
func ReqOrderType(o types.OrderType) (string, bool) {
	v, ok := reqOrderType[o]
	return v, ok
}

// ReqVariety translates a variety
func ReqVariety(v types.Variety) (string, bool) {
	out, ok := reqVariety[v]
	return out, ok
}

// ReqValidity translates a validity
func ReqValidity(v types.Validity) (string, bool) {
	out, ok := reqValidity[v]
	return out, ok
}

// RespStatus maps an AngelOne order status, case-insensitively
func RespStatus(s string) (types.Status, bool) {
	v, ok := respStatus[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// RespOrderType maps an AngelOne order type
func RespOrderType(s string) (types.OrderType, bool) {
	v, ok := respOrderType[s]
	return v, ok
}

// RespProduct maps an AngelOne product
func RespProduct(s string) (types.Product, bool) {
	v, ok := respProduct[s]
	return v, ok
}

// RespVariety maps an AngelOne variety
func RespVariety(s string) (types.Variety, bool) {
	v, ok := respVariety[s]
	return v, ok
}
