package types

// Root is an index family whose option expiries are tracked.
type Root string

const (
	BANKNIFTY  Root = "BANKNIFTY"
	NIFTY      Root = "NIFTY"
	FINNIFTY   Root = "FINNIFTY"
	MIDCPNIFTY Root = "MIDCPNIFTY"
	SENSEX     Root = "SENSEX"
	BANKEX     Root = "BANKEX"
)

// Roots lists every tracked root; NSE roots first.
var Roots = []Root{BANKNIFTY, NIFTY, FINNIFTY, MIDCPNIFTY, SENSEX, BANKEX}

// ParseRoot accepts a root name as written by brokers.
func ParseRoot(s string) (Root, bool) {
	for _, r := range Roots {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// BucketKey is a top-level key of a bucketized option chain.
type BucketKey string

const (
	CURRENT BucketKey = "CURRENT"
	NEXT    BucketKey = "NEXT"
	FAR     BucketKey = "FAR"
	EXPIRY  BucketKey = "Expiry"
	LOTSIZE BucketKey = "LotSize"
)

// ExpiryBuckets are the three nearest expiries in order.
var ExpiryBuckets = []BucketKey{CURRENT, NEXT, FAR}

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

type OptionType string

const (
	CE OptionType = "CE"
	PE OptionType = "PE"
)

type OrderType string

const (
	MARKET OrderType = "MARKET"
	LIMIT  OrderType = "LIMIT"
	SL     OrderType = "SL"
	SLM    OrderType = "SLM"
)

type ExchangeCode string

const (
	NSE ExchangeCode = "NSE"
	NFO ExchangeCode = "NFO"
	BSE ExchangeCode = "BSE"
	BFO ExchangeCode = "BFO"
	NCO ExchangeCode = "NCO"
	BCO ExchangeCode = "BCO"
	BCD ExchangeCode = "BCD"
	MCX ExchangeCode = "MCX"
	CDS ExchangeCode = "CDS"
)

type Product string

const (
	CNC    Product = "CNC"
	NRML   Product = "NRML"
	MARGIN Product = "MARGIN"
	MIS    Product = "MIS"
	BO     Product = "BO"
	CO     Product = "CO"
	SM     Product = "SM"
)

type Validity string

const (
	DAY Validity = "DAY"
	IOC Validity = "IOC"
	GTD Validity = "GTD"
	GTC Validity = "GTC"
	FOK Validity = "FOK"
	TTL Validity = "TTL"
)

type Variety string

const (
	REGULAR  Variety = "REGULAR"
	STOPLOSS Variety = "STOPLOSS"
	AMO      Variety = "AMO"
	BRACKET  Variety = "BO"
	COVER    Variety = "CO"
	ICEBERG  Variety = "ICEBERG"
	AUCTION  Variety = "AUCTION"
)

type Status string

const (
	PENDING         Status = "PENDING"
	OPEN            Status = "OPEN"
	PARTIALLYFILLED Status = "PARTIALLYFILLED"
	FILLED          Status = "FILLED"
	REJECTED        Status = "REJECTED"
	CANCELLED       Status = "CANCELLED"
	MODIFIED        Status = "MODIFIED"
)

// Unified field names of order, position and profile documents.
const (
	OrderID                = "id"
	OrderUserID            = "userOrderId"
	OrderClientID          = "clientId"
	OrderTimestamp         = "timestamp"
	OrderSymbol            = "symbol"
	OrderToken             = "token"
	OrderSide              = "side"
	OrderTypeField         = "type"
	OrderAvgPrice          = "avgPrice"
	OrderPrice             = "price"
	OrderTriggerPrice      = "triggerPrice"
	OrderTargetPrice       = "targetPrice"
	OrderStoplossPrice     = "stoplossPrice"
	OrderTrailingStoploss  = "trailingStoploss"
	OrderQuantity          = "quantity"
	OrderFilledQty         = "filled"
	OrderRemainingQty      = "remaining"
	OrderCancelledQty      = "cancelleldQty"
	OrderStatus            = "status"
	OrderRejectReason      = "rejectReason"
	OrderDisclosedQuantity = "disclosedQuantity"
	OrderProduct           = "product"
	OrderSegment           = "segment"
	OrderExchange          = "exchange"
	OrderValidity          = "validity"
	OrderVariety           = "variety"
	OrderInfo              = "info"

	PositionSymbol    = "symbol"
	PositionToken     = "token"
	PositionNetQty    = "netQty"
	PositionAvgPrice  = "avgPrice"
	PositionMTM       = "mtm"
	PositionPNL       = "pnl"
	PositionBuyQty    = "buyQty"
	PositionBuyPrice  = "buyPrice"
	PositionSellQty   = "sellQty"
	PositionSellPrice = "sellPrice"
	PositionLTP       = "ltp"
	PositionProduct   = "product"
	PositionExchange  = "exchange"
	PositionInfo      = "info"

	ProfileClientID         = "clientId"
	ProfileName             = "name"
	ProfileEmailID          = "emailId"
	ProfileMobileNo         = "mobileNo"
	ProfilePAN              = "pan"
	ProfileAddress          = "address"
	ProfileBankName         = "bankName"
	ProfileBankBranchName   = "bankBranchName"
	ProfileBankAccNo        = "bankAccNo"
	ProfileExchangesEnabled = "exchangesEnabled"
	ProfileEnabled          = "enabled"
	ProfileInfo             = "info"
)

// Default order tags.
const (
	DefaultOrderID = "FenixOrder"
	MarketOrderID  = "MarketOrder"
	LimitOrderID   = "LIMITOrder"
	SLOrderID      = "SLOrder"
	SLMOrderID     = "SLMOrder"
)
