package binance

import (
	"github.com/shopspring/decimal"
)

// Wire structs mirror the exchange's JSON verbatim; prices and quantities
// arrive as strings and are parsed into decimals on the exported types.

type apiErrorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type ticker24hResponse struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	WeightedAvgPrice   string `json:"weightedAvgPrice"`
	PrevClosePrice     string `json:"prevClosePrice"`
	LastPrice          string `json:"lastPrice"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	OpenTime           int64  `json:"openTime"`
	CloseTime          int64  `json:"closeTime"`
	Count              int64  `json:"count"`
}

type depthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type accountResponse struct {
	MakerCommission  int64 `json:"makerCommission"`
	TakerCommission  int64 `json:"takerCommission"`
	CanTrade         bool  `json:"canTrade"`
	CanWithdraw      bool  `json:"canWithdraw"`
	CanDeposit       bool  `json:"canDeposit"`
	UpdateTime       int64 `json:"updateTime"`
	Balances         []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type orderResponse struct {
	Symbol             string `json:"symbol"`
	OrderID            int64  `json:"orderId"`
	ClientOrderID      string `json:"clientOrderId"`
	Price              string `json:"price"`
	OrigQty            string `json:"origQty"`
	ExecutedQty        string `json:"executedQty"`
	CumulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status             string `json:"status"`
	TimeInForce        string `json:"timeInForce"`
	Type               string `json:"type"`
	Side               string `json:"side"`
	Time               int64  `json:"time"`
	UpdateTime         int64  `json:"updateTime"`
	IsWorking          bool   `json:"isWorking"`
}

type orderAckResponse struct {
	Symbol             string `json:"symbol"`
	OrderID            int64  `json:"orderId"`
	ClientOrderID      string `json:"clientOrderId"`
	TransactTime       int64  `json:"transactTime"`
	Price              string `json:"price"`
	OrigQty            string `json:"origQty"`
	ExecutedQty        string `json:"executedQty"`
	CumulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status             string `json:"status"`
	TimeInForce        string `json:"timeInForce"`
	Type               string `json:"type"`
	Side               string `json:"side"`
	Fills              []struct {
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
	} `json:"fills"`
}

type exchangeInfoResponse struct {
	Timezone   string `json:"timezone"`
	ServerTime int64  `json:"serverTime"`
	RateLimits []struct {
		RateLimitType string `json:"rateLimitType"`
		Interval      string `json:"interval"`
		IntervalNum   int    `json:"intervalNum"`
		Limit         int    `json:"limit"`
	} `json:"rateLimits"`
	Symbols []symbolInfoResponse `json:"symbols"`
}

type symbolInfoResponse struct {
	Symbol             string           `json:"symbol"`
	Status             string           `json:"status"`
	BaseAsset          string           `json:"baseAsset"`
	BaseAssetPrecision int              `json:"baseAssetPrecision"`
	QuoteAsset         string           `json:"quoteAsset"`
	QuotePrecision     int              `json:"quotePrecision"`
	OrderTypes         []string         `json:"orderTypes"`
	IcebergAllowed     bool             `json:"icebergAllowed"`
	Filters            []map[string]any `json:"filters"`
}

type tradeFeeResponse struct {
	Symbol          string `json:"symbol"`
	MakerCommission string `json:"makerCommission"`
	TakerCommission string `json:"takerCommission"`
}

type myTradeResponse struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	QuoteQty        string `json:"quoteQty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"isBuyer"`
	IsMaker         bool   `json:"isMaker"`
}

// TickerPrice is the latest price for a symbol.
type TickerPrice struct {
	Symbol string
	Price  decimal.Decimal
}

// Ticker24h is the rolling 24-hour statistics for a symbol.
type Ticker24h struct {
	Symbol             string
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
	WeightedAvgPrice   decimal.Decimal
	PrevClosePrice     decimal.Decimal
	LastPrice          decimal.Decimal
	BidPrice           decimal.Decimal
	AskPrice           decimal.Decimal
	OpenPrice          decimal.Decimal
	HighPrice          decimal.Decimal
	LowPrice           decimal.Decimal
	Volume             decimal.Decimal
	QuoteVolume        decimal.Decimal
	OpenTime           int64
	CloseTime          int64
	Count              int64
}

// PriceLevel is one price/quantity pair on the book.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Depth is an order book snapshot.
type Depth struct {
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// Balance is a single asset balance.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Account is the spot account snapshot.
type Account struct {
	MakerCommission int64
	TakerCommission int64
	CanTrade        bool
	CanWithdraw     bool
	CanDeposit      bool
	UpdateTime      int64
	Balances        []Balance
}

// Order is a resting or historical order.
type Order struct {
	Symbol             string
	OrderID            int64
	ClientOrderID      string
	Price              decimal.Decimal
	OrigQty            decimal.Decimal
	ExecutedQty        decimal.Decimal
	CumulativeQuoteQty decimal.Decimal
	Status             string
	TimeInForce        string
	Type               string
	Side               string
	Time               int64
	UpdateTime         int64
	IsWorking          bool
}

// Fill is one execution of a new order.
type Fill struct {
	Price           decimal.Decimal
	Qty             decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
}

// OrderAck is the exchange's acknowledgement of a new order.
type OrderAck struct {
	Symbol             string
	OrderID            int64
	ClientOrderID      string
	TransactTime       int64
	Price              decimal.Decimal
	OrigQty            decimal.Decimal
	ExecutedQty        decimal.Decimal
	CumulativeQuoteQty decimal.Decimal
	Status             string
	TimeInForce        string
	Type               string
	Side               string
	Fills              []Fill
}

// RateLimitInfo is one exchange-published quota.
type RateLimitInfo struct {
	RateLimitType string
	Interval      string
	IntervalNum   int
	Limit         int
}

// SymbolInfo is the exchange's trading rules for one symbol. Filters are
// passed through verbatim; their schema varies by filter type.
type SymbolInfo struct {
	Symbol             string
	Status             string
	BaseAsset          string
	BaseAssetPrecision int
	QuoteAsset         string
	QuotePrecision     int
	OrderTypes         []string
	IcebergAllowed     bool
	Filters            []map[string]any
}

// ExchangeInfo is the exchange metadata snapshot.
type ExchangeInfo struct {
	Timezone   string
	ServerTime int64
	RateLimits []RateLimitInfo
	Symbols    []SymbolInfo
}

// TradeFee is the commission schedule for one symbol.
type TradeFee struct {
	Symbol          string
	MakerCommission decimal.Decimal
	TakerCommission decimal.Decimal
}

// Trade is one of the account's executed trades.
type Trade struct {
	Symbol          string
	ID              int64
	OrderID         int64
	Price           decimal.Decimal
	Qty             decimal.Decimal
	QuoteQty        decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	Time            int64
	IsBuyer         bool
	IsMaker         bool
}

// dec parses an exchange decimal string; malformed or empty fields come
// back zero rather than failing the whole payload.
func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseOrder(src orderResponse) Order {
	return Order{
		Symbol:             src.Symbol,
		OrderID:            src.OrderID,
		ClientOrderID:      src.ClientOrderID,
		Price:              dec(src.Price),
		OrigQty:            dec(src.OrigQty),
		ExecutedQty:        dec(src.ExecutedQty),
		CumulativeQuoteQty: dec(src.CumulativeQuoteQty),
		Status:             src.Status,
		TimeInForce:        src.TimeInForce,
		Type:               src.Type,
		Side:               src.Side,
		Time:               src.Time,
		UpdateTime:         src.UpdateTime,
		IsWorking:          src.IsWorking,
	}
}

func parseLevels(src [][]string) []PriceLevel {
	out := make([]PriceLevel, 0, len(src))
	for _, pair := range src {
		if len(pair) < 2 {
			continue
		}
		out = append(out, PriceLevel{Price: dec(pair[0]), Qty: dec(pair[1])})
	}
	return out
}

func parseSymbolInfo(src symbolInfoResponse) SymbolInfo {
	return SymbolInfo{
		Symbol:             src.Symbol,
		Status:             src.Status,
		BaseAsset:          src.BaseAsset,
		BaseAssetPrecision: src.BaseAssetPrecision,
		QuoteAsset:         src.QuoteAsset,
		QuotePrecision:     src.QuotePrecision,
		OrderTypes:         src.OrderTypes,
		IcebergAllowed:     src.IcebergAllowed,
		Filters:            src.Filters,
	}
}
