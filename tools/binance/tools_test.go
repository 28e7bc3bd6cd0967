package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quantarc/binance-gateway/core"
	"github.com/quantarc/binance-gateway/pkg/binance"
)

type staticProvider struct {
	client *binance.Client
}

func (p *staticProvider) Client(ctx context.Context) (*binance.Client, error) {
	return p.client, nil
}

func toolContext(name string, input string) *core.ToolContext {
	tc := &core.ToolContext{
		Ctx: context.Background(),
		Request: &core.Message{
			Role:    "user",
			ToolReq: &core.ToolRequestPayload{Name: name},
		},
	}
	if input != "" {
		tc.Request.ToolReq.InputRaw = json.RawMessage(input)
	}
	return tc
}

// newProvider serves handler behind a test server and hands out a client
// pointed at it. Pacing is opened wide so tests never stall.
func newProvider(t *testing.T, handler http.HandlerFunc) *staticProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := binance.NewClient("test-key", "test-secret",
		binance.WithBaseURL(srv.URL),
		binance.WithPacing(10000, 10000),
	)
	return &staticProvider{client: client}
}

// deadProvider fails the test if any tool reaches the network.
func deadProvider(t *testing.T) *staticProvider {
	t.Helper()
	return newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s, input validation should have rejected first", r.URL.Path)
	})
}

func TestGetTickerPriceTool(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("path = %s, want /api/v3/ticker/price", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("symbol = %s, want BTCUSDT", r.URL.Query().Get("symbol"))
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"64000.10"}`))
	})

	tool := NewGetTickerPriceTool(provider)
	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"btcusdt"}`))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out, ok := res.Output.(TickerPriceOutput)
	if !ok {
		t.Fatalf("Output type = %T", res.Output)
	}
	if out.Symbol != "BTCUSDT" || out.Price != 64000.10 {
		t.Errorf("output = %+v", out)
	}
	if res.Metadata["source"] != "binance" || res.Metadata["endpoint"] != "/api/v3/ticker/price" {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestGetTickerPriceRejectsBadSymbol(t *testing.T) {
	tool := NewGetTickerPriceTool(deadProvider(t))

	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"x"}`))
	if res.Status != core.ToolFailed {
		t.Fatal("one-letter symbol should be rejected")
	}
	if !errors.Is(res.Err, core.ErrValidation) {
		t.Errorf("error should wrap ErrValidation: %v", res.Err)
	}
}

func TestGetTickerPriceRejectsMalformedInput(t *testing.T) {
	tool := NewGetTickerPriceTool(deadProvider(t))

	res := tool.Execute(toolContext(tool.Name(), `{"symbol"`))
	if res.Status != core.ToolFailed {
		t.Fatal("malformed JSON should be rejected")
	}
	if !errors.Is(res.Err, core.ErrValidation) {
		t.Errorf("error should wrap ErrValidation: %v", res.Err)
	}
}

func TestGet24hrTickerTool(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/24hr" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"symbol":"ETHUSDT","priceChange":"-12.50","priceChangePercent":"-0.40",
			"weightedAvgPrice":"3110.2","prevClosePrice":"3120.0","lastPrice":"3107.5",
			"bidPrice":"3107.4","askPrice":"3107.6","openPrice":"3120.0",
			"highPrice":"3150.0","lowPrice":"3080.0","volume":"98765.4",
			"quoteVolume":"307000000","openTime":1700000000000,"closeTime":1700086400000,
			"count":1234567}`))
	})

	tool := NewGet24hrTickerTool(provider)
	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"ETHUSDT"}`))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(Ticker24hOutput)
	if out.PriceChange != -12.50 {
		t.Errorf("PriceChange = %v, want -12.50", out.PriceChange)
	}
	if out.Count != 1234567 {
		t.Errorf("Count = %v", out.Count)
	}
	if out.CloseTime != 1700086400000 {
		t.Errorf("CloseTime = %v", out.CloseTime)
	}
}

const exchangeInfoBody = `{
	"timezone":"UTC","serverTime":1700000000000,
	"rateLimits":[{"rateLimitType":"REQUEST_WEIGHT","interval":"MINUTE","intervalNum":1,"limit":1200}],
	"symbols":[
		{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","baseAssetPrecision":8,
		 "quoteAsset":"USDT","quotePrecision":8,"orderTypes":["LIMIT","MARKET"],
		 "icebergAllowed":true,
		 "filters":[{"filterType":"PRICE_FILTER","minPrice":"0.01"}]},
		{"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","baseAssetPrecision":8,
		 "quoteAsset":"USDT","quotePrecision":8,"orderTypes":["LIMIT"],
		 "icebergAllowed":false,"filters":[]}
	]}`

func TestGetExchangeInfoSummary(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exchangeInfoBody))
	})

	tool := NewGetExchangeInfoTool(provider)
	res := tool.Execute(toolContext(tool.Name(), ""))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(ExchangeSummaryOutput)
	if out.Timezone != "UTC" || out.SymbolsCount != 2 {
		t.Errorf("summary = %+v", out)
	}
	if len(out.RateLimits) != 1 || out.RateLimits[0].Limit != 1200 {
		t.Errorf("rate limits = %+v", out.RateLimits)
	}
}

func TestGetExchangeInfoSymbolDetail(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exchangeInfoBody))
	})

	tool := NewGetExchangeInfoTool(provider)
	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"btcusdt"}`))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(SymbolDetailOutput)
	if out.Symbol != "BTCUSDT" || out.BaseAsset != "BTC" || !out.IcebergAllowed {
		t.Errorf("detail = %+v", out)
	}
	if len(out.Filters) != 1 || out.Filters[0]["filterType"] != "PRICE_FILTER" {
		t.Errorf("filters should pass through verbatim: %+v", out.Filters)
	}
	if res.Metadata["requested_symbol"] != "BTCUSDT" {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestGetExchangeInfoSymbolNotFound(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exchangeInfoBody))
	})

	tool := NewGetExchangeInfoTool(provider)
	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"DOGEBTC"}`))
	if res.Status != core.ToolFailed {
		t.Fatal("unknown symbol should fail")
	}
	if !errors.Is(res.Err, core.ErrValidation) {
		t.Errorf("error should wrap ErrValidation: %v", res.Err)
	}
	if !strings.Contains(res.Error, "DOGEBTC") {
		t.Errorf("error should name the symbol: %q", res.Error)
	}
}

func TestGetOrderBookTool(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "50" {
			t.Errorf("limit = %s, want 50", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"lastUpdateId":1027024,
			"bids":[["63999.99","2.5"],["63999.00","1.0"]],
			"asks":[["64000.01","0.8"]]}`))
	})

	tool := NewGetOrderBookTool(provider)
	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"BTCUSDT","limit":50}`))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(OrderBookOutput)
	if out.LastUpdateID != 1027024 {
		t.Errorf("LastUpdateID = %d", out.LastUpdateID)
	}
	if len(out.Bids) != 2 || out.Bids[0].Price != "63999.99" {
		t.Errorf("bids = %+v", out.Bids)
	}
	if res.Metadata["requested_limit"] != 50 || res.Metadata["actual_bids"] != 2 || res.Metadata["actual_asks"] != 1 {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestGetOrderBookRejectsOversizedLimit(t *testing.T) {
	tool := NewGetOrderBookTool(deadProvider(t))

	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"BTCUSDT","limit":6000}`))
	if res.Status != core.ToolFailed {
		t.Fatal("limit above 5000 should be rejected")
	}
	if !errors.Is(res.Err, core.ErrValidation) {
		t.Errorf("error should wrap ErrValidation: %v", res.Err)
	}
}

func TestGetOrderBookWeight(t *testing.T) {
	tool := NewGetOrderBookTool(nil)

	cases := []struct {
		input string
		want  int
	}{
		{"", 5},
		{`{"symbol":"BTCUSDT"}`, 5},
		{`{"symbol":"BTCUSDT","limit":50}`, 2},
		{`{"symbol":"BTCUSDT","limit":100}`, 5},
		{`{"symbol":"BTCUSDT","limit":500}`, 10},
		{`{"symbol":"BTCUSDT","limit":1000}`, 20},
		{`{"symbol":"BTCUSDT","limit":5000}`, 50},
		{`{"broken`, 5},
	}
	for _, tc := range cases {
		if got := tool.Weight(json.RawMessage(tc.input)); got != tc.want {
			t.Errorf("Weight(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestGetAccountFiltersZeroBalances(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/account" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"makerCommission":10,"takerCommission":10,
			"canTrade":true,"canWithdraw":true,"canDeposit":true,
			"updateTime":1700000000000,
			"balances":[
				{"asset":"BTC","free":"0.5","locked":"0"},
				{"asset":"DUST","free":"0","locked":"0"},
				{"asset":"ETH","free":"0","locked":"2.0"}
			]}`))
	})

	tool := NewGetAccountTool(provider)
	res := tool.Execute(toolContext(tool.Name(), ""))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(AccountOutput)
	if len(out.Balances) != 2 {
		t.Fatalf("balances = %+v, want the zero row dropped", out.Balances)
	}
	if out.Balances[0].Asset != "BTC" || out.Balances[1].Asset != "ETH" {
		t.Errorf("balances = %+v", out.Balances)
	}
	if !out.CanTrade {
		t.Error("CanTrade should carry through")
	}
	if res.Metadata["balance_count"] != 2 {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestGetOrdersTool(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/allOrders" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{
			"symbol":"BTCUSDT","orderId":42,"clientOrderId":"gw-abc",
			"price":"64000.00","origQty":"0.10","executedQty":"0.10",
			"cummulativeQuoteQty":"6400.00","status":"FILLED",
			"timeInForce":"GTC","type":"LIMIT","side":"BUY",
			"time":1700000000000,"updateTime":1700000005000,"isWorking":false}]`))
	})

	tool := NewGetOrdersTool(provider)
	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"BTCUSDT"}`))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(OrdersOutput)
	if out.Symbol != "BTCUSDT" || len(out.Orders) != 1 {
		t.Fatalf("output = %+v", out)
	}
	order := out.Orders[0]
	if order.OrderID != 42 || order.Status != "FILLED" || order.CumulativeQuoteQty != "6400" {
		t.Errorf("order = %+v", order)
	}
	if res.Metadata["count"] != 1 || res.Metadata["requested_symbol"] != "BTCUSDT" {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestGetOrdersRejectsOversizedLimit(t *testing.T) {
	tool := NewGetOrdersTool(deadProvider(t))

	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"BTCUSDT","limit":2000}`))
	if res.Status != core.ToolFailed {
		t.Fatal("limit above 1000 should be rejected")
	}
	if !errors.Is(res.Err, core.ErrValidation) {
		t.Errorf("error should wrap ErrValidation: %v", res.Err)
	}
}

func TestGetMyTradesTool(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/myTrades" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{
			"symbol":"BTCUSDT","id":7,"orderId":42,
			"price":"64000.00","qty":"0.10","quoteQty":"6400.00",
			"commission":"0.0001","commissionAsset":"BTC",
			"time":1700000000000,"isBuyer":true,"isMaker":false}]`))
	})

	tool := NewGetMyTradesTool(provider)
	res := tool.Execute(toolContext(tool.Name(), `{"symbol":"BTCUSDT"}`))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(MyTradesOutput)
	if len(out.Trades) != 1 {
		t.Fatalf("trades = %+v", out.Trades)
	}
	trade := out.Trades[0]
	if trade.ID != 7 || !trade.IsBuyer || trade.Commission != "0.0001" {
		t.Errorf("trade = %+v", trade)
	}
}

func TestGetTradeFeesSortedBySymbol(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sapi/v1/asset/tradeFee" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"symbol":"ETHUSDT","makerCommission":"0.001","takerCommission":"0.001"},
			{"symbol":"BTCUSDT","makerCommission":"0.0009","takerCommission":"0.001"}
		]`))
	})

	tool := NewGetTradeFeesTool(provider)
	res := tool.Execute(toolContext(tool.Name(), ""))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(TradeFeesOutput)
	if len(out.Fees) != 2 {
		t.Fatalf("fees = %+v", out.Fees)
	}
	if out.Fees[0].Symbol != "BTCUSDT" || out.Fees[1].Symbol != "ETHUSDT" {
		t.Errorf("fees should be sorted by symbol: %+v", out.Fees)
	}
	if res.Metadata["fee_type"] != "spot" || res.Metadata["count"] != 2 {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestCreateOrderValidationChain(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"lowercase side", `{"symbol":"BTCUSDT","side":"buy","type":"LIMIT","quantity":1,"price":100}`},
		{"unknown type", `{"symbol":"BTCUSDT","side":"BUY","type":"TRAILING","quantity":1}`},
		{"zero quantity", `{"symbol":"BTCUSDT","side":"BUY","type":"MARKET","quantity":0}`},
		{"negative quantity", `{"symbol":"BTCUSDT","side":"BUY","type":"MARKET","quantity":-1}`},
		{"limit without price", `{"symbol":"BTCUSDT","side":"BUY","type":"LIMIT","quantity":1}`},
		{"market with price", `{"symbol":"BTCUSDT","side":"SELL","type":"MARKET","quantity":1,"price":100}`},
		{"bad time in force", `{"symbol":"BTCUSDT","side":"BUY","type":"LIMIT","quantity":1,"price":100,"time_in_force":"GTX"}`},
		{"tif on market order", `{"symbol":"BTCUSDT","side":"BUY","type":"MARKET","quantity":1,"time_in_force":"GTC"}`},
		{"bad symbol", `{"symbol":"???","side":"BUY","type":"MARKET","quantity":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tool := NewCreateOrderTool(deadProvider(t))
			res := tool.Execute(toolContext(tool.Name(), tc.input))
			if res.Status != core.ToolFailed {
				t.Fatal("invalid order should be rejected before any network use")
			}
			if !errors.Is(res.Err, core.ErrValidation) {
				t.Errorf("error should wrap ErrValidation: %v", res.Err)
			}
		})
	}
}

func TestCreateOrderSubmitsLimitOrder(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v3/order" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("symbol") != "BTCUSDT" || r.PostForm.Get("side") != "BUY" {
			t.Errorf("form = %v", r.PostForm)
		}
		if r.PostForm.Get("quantity") != "0.5" || r.PostForm.Get("price") != "64000" {
			t.Errorf("quantity/price = %s/%s", r.PostForm.Get("quantity"), r.PostForm.Get("price"))
		}
		if r.PostForm.Get("timeInForce") != "GTC" {
			t.Errorf("timeInForce = %s, want default GTC", r.PostForm.Get("timeInForce"))
		}
		w.Write([]byte(`{
			"symbol":"BTCUSDT","orderId":99,"clientOrderId":"gw-xyz",
			"transactTime":1700000000000,"price":"64000.00","origQty":"0.50",
			"executedQty":"0.50","cummulativeQuoteQty":"32000.00","status":"FILLED",
			"timeInForce":"GTC","type":"LIMIT","side":"BUY",
			"fills":[{"price":"64000.00","qty":"0.50","commission":"0.0005","commissionAsset":"BTC"}]}`))
	})

	tool := NewCreateOrderTool(provider)
	res := tool.Execute(toolContext(tool.Name(),
		`{"symbol":"BTCUSDT","side":"BUY","type":"LIMIT","quantity":0.5,"price":64000}`))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	out := res.Output.(CreateOrderOutput)
	if out.OrderID != 99 || out.Status != "FILLED" {
		t.Errorf("ack = %+v", out)
	}
	if len(out.Fills) != 1 || out.Fills[0].Commission != "0.0005" {
		t.Errorf("fills = %+v", out.Fills)
	}
	if res.Metadata["side"] != "BUY" || res.Metadata["type"] != "LIMIT" {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestCreateOrderMarketOmitsPrice(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Has("price") {
			t.Error("market order must not carry a price")
		}
		if r.PostForm.Has("timeInForce") {
			t.Error("market order must not carry timeInForce")
		}
		w.Write([]byte(`{"symbol":"ETHUSDT","orderId":100,"clientOrderId":"gw-m",
			"transactTime":1700000000000,"price":"0","origQty":"1","executedQty":"1",
			"cummulativeQuoteQty":"3100","status":"FILLED","timeInForce":"",
			"type":"MARKET","side":"SELL","fills":[]}`))
	})

	tool := NewCreateOrderTool(provider)
	res := tool.Execute(toolContext(tool.Name(),
		`{"symbol":"ETHUSDT","side":"SELL","type":"MARKET","quantity":1}`))
	if res.Status != core.ToolComplete {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	if res.Output.(CreateOrderOutput).OrderID != 100 {
		t.Errorf("output = %+v", res.Output)
	}
}

func TestRegisterAllTools(t *testing.T) {
	registry := core.NewToolRegistry()
	RegisterAllTools(registry, &staticProvider{})

	wantNames := []string{
		"binance_get_ticker_price",
		"binance_get_24hr_ticker",
		"binance_get_exchange_info",
		"binance_get_order_book",
		"binance_get_account",
		"binance_get_orders",
		"binance_get_my_trades",
		"binance_get_trade_fees",
		"binance_create_order",
	}
	names := registry.Names()
	if len(names) != len(wantNames) {
		t.Fatalf("registered %d tools, want %d: %v", len(names), len(wantNames), names)
	}
	for i, want := range wantNames {
		if names[i] != want {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want)
		}
	}

	_, policy, ok := registry.Get("binance_create_order")
	if !ok {
		t.Fatal("create order tool missing")
	}
	if policy.BudgetPerDay != 100 || policy.RateLimitPerSec != 1.0 || policy.LimitKey != "binance-trading" {
		t.Errorf("trading policy = %+v", policy)
	}
	if registry.RiskClass("binance_create_order") != RiskClassTrading {
		t.Errorf("risk class = %s", registry.RiskClass("binance_create_order"))
	}

	_, policy, _ = registry.Get("binance_get_ticker_price")
	if policy.RateLimitPerSec != 10.0 || policy.Burst != 20 || policy.LimitKey != "binance-market" {
		t.Errorf("market policy = %+v", policy)
	}
	if registry.RiskClass("binance_get_account") != RiskClassAuth {
		t.Errorf("account risk class = %s", registry.RiskClass("binance_get_account"))
	}

	_, policy, _ = registry.Get("binance_get_exchange_info")
	if policy.CostPerCall != 10 {
		t.Errorf("exchange info cost = %v, want 10", policy.CostPerCall)
	}
}
