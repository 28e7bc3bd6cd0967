package binance

import (
	"fmt"
	"sort"
	"time"

	"github.com/quantarc/binance-gateway/core"
	"github.com/quantarc/binance-gateway/pkg/binance"
	"github.com/quantarc/binance-gateway/pkg/validate"
)

// === Account Tools (require API credentials) ===

// maxOrderRows caps the row limit on order and trade history endpoints.
const maxOrderRows = 1000

// GetAccountTool returns the spot account snapshot. Zero balances are
// dropped so the interesting assets are not buried in hundreds of rows.
type GetAccountTool struct {
	provider ClientProvider
}

type BalanceOutput struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type AccountOutput struct {
	MakerCommission int64           `json:"maker_commission"`
	TakerCommission int64           `json:"taker_commission"`
	CanTrade        bool            `json:"can_trade"`
	CanWithdraw     bool            `json:"can_withdraw"`
	CanDeposit      bool            `json:"can_deposit"`
	UpdateTime      int64           `json:"update_time"`
	Balances        []BalanceOutput `json:"balances"`
}

func NewGetAccountTool(provider ClientProvider) *GetAccountTool {
	return &GetAccountTool{provider: provider}
}

func (t *GetAccountTool) Name() string {
	return "binance_get_account"
}

func (t *GetAccountTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {}
	}`)
}

func (t *GetAccountTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"maker_commission": {"type": "integer"},
			"taker_commission": {"type": "integer"},
			"can_trade": {"type": "boolean"},
			"balances": {"type": "array", "items": {"type": "object"}}
		}
	}`)
}

func (t *GetAccountTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	account, err := client.Account(tc.Ctx)
	if err != nil {
		return errorResult(fmt.Errorf("get account failed: %w", err))
	}

	balances := make([]BalanceOutput, 0, len(account.Balances))
	for _, b := range account.Balances {
		if b.Free.IsZero() && b.Locked.IsZero() {
			continue
		}
		balances = append(balances, BalanceOutput{
			Asset:  b.Asset,
			Free:   b.Free.String(),
			Locked: b.Locked.String(),
		})
	}

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: AccountOutput{
			MakerCommission: account.MakerCommission,
			TakerCommission: account.TakerCommission,
			CanTrade:        account.CanTrade,
			CanWithdraw:     account.CanWithdraw,
			CanDeposit:      account.CanDeposit,
			UpdateTime:      account.UpdateTime,
			Balances:        balances,
		},
		Metadata: core.Meta("binance", "/api/v3/account", map[string]any{
			"balance_count": len(balances),
		}),
	}
}

// GetOrdersTool returns the account's order history for a symbol.
type GetOrdersTool struct {
	provider ClientProvider
}

type OrdersInput struct {
	Symbol string `json:"symbol"` // Trading pair, e.g. 'BTCUSDT'
	Limit  int    `json:"limit"`  // Max rows (default 500, max 1000)
}

type OrderOutput struct {
	Symbol             string `json:"symbol"`
	OrderID            int64  `json:"order_id"`
	ClientOrderID      string `json:"client_order_id"`
	Price              string `json:"price"`
	OrigQty            string `json:"orig_qty"`
	ExecutedQty        string `json:"executed_qty"`
	CumulativeQuoteQty string `json:"cumulative_quote_qty"`
	Status             string `json:"status"`
	TimeInForce        string `json:"time_in_force"`
	Type               string `json:"type"`
	Side               string `json:"side"`
	Time               int64  `json:"time"`
	UpdateTime         int64  `json:"update_time"`
	IsWorking          bool   `json:"is_working"`
}

type OrdersOutput struct {
	Symbol string        `json:"symbol"`
	Orders []OrderOutput `json:"orders"`
}

func NewGetOrdersTool(provider ClientProvider) *GetOrdersTool {
	return &GetOrdersTool{provider: provider}
}

func (t *GetOrdersTool) Name() string {
	return "binance_get_orders"
}

func (t *GetOrdersTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Trading pair symbol (e.g. 'BTCUSDT')"},
			"limit": {"type": "integer", "description": "Maximum rows (default 500)", "maximum": 1000}
		},
		"required": ["symbol"]
	}`)
}

func (t *GetOrdersTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string"},
			"orders": {"type": "array", "items": {"type": "object"}}
		}
	}`)
}

func (t *GetOrdersTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	var input OrdersInput
	if err := parseInput(tc.Request, &input); err != nil {
		return errorResult(err)
	}

	symbol, err := validate.Symbol(input.Symbol)
	if err != nil {
		return errorResult(err)
	}
	limit := 0
	if input.Limit != 0 {
		limit, err = validate.Limit(input.Limit, maxOrderRows)
		if err != nil {
			return errorResult(err)
		}
	}

	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	orders, err := client.AllOrders(tc.Ctx, symbol, limit)
	if err != nil {
		return errorResult(fmt.Errorf("get orders failed: %w", err))
	}

	out := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderOutput(o))
	}

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: OrdersOutput{Symbol: symbol, Orders: out},
		Metadata: core.Meta("binance", "/api/v3/allOrders", map[string]any{
			"requested_symbol": symbol,
			"count":            len(out),
		}),
	}
}

// GetMyTradesTool returns the account's executed trades for a symbol.
type GetMyTradesTool struct {
	provider ClientProvider
}

type MyTradesInput struct {
	Symbol string `json:"symbol"` // Trading pair, e.g. 'BTCUSDT'
	Limit  int    `json:"limit"`  // Max rows (default 500, max 1000)
}

type TradeOutput struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"order_id"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	QuoteQty        string `json:"quote_qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commission_asset"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"is_buyer"`
	IsMaker         bool   `json:"is_maker"`
}

type MyTradesOutput struct {
	Symbol string        `json:"symbol"`
	Trades []TradeOutput `json:"trades"`
}

func NewGetMyTradesTool(provider ClientProvider) *GetMyTradesTool {
	return &GetMyTradesTool{provider: provider}
}

func (t *GetMyTradesTool) Name() string {
	return "binance_get_my_trades"
}

func (t *GetMyTradesTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Trading pair symbol (e.g. 'BTCUSDT')"},
			"limit": {"type": "integer", "description": "Maximum rows (default 500)", "maximum": 1000}
		},
		"required": ["symbol"]
	}`)
}

func (t *GetMyTradesTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string"},
			"trades": {"type": "array", "items": {"type": "object"}}
		}
	}`)
}

func (t *GetMyTradesTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	var input MyTradesInput
	if err := parseInput(tc.Request, &input); err != nil {
		return errorResult(err)
	}

	symbol, err := validate.Symbol(input.Symbol)
	if err != nil {
		return errorResult(err)
	}
	limit := 0
	if input.Limit != 0 {
		limit, err = validate.Limit(input.Limit, maxOrderRows)
		if err != nil {
			return errorResult(err)
		}
	}

	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	trades, err := client.MyTrades(tc.Ctx, symbol, limit)
	if err != nil {
		return errorResult(fmt.Errorf("get trades failed: %w", err))
	}

	out := make([]TradeOutput, 0, len(trades))
	for _, tr := range trades {
		out = append(out, TradeOutput{
			Symbol:          tr.Symbol,
			ID:              tr.ID,
			OrderID:         tr.OrderID,
			Price:           tr.Price.String(),
			Qty:             tr.Qty.String(),
			QuoteQty:        tr.QuoteQty.String(),
			Commission:      tr.Commission.String(),
			CommissionAsset: tr.CommissionAsset,
			Time:            tr.Time,
			IsBuyer:         tr.IsBuyer,
			IsMaker:         tr.IsMaker,
		})
	}

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: MyTradesOutput{Symbol: symbol, Trades: out},
		Metadata: core.Meta("binance", "/api/v3/myTrades", map[string]any{
			"requested_symbol": symbol,
			"count":            len(out),
		}),
	}
}

// GetTradeFeesTool returns the commission schedule, for one symbol or the
// whole exchange.
type GetTradeFeesTool struct {
	provider ClientProvider
}

type TradeFeesInput struct {
	Symbol string `json:"symbol"` // Optional; empty returns every symbol
}

type TradeFeeOutput struct {
	Symbol          string `json:"symbol"`
	MakerCommission string `json:"maker_commission"`
	TakerCommission string `json:"taker_commission"`
}

type TradeFeesOutput struct {
	Fees []TradeFeeOutput `json:"fees"`
}

func NewGetTradeFeesTool(provider ClientProvider) *GetTradeFeesTool {
	return &GetTradeFeesTool{provider: provider}
}

func (t *GetTradeFeesTool) Name() string {
	return "binance_get_trade_fees"
}

func (t *GetTradeFeesTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Optional symbol; omit for all symbols"}
		}
	}`)
}

func (t *GetTradeFeesTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"fees": {"type": "array", "items": {"type": "object"}}
		}
	}`)
}

func (t *GetTradeFeesTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	var input TradeFeesInput
	if err := parseInput(tc.Request, &input); err != nil {
		return errorResult(err)
	}

	symbol := ""
	if input.Symbol != "" {
		var err error
		symbol, err = validate.Symbol(input.Symbol)
		if err != nil {
			return errorResult(err)
		}
	}

	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	fees, err := client.TradeFee(tc.Ctx, symbol)
	if err != nil {
		return errorResult(fmt.Errorf("get trade fees failed: %w", err))
	}

	out := make([]TradeFeeOutput, 0, len(fees))
	for _, fee := range fees {
		out = append(out, TradeFeeOutput{
			Symbol:          fee.Symbol,
			MakerCommission: fee.MakerCommission.String(),
			TakerCommission: fee.TakerCommission.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: TradeFeesOutput{Fees: out},
		Metadata: core.Meta("binance", "/sapi/v1/asset/tradeFee", map[string]any{
			"count":    len(out),
			"fee_type": "spot",
		}),
	}
}

func orderOutput(o binance.Order) OrderOutput {
	return OrderOutput{
		Symbol:             o.Symbol,
		OrderID:            o.OrderID,
		ClientOrderID:      o.ClientOrderID,
		Price:              o.Price.String(),
		OrigQty:            o.OrigQty.String(),
		ExecutedQty:        o.ExecutedQty.String(),
		CumulativeQuoteQty: o.CumulativeQuoteQty.String(),
		Status:             o.Status,
		TimeInForce:        o.TimeInForce,
		Type:               o.Type,
		Side:               o.Side,
		Time:               o.Time,
		UpdateTime:         o.UpdateTime,
		IsWorking:          o.IsWorking,
	}
}

// RegisterAccountTools registers the authenticated read tools.
func RegisterAccountTools(registry *core.ToolRegistry, provider ClientProvider) {
	base := core.ToolPolicy{
		Retriable:       true,
		DefaultTimeout:  30 * time.Second,
		RateLimitPerSec: 5.0,
		Burst:           10,
		LimitKey:        "binance-account",
	}

	account := base
	account.CostPerCall = binance.WeightAccount
	registry.Register(NewGetAccountTool(provider), account, RiskClassAuth)

	orders := base
	orders.CostPerCall = binance.WeightAllOrders
	registry.Register(NewGetOrdersTool(provider), orders, RiskClassAuth)

	trades := base
	trades.CostPerCall = binance.WeightMyTrades
	registry.Register(NewGetMyTradesTool(provider), trades, RiskClassAuth)

	fees := base
	fees.CostPerCall = binance.WeightTradeFee
	registry.Register(NewGetTradeFeesTool(provider), fees, RiskClassAuth)
}
