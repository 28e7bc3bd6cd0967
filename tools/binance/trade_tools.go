package binance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantarc/binance-gateway/core"
	"github.com/quantarc/binance-gateway/pkg/binance"
	"github.com/quantarc/binance-gateway/pkg/validate"
)

// === Trading Tools ===
// WARNING: These tools move funds. They are registered with the strictest
// rate class and a daily order budget.

// Order types that carry a price, and the subset that also carries a
// time-in-force. LIMIT_MAKER takes a price but no time-in-force.
var priceRequired = map[string]struct{}{
	validate.OrderTypeLimit:           {},
	validate.OrderTypeStopLossLimit:   {},
	validate.OrderTypeTakeProfitLimit: {},
	validate.OrderTypeLimitMaker:      {},
}

var takesTimeInForce = map[string]struct{}{
	validate.OrderTypeLimit:           {},
	validate.OrderTypeStopLossLimit:   {},
	validate.OrderTypeTakeProfitLimit: {},
}

var timeInForceValues = map[string]struct{}{
	"GTC": {},
	"IOC": {},
	"FOK": {},
}

// CreateOrderTool places a spot order. Every parameter is validated before
// the request leaves the process.
type CreateOrderTool struct {
	provider ClientProvider
}

type CreateOrderInput struct {
	Symbol      string  `json:"symbol"`        // Trading pair, e.g. 'BTCUSDT'
	Side        string  `json:"side"`          // BUY or SELL
	Type        string  `json:"type"`          // LIMIT, MARKET, ...
	Quantity    float64 `json:"quantity"`      // Base asset quantity
	Price       float64 `json:"price"`         // Required for price-bearing types
	TimeInForce string  `json:"time_in_force"` // GTC (default), IOC, FOK
}

type OrderFillOutput struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commission_asset"`
}

type CreateOrderOutput struct {
	Symbol             string            `json:"symbol"`
	OrderID            int64             `json:"order_id"`
	ClientOrderID      string            `json:"client_order_id"`
	TransactTime       int64             `json:"transact_time"`
	Price              string            `json:"price"`
	OrigQty            string            `json:"orig_qty"`
	ExecutedQty        string            `json:"executed_qty"`
	CumulativeQuoteQty string            `json:"cumulative_quote_qty"`
	Status             string            `json:"status"`
	TimeInForce        string            `json:"time_in_force"`
	Type               string            `json:"type"`
	Side               string            `json:"side"`
	Fills              []OrderFillOutput `json:"fills"`
}

func NewCreateOrderTool(provider ClientProvider) *CreateOrderTool {
	return &CreateOrderTool{provider: provider}
}

func (t *CreateOrderTool) Name() string {
	return "binance_create_order"
}

func (t *CreateOrderTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Trading pair symbol (e.g. 'BTCUSDT')"},
			"side": {"type": "string", "enum": ["BUY", "SELL"]},
			"type": {"type": "string", "description": "Order type (LIMIT, MARKET, ...)"},
			"quantity": {"type": "number", "description": "Base asset quantity, greater than zero"},
			"price": {"type": "number", "description": "Price per unit; required for LIMIT-style orders"},
			"time_in_force": {"type": "string", "enum": ["GTC", "IOC", "FOK"], "description": "Defaults to GTC for orders that take it"}
		},
		"required": ["symbol", "side", "type", "quantity"]
	}`)
}

func (t *CreateOrderTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string"},
			"order_id": {"type": "integer"},
			"client_order_id": {"type": "string"},
			"status": {"type": "string"},
			"executed_qty": {"type": "string"},
			"fills": {"type": "array", "items": {"type": "object"}}
		}
	}`)
}

func (t *CreateOrderTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	var input CreateOrderInput
	if err := parseInput(tc.Request, &input); err != nil {
		return errorResult(err)
	}

	symbol, err := validate.Symbol(input.Symbol)
	if err != nil {
		return errorResult(err)
	}
	side, err := validate.OrderSide(input.Side)
	if err != nil {
		return errorResult(err)
	}
	orderType, err := validate.OrderTypeName(input.Type)
	if err != nil {
		return errorResult(err)
	}

	qty := decimal.NewFromFloat(input.Quantity)
	if err := validate.PositiveNumber("quantity", qty, decimal.Zero, nil); err != nil {
		return errorResult(err)
	}

	req := binance.CreateOrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Quantity: qty.String(),
	}

	_, wantsPrice := priceRequired[orderType]
	switch {
	case wantsPrice && input.Price == 0:
		return errorResult(fmt.Errorf("%w: price is required for %s orders", core.ErrValidation, orderType))
	case !wantsPrice && input.Price != 0:
		return errorResult(fmt.Errorf("%w: price is not accepted for %s orders", core.ErrValidation, orderType))
	case wantsPrice:
		price := decimal.NewFromFloat(input.Price)
		if err := validate.PositiveNumber("price", price, decimal.Zero, nil); err != nil {
			return errorResult(err)
		}
		req.Price = price.String()
	}

	if _, ok := takesTimeInForce[orderType]; ok {
		tif := input.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		if _, valid := timeInForceValues[tif]; !valid {
			return errorResult(fmt.Errorf("%w: time in force %q must be one of GTC, IOC, FOK", core.ErrValidation, tif))
		}
		req.TimeInForce = tif
	} else if input.TimeInForce != "" {
		return errorResult(fmt.Errorf("%w: time in force is not accepted for %s orders", core.ErrValidation, orderType))
	}

	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	ack, err := client.CreateOrder(tc.Ctx, req)
	if err != nil {
		return errorResult(fmt.Errorf("create order failed: %w", err))
	}

	fills := make([]OrderFillOutput, 0, len(ack.Fills))
	for _, f := range ack.Fills {
		fills = append(fills, OrderFillOutput{
			Price:           f.Price.String(),
			Qty:             f.Qty.String(),
			Commission:      f.Commission.String(),
			CommissionAsset: f.CommissionAsset,
		})
	}

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: CreateOrderOutput{
			Symbol:             ack.Symbol,
			OrderID:            ack.OrderID,
			ClientOrderID:      ack.ClientOrderID,
			TransactTime:       ack.TransactTime,
			Price:              ack.Price.String(),
			OrigQty:            ack.OrigQty.String(),
			ExecutedQty:        ack.ExecutedQty.String(),
			CumulativeQuoteQty: ack.CumulativeQuoteQty.String(),
			Status:             ack.Status,
			TimeInForce:        ack.TimeInForce,
			Type:               ack.Type,
			Side:               ack.Side,
			Fills:              fills,
		},
		Metadata: core.Meta("binance", "/api/v3/order", map[string]any{
			"requested_symbol": symbol,
			"side":             side,
			"type":             orderType,
		}),
	}
}

// RegisterTradingTools registers the order placement tools.
func RegisterTradingTools(registry *core.ToolRegistry, provider ClientProvider) {
	policy := core.ToolPolicy{
		Retriable:       false,
		DefaultTimeout:  30 * time.Second,
		RateLimitPerSec: 1.0,
		Burst:           2,
		LimitKey:        "binance-trading",
		BudgetPerDay:    100.0,
		CostPerCall:     binance.WeightCreateOrder,
	}

	registry.Register(NewCreateOrderTool(provider), policy, RiskClassTrading)
}

// RegisterAllTools registers every tool in this package.
func RegisterAllTools(registry *core.ToolRegistry, provider ClientProvider) {
	RegisterMarketTools(registry, provider)
	RegisterAccountTools(registry, provider)
	RegisterTradingTools(registry, provider)
}
