package binance

// Request weights charged against the per-minute quota, following the
// exchange's published costs. Unknown endpoints cost 1.

// DepthWeight is the weight of an order book snapshot at the given limit.
// A zero limit means the endpoint default.
func DepthWeight(limit int) int {
	switch {
	case limit == 0:
		return 5
	case limit <= 50:
		return 2
	case limit <= 100:
		return 5
	case limit <= 500:
		return 10
	case limit <= 1000:
		return 20
	default:
		return 50
	}
}

const (
	WeightPing         = 1
	WeightTickerPrice  = 1
	WeightTicker24h    = 1
	WeightExchangeInfo = 10
	WeightAccount      = 10
	WeightAllOrders    = 10
	WeightMyTrades     = 10
	WeightCreateOrder  = 1
	WeightTradeFee     = 1
)
