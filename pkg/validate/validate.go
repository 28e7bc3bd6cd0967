// Package validate holds the input validation rules applied at the gateway
// boundary. Every rule is a pure function returning the normalized value or
// an error chained onto core.ErrValidation; nothing here touches the
// network.
package validate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantarc/binance-gateway/core"
)

var (
	// ErrInvalidSymbol indicates a malformed trading pair symbol.
	ErrInvalidSymbol = fmt.Errorf("%w: invalid symbol", core.ErrValidation)
	// ErrInvalidNumber indicates a numeric parameter out of range or unparseable.
	ErrInvalidNumber = fmt.Errorf("%w: invalid number", core.ErrValidation)
	// ErrInvalidLimit indicates a row-limit parameter outside its allowed range.
	ErrInvalidLimit = fmt.Errorf("%w: invalid limit", core.ErrValidation)
	// ErrInvalidSide indicates an order side outside the allow-list.
	ErrInvalidSide = fmt.Errorf("%w: invalid order side", core.ErrValidation)
	// ErrInvalidOrderType indicates an order type outside the allow-list.
	ErrInvalidOrderType = fmt.Errorf("%w: invalid order type", core.ErrValidation)
)

// Order sides accepted by the exchange.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types accepted by the exchange.
const (
	OrderTypeLimit           = "LIMIT"
	OrderTypeMarket          = "MARKET"
	OrderTypeStopLoss        = "STOP_LOSS"
	OrderTypeStopLossLimit   = "STOP_LOSS_LIMIT"
	OrderTypeTakeProfit      = "TAKE_PROFIT"
	OrderTypeTakeProfitLimit = "TAKE_PROFIT_LIMIT"
	OrderTypeLimitMaker      = "LIMIT_MAKER"
)

// DefaultMaxLimit is the largest row limit any endpoint accepts.
const DefaultMaxLimit = 5000

// numericCap rejects absurdly large magnitudes before they reach the
// exchange.
var numericCap = decimal.New(1, 15)

var orderSides = map[string]struct{}{
	SideBuy:  {},
	SideSell: {},
}

var orderTypes = map[string]struct{}{
	OrderTypeLimit:           {},
	OrderTypeMarket:          {},
	OrderTypeStopLoss:        {},
	OrderTypeStopLossLimit:   {},
	OrderTypeTakeProfit:      {},
	OrderTypeTakeProfitLimit: {},
	OrderTypeLimitMaker:      {},
}

// Symbol validates a trading pair symbol and returns it uppercased.
// Symbols are 3-20 alphanumeric characters with at least one letter;
// purely numeric strings are rejected.
func Symbol(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 3 || len(s) > 20 {
		return "", fmt.Errorf("symbol %q: length must be 3-20 characters: %w", s, ErrInvalidSymbol)
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return "", fmt.Errorf("symbol %q: must be alphanumeric: %w", s, ErrInvalidSymbol)
		}
	}
	if digits == len(s) {
		return "", fmt.Errorf("symbol %q: cannot be purely numeric: %w", s, ErrInvalidSymbol)
	}
	return strings.ToUpper(s), nil
}

// PositiveNumber validates that value is strictly greater than min and, when
// max is non-nil, at most *max. Magnitudes above 1e15 are always rejected.
// The field name is carried in the error message.
func PositiveNumber(name string, value, min decimal.Decimal, max *decimal.Decimal) error {
	if value.LessThanOrEqual(min) {
		return fmt.Errorf("%s must be greater than %s, got %s: %w", name, min, value, ErrInvalidNumber)
	}
	if max != nil && value.GreaterThan(*max) {
		return fmt.Errorf("%s must be at most %s, got %s: %w", name, max, value, ErrInvalidNumber)
	}
	if value.GreaterThan(numericCap) {
		return fmt.Errorf("%s is too large: %w", name, ErrInvalidNumber)
	}
	return nil
}

// ParsePositive parses raw as a decimal and validates it is positive.
func ParsePositive(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a number: %w", name, raw, ErrInvalidNumber)
	}
	if err := PositiveNumber(name, d, decimal.Zero, nil); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Limit validates a row-limit parameter against [1, maxLimit]. A maxLimit
// of zero means DefaultMaxLimit. Out-of-range limits are rejected, never
// clamped, so callers are never silently handed less data than they asked
// for.
func Limit(limit, maxLimit int) (int, error) {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if limit < 1 || limit > maxLimit {
		return 0, fmt.Errorf("limit %d outside [1, %d]: %w", limit, maxLimit, ErrInvalidLimit)
	}
	return limit, nil
}

// OrderSide validates an order side. Matching is case-sensitive: "buy" is a
// caller bug, not an alias for "BUY".
func OrderSide(raw string) (string, error) {
	if _, ok := orderSides[raw]; !ok {
		return "", fmt.Errorf("order side %q must be one of BUY, SELL: %w", raw, ErrInvalidSide)
	}
	return raw, nil
}

// OrderTypeName validates an order type. Matching is case-sensitive.
func OrderTypeName(raw string) (string, error) {
	if _, ok := orderTypes[raw]; !ok {
		return "", fmt.Errorf("order type %q is not supported: %w", raw, ErrInvalidOrderType)
	}
	return raw, nil
}
