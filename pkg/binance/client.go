// Package binance is a hand-rolled spot REST client. It covers exactly the
// operations the gateway's tools forward, signs requests with HMAC-SHA256,
// and paces itself with a token-bucket limiter so that a burst of tool
// calls cannot slam the exchange even before the gateway's own quota gate.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/quantarc/binance-gateway/core"
)

// Spot API endpoints.
const (
	DefaultBaseURL = "https://api.binance.com"
	TestnetBaseURL = "https://testnet.binance.vision"

	DefaultStreamURL = "wss://stream.binance.com:9443/ws"
	TestnetStreamURL = "wss://testnet.binance.vision/ws"
)

const clientOrderPrefix = "gw-"

// AuthType selects how a request is authenticated.
type AuthType int

const (
	AuthNone AuthType = iota
	AuthAPIKey
	AuthSigned
)

// Client is a Binance spot REST client.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	clock      func() time.Time
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (testnet, or a fixture server in tests).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRecvWindow sets the recvWindow attached to signed requests.
func WithRecvWindow(window time.Duration) ClientOption {
	return func(c *Client) {
		c.recvWindow = window
	}
}

// WithPacing overrides the client-level request pacing.
func WithPacing(perSec float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// NewClient creates a spot REST client. Credentials may be empty for a
// client used only on public endpoints.
func NewClient(apiKey, apiSecret string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    DefaultBaseURL,
		recvWindow: 5 * time.Second,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(20), 10),
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

// BaseURL returns the endpoint this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks connectivity to the REST endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ping", nil, AuthNone)
	return err
}

// ServerTime fetches the exchange's clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/time", nil, AuthNone)
	if err != nil {
		return time.Time{}, err
	}
	var resp serverTimeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, fmt.Errorf("decode server time: %w", err)
	}
	return time.UnixMilli(resp.ServerTime), nil
}

// TickerPrice fetches the latest price for a symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (*TickerPrice, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, AuthNone)
	if err != nil {
		return nil, err
	}
	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode ticker price: %w", err)
	}
	return &TickerPrice{Symbol: resp.Symbol, Price: dec(resp.Price)}, nil
}

// Ticker24h fetches rolling 24-hour statistics for a symbol.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/24hr", params, AuthNone)
	if err != nil {
		return nil, err
	}
	var resp ticker24hResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode 24hr ticker: %w", err)
	}
	return &Ticker24h{
		Symbol:             resp.Symbol,
		PriceChange:        dec(resp.PriceChange),
		PriceChangePercent: dec(resp.PriceChangePercent),
		WeightedAvgPrice:   dec(resp.WeightedAvgPrice),
		PrevClosePrice:     dec(resp.PrevClosePrice),
		LastPrice:          dec(resp.LastPrice),
		BidPrice:           dec(resp.BidPrice),
		AskPrice:           dec(resp.AskPrice),
		OpenPrice:          dec(resp.OpenPrice),
		HighPrice:          dec(resp.HighPrice),
		LowPrice:           dec(resp.LowPrice),
		Volume:             dec(resp.Volume),
		QuoteVolume:        dec(resp.QuoteVolume),
		OpenTime:           resp.OpenTime,
		CloseTime:          resp.CloseTime,
		Count:              resp.Count,
	}, nil
}

// ExchangeInfo fetches exchange metadata. An empty symbol returns the whole
// exchange; otherwise only that symbol's rules are included.
func (c *Client) ExchangeInfo(ctx context.Context, symbol string) (*ExchangeInfo, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, AuthNone)
	if err != nil {
		return nil, err
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}

	info := &ExchangeInfo{
		Timezone:   resp.Timezone,
		ServerTime: resp.ServerTime,
		RateLimits: make([]RateLimitInfo, 0, len(resp.RateLimits)),
		Symbols:    make([]SymbolInfo, 0, len(resp.Symbols)),
	}
	for _, rl := range resp.RateLimits {
		info.RateLimits = append(info.RateLimits, RateLimitInfo{
			RateLimitType: rl.RateLimitType,
			Interval:      rl.Interval,
			IntervalNum:   rl.IntervalNum,
			Limit:         rl.Limit,
		})
	}
	for _, s := range resp.Symbols {
		info.Symbols = append(info.Symbols, parseSymbolInfo(s))
	}
	return info, nil
}

// Depth fetches an order book snapshot. A zero limit uses the endpoint
// default.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (*Depth, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/depth", params, AuthNone)
	if err != nil {
		return nil, err
	}
	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}
	return &Depth{
		LastUpdateID: resp.LastUpdateID,
		Bids:         parseLevels(resp.Bids),
		Asks:         parseLevels(resp.Asks),
	}, nil
}

// Account fetches the spot account snapshot.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	acct := &Account{
		MakerCommission: resp.MakerCommission,
		TakerCommission: resp.TakerCommission,
		CanTrade:        resp.CanTrade,
		CanWithdraw:     resp.CanWithdraw,
		CanDeposit:      resp.CanDeposit,
		UpdateTime:      resp.UpdateTime,
		Balances:        make([]Balance, 0, len(resp.Balances)),
	}
	for _, b := range resp.Balances {
		acct.Balances = append(acct.Balances, Balance{
			Asset:  b.Asset,
			Free:   dec(b.Free),
			Locked: dec(b.Locked),
		})
	}
	return acct, nil
}

// AllOrders fetches the account's orders for a symbol, newest last. A zero
// limit uses the endpoint default.
func (c *Client) AllOrders(ctx context.Context, symbol string, limit int) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/allOrders", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	orders := make([]Order, 0, len(resp))
	for _, o := range resp {
		orders = append(orders, parseOrder(o))
	}
	return orders, nil
}

// MyTrades fetches the account's executed trades for a symbol.
func (c *Client) MyTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/myTrades", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []myTradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}

	trades := make([]Trade, 0, len(resp))
	for _, t := range resp {
		trades = append(trades, Trade{
			Symbol:          t.Symbol,
			ID:              t.ID,
			OrderID:         t.OrderID,
			Price:           dec(t.Price),
			Qty:             dec(t.Qty),
			QuoteQty:        dec(t.QuoteQty),
			Commission:      dec(t.Commission),
			CommissionAsset: t.CommissionAsset,
			Time:            t.Time,
			IsBuyer:         t.IsBuyer,
			IsMaker:         t.IsMaker,
		})
	}
	return trades, nil
}

// TradeFee fetches the commission schedule. An empty symbol returns every
// symbol's fees.
func (c *Client) TradeFee(ctx context.Context, symbol string) ([]TradeFee, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/sapi/v1/asset/tradeFee", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []tradeFeeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode trade fees: %w", err)
	}

	fees := make([]TradeFee, 0, len(resp))
	for _, f := range resp {
		fees = append(fees, TradeFee{
			Symbol:          f.Symbol,
			MakerCommission: dec(f.MakerCommission),
			TakerCommission: dec(f.TakerCommission),
		})
	}
	return fees, nil
}

// CreateOrderRequest is a new spot order. Price and TimeInForce only apply
// to order types that take them; a zero Price is omitted from the request.
type CreateOrderRequest struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      string
	Price         string
	TimeInForce   string
	ClientOrderID string
}

// CreateOrder places a spot order. A client order ID is generated when the
// request does not carry one, so retries by the caller stay idempotent on
// the exchange side.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", req.Side)
	params.Set("type", req.Type)
	params.Set("quantity", req.Quantity)
	if req.Price != "" {
		params.Set("price", req.Price)
	}
	if req.TimeInForce != "" {
		params.Set("timeInForce", req.TimeInForce)
	}
	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = newClientOrderID()
	}
	params.Set("newClientOrderId", clientOrderID)

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp orderAckResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order ack: %w", err)
	}

	ack := &OrderAck{
		Symbol:             resp.Symbol,
		OrderID:            resp.OrderID,
		ClientOrderID:      resp.ClientOrderID,
		TransactTime:       resp.TransactTime,
		Price:              dec(resp.Price),
		OrigQty:            dec(resp.OrigQty),
		ExecutedQty:        dec(resp.ExecutedQty),
		CumulativeQuoteQty: dec(resp.CumulativeQuoteQty),
		Status:             resp.Status,
		TimeInForce:        resp.TimeInForce,
		Type:               resp.Type,
		Side:               resp.Side,
	}
	for _, f := range resp.Fills {
		ack.Fills = append(ack.Fills, Fill{
			Price:           dec(f.Price),
			Qty:             dec(f.Qty),
			Commission:      dec(f.Commission),
			CommissionAsset: f.CommissionAsset,
		})
	}
	return ack, nil
}

// --- Internal helpers ---

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth AuthType) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pacing limiter: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	if auth == AuthSigned {
		params.Set("timestamp", strconv.FormatInt(c.clock().UnixMilli(), 10))
		if c.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
		params.Set("signature", sign(c.apiSecret, params.Encode()))
	}

	var (
		req *http.Request
		err error
	)
	urlStr := c.baseURL + path
	if method == http.MethodGet || method == http.MethodDelete {
		if encoded := params.Encode(); encoded != "" {
			urlStr += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, urlStr, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, urlStr, strings.NewReader(params.Encode()))
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if method != http.MethodGet && method != http.MethodDelete {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if auth == AuthAPIKey || auth == AuthSigned {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", core.ErrNetwork, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// sign computes the hex HMAC-SHA256 of payload under the API secret.
func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func newClientOrderID() string {
	return clientOrderPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
