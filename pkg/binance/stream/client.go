// Package stream implements the Binance market data WebSocket feed with
// automatic reconnection, resubscription, and per-stream event routing.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State represents the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers contains callback functions for connection lifecycle events.
// Market events are consumed through Subscription channels, not callbacks.
type Handlers struct {
	OnConnect     func()
	OnDisconnect  func(err error)
	OnError       func(err error)
	OnStateChange func(old, new State)
}

// Config holds stream client configuration.
type Config struct {
	// URL is the market stream endpoint, e.g. wss://stream.binance.com:9443/ws.
	URL string

	// Reconnect settings
	ReconnectEnabled     bool
	ReconnectMinDelay    time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int // 0 = unlimited

	// Heartbeat settings
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// Read/Write timeouts
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// Message buffer sizes
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig returns a config with defaults tuned for the exchange feed.
// The read timeout must exceed the server ping cadence (every 3 minutes) or
// quiet streams would be torn down between pings.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ReconnectEnabled:     true,
		ReconnectMinDelay:    1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		ReconnectMaxAttempts: 0, // unlimited
		HeartbeatInterval:    30 * time.Second,
		HeartbeatTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReadTimeout:          4 * time.Minute,
		ReadBufferSize:       8192,
		WriteBufferSize:      4096,
	}
}

const defaultEventBuffer = 256

// Event is a single raw payload routed from the feed.
// Data holds the event object itself, with any combined-stream wrapper removed.
type Event struct {
	Stream string
	Data   json.RawMessage
}

// command is the frame shape for live subscribe/unsubscribe requests.
type command struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

type commandReply struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// frameHeader is the combined-stream wrapper shape.
type frameHeader struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// eventHeader is the minimal shape shared by raw stream events.
type eventHeader struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
}

// Client is a market stream client with reconnection support.
type Client struct {
	config   Config
	handlers Handlers

	conn   *websocket.Conn
	connMu sync.RWMutex
	state  int32 // atomic State

	writeCh   chan writeRequest
	closeCh   chan struct{}
	closeOnce sync.Once

	subs   []*Subscription
	subsMu sync.RWMutex

	nextID atomic.Int64

	reconnectAttempts int
	lastError         error
	lastErrorMu       sync.RWMutex
}

type writeRequest struct {
	msgType int
	data    []byte
	result  chan error
}

// NewClient creates a new market stream client.
func NewClient(config Config, handlers Handlers) *Client {
	return &Client{
		config:   config,
		handlers: handlers,
		writeCh:  make(chan writeRequest, 100),
		closeCh:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read, write,
// and heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	if c.getState() == StateClosed {
		return errors.New("client is closed")
	}

	c.setState(StateConnecting)

	dialer := websocket.Dialer{
		ReadBufferSize:  c.config.ReadBufferSize,
		WriteBufferSize: c.config.WriteBufferSize,
	}

	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		c.setLastError(err)
		return fmt.Errorf("dial failed: %w", err)
	}

	// The server pings every few minutes and expects a pong. Answer and
	// push out the read deadline so quiet streams stay up.
	conn.SetPingHandler(func(appData string) error {
		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		deadline := time.Now().Add(c.config.WriteTimeout)
		return conn.WriteControl(websocket.PongMessage, []byte(appData), deadline)
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setState(StateConnected)
	c.reconnectAttempts = 0

	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}

	go c.readLoop()
	go c.writeLoop()
	if c.config.HeartbeatInterval > 0 {
		go c.heartbeatLoop()
	}

	return nil
}

// Close closes the connection and all subscriptions.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closeCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()

		c.subsMu.Lock()
		for _, sub := range c.subs {
			sub.close()
		}
		c.subs = nil
		c.subsMu.Unlock()
	})
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.getState()
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.getState() == StateConnected
}

// LastError returns the last error that occurred.
func (c *Client) LastError() error {
	c.lastErrorMu.RLock()
	defer c.lastErrorMu.RUnlock()
	return c.lastError
}

// Subscribe registers the given stream names and, when connected, sends a
// SUBSCRIBE frame for them. Events arrive on the returned subscription's
// channel; a slow consumer drops events rather than stalling the feed.
func (c *Client) Subscribe(names ...string) (*Subscription, error) {
	if len(names) == 0 {
		return nil, errors.New("no stream names")
	}

	sub := &Subscription{
		names:  append([]string(nil), names...),
		routes: make(map[string]struct{}, len(names)),
		events: make(chan Event, defaultEventBuffer),
		client: c,
	}
	for _, name := range names {
		sub.routes[routeKey(name)] = struct{}{}
	}

	c.subsMu.Lock()
	c.subs = append(c.subs, sub)
	c.subsMu.Unlock()

	if c.IsConnected() {
		if err := c.sendCommand("SUBSCRIBE", names); err != nil {
			return sub, err
		}
	}

	return sub, nil
}

// --- Internal methods ---

func (c *Client) getState() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Client) setState(s State) {
	old := State(atomic.SwapInt32(&c.state, int32(s)))
	if old != s && c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(old, s)
	}
}

func (c *Client) setLastError(err error) {
	c.lastErrorMu.Lock()
	c.lastError = err
	c.lastErrorMu.Unlock()
}

func (c *Client) sendCommand(method string, params []string) error {
	cmd := command{Method: method, Params: params, ID: c.nextID.Add(1)}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	return c.send(websocket.TextMessage, data)
}

func (c *Client) send(msgType int, data []byte) error {
	if c.getState() != StateConnected {
		return errors.New("not connected")
	}

	result := make(chan error, 1)
	select {
	case c.writeCh <- writeRequest{msgType: msgType, data: data, result: result}:
		return <-result
	case <-c.closeCh:
		return errors.New("client closed")
	}
}

func (c *Client) readLoop() {
	defer func() {
		if c.getState() != StateClosed {
			c.handleDisconnect(c.LastError())
		}
	}()

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			return
		}

		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.setLastError(err)
			if c.handlers.OnError != nil {
				c.handlers.OnError(err)
			}
			return
		}

		c.routeFrame(data)
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case req := <-c.writeCh:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				req.result <- errors.New("not connected")
				continue
			}

			if c.config.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			}

			err := conn.WriteMessage(req.msgType, req.data)
			req.result <- err

			if err != nil {
				c.setLastError(err)
				if c.handlers.OnError != nil {
					c.handlers.OnError(err)
				}
			}
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			if c.getState() != StateConnected {
				continue
			}

			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				continue
			}

			deadline := time.Now().Add(c.config.HeartbeatTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.setLastError(err)
				if c.handlers.OnError != nil {
					c.handlers.OnError(fmt.Errorf("heartbeat failed: %w", err))
				}
			}
		}
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setState(StateDisconnected)

	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(err)
	}

	if c.config.ReconnectEnabled && c.getState() != StateClosed {
		go c.reconnect()
	}
}

func (c *Client) reconnect() {
	c.setState(StateReconnecting)

	for {
		if c.getState() == StateClosed {
			return
		}

		c.reconnectAttempts++

		if c.config.ReconnectMaxAttempts > 0 && c.reconnectAttempts > c.config.ReconnectMaxAttempts {
			c.setState(StateDisconnected)
			if c.handlers.OnError != nil {
				c.handlers.OnError(fmt.Errorf("max reconnect attempts (%d) exceeded", c.config.ReconnectMaxAttempts))
			}
			return
		}

		// Exponential backoff, capped so the shift cannot wrap.
		shift := c.reconnectAttempts - 1
		if shift > 5 {
			shift = 5
		}
		delay := c.config.ReconnectMinDelay * time.Duration(1<<uint(shift))
		if delay > c.config.ReconnectMaxDelay {
			delay = c.config.ReconnectMaxDelay
		}

		select {
		case <-c.closeCh:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			c.resubscribe()
			return
		}

		if c.handlers.OnError != nil {
			c.handlers.OnError(fmt.Errorf("reconnect attempt %d failed: %w", c.reconnectAttempts, err))
		}
	}
}

// routeFrame delivers one inbound frame to every subscription routing its
// stream. Frames that are neither wrapped nor carry an event type are treated
// as command replies.
func (c *Client) routeFrame(data []byte) {
	payload := json.RawMessage(data)
	var name string

	var fh frameHeader
	if err := json.Unmarshal(data, &fh); err == nil && fh.Stream != "" {
		name = fh.Stream
		payload = fh.Data
	} else {
		var eh eventHeader
		if err := json.Unmarshal(data, &eh); err != nil || eh.Event == "" {
			c.handleCommandReply(data)
			return
		}
		name = streamName(eh.Event, eh.Symbol)
		if name == "" {
			return
		}
	}

	key := routeKey(name)

	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for _, sub := range c.subs {
		if _, ok := sub.routes[key]; !ok {
			continue
		}
		select {
		case sub.events <- Event{Stream: name, Data: payload}:
		default:
			// Consumer is behind. Drop rather than block the read loop.
		}
	}
}

func (c *Client) handleCommandReply(data []byte) {
	var reply commandReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return
	}
	if reply.Error != nil {
		err := fmt.Errorf("stream command %d rejected: code %d: %s", reply.ID, reply.Error.Code, reply.Error.Msg)
		c.setLastError(err)
		if c.handlers.OnError != nil {
			c.handlers.OnError(err)
		}
	}
}

func (c *Client) resubscribe() {
	c.subsMu.RLock()
	seen := make(map[string]struct{})
	var names []string
	for _, sub := range c.subs {
		for _, name := range sub.names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	c.subsMu.RUnlock()

	if len(names) > 0 {
		if err := c.sendCommand("SUBSCRIBE", names); err != nil && c.handlers.OnError != nil {
			c.handlers.OnError(fmt.Errorf("resubscribe failed: %w", err))
		}
	}
}

func (c *Client) unsubscribe(sub *Subscription) {
	c.subsMu.Lock()
	kept := c.subs[:0:0]
	for _, s := range c.subs {
		if s != sub {
			kept = append(kept, s)
		}
	}
	c.subs = kept

	// Only drop stream names no remaining subscription still routes.
	var orphaned []string
	for _, name := range sub.names {
		key := routeKey(name)
		inUse := false
		for _, s := range c.subs {
			if _, ok := s.routes[key]; ok {
				inUse = true
				break
			}
		}
		if !inUse {
			orphaned = append(orphaned, name)
		}
	}
	c.subsMu.Unlock()

	if len(orphaned) > 0 && c.IsConnected() {
		c.sendCommand("UNSUBSCRIBE", orphaned)
	}

	sub.close()
}

// routeKey normalizes a stream name for routing. Update-speed suffixes are
// stripped because inbound events carry no speed marker.
func routeKey(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, "@100ms")
	name = strings.TrimSuffix(name, "@1000ms")
	return name
}

// streamName reconstructs the raw stream name an unwrapped event belongs to.
func streamName(event, symbol string) string {
	sym := strings.ToLower(symbol)
	switch event {
	case "24hrMiniTicker":
		return sym + "@miniTicker"
	case "24hrTicker":
		return sym + "@ticker"
	case "depthUpdate":
		return sym + "@depth"
	case "trade":
		return sym + "@trade"
	case "aggTrade":
		return sym + "@aggTrade"
	}
	return ""
}
