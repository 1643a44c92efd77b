// Package streamclient maintains a single long-lived WebSocket
// connection to the upstream exchange's kline stream, multiplexing
// subscriptions and transparently recovering from disconnects.
package streamclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// State is one point in the client's connection lifecycle.
type State int

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

const (
	pingInterval         = 20 * time.Second
	reconnectBaseDelay   = 1 * time.Second
	reconnectMaxDelay    = 60 * time.Second
	reconnectMaxAttempts = 5

	// subscribeRateLimit caps outbound SUBSCRIBE frames so a large
	// resubscription burst after a reconnect can't trip the upstream's
	// own per-connection rate limit.
	subscribeRateLimit = 5 // frames per second
	subscribeBurst     = 10
)

// subscribeFrame is the upstream SUBSCRIBE envelope.
type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int       `json:"id"`
}

// Client is a stateful WS client for the exchange kline stream.
type Client struct {
	url    string
	dialer *websocket.Dialer

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	subscriptions map[string]struct{}
	nextID        int
	subscribeLim  *rate.Limiter

	// Callbacks, set before Connect.
	OnData  func(raw []byte)
	OnOpen  func()
	OnClose func()
	OnFatal func(err error)

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Client targeting the given streaming base URL
// (e.g. "wss://stream.binance.com:9443/ws").
func New(url string) *Client {
	return &Client{
		url:           url,
		dialer:        websocket.DefaultDialer,
		state:         StateDisconnected,
		subscriptions: make(map[string]struct{}),
		subscribeLim:  rate.NewLimiter(rate.Limit(subscribeRateLimit), subscribeBurst),
	}
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the upstream endpoint. Idempotent when already
// connecting or connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.ctx, c.cancel = context.WithCancel(ctx)

	conn, resp, err := c.dialer.DialContext(c.ctx, c.url, http.Header{})
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("streamclient: dial %s: %w", c.url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop()
	go c.heartbeatLoop()

	if c.OnOpen != nil {
		c.OnOpen()
	}
	return nil
}

// Subscribe appends streams to the active-subscriptions set and issues
// a SUBSCRIBE frame. Must only be called while connected. Blocks
// briefly if called in a tight burst (e.g. resubscribing many streams
// after a reconnect) to stay under the upstream's rate limit.
func (c *Client) Subscribe(streams []string) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return fmt.Errorf("streamclient: subscribe called while %s", c.state)
	}
	waitCtx := c.ctx
	c.mu.Unlock()

	if err := c.subscribeLim.Wait(waitCtx); err != nil {
		return fmt.Errorf("streamclient: subscribe rate limiter: %w", err)
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return fmt.Errorf("streamclient: subscribe called while %s", c.state)
	}
	for _, s := range streams {
		c.subscriptions[s] = struct{}{}
	}
	c.nextID++
	frame := subscribeFrame{Method: "SUBSCRIBE", Params: streams, ID: c.nextID}
	conn := c.conn
	c.mu.Unlock()

	return conn.WriteJSON(frame)
}

// activeSubscriptions snapshots the current subscription set.
func (c *Client) activeSubscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for s := range c.subscriptions {
		out = append(out, s)
	}
	return out
}

// Close transitions the client to its terminal state.
func (c *Client) Close() {
	c.mu.Lock()
	c.state = StateClosed
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) readLoop() {
	defer func() {
		if c.OnClose != nil {
			c.OnClose()
		}
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosed {
				return
			}
			log.Printf("[streamclient] read error: %v", err)
			c.reconnect()
			return
		}

		var envelope struct {
			ID     int             `json:"id"`
			Result json.RawMessage `json:"result"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.ID != 0 {
			continue // SUBSCRIBE ack, not a data frame
		}

		if c.OnData != nil {
			c.OnData(data)
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Printf("[streamclient] ping failed: %v", err)
				c.reconnect()
				return
			}
		}
	}
}

// reconnect runs the exponential-backoff reconnection policy: 1s base,
// doubling, capped at 60s, up to 5 attempts before transitioning to
// closed and surfacing a fatal error.
func (c *Client) reconnect() {
	c.setState(StateReconnecting)

	delay := reconnectBaseDelay
	for attempt := 1; attempt <= reconnectMaxAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := c.Connect(c.ctx); err == nil {
			streams := c.activeSubscriptions()
			if len(streams) > 0 {
				if err := c.Subscribe(streams); err != nil {
					log.Printf("[streamclient] resubscribe failed: %v", err)
				}
			}
			return
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}

	c.setState(StateClosed)
	if c.OnFatal != nil {
		c.OnFatal(fmt.Errorf("streamclient: exhausted %d reconnect attempts", reconnectMaxAttempts))
	}
}

// StreamName builds the upstream kline stream name for (symbol, timeframe).
func StreamName(symbol, timeframe string) string {
	return fmt.Sprintf("%s@kline_%s", toLowerASCII(symbol), timeframe)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
