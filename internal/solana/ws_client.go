package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tradetrainer/internal/observability"
)

// ErrClientClosed is returned when subscribing on a closed client.
var ErrClientClosed = errors.New("client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// Commitment is the commitment level requested for notifications.
	Commitment string
	// Logger receives connection and protocol errors. Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        DefaultCommitment,
	}
}

// accountSub is one accountSubscribe registration.
type accountSub struct {
	client *WSClientImpl
	pubkey string
	ch     chan AccountNotification
	done   chan struct{}
	once   sync.Once
	id     int64 // guarded by client.subsMu
}

func (s *accountSub) Notifications() <-chan AccountNotification {
	return s.ch
}

func (s *accountSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.client.unsubscribe(s)
	})
	return err
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	log      *logrus.Entry

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to registration
	subs   map[int64]*accountSub
	subsMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 30 * time.Second
	}
	if cfg.Commitment == "" {
		cfg.Commitment = DefaultCommitment
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		log:         logger.WithField("component", "ws"),
		subs:        make(map[int64]*accountSub),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeAccount subscribes to changes of pubkey.
func (c *WSClientImpl) SubscribeAccount(ctx context.Context, pubkey string) (AccountSubscription, error) {
	subID, err := c.subscribeAccountInternal(ctx, pubkey)
	if err != nil {
		return nil, err
	}

	sub := &accountSub{
		client: c,
		pubkey: pubkey,
		ch:     make(chan AccountNotification, 64),
		done:   make(chan struct{}),
		id:     subID,
	}

	c.subsMu.Lock()
	if c.closed.Load() {
		c.subsMu.Unlock()
		return nil, ErrClientClosed
	}
	c.subs[subID] = sub
	c.subsMu.Unlock()

	observability.AddAccountSubscriptions(1)
	return sub, nil
}

// unsubscribe removes s and tells the node to stop sending.
func (c *WSClientImpl) unsubscribe(s *accountSub) error {
	// Unblocks a dispatcher waiting on a full channel before we take the write lock.
	close(s.done)

	c.subsMu.Lock()
	id := s.id
	cur, ok := c.subs[id]
	removed := ok && cur == s
	if removed {
		delete(c.subs, id)
		close(s.ch)
	}
	c.subsMu.Unlock()

	if !removed {
		return nil
	}
	observability.AddAccountSubscriptions(-1)

	if c.closed.Load() {
		return nil
	}
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "accountUnsubscribe",
		Params:  []interface{}{id},
	}
	if err := c.write(req); err != nil {
		return fmt.Errorf("write unsubscribe: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// Close all subscription channels
	c.subsMu.Lock()
	n := len(c.subs)
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	observability.AddAccountSubscriptions(-float64(n))

	// Close pending subscription channels
	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// write sends one JSON frame under the connection lock.
func (c *WSClientImpl) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				c.log.WithError(err).Warn("read failed, reconnecting")
				go c.reconnect(reconnectDelay)
			}

			// Increase delay for next reconnect (exponential backoff)
			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	// Wait before reconnecting
	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	// Close existing connection
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	// Attempt reconnect
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		c.log.WithError(err).Warn("reconnect failed")
		return
	}

	// Resubscribe to all active subscriptions
	c.resubscribeAll()
}

// resubscribeAll resubscribes every live account after reconnect.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.RLock()
	subs := make(map[int64]*accountSub, len(c.subs))
	for id, sub := range c.subs {
		subs[id] = sub
	}
	c.subsMu.RUnlock()

	for oldSubID, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newSubID, err := c.subscribeAccountInternal(ctx, sub.pubkey)
		cancel()

		if err != nil {
			// Failed to resubscribe, keep old mapping
			c.log.WithError(err).WithField("account", sub.pubkey).Warn("resubscribe failed")
			continue
		}

		// Update mapping unless the subscription was dropped meanwhile
		c.subsMu.Lock()
		if cur, ok := c.subs[oldSubID]; ok && cur == sub {
			delete(c.subs, oldSubID)
			sub.id = newSubID
			c.subs[newSubID] = sub
		}
		c.subsMu.Unlock()
	}
}

// subscribeAccountInternal sends accountSubscribe and waits for the subscription ID.
func (c *WSClientImpl) subscribeAccountInternal(ctx context.Context, pubkey string) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "accountSubscribe",
		Params: []interface{}{
			pubkey,
			map[string]string{
				"encoding":   "base64",
				"commitment": c.config.Commitment,
			},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.write(req); err != nil {
		dropPending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, ErrClientClosed
		}
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		dropPending()
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, ErrClientClosed
	case <-ctx.Done():
		dropPending()
		return 0, ctx.Err()
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	// Try to parse as subscription response first
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	// Try to parse as notification
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "accountNotification" {
		c.handleAccountNotification(&notif)
		return
	}

	// Check for error response
	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// Log error but don't crash - subscription will timeout
		c.log.WithFields(logrus.Fields{
			"code": errResp.Error.Code,
			"id":   errResp.ID,
		}).Warn(errResp.Error.Message)
	}
}

// handleSubscribeResponse handles subscription confirmation.
func (c *WSClientImpl) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleAccountNotification dispatches an account change to its subscriber.
func (c *WSClientImpl) handleAccountNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	sub, ok := c.subs[notif.Params.Subscription]
	if !ok {
		return
	}

	out := AccountNotification{PublicKey: sub.pubkey}
	if notif.Params.Result.Context != nil {
		out.Slot = notif.Params.Result.Context.Slot
	}
	if v := notif.Params.Result.Value; v != nil {
		info, err := v.decode()
		if err != nil {
			c.log.WithError(err).WithField("account", sub.pubkey).Warn("drop undecodable notification")
			return
		}
		out.Info = info
	}

	// Block until the subscriber reads or goes away - never drop events
	select {
	case sub.ch <- out:
	case <-sub.done:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
					c.log.WithError(err).Debug("ping failed")
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   *rawAccount `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

var _ WSClient = (*WSClientImpl)(nil)
