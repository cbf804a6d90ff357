package stub

import (
	"context"
	"sync"

	"tradetrainer/internal/solana"
)

// WSClient implements solana.WSClient in memory. Publish delivers to every live subscriber of an account.
type WSClient struct {
	mu     sync.Mutex
	subs   map[string][]*accountSub
	closed bool
}

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{subs: make(map[string][]*accountSub)}
}

type accountSub struct {
	client *WSClient
	pubkey string
	ch     chan solana.AccountNotification
	once   sync.Once
}

func (s *accountSub) Notifications() <-chan solana.AccountNotification {
	return s.ch
}

func (s *accountSub) Unsubscribe() error {
	s.once.Do(func() {
		s.client.remove(s)
	})
	return nil
}

// SubscribeAccount registers a subscriber for pubkey.
func (c *WSClient) SubscribeAccount(_ context.Context, pubkey string) (solana.AccountSubscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, solana.ErrClientClosed
	}
	sub := &accountSub{client: c, pubkey: pubkey, ch: make(chan solana.AccountNotification, 16)}
	c.subs[pubkey] = append(c.subs[pubkey], sub)
	return sub, nil
}

func (c *WSClient) remove(s *accountSub) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.subs[s.pubkey]
	for i, cur := range list {
		if cur == s {
			c.subs[s.pubkey] = append(list[:i], list[i+1:]...)
			close(s.ch)
			break
		}
	}
	if len(c.subs[s.pubkey]) == 0 {
		delete(c.subs, s.pubkey)
	}
}

// Publish delivers a notification to all subscribers of pubkey. Nil data signals deletion.
// Returns the number of subscribers reached.
func (c *WSClient) Publish(pubkey string, slot int64, data []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	notif := solana.AccountNotification{
		PublicKey: pubkey,
		Slot:      slot,
		Info:      solana.AccountInfo{Data: append([]byte(nil), data...)},
	}
	if len(data) > 0 {
		notif.Info.Lamports = 1
	}
	for _, sub := range c.subs[pubkey] {
		sub.ch <- notif
	}
	return len(c.subs[pubkey])
}

// Subscribers returns the number of live subscriptions for pubkey.
func (c *WSClient) Subscribers(pubkey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[pubkey])
}

// Close closes every subscription.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for key, list := range c.subs {
		for _, sub := range list {
			close(sub.ch)
		}
		delete(c.subs, key)
	}
	return nil
}

var _ solana.WSClient = (*WSClient)(nil)
