package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeAccount subscribes to changes of a single account.
	SubscribeAccount(ctx context.Context, pubkey string) (AccountSubscription, error)

	// Close closes the WebSocket connection and every subscription channel.
	Close() error
}

// AccountSubscription is a live accountSubscribe handle.
type AccountSubscription interface {
	// Notifications delivers account changes in arrival order. Closed after Unsubscribe or Close.
	Notifications() <-chan AccountNotification

	// Unsubscribe stops delivery and releases the subscription. Safe to call more than once.
	Unsubscribe() error
}

// AccountNotification represents an accountNotification message.
// A deleted account arrives with empty Info.Data.
type AccountNotification struct {
	PublicKey string
	Slot      int64
	Info      AccountInfo
}
