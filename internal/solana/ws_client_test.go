package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// idleServer accepts a connection and discards everything it receives.
func idleServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func accountNotification(subID, slot int64, data []byte) wsNotification {
	return wsNotification{
		JSONRPC: "2.0",
		Method:  "accountNotification",
		Params: &wsNotificationParams{
			Subscription: subID,
			Result: wsNotificationResult{
				Context: &wsContext{Slot: slot},
				Value: &rawAccount{
					Lamports: 1000,
					Owner:    "prog111",
					Data:     []string{base64.StdEncoding.EncodeToString(data), "base64"},
				},
			},
		},
	}
}

func TestWSClient_Connect(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SubscribeAccount(t *testing.T) {
	unsubscribed := make(chan int64, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		// Read subscribe request
		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}

		if req.Method != "accountSubscribe" {
			t.Errorf("expected accountSubscribe, got %s", req.Method)
		}
		if req.Params[0] != "acct1" {
			t.Errorf("expected acct1, got %v", req.Params[0])
		}

		// Send subscription confirmation
		if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 42}); err != nil {
			t.Errorf("write response: %v", err)
			return
		}

		time.Sleep(50 * time.Millisecond)
		c.WriteJSON(accountNotification(42, 100, []byte("state")))
		c.WriteJSON(accountNotification(42, 101, nil))

		for {
			var msg wsRequest
			if err := c.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Method == "accountUnsubscribe" {
				unsubscribed <- int64(msg.Params[0].(float64))
				c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": msg.ID, "result": true})
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("SubscribeAccount: %v", err)
	}

	select {
	case notif := <-sub.Notifications():
		if notif.PublicKey != "acct1" {
			t.Errorf("expected acct1, got %s", notif.PublicKey)
		}
		if notif.Slot != 100 {
			t.Errorf("expected slot 100, got %d", notif.Slot)
		}
		if string(notif.Info.Data) != "state" {
			t.Errorf("unexpected data %q", notif.Info.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}

	select {
	case notif := <-sub.Notifications():
		if !notif.Info.Empty() {
			t.Error("expected empty account data for deletion")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for deletion notification")
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("second Unsubscribe: %v", err)
	}

	select {
	case id := <-unsubscribed:
		if id != 42 {
			t.Errorf("expected unsubscribe of 42, got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw accountUnsubscribe")
	}

	if _, ok := <-sub.Notifications(); ok {
		t.Error("channel should be closed after Unsubscribe")
	}
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	config := DefaultWSConfig()
	config.SubscribeTimeout = 50 * time.Millisecond

	client, err := NewWSClient(context.Background(), wsURL(server), &config)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.SubscribeAccount(context.Background(), "acct1"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestWSClient_Close(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	err = client.Close()
	if err != nil {
		t.Errorf("Close: %v", err)
	}

	if !client.closed.Load() {
		t.Error("client should be closed")
	}

	// Double close should be safe
	err = client.Close()
	if err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	client.Close()

	_, err = client.SubscribeAccount(ctx, "acct1")
	if err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestWSClient_HandleMessageIgnoresUnknownSubscription(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	msg, _ := json.Marshal(accountNotification(999, 1, []byte("x")))
	// must not block or panic
	client.handleMessage(msg)
}
