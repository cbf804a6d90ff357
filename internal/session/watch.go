package session

import (
	"context"
	"sync"
	"time"

	"tradetrainer/internal/solana"
)

// Watch keeps one account subscription per exercise the session follows: the active
// exercise and every checking one. Subscriptions are dropped as soon as an exercise
// leaves that set. Watch blocks until ctx is done and releases every subscription
// before returning.
func (s *Session) Watch(ctx context.Context, ws solana.WSClient) error {
	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return ErrAlreadyWatching
	}
	s.watching = true
	s.mu.Unlock()

	subs := make(map[string]solana.AccountSubscription)
	dropped := make(chan solana.AccountSubscription)
	done := make(chan struct{})
	var wg sync.WaitGroup

	defer func() {
		close(done)
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
		wg.Wait()

		s.mu.Lock()
		s.watching = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.opts.WatchInterval)
	defer ticker.Stop()

	for {
		s.reconcile(ctx, ws, subs, func(pubkey string, sub solana.AccountSubscription) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.forward(ctx, pubkey, sub)
				select {
				case dropped <- sub:
				case <-done:
				}
			}()
		})

		select {
		case <-ctx.Done():
			return nil
		case sub := <-dropped:
			// closed by the client or by reconcile; forget it if it is still registered
			for pubkey, current := range subs {
				if current == sub {
					delete(subs, pubkey)
				}
			}
		case <-s.interest:
		case <-ticker.C:
		}
	}
}

// watchedAccounts returns the exercise addresses the session follows.
func (s *Session) watchedAccounts() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool)
	if s.current != nil && s.current.State.IsValid() && !s.current.State.IsTerminal() {
		want[s.current.PublicKey] = true
	}
	for _, item := range s.history {
		if item.IsOpen() && item.PublicKey != "" {
			want[item.PublicKey] = true
		}
	}
	return want
}

// reconcile subscribes to newly followed accounts and releases the rest.
func (s *Session) reconcile(ctx context.Context, ws solana.WSClient, subs map[string]solana.AccountSubscription, start func(string, solana.AccountSubscription)) {
	want := s.watchedAccounts()

	for pubkey, sub := range subs {
		if !want[pubkey] {
			if err := sub.Unsubscribe(); err != nil {
				s.log.WithError(err).WithField("exercise", pubkey).Debug("unsubscribe")
			}
			delete(subs, pubkey)
		}
	}

	for pubkey := range want {
		if _, ok := subs[pubkey]; ok {
			continue
		}
		sub, err := ws.SubscribeAccount(ctx, pubkey)
		if err != nil {
			if ctx.Err() == nil {
				s.log.WithError(err).WithField("exercise", pubkey).Warn("account subscription failed, will retry")
			}
			continue
		}
		subs[pubkey] = sub
		start(pubkey, sub)
	}
}

// forward applies notifications until the subscription channel closes.
func (s *Session) forward(ctx context.Context, pubkey string, sub solana.AccountSubscription) {
	for n := range sub.Notifications() {
		change := AccountChange{PublicKey: pubkey, Slot: n.Slot}
		if !n.Info.Empty() {
			change.Data = n.Info.Data
		}
		if err := s.OnRemoteAccountChange(ctx, change); err != nil {
			s.log.WithError(err).WithField("exercise", pubkey).Warn("account change")
		}
	}
}
