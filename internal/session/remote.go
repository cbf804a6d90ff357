package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/observability"
	"tradetrainer/internal/program"
)

// AccountChange is an on-chain update of an exercise account. Empty Data means the
// account was closed.
type AccountChange struct {
	PublicKey string
	Slot      int64
	Data      []byte
}

// OnRemoteAccountChange applies an account notification. Notifications at or below the
// last applied slot for the account are ignored, as are accounts the session does not
// follow and data that cannot be decoded. Slots are tracked only while the account is
// current or has an open history item.
func (s *Session) OnRemoteAccountChange(ctx context.Context, change AccountChange) error {
	s.mu.Lock()
	isCurrent := s.current != nil && s.current.PublicKey == change.PublicKey
	item := s.openItemByAccountLocked(change.PublicKey)
	if !isCurrent && item == nil {
		s.mu.Unlock()
		observability.RecordIgnoredNotification("untracked")
		return nil
	}
	if last, seen := s.slots[change.PublicKey]; seen && change.Slot <= last {
		s.mu.Unlock()
		observability.RecordStaleNotification()
		s.log.WithFields(logrus.Fields{"exercise": change.PublicKey, "slot": change.Slot, "last_slot": last}).
			Debug("stale account notification ignored")
		return nil
	}
	s.slots[change.PublicKey] = change.Slot

	if isCurrent {
		return s.applyActiveChangeLocked(ctx, change)
	}
	cid := item.CID
	s.mu.Unlock()

	if len(change.Data) == 0 {
		return s.settleFromSolution(ctx, change.PublicKey, cid)
	}

	acc, err := program.DecodeExercise(change.Data)
	if err != nil {
		observability.RecordIgnoredNotification("decode")
		s.log.WithError(err).WithField("exercise", change.PublicKey).Warn("undecodable account notification ignored")
		return nil
	}
	if acc.SolutionCID != "" {
		s.rememberSolutionCID(ctx, change.PublicKey, acc.SolutionCID)
	}
	return nil
}

// applyActiveChangeLocked handles a notification for the current exercise. Caller holds mu;
// it is released before returning.
func (s *Session) applyActiveChangeLocked(ctx context.Context, change AccountChange) error {
	cur := s.current
	if cur.State != domain.StateActive {
		s.mu.Unlock()
		observability.RecordIgnoredNotification("not_active")
		return nil
	}

	if len(change.Data) > 0 {
		acc, err := program.DecodeExercise(change.Data)
		if err != nil {
			s.mu.Unlock()
			observability.RecordIgnoredNotification("decode")
			s.log.WithError(err).WithField("exercise", change.PublicKey).Warn("undecodable account notification ignored")
			return nil
		}
		if acc.SolutionCID != "" {
			s.solutionCIDs[cur.PublicKey] = acc.SolutionCID
		}
		if !acc.Sealed {
			cur.Full = acc.Full()
			snap, fns := s.changedLocked()
			s.mu.Unlock()
			s.publish(snap, fns)
			return nil
		}
	}

	item := s.expireCurrentLocked()
	snap, fns := s.changedLocked()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"cid": item.CID, "deleted": len(change.Data) == 0}).Info("active exercise expired")
	s.persistHistory(ctx)
	s.record(ctx, item)
	s.publish(snap, fns)
	return nil
}

// rememberSolutionCID stores the solution address of a checking exercise and warms the
// solution cache. A failed prefetch is retried when the account closes. Nothing is kept
// once the exercise has settled.
func (s *Session) rememberSolutionCID(ctx context.Context, pubkey, solutionCID string) {
	s.mu.Lock()
	if s.openItemByAccountLocked(pubkey) == nil {
		s.mu.Unlock()
		return
	}
	known := s.solutionCIDs[pubkey] == solutionCID
	s.solutionCIDs[pubkey] = solutionCID
	_, cached := s.solutions[solutionCID]
	s.mu.Unlock()
	if known && cached {
		return
	}

	sol, err := s.content.FetchSolution(ctx, solutionCID)
	if err != nil {
		s.log.WithError(err).WithField("solution", solutionCID).Debug("solution prefetch failed")
		return
	}
	s.mu.Lock()
	if s.solutionCIDs[pubkey] == solutionCID {
		s.solutions[solutionCID] = sol
	}
	s.mu.Unlock()
}

// settleFromSolution resolves a checking exercise whose account closed. With no
// solution to resolve from the item expires; a solution that cannot be fetched or
// parsed marks it corrupted.
func (s *Session) settleFromSolution(ctx context.Context, pubkey, cid string) error {
	s.mu.Lock()
	solutionCID := s.solutionCIDs[pubkey]
	sol := s.solutions[solutionCID]
	s.mu.Unlock()

	if sol == nil && solutionCID == "" {
		return s.closeOpenItem(ctx, cid, domain.StateExpired)
	}
	if sol == nil {
		fetched, err := s.content.FetchSolution(ctx, solutionCID)
		if err != nil {
			if closeErr := s.closeOpenItem(ctx, cid, domain.StateCorrupted); closeErr != nil {
				return closeErr
			}
			return opErr("resolve_solution", cid, err)
		}
		sol = fetched
	}
	return s.resolve(ctx, cid, sol.Outcome, sol)
}

// closeOpenItem moves the open item for cid to a terminal state other than success/failed.
func (s *Session) closeOpenItem(ctx context.Context, cid string, to domain.ExerciseState) error {
	s.mu.Lock()
	item := s.openItemLocked(cid)
	if item == nil || !s.transitionLocked(item, to) {
		s.mu.Unlock()
		return nil
	}
	result := item.Clone()
	snap, fns := s.changedLocked()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"cid": cid, "state": to}).Info("exercise closed")
	s.persistHistory(ctx)
	s.record(ctx, result)
	s.publish(snap, fns)
	return nil
}

// ResolveOutcome settles the open history item for cid. The item succeeds when the
// outcome and the validation share a sign and fails otherwise. Calling it for a CID
// with no open item is a no-op. The trader account is refreshed afterwards; a refresh
// failure is logged, the settlement stands.
func (s *Session) ResolveOutcome(ctx context.Context, cid string, outcome float64) error {
	return s.resolve(ctx, cid, outcome, nil)
}

// resolve is ResolveOutcome keeping sol, when known, on the settled item.
func (s *Session) resolve(ctx context.Context, cid string, outcome float64, sol *domain.Solution) error {
	if math.IsNaN(outcome) || math.IsInf(outcome, 0) {
		return opErr("resolve_outcome", cid, ErrNonFinite)
	}

	s.mu.Lock()
	item := s.openItemLocked(cid)
	if item == nil {
		s.mu.Unlock()
		return nil
	}
	to := domain.StateFailed
	if outcome*item.Validation > 0 {
		to = domain.StateSuccess
	}
	if !s.transitionLocked(item, to) {
		s.mu.Unlock()
		return nil
	}
	o := outcome
	item.Outcome = &o
	item.Solution = sol.Clone()
	pubkey := item.PublicKey
	result := item.Clone()
	snap, fns := s.changedLocked()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"cid":        cid,
		"state":      to,
		"outcome":    outcome,
		"validation": result.Validation,
	}).Info("outcome resolved")
	s.persistHistory(ctx)
	s.record(ctx, result)
	s.publish(snap, fns)

	s.refreshTrader(ctx, pubkey)
	return nil
}

// refreshTrader settles the validation on-chain and falls back to a plain reload.
func (s *Session) refreshTrader(ctx context.Context, exercise string) {
	acc, err := s.program.CheckValidation(ctx, s.trader, exercise)
	if err == nil {
		s.setTrader(&acc.Account)
		return
	}
	s.log.WithError(err).WithField("exercise", exercise).Debug("check validation failed, reloading trader")
	if _, err := s.ReloadTrader(ctx); err != nil {
		s.log.WithError(err).Warn("trader performance reload failed")
	}
}

// ReloadTrader fetches the trader account, retrying failures up to the configured
// budget. Each call gets its own budget.
func (s *Session) ReloadTrader(ctx context.Context) (*domain.Trader, error) {
	return s.ReloadTraderWithBudget(ctx, s.opts.TraderRetries)
}

// ReloadTraderWithBudget is ReloadTrader with an explicit retry count.
func (s *Session) ReloadTraderWithBudget(ctx context.Context, retries int) (*domain.Trader, error) {
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && s.opts.TraderRetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, opErr("reload_trader", s.trader, ctx.Err())
			case <-time.After(s.opts.TraderRetryDelay):
			}
		}

		acc, err := s.program.ReloadTraderAccount(ctx, s.trader)
		if err == nil {
			t := acc.Account
			s.setTrader(&t)
			return &t, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		s.log.WithError(err).WithFields(logrus.Fields{"attempt": attempt + 1, "retries": retries}).
			Debug("trader reload failed")
	}
	return nil, opErr("reload_trader", s.trader, fmt.Errorf("after %d attempts: %w", retries+1, lastErr))
}

func (s *Session) setTrader(t *domain.Trader) {
	s.mu.Lock()
	cp := *t
	s.traderAcc = &cp
	snap, fns := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap, fns)
}
