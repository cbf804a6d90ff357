package session

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/observability"
)

// SubmitValidation sends the trader's signed percentage for the current exercise and
// moves it to checking. Preconditions are checked before any network call. If the
// program rejects the validation the exercise stays active and no history is written.
func (s *Session) SubmitValidation(ctx context.Context, validation float64) (*domain.ExerciseHistoryItem, error) {
	if math.IsNaN(validation) || math.IsInf(validation, 0) {
		return nil, opErr("submit_validation", "", ErrNonFinite)
	}

	s.mu.Lock()
	cur := s.current
	switch {
	case cur == nil:
		s.mu.Unlock()
		return nil, opErr("submit_validation", "", ErrNoExercise)
	case cur.State != domain.StateActive:
		s.mu.Unlock()
		return nil, opErr("submit_validation", cur.CID, ErrNotActive)
	}
	if _, busy := s.submitting[cur.CID]; busy {
		s.mu.Unlock()
		return nil, opErr("submit_validation", cur.CID, ErrSubmissionInFlight)
	}
	s.submitting[cur.CID] = struct{}{}
	cur = cur.Clone()
	s.mu.Unlock()

	_, err := s.program.AddValidation(ctx, s.trader, cur.PublicKey, validation)

	s.mu.Lock()
	delete(s.submitting, cur.CID)
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).WithField("cid", cur.CID).Warn("validation rejected")
		return nil, opErr("submit_validation", cur.CID, err)
	}
	if s.current == nil || s.current.CID != cur.CID || s.current.State != domain.StateActive {
		// expired or replaced while the transaction was in flight
		s.mu.Unlock()
		s.log.WithField("cid", cur.CID).Warn("validation landed after exercise left active")
		return nil, opErr("submit_validation", cur.CID, ErrNotActive)
	}

	item := domain.NewHistoryItem(s.current, domain.StateChecking, validation, s.now())
	observability.RecordTransition(domain.StateActive.String(), domain.StateChecking.String())
	s.history = append(s.history, item)
	s.current = nil
	s.bar = nil
	s.loadNew = true
	result := item.Clone()
	snap, fns := s.changedLocked()
	s.mu.Unlock()

	observability.RecordValidationSubmitted()
	s.log.WithFields(logrus.Fields{"cid": cur.CID, "validation": validation}).Info("validation submitted")
	s.persistHistory(ctx)
	s.publish(snap, fns)
	return result, nil
}

// Skip discards the current exercise without validating. It returns the skipped item,
// or nil when there was no active exercise. A new exercise is requested either way.
func (s *Session) Skip(ctx context.Context) (*domain.ExerciseHistoryItem, error) {
	s.mu.Lock()
	cur := s.current
	if cur != nil && cur.State == domain.StateActive {
		if _, busy := s.submitting[cur.CID]; busy {
			s.mu.Unlock()
			return nil, opErr("skip", cur.CID, ErrSubmissionInFlight)
		}
	}
	s.loadNew = true
	if cur == nil || cur.State != domain.StateActive {
		snap, fns := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap, fns)
		return nil, nil
	}

	item := domain.NewHistoryItem(cur, domain.StateSkipped, 0, s.now())
	observability.RecordTransition(domain.StateActive.String(), domain.StateSkipped.String())
	s.history = append(s.history, item)
	s.current = nil
	s.bar = nil
	s.forgetAccountLocked(item.PublicKey)
	result := item.Clone()
	snap, fns := s.changedLocked()
	s.mu.Unlock()

	s.log.WithField("cid", cur.CID).Info("exercise skipped")
	s.persistHistory(ctx)
	s.record(ctx, result)
	s.publish(snap, fns)
	return result, nil
}

// expireCurrentLocked moves the active exercise to expired history. Caller holds mu.
func (s *Session) expireCurrentLocked() *domain.ExerciseHistoryItem {
	item := domain.NewHistoryItem(s.current, domain.StateExpired, 0, s.now())
	observability.RecordTransition(domain.StateActive.String(), domain.StateExpired.String())
	s.history = append(s.history, item)
	s.current = nil
	s.bar = nil
	s.loadNew = true
	s.forgetAccountLocked(item.PublicKey)
	return item.Clone()
}
