package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/observability"
	"tradetrainer/internal/prediction"
	"tradetrainer/internal/program"
	"tradetrainer/internal/storage"
)

// Resume restores the persisted history and the remembered exercise address.
// A missing history is an empty one; an unreadable one is an error.
func (s *Session) Resume(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	var items []*domain.ExerciseHistoryItem
	raw, err := s.store.Get(ctx, HistoryKey(s.trader))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return opErr("resume", s.trader, err)
	default:
		if items, err = decodeHistory(raw); err != nil {
			return opErr("resume", s.trader, err)
		}
	}

	last, err := s.store.Get(ctx, LastExerciseKey(s.trader))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return opErr("resume", s.trader, err)
	}

	s.mu.Lock()
	s.history = items
	s.lastExercise = last
	snap, fns := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap, fns)

	s.log.WithFields(logrus.Fields{"items": len(items), "last_exercise": last}).Info("session resumed")
	return nil
}

// LoadExercise makes a new exercise current. The first load of a session offers the
// remembered exercise again unless it is full, sealed or already in history. Otherwise
// the first eligible exercise in discovery order is chosen. If the chart cannot be
// retrieved the candidate is not made current, its CID is skipped by later loads of
// this session and the error wraps ErrContentUnavailable.
func (s *Session) LoadExercise(ctx context.Context) (*domain.Exercise, error) {
	s.mu.Lock()
	if s.current != nil && s.current.State == domain.StateActive && !s.loadNew {
		cur := s.current.Clone()
		s.mu.Unlock()
		return cur, nil
	}
	firstLoad := !s.loaded
	s.loaded = true
	s.loadGen++
	gen := s.loadGen
	remembered := s.lastExercise
	skip := make(map[string]bool, len(s.history)+len(s.badContent))
	for _, item := range s.history {
		skip[item.CID] = true
	}
	for cid := range s.badContent {
		skip[cid] = true
	}
	s.mu.Unlock()

	var candidate *program.ExerciseAccount
	if firstLoad && remembered != "" {
		candidate = s.rememberedCandidate(ctx, remembered, skip)
	}
	if candidate == nil {
		var err error
		if candidate, err = s.nextCandidate(ctx, skip); err != nil {
			return nil, err
		}
	}

	acc := candidate.Account
	chart, err := s.content.FetchChart(ctx, acc.CID)
	if err != nil {
		s.markBadContent(acc.CID)
		return nil, opErr("load_exercise", acc.CID, fmt.Errorf("%w: %w", ErrContentUnavailable, err))
	}
	bar, err := prediction.BarFromChart(chart)
	if err != nil {
		s.markBadContent(acc.CID)
		return nil, opErr("load_exercise", acc.CID, fmt.Errorf("%w: %w", ErrContentUnavailable, err))
	}

	ex := &domain.Exercise{
		PublicKey:   candidate.PublicKey,
		CID:         acc.CID,
		SolutionCID: acc.SolutionCID,
		Chart:       *chart,
		State:       domain.StateActive,
		Full:        acc.Full(),
		Sealed:      acc.Sealed,
	}

	s.mu.Lock()
	if gen != s.loadGen {
		s.mu.Unlock()
		return nil, opErr("load_exercise", acc.CID, ErrSuperseded)
	}
	if s.inHistoryLocked(ex.CID) {
		s.mu.Unlock()
		return nil, opErr("load_exercise", acc.CID, ErrSuperseded)
	}
	s.current = ex
	s.bar = &bar
	s.loadNew = false
	s.lastExercise = ex.PublicKey
	if acc.SolutionCID != "" {
		s.solutionCIDs[ex.PublicKey] = acc.SolutionCID
	}
	result := ex.Clone()
	snap, fns := s.changedLocked()
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Set(ctx, LastExerciseKey(s.trader), ex.PublicKey); err != nil {
			s.log.WithError(err).Warn("persist last exercise")
		}
	}
	observability.RecordExerciseLoaded()
	s.log.WithFields(logrus.Fields{"cid": ex.CID, "exercise": ex.PublicKey}).Info("exercise loaded")
	s.publish(snap, fns)
	return result, nil
}

// rememberedCandidate reloads the remembered exercise if it is still open to this trader.
func (s *Session) rememberedCandidate(ctx context.Context, pubkey string, skip map[string]bool) *program.ExerciseAccount {
	acc, err := s.program.ReloadExercise(ctx, pubkey)
	if err != nil {
		s.log.WithError(err).WithField("exercise", pubkey).Info("remembered exercise unavailable")
		return nil
	}
	if acc.Account.Full() || acc.Account.Sealed || skip[acc.Account.CID] {
		return nil
	}
	if _, done := acc.Account.ValidationBy(s.trader); done {
		return nil
	}
	return acc
}

// nextCandidate returns the first eligible exercise in discovery order.
func (s *Session) nextCandidate(ctx context.Context, skip map[string]bool) (*program.ExerciseAccount, error) {
	accounts, err := s.program.GetFilteredExercises(ctx, program.ExerciseFilters{
		Authority:      s.opts.Authority,
		ExcludeSealed:  true,
		ExcludeFull:    true,
		NotValidatedBy: s.trader,
	})
	if err != nil {
		return nil, opErr("load_exercise", "", err)
	}
	for i := range accounts {
		acc := &accounts[i]
		if skip[acc.Account.CID] || acc.Account.Full() || acc.Account.Sealed {
			continue
		}
		return acc, nil
	}
	return nil, opErr("load_exercise", "", ErrNoEligibleExercise)
}

// inHistoryLocked reports whether cid has any history item. Caller holds mu.
func (s *Session) inHistoryLocked(cid string) bool {
	for _, item := range s.history {
		if item.CID == cid {
			return true
		}
	}
	return false
}

func (s *Session) markBadContent(cid string) {
	s.mu.Lock()
	s.badContent[cid] = struct{}{}
	s.mu.Unlock()
	s.log.WithField("cid", cid).Warn("exercise content unavailable, skipping for this session")
}
