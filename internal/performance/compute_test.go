package performance

import (
	"testing"
	"time"

	"tradetrainer/internal/domain"
)

func item(cid string, state domain.ExerciseState, outcome *float64, minute int) *domain.ExerciseHistoryItem {
	at := time.Unix(1700000000, 0).Add(time.Duration(minute) * time.Minute)
	return &domain.ExerciseHistoryItem{CID: cid, State: state, Outcome: outcome, CreatedAt: at, UpdatedAt: at}
}

func f(v float64) *float64 { return &v }

func TestComputeFromItems_Empty(t *testing.T) {
	p := computeFromItems("alice", nil)
	if p.Trader != "alice" || p.Attempts != 0 || p.WinRate != 0 {
		t.Errorf("unexpected empty performance: %+v", p)
	}
}

func TestComputeFromItems_Counts(t *testing.T) {
	items := []*domain.ExerciseHistoryItem{
		item("a", domain.StateSuccess, f(10), 1),
		item("b", domain.StateFailed, f(-4), 2),
		item("c", domain.StateSkipped, nil, 3),
		item("d", domain.StateExpired, nil, 4),
		item("e", domain.StateCorrupted, nil, 5),
		item("f", domain.StateSuccess, f(6), 6),
	}

	p := computeFromItems("alice", items)

	if p.Attempts != 6 {
		t.Errorf("expected 6 attempts, got %d", p.Attempts)
	}
	if p.Successes != 2 || p.Failures != 1 || p.Skipped != 1 || p.Expired != 1 || p.Corrupted != 1 {
		t.Errorf("unexpected counts: %+v", p)
	}
	if p.WinRate != 2.0/3.0 {
		t.Errorf("expected win rate 2/3, got %f", p.WinRate)
	}
	if p.OutcomeMean != 4 {
		t.Errorf("expected mean 4, got %f", p.OutcomeMean)
	}
	if p.BestOutcome != 10 || p.WorstOutcome != -4 {
		t.Errorf("expected range [-4, 10], got [%f, %f]", p.WorstOutcome, p.BestOutcome)
	}
}

func TestComputeMaxConsecutiveFails(t *testing.T) {
	// Out of order input: sorted by UpdatedAt the sequence is F F skip F S F
	items := []*domain.ExerciseHistoryItem{
		item("s", domain.StateSuccess, f(1), 5),
		item("f1", domain.StateFailed, f(-1), 1),
		item("f3", domain.StateFailed, f(-1), 4),
		item("f2", domain.StateFailed, f(-1), 2),
		item("k", domain.StateSkipped, nil, 3),
		item("f4", domain.StateFailed, f(-1), 6),
	}

	p := computeFromItems("bob", items)
	if p.MaxConsecutiveFails != 3 {
		t.Errorf("expected streak 3, got %d", p.MaxConsecutiveFails)
	}
}
