package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/storage"
)

func TestKVStore_SetGetDelete(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "v2" {
		t.Errorf("Value mismatch: got %q, want %q", got, "v2")
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Second delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	if err := store.Set(ctx, "", "v"); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty key, got %v", err)
	}
}

func settled(cid string, state domain.ExerciseState, at time.Time) *domain.ExerciseHistoryItem {
	outcome := 2.5
	return &domain.ExerciseHistoryItem{
		CID:        cid,
		PublicKey:  "pk-" + cid,
		Direction:  domain.DirectionLong,
		Type:       domain.ExerciseTypePrediction,
		State:      state,
		Validation: 10,
		Outcome:    &outcome,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestSettlementStore_AppendAndList(t *testing.T) {
	store := NewSettlementStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	if err := store.Append(ctx, "alice", settled("Qm2", domain.StateFailed, base.Add(time.Minute))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "alice", settled("Qm1", domain.StateSuccess, base)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "bob", settled("Qm1", domain.StateSkipped, base)); err != nil {
		t.Fatalf("Append for second trader failed: %v", err)
	}

	items, err := store.GetByTrader(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByTrader failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].CID != "Qm1" || items[1].CID != "Qm2" {
		t.Errorf("Items not ordered by updated time: %s, %s", items[0].CID, items[1].CID)
	}

	*items[0].Outcome = -99
	again, _ := store.GetByTrader(ctx, "alice")
	if *again[0].Outcome != 2.5 {
		t.Errorf("Returned items must be copies")
	}

	traders, _ := store.Traders(ctx)
	if len(traders) != 2 || traders[0] != "alice" || traders[1] != "bob" {
		t.Errorf("Traders mismatch: %v", traders)
	}
}

func TestSettlementStore_Rejects(t *testing.T) {
	store := NewSettlementStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Append(ctx, "alice", settled("Qm1", domain.StateSuccess, now)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	err := store.Append(ctx, "alice", settled("Qm1", domain.StateFailed, now))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	err = store.Append(ctx, "alice", settled("Qm3", domain.StateChecking, now))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for open item, got %v", err)
	}

	err = store.Append(ctx, "", settled("Qm4", domain.StateSuccess, now))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty trader, got %v", err)
	}
}

func TestPerformanceStore_InsertAndLatest(t *testing.T) {
	store := NewPerformanceStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx, "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	for _, p := range []*domain.TraderPerformance{
		{Trader: "alice", Attempts: 3, ComputedAt: 2000},
		{Trader: "alice", Attempts: 1, ComputedAt: 1000},
	} {
		if err := store.Insert(ctx, p); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	latest, err := store.GetLatest(ctx, "alice")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.Attempts != 3 {
		t.Errorf("Latest mismatch: got %d attempts, want 3", latest.Attempts)
	}

	all, _ := store.GetByTrader(ctx, "alice")
	if len(all) != 2 || all[0].ComputedAt != 1000 {
		t.Errorf("Snapshots not ordered: %+v", all)
	}

	err = store.Insert(ctx, &domain.TraderPerformance{Trader: "alice", ComputedAt: 1000})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}
