package domain

import "time"

// ExerciseTypePrediction is the only exercise category the platform serves.
const ExerciseTypePrediction = "prediction"

// ExerciseHistoryItem is a denormalized snapshot of an exercise taken when it leaves active.
// Only State, Outcome, Solution and UpdatedAt change afterwards.
type ExerciseHistoryItem struct {
	CID        string        `json:"cid"`
	PublicKey  string        `json:"publicKey"`
	Direction  Direction     `json:"direction"`
	TakeProfit float64       `json:"takeProfit"`
	StopLoss   float64       `json:"stopLoss"`
	PostBars   int           `json:"postBars"`
	Type       string        `json:"type"`
	State      ExerciseState `json:"state"`
	Validation float64       `json:"validation"`         // submitted percentage, 0 when skipped
	Outcome    *float64      `json:"outcome,omitempty"`  // nil until settled
	Solution   *Solution     `json:"solution,omitempty"` // set when settled from a published solution
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// NewHistoryItem snapshots an exercise into a history item with the given state.
func NewHistoryItem(e *Exercise, state ExerciseState, validation float64, now time.Time) *ExerciseHistoryItem {
	return &ExerciseHistoryItem{
		CID:        e.CID,
		PublicKey:  e.PublicKey,
		Direction:  e.Chart.Position.Direction,
		TakeProfit: e.Chart.Position.TakeProfit,
		StopLoss:   e.Chart.Position.StopLoss,
		PostBars:   e.Chart.Position.PostBars,
		Type:       ExerciseTypePrediction,
		State:      state,
		Validation: validation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsOpen reports whether the item can still change state.
func (h *ExerciseHistoryItem) IsOpen() bool {
	return !h.State.IsTerminal()
}

// Clone returns a deep copy.
func (h *ExerciseHistoryItem) Clone() *ExerciseHistoryItem {
	c := *h
	if h.Outcome != nil {
		o := *h.Outcome
		c.Outcome = &o
	}
	c.Solution = h.Solution.Clone()
	return &c
}
