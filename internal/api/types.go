package api

import (
	"time"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/session"
)

type stateResponse struct {
	SessionID       string                `json:"session_id"`
	Version         uint64                `json:"version"`
	Exercise        *exerciseResponse     `json:"exercise"`
	Bar             *domain.PredictionBar `json:"bar"`
	LoadNewExercise bool                  `json:"load_new_exercise"`
	History         []*historyItem        `json:"history"`
	Trader          *traderResponse       `json:"trader"`
}

type exerciseResponse struct {
	PublicKey string          `json:"public_key"`
	CID       string          `json:"cid"`
	State     string          `json:"state"`
	Full      bool            `json:"full"`
	Candles   []domain.Candle `json:"candles"`
	Position  domain.Position `json:"position"`
}

type historyItem struct {
	CID        string           `json:"cid"`
	PublicKey  string           `json:"public_key"`
	Direction  string           `json:"direction"`
	TakeProfit float64          `json:"take_profit"`
	StopLoss   float64          `json:"stop_loss"`
	PostBars   int              `json:"post_bars"`
	Type       string           `json:"type"`
	State      string           `json:"state"`
	Validation float64          `json:"validation"`
	Outcome    *float64         `json:"outcome,omitempty"`
	Solution   *domain.Solution `json:"solution,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type traderResponse struct {
	User        string  `json:"user"`
	Validations uint32  `json:"validations"`
	Successes   uint32  `json:"successes"`
	Failures    uint32  `json:"failures"`
	Performance float64 `json:"performance"`
}

type performanceResponse struct {
	Trader              string  `json:"trader"`
	Attempts            int     `json:"attempts"`
	Successes           int     `json:"successes"`
	Failures            int     `json:"failures"`
	Skipped             int     `json:"skipped"`
	Expired             int     `json:"expired"`
	Corrupted           int     `json:"corrupted"`
	WinRate             float64 `json:"win_rate"`
	OutcomeMean         float64 `json:"outcome_mean"`
	BestOutcome         float64 `json:"best_outcome"`
	WorstOutcome        float64 `json:"worst_outcome"`
	MaxConsecutiveFails int     `json:"max_consecutive_fails"`
	ComputedAt          int64   `json:"computed_at"`
}

func newStateResponse(snap session.Snapshot) stateResponse {
	resp := stateResponse{
		SessionID:       snap.SessionID,
		Version:         snap.Version,
		Bar:             snap.Bar,
		LoadNewExercise: snap.LoadNewExercise,
		History:         make([]*historyItem, 0, len(snap.History)),
		Trader:          newTraderResponse(snap.Trader),
	}
	if e := snap.Current; e != nil {
		resp.Exercise = &exerciseResponse{
			PublicKey: e.PublicKey,
			CID:       e.CID,
			State:     e.State.String(),
			Full:      e.Full,
			Candles:   e.Chart.Candles,
			Position:  e.Chart.Position,
		}
	}
	for _, item := range snap.History {
		resp.History = append(resp.History, newHistoryItem(item))
	}
	return resp
}

func newHistoryItem(item *domain.ExerciseHistoryItem) *historyItem {
	return &historyItem{
		CID:        item.CID,
		PublicKey:  item.PublicKey,
		Direction:  string(item.Direction),
		TakeProfit: item.TakeProfit,
		StopLoss:   item.StopLoss,
		PostBars:   item.PostBars,
		Type:       item.Type,
		State:      item.State.String(),
		Validation: item.Validation,
		Outcome:    item.Outcome,
		Solution:   item.Solution,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

func newTraderResponse(t *domain.Trader) *traderResponse {
	if t == nil {
		return nil
	}
	return &traderResponse{
		User:        t.User,
		Validations: t.Validations,
		Successes:   t.Successes,
		Failures:    t.Failures,
		Performance: t.Performance,
	}
}

func newPerformanceResponse(p *domain.TraderPerformance) performanceResponse {
	return performanceResponse{
		Trader:              p.Trader,
		Attempts:            p.Attempts,
		Successes:           p.Successes,
		Failures:            p.Failures,
		Skipped:             p.Skipped,
		Expired:             p.Expired,
		Corrupted:           p.Corrupted,
		WinRate:             p.WinRate,
		OutcomeMean:         p.OutcomeMean,
		BestOutcome:         p.BestOutcome,
		WorstOutcome:        p.WorstOutcome,
		MaxConsecutiveFails: p.MaxConsecutiveFails,
		ComputedAt:          p.ComputedAt,
	}
}
