package session

import (
	"encoding/json"
	"fmt"

	"tradetrainer/internal/domain"
)

const historyVersion = 1

// historyEnvelope is the persisted form of a trader's history.
type historyEnvelope struct {
	Version int                           `json:"version"`
	Items   []*domain.ExerciseHistoryItem `json:"items"`
}

// HistoryKey is the KV key holding a trader's serialized history.
func HistoryKey(trader string) string {
	return "tradetrainer:" + trader + ":history"
}

// LastExerciseKey is the KV key holding the last viewed exercise address.
func LastExerciseKey(trader string) string {
	return "tradetrainer:" + trader + ":last-exercise"
}

func encodeHistory(items []*domain.ExerciseHistoryItem) (string, error) {
	if items == nil {
		items = []*domain.ExerciseHistoryItem{}
	}
	data, err := json.Marshal(historyEnvelope{Version: historyVersion, Items: items})
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(data), nil
}

// decodeHistory parses a persisted envelope. Unknown versions, states and directions
// fail closed, as does more than one open item for a CID.
func decodeHistory(raw string) ([]*domain.ExerciseHistoryItem, error) {
	var env historyEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if env.Version != historyVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	open := make(map[string]bool)
	items := make([]*domain.ExerciseHistoryItem, 0, len(env.Items))
	for i, item := range env.Items {
		if item == nil || item.CID == "" {
			return nil, fmt.Errorf("decode history: item %d has no cid", i)
		}
		if !item.State.IsValid() || item.State == domain.StateActive {
			return nil, fmt.Errorf("decode history: item %s has state %q", item.CID, item.State)
		}
		if item.IsOpen() {
			if open[item.CID] {
				return nil, fmt.Errorf("decode history: more than one open item for %s", item.CID)
			}
			open[item.CID] = true
		}
		items = append(items, item)
	}
	return items, nil
}
