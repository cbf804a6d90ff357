package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradetrainer/internal/domain"
)

func TestHistoryRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	outcome := -4.5
	items := []*domain.ExerciseHistoryItem{
		{CID: "QmA", PublicKey: "pkA", Direction: domain.DirectionLong, Type: domain.ExerciseTypePrediction,
			State: domain.StateFailed, Validation: 12, Outcome: &outcome, CreatedAt: now, UpdatedAt: now.Add(time.Minute)},
		{CID: "QmB", PublicKey: "pkB", Direction: domain.DirectionShort, Type: domain.ExerciseTypePrediction,
			State: domain.StateChecking, Validation: -3, CreatedAt: now, UpdatedAt: now},
	}

	raw, err := encodeHistory(items)
	require.NoError(t, err)
	assert.Contains(t, raw, `"version":1`)

	got, err := decodeHistory(raw)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestEncodeHistory_Empty(t *testing.T) {
	raw, err := encodeHistory(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"items":[]}`, raw)

	got, err := decodeHistory(raw)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeHistory_FailsClosed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"version":`},
		{"unknown version", `{"version":3,"items":[]}`},
		{"unknown state", `{"version":1,"items":[{"cid":"QmA","direction":"long","state":"pending"}]}`},
		{"active state", `{"version":1,"items":[{"cid":"QmA","direction":"long","state":"active"}]}`},
		{"unknown direction", `{"version":1,"items":[{"cid":"QmA","direction":"sideways","state":"skipped"}]}`},
		{"missing cid", `{"version":1,"items":[{"direction":"long","state":"skipped"}]}`},
		{"null item", `{"version":1,"items":[null]}`},
		{"two open items", `{"version":1,"items":[
			{"cid":"QmA","direction":"long","state":"checking"},
			{"cid":"QmA","direction":"long","state":"checking"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeHistory(tt.raw)
			assert.Error(t, err)
		})
	}

	_, err := decodeHistory(`{"version":2,"items":[]}`)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeHistory_RepeatedTerminalItems(t *testing.T) {
	got, err := decodeHistory(`{"version":1,"items":[
		{"cid":"QmA","direction":"long","state":"skipped"},
		{"cid":"QmA","direction":"long","state":"expired"},
		{"cid":"QmA","direction":"long","state":"checking"}]}`)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "tradetrainer:w1:history", HistoryKey("w1"))
	assert.Equal(t, "tradetrainer:w1:last-exercise", LastExerciseKey("w1"))
}

func TestOpError(t *testing.T) {
	err := opErr("load_exercise", "QmA", ErrContentUnavailable)
	assert.Equal(t, "load_exercise QmA: exercise content unavailable", err.Error())
	assert.ErrorIs(t, err, ErrContentUnavailable)
	assert.Equal(t, "load_exercise: no eligible exercise", opErr("load_exercise", "", ErrNoEligibleExercise).Error())
}
