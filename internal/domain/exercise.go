package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidChart is returned when exercise content fails validation.
var ErrInvalidChart = errors.New("invalid chart")

// Direction is the side of the practice position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// IsValid reports whether d is long or short.
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// UnmarshalText rejects anything other than long or short.
func (d *Direction) UnmarshalText(text []byte) error {
	dir := Direction(text)
	if !dir.IsValid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidChart, string(text))
	}
	*d = dir
	return nil
}

// Candle is a single OHLCV bar.
type Candle struct {
	Time   int64   `json:"time"` // Unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Position describes the trade framing of an exercise.
type Position struct {
	Direction  Direction `json:"direction"`
	TakeProfit float64   `json:"takeProfit"` // fraction of entry close, e.g. 0.03
	StopLoss   float64   `json:"stopLoss"`   // fraction of entry close, e.g. 0.015
	PostBars   int       `json:"postBars"`   // bars after entry used for settlement
}

// Chart is the off-chain content blob of an exercise.
type Chart struct {
	Candles  []Candle `json:"candles"`
	Position Position `json:"position"`
}

// LastClose returns the close of the last visible candle.
func (c *Chart) LastClose() (float64, bool) {
	if len(c.Candles) == 0 {
		return 0, false
	}
	return c.Candles[len(c.Candles)-1].Close, true
}

// Validate checks structural integrity of the chart.
func (c *Chart) Validate() error {
	if len(c.Candles) == 0 {
		return fmt.Errorf("%w: no candles", ErrInvalidChart)
	}
	if !c.Position.Direction.IsValid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidChart, c.Position.Direction)
	}
	if !(c.Position.TakeProfit > 0) || !(c.Position.StopLoss > 0) {
		return fmt.Errorf("%w: take profit and stop loss must be positive", ErrInvalidChart)
	}
	if c.Position.PostBars < 0 {
		return fmt.Errorf("%w: negative postBars", ErrInvalidChart)
	}
	for i, candle := range c.Candles {
		if math.IsNaN(candle.Close) || math.IsInf(candle.Close, 0) || candle.Close <= 0 {
			return fmt.Errorf("%w: candle %d has invalid close", ErrInvalidChart, i)
		}
		if i > 0 && candle.Time <= c.Candles[i-1].Time {
			return fmt.Errorf("%w: candle %d out of order", ErrInvalidChart, i)
		}
	}
	return nil
}

// Solution is revealed after an exercise is checked.
type Solution struct {
	Candles []Candle `json:"candles"`
	Outcome float64  `json:"outcome"` // signed percentage
}

// Clone returns a deep copy.
func (s *Solution) Clone() *Solution {
	if s == nil {
		return nil
	}
	c := *s
	c.Candles = append([]Candle(nil), s.Candles...)
	return &c
}

// Validate checks that the solution carries a usable outcome.
func (s *Solution) Validate() error {
	if math.IsNaN(s.Outcome) || math.IsInf(s.Outcome, 0) {
		return fmt.Errorf("%w: non-finite outcome", ErrInvalidChart)
	}
	return nil
}

// Exercise is the exercise currently owned by a session.
type Exercise struct {
	PublicKey   string        // on-chain exercise account
	CID         string        // content identifier of the chart blob
	SolutionCID string        // set once the outcome has been published
	Chart       Chart         // candles + position
	State       ExerciseState // lifecycle state
	Full        bool          // validation capacity reached
	Sealed      bool          // closed to further validations
}

// Clone returns a deep copy.
func (e *Exercise) Clone() *Exercise {
	if e == nil {
		return nil
	}
	c := *e
	c.Chart.Candles = append([]Candle(nil), e.Chart.Candles...)
	return &c
}
