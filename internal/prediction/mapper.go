// Package prediction maps between a signed validation percentage and a concrete price
// inside the take-profit / stop-loss band of an exercise.
package prediction

import (
	"errors"
	"fmt"
	"math"

	"tradetrainer/internal/domain"
)

var (
	// ErrDegenerateBar is returned when take-profit or stop-loss price equals the close.
	ErrDegenerateBar = errors.New("degenerate prediction bar: bound equals close")

	// ErrNonFinite is returned for NaN or infinite inputs.
	ErrNonFinite = errors.New("non-finite value")
)

// Percentage bounds of a validation.
const (
	MinPercent = -100.0
	MaxPercent = 100.0
)

// NewBar derives the prediction bar for a close price and a position.
// Returns ErrDegenerateBar when a bound collapses onto the close.
func NewBar(close float64, pos domain.Position) (domain.PredictionBar, error) {
	if !isFinite(close) || !isFinite(pos.TakeProfit) || !isFinite(pos.StopLoss) {
		return domain.PredictionBar{}, ErrNonFinite
	}

	bar := domain.PredictionBar{Close: close}
	switch pos.Direction {
	case domain.DirectionLong:
		bar.TakeProfitPrice = close * (1 + pos.TakeProfit)
		bar.StopLossPrice = close * (1 - pos.StopLoss)
		bar.UpperPrice = bar.TakeProfitPrice
		bar.LowerPrice = bar.StopLossPrice
	case domain.DirectionShort:
		bar.TakeProfitPrice = close * (1 - pos.TakeProfit)
		bar.StopLossPrice = close * (1 + pos.StopLoss)
		bar.UpperPrice = bar.StopLossPrice
		bar.LowerPrice = bar.TakeProfitPrice
	default:
		return domain.PredictionBar{}, fmt.Errorf("unknown direction %q", pos.Direction)
	}

	if bar.UpperPrice <= bar.Close || bar.LowerPrice >= bar.Close {
		return domain.PredictionBar{}, ErrDegenerateBar
	}
	return bar, nil
}

// BarFromChart derives the bar from the last visible candle of a chart.
func BarFromChart(chart *domain.Chart) (domain.PredictionBar, error) {
	close, ok := chart.LastClose()
	if !ok {
		return domain.PredictionBar{}, domain.ErrInvalidChart
	}
	return NewBar(close, chart.Position)
}

// PriceToValidation maps a price onto a signed percentage in [-100, 100].
// The sign is flipped when the take-profit lies below the close.
func PriceToValidation(price float64, bar domain.PredictionBar) float64 {
	var raw float64
	switch {
	case price > bar.UpperPrice:
		raw = 1
	case price < bar.LowerPrice:
		raw = -1
	case price >= bar.Close:
		raw = (price - bar.Close) / (bar.UpperPrice - bar.Close)
	default:
		raw = (price - bar.Close) / (bar.Close - bar.LowerPrice)
	}

	sign := -1.0
	if bar.Close < bar.TakeProfitPrice {
		sign = 1
	}
	return sign * raw * 100
}

// ValidationToPrice maps a percentage back onto a price.
// It is the inverse of PriceToValidation inside the linear regions; callers clamp
// the percentage first and the resulting price afterwards.
func ValidationToPrice(percent float64, bar domain.PredictionBar) float64 {
	v := percent / 100
	if bar.Close < bar.TakeProfitPrice {
		if v > 0 {
			return v*(bar.UpperPrice-bar.Close) + bar.Close
		}
		return v*(bar.Close-bar.LowerPrice) + bar.Close
	}
	if v > 0 {
		return v*(bar.LowerPrice-bar.Close) + bar.Close
	}
	return v*(bar.Close-bar.UpperPrice) + bar.Close
}

// ClampPercent bounds a percentage to [-100, 100].
func ClampPercent(percent float64) float64 {
	return math.Max(MinPercent, math.Min(MaxPercent, percent))
}

// ClampPrice bounds a price to the band between stop-loss and take-profit.
func ClampPrice(price float64, bar domain.PredictionBar) float64 {
	lo := math.Min(bar.StopLossPrice, bar.TakeProfitPrice)
	hi := math.Max(bar.StopLossPrice, bar.TakeProfitPrice)
	return math.Max(lo, math.Min(hi, price))
}

// DisplayPrice clamps the percentage, maps it, and clamps the resulting price.
func DisplayPrice(percent float64, bar domain.PredictionBar) float64 {
	return ClampPrice(ValidationToPrice(ClampPercent(percent), bar), bar)
}

// ValidatePercent rejects non-finite percentages and clamps the rest.
func ValidatePercent(percent float64) (float64, error) {
	if !isFinite(percent) {
		return 0, ErrNonFinite
	}
	return ClampPercent(percent), nil
}

// ValidatePrice rejects non-finite chart prices. Finite prices are returned unchanged;
// PriceToValidation clamps them.
func ValidatePrice(price float64) (float64, error) {
	if !isFinite(price) {
		return 0, ErrNonFinite
	}
	return price, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
