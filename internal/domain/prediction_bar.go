package domain

// PredictionBar holds the prices derived from the last visible close and the position bounds.
// Upper/Lower are swapped for short positions.
type PredictionBar struct {
	Close           float64 `json:"close"`
	TakeProfitPrice float64 `json:"takeProfitPrice"`
	StopLossPrice   float64 `json:"stopLossPrice"`
	UpperPrice      float64 `json:"upperPrice"`
	LowerPrice      float64 `json:"lowerPrice"`
}
