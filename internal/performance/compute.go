package performance

import (
	"sort"

	"tradetrainer/internal/domain"
)

// computeFromItems derives performance from terminal history items.
// Items are sorted by UpdatedAt ASC, CID ASC before order-dependent metrics.
// Attempts counts every terminal item; outcome statistics cover settled items only.
func computeFromItems(trader string, items []*domain.ExerciseHistoryItem) *domain.TraderPerformance {
	p := &domain.TraderPerformance{Trader: trader}
	if len(items) == 0 {
		return p
	}

	sorted := make([]*domain.ExerciseHistoryItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].UpdatedAt.Equal(sorted[j].UpdatedAt) {
			return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
		}
		return sorted[i].CID < sorted[j].CID
	})

	var outcomes []float64
	for _, item := range sorted {
		p.Attempts++
		switch item.State {
		case domain.StateSuccess:
			p.Successes++
		case domain.StateFailed:
			p.Failures++
		case domain.StateSkipped:
			p.Skipped++
		case domain.StateExpired:
			p.Expired++
		case domain.StateCorrupted:
			p.Corrupted++
		}
		if settledItem(item) && item.Outcome != nil {
			outcomes = append(outcomes, *item.Outcome)
		}
	}

	p.WinRate = computeWinRate(p.Successes, p.Successes+p.Failures)
	if len(outcomes) > 0 {
		p.OutcomeMean = computeMean(outcomes)
		p.BestOutcome, p.WorstOutcome = computeRange(outcomes)
	}
	p.MaxConsecutiveFails = computeMaxConsecutiveFails(sorted)
	return p
}

func settledItem(item *domain.ExerciseHistoryItem) bool {
	return item.State == domain.StateSuccess || item.State == domain.StateFailed
}

// computeWinRate returns wins/total, 0 when nothing settled.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func computeMean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func computeRange(values []float64) (max, min float64) {
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return max, min
}

// computeMaxConsecutiveFails counts the longest failed streak among settled items.
// Skipped, expired and corrupted items neither extend nor break a streak.
func computeMaxConsecutiveFails(sorted []*domain.ExerciseHistoryItem) int {
	longest, current := 0, 0
	for _, item := range sorted {
		switch item.State {
		case domain.StateFailed:
			current++
			if current > longest {
				longest = current
			}
		case domain.StateSuccess:
			current = 0
		}
	}
	return longest
}
