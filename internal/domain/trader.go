package domain

// ProgramAccount pairs an on-chain address with its decoded account.
type ProgramAccount[T any] struct {
	PublicKey string
	Account   T
}

// ExerciseAccount is the decoded on-chain exercise record.
type ExerciseAccount struct {
	Authority           string  // base58 creator
	CID                 string  // chart content identifier
	SolutionCID         string  // empty until outcome published
	Outcome             float64 // valid only when HasOutcome
	HasOutcome          bool
	Sealed              bool
	ValidationsCapacity uint8
	Validations         []Validation
}

// Validation is a single trader submission recorded on an exercise account.
type Validation struct {
	User  string  // base58 wallet
	Value float64 // signed percentage
}

// Full reports whether the exercise has reached its validation capacity.
func (a *ExerciseAccount) Full() bool {
	return len(a.Validations) >= int(a.ValidationsCapacity)
}

// ValidationBy returns the validation submitted by user, if any.
func (a *ExerciseAccount) ValidationBy(user string) (Validation, bool) {
	for _, v := range a.Validations {
		if v.User == user {
			return v, true
		}
	}
	return Validation{}, false
}

// Trader is the decoded on-chain trader account tracking aggregate performance.
type Trader struct {
	User        string  // base58 wallet
	Validations uint32  // total submitted validations
	Successes   uint32  // settled with matching sign
	Failures    uint32  // settled with opposite sign
	Performance float64 // program-computed score
}

// TraderPerformance is computed locally from the settlement journal.
type TraderPerformance struct {
	Trader              string
	Attempts            int
	Successes           int
	Failures            int
	Skipped             int
	Expired             int
	Corrupted           int
	WinRate             float64 // successes / (successes + failures)
	OutcomeMean         float64 // mean outcome of settled items
	BestOutcome         float64
	WorstOutcome        float64
	MaxConsecutiveFails int
	ComputedAt          int64 // Unix ms
}
