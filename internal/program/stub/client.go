// Package stub provides an in-memory program client for tests and local runs.
package stub

import (
	"context"
	"fmt"
	"sync"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/program"
	"tradetrainer/internal/solana"
	solanastub "tradetrainer/internal/solana/stub"
)

// Client implements program.Client in memory. When Feed is set, every account
// mutation is published to it with an increasing slot.
type Client struct {
	mu        sync.Mutex
	authority string
	exercises map[string]*domain.ExerciseAccount
	order     []string
	traders   map[string]*domain.Trader
	checked   map[string]bool // trader|exercise
	slot      int64

	// Feed receives account changes, may be nil.
	Feed *solanastub.WSClient

	fail  map[string]error
	calls map[string]int
}

// NewClient creates an empty in-memory program whose exercises are created by authority.
func NewClient(authority string) *Client {
	return &Client{
		authority: authority,
		exercises: make(map[string]*domain.ExerciseAccount),
		traders:   make(map[string]*domain.Trader),
		checked:   make(map[string]bool),
		fail:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// FailNext makes the next n calls of method fail with err.
func (c *Client) FailNext(method string, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[method] = err
	c.calls[method+"#fail"] = n
}

// Calls returns how many times method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// enter counts a call and returns the injected failure, if any. Caller holds mu.
func (c *Client) enter(method string) error {
	c.calls[method]++
	if left := c.calls[method+"#fail"]; left > 0 {
		c.calls[method+"#fail"] = left - 1
		return c.fail[method]
	}
	return nil
}

// CreateExercise adds an exercise with a fresh address.
func (c *Client) CreateExercise(_ context.Context, params program.CreateExerciseParams) (*program.ExerciseAccount, error) {
	kp, err := solana.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("CreateExercise"); err != nil {
		return nil, err
	}

	key := kp.PublicKey().String()
	acc := &domain.ExerciseAccount{
		Authority:           c.authority,
		CID:                 params.CID,
		ValidationsCapacity: params.ValidationsCapacity,
	}
	c.exercises[key] = acc
	c.order = append(c.order, key)
	c.publishExercise(key)
	return exerciseCopy(key, acc), nil
}

// GetFilteredExercises returns matching exercises in creation order.
func (c *Client) GetFilteredExercises(_ context.Context, filters program.ExerciseFilters) ([]program.ExerciseAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetFilteredExercises"); err != nil {
		return nil, err
	}

	var out []program.ExerciseAccount
	for _, key := range c.order {
		acc, ok := c.exercises[key]
		if !ok || !filters.Match(acc) {
			continue
		}
		out = append(out, *exerciseCopy(key, acc))
	}
	return out, nil
}

// AddValidation appends the trader's validation.
func (c *Client) AddValidation(_ context.Context, trader, exercise string, value float64) (*program.ExerciseAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("AddValidation"); err != nil {
		return nil, err
	}

	acc, ok := c.exercises[exercise]
	if !ok {
		return nil, fmt.Errorf("%w: exercise %s", program.ErrAccountNotFound, exercise)
	}
	switch {
	case acc.Sealed:
		return nil, program.ErrExerciseSealed
	case acc.Full():
		return nil, program.ErrExerciseFull
	}
	if _, dup := acc.ValidationBy(trader); dup {
		return nil, program.ErrAlreadyValidated
	}

	acc.Validations = append(acc.Validations, domain.Validation{User: trader, Value: value})
	t := c.trader(trader)
	t.Validations++
	c.publishExercise(exercise)
	return exerciseCopy(exercise, acc), nil
}

// AddOutcome publishes the outcome and seals the exercise.
func (c *Client) AddOutcome(_ context.Context, exercise string, outcome float64, solutionCID string) (*program.ExerciseAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("AddOutcome"); err != nil {
		return nil, err
	}

	acc, ok := c.exercises[exercise]
	if !ok {
		return nil, fmt.Errorf("%w: exercise %s", program.ErrAccountNotFound, exercise)
	}
	acc.Outcome = outcome
	acc.HasOutcome = true
	acc.SolutionCID = solutionCID
	acc.Sealed = true
	c.publishExercise(exercise)
	return exerciseCopy(exercise, acc), nil
}

// CheckValidation settles the trader's validation once.
func (c *Client) CheckValidation(_ context.Context, trader, exercise string) (*program.TraderAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("CheckValidation"); err != nil {
		return nil, err
	}

	acc, ok := c.exercises[exercise]
	if !ok {
		return nil, fmt.Errorf("%w: exercise %s", program.ErrAccountNotFound, exercise)
	}
	if !acc.HasOutcome {
		return nil, fmt.Errorf("exercise %s has no outcome", exercise)
	}
	v, ok := acc.ValidationBy(trader)
	if !ok {
		return nil, fmt.Errorf("trader %s has not validated %s", trader, exercise)
	}

	t := c.trader(trader)
	if key := trader + "|" + exercise; !c.checked[key] {
		c.checked[key] = true
		if v.Value*acc.Outcome > 0 {
			t.Successes++
		} else {
			t.Failures++
		}
		if settled := t.Successes + t.Failures; settled > 0 {
			t.Performance = float64(t.Successes) / float64(settled) * 100
		}
	}
	cp := *t
	return &program.TraderAccount{PublicKey: traderKey(trader), Account: cp}, nil
}

// ReloadExercise returns one exercise.
func (c *Client) ReloadExercise(_ context.Context, exercise string) (*program.ExerciseAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ReloadExercise"); err != nil {
		return nil, err
	}

	acc, ok := c.exercises[exercise]
	if !ok {
		return nil, fmt.Errorf("%w: exercise %s", program.ErrAccountNotFound, exercise)
	}
	return exerciseCopy(exercise, acc), nil
}

// GetFilteredTraders returns trader accounts.
func (c *Client) GetFilteredTraders(_ context.Context, filters program.TraderFilters) ([]program.TraderAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetFilteredTraders"); err != nil {
		return nil, err
	}

	var out []program.TraderAccount
	for user, t := range c.traders {
		if filters.User != "" && filters.User != user {
			continue
		}
		out = append(out, program.TraderAccount{PublicKey: traderKey(user), Account: *t})
	}
	return out, nil
}

// ReloadTraderAccount returns the trader account of a wallet.
func (c *Client) ReloadTraderAccount(_ context.Context, trader string) (*program.TraderAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ReloadTraderAccount"); err != nil {
		return nil, err
	}

	t, ok := c.traders[trader]
	if !ok {
		return nil, fmt.Errorf("%w: trader %s", program.ErrAccountNotFound, trader)
	}
	cp := *t
	return &program.TraderAccount{PublicKey: traderKey(trader), Account: cp}, nil
}

// Seal marks an exercise sealed without an outcome.
func (c *Client) Seal(exercise string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acc, ok := c.exercises[exercise]; ok {
		acc.Sealed = true
		c.publishExercise(exercise)
	}
}

// Delete closes an exercise account.
func (c *Client) Delete(exercise string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.exercises, exercise)
	if c.Feed != nil {
		c.slot++
		c.Feed.Publish(exercise, c.slot, nil)
	}
}

// trader returns the trader record, creating it. Caller holds mu.
func (c *Client) trader(user string) *domain.Trader {
	t, ok := c.traders[user]
	if !ok {
		t = &domain.Trader{User: user}
		c.traders[user] = t
	}
	return t
}

// publishExercise pushes the encoded account to Feed. Caller holds mu.
func (c *Client) publishExercise(key string) {
	if c.Feed == nil {
		return
	}
	data, err := program.EncodeExercise(c.exercises[key])
	if err != nil {
		return
	}
	c.slot++
	c.Feed.Publish(key, c.slot, data)
}

func exerciseCopy(key string, acc *domain.ExerciseAccount) *program.ExerciseAccount {
	cp := *acc
	cp.Validations = append([]domain.Validation(nil), acc.Validations...)
	return &program.ExerciseAccount{PublicKey: key, Account: cp}
}

func traderKey(user string) string {
	return "trader:" + user
}

var _ program.Client = (*Client)(nil)
