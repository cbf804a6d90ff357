// Package session owns the lifecycle of the exercise a trader is practicing.
//
// A Session loads exercises from the program, takes validations and skips, follows
// on-chain account changes and settles outcomes into a persisted history. All state
// transitions are serialized by the session itself; its lock is never held across a
// network call, so results that arrive after the session moved on are checked against
// the current state before they are applied.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradetrainer/internal/content"
	"tradetrainer/internal/domain"
	"tradetrainer/internal/observability"
	"tradetrainer/internal/program"
	"tradetrainer/internal/storage"
)

// DefaultTraderRetries is how many times a failed trader account fetch is retried.
const DefaultTraderRetries = 2

// Recorder receives every history item that reaches a terminal state.
type Recorder interface {
	Record(ctx context.Context, trader string, item *domain.ExerciseHistoryItem) error
}

// Options configures a Session.
type Options struct {
	Program program.Client
	Content content.Fetcher
	Store   storage.KVStore

	// Trader is the wallet address practicing. Required.
	Trader string

	// Authority restricts exercises to one creator. Empty accepts any.
	Authority string

	// Recorder is optional.
	Recorder Recorder

	// TraderRetries overrides DefaultTraderRetries when positive.
	TraderRetries int
	// TraderRetryDelay waits between trader fetch attempts.
	TraderRetryDelay time.Duration

	// WatchInterval is how often Watch retries failed subscriptions. Default 5s.
	WatchInterval time.Duration

	Logger *logrus.Logger
	Clock  func() time.Time
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	SessionID       string
	Version         uint64 // increases with every change
	Current         *domain.Exercise
	Bar             *domain.PredictionBar
	History         []*domain.ExerciseHistoryItem
	LoadNewExercise bool
	Trader          *domain.Trader
}

// Session is one trader's practice session.
type Session struct {
	id       string
	trader   string
	opts     Options
	program  program.Client
	content  content.Fetcher
	store    storage.KVStore
	recorder Recorder
	log      *logrus.Entry
	now      func() time.Time

	mu           sync.Mutex
	version      uint64
	current      *domain.Exercise
	bar          *domain.PredictionBar
	history      []*domain.ExerciseHistoryItem
	loadNew      bool
	loaded       bool   // a load was attempted
	loadGen      uint64 // incremented by every LoadExercise
	lastExercise string // remembered exercise address
	traderAcc    *domain.Trader
	badContent   map[string]struct{}         // CIDs whose chart could not be used
	slots        map[string]int64            // account -> last applied slot
	submitting   map[string]struct{}         // CIDs with a validation in flight
	solutionCIDs map[string]string           // account -> published solution CID
	solutions    map[string]*domain.Solution // CID -> fetched solution
	subscribers  map[int]func(Snapshot)
	nextSub      int
	watching     bool

	// persistMu orders history writes so the latest state is written last.
	persistMu sync.Mutex
	// interest is signalled when the set of watched accounts may have changed.
	interest chan struct{}
}

// New creates a Session. Call Resume before the first LoadExercise to restore history.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if opts.TraderRetries <= 0 {
		opts.TraderRetries = DefaultTraderRetries
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 5 * time.Second
	}

	id := uuid.NewString()
	return &Session{
		id:           id,
		trader:       opts.Trader,
		opts:         opts,
		program:      opts.Program,
		content:      opts.Content,
		store:        opts.Store,
		recorder:     opts.Recorder,
		log:          logger.WithFields(logrus.Fields{"session": id, "trader": opts.Trader}),
		now:          now,
		loadNew:      true,
		badContent:   make(map[string]struct{}),
		slots:        make(map[string]int64),
		submitting:   make(map[string]struct{}),
		solutionCIDs: make(map[string]string),
		solutions:    make(map[string]*domain.Solution),
		subscribers:  make(map[int]func(Snapshot)),
		interest:     make(chan struct{}, 1),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Trader returns the wallet address of the session.
func (s *Session) Trader() string { return s.trader }

// State returns a snapshot of the session.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change. Snapshots may be
// delivered concurrently; use Version to discard older ones.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// snapshotLocked copies the state. Caller holds mu.
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:       s.id,
		Version:         s.version,
		Current:         s.current.Clone(),
		LoadNewExercise: s.loadNew,
		History:         make([]*domain.ExerciseHistoryItem, 0, len(s.history)),
	}
	if s.bar != nil {
		bar := *s.bar
		snap.Bar = &bar
	}
	for _, item := range s.history {
		snap.History = append(snap.History, item.Clone())
	}
	if s.traderAcc != nil {
		t := *s.traderAcc
		snap.Trader = &t
	}
	return snap
}

// changedLocked bumps the version and returns what publish needs. Caller holds mu.
func (s *Session) changedLocked() (Snapshot, []func(Snapshot)) {
	s.version++
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	return s.snapshotLocked(), fns
}

// publish notifies subscribers and the watcher. Must be called without mu.
func (s *Session) publish(snap Snapshot, fns []func(Snapshot)) {
	select {
	case s.interest <- struct{}{}:
	default:
	}
	for _, fn := range fns {
		fn(snap)
	}
}

// openItemLocked returns the open history item for cid. Caller holds mu.
func (s *Session) openItemLocked(cid string) *domain.ExerciseHistoryItem {
	for _, item := range s.history {
		if item.CID == cid && item.IsOpen() {
			return item
		}
	}
	return nil
}

// openItemByAccountLocked returns the open history item for an exercise address. Caller holds mu.
func (s *Session) openItemByAccountLocked(pubkey string) *domain.ExerciseHistoryItem {
	for _, item := range s.history {
		if item.PublicKey == pubkey && item.IsOpen() {
			return item
		}
	}
	return nil
}

// transitionLocked moves item to state if legal. Caller holds mu.
func (s *Session) transitionLocked(item *domain.ExerciseHistoryItem, to domain.ExerciseState) bool {
	if !item.State.CanTransition(to) {
		s.log.WithFields(logrus.Fields{"cid": item.CID, "from": item.State, "to": to}).
			Warn("illegal transition ignored")
		return false
	}
	observability.RecordTransition(item.State.String(), to.String())
	item.State = to
	item.UpdatedAt = s.now()
	if to.IsTerminal() {
		s.forgetAccountLocked(item.PublicKey)
	}
	return true
}

// forgetAccountLocked drops the slot, solution address and cached solution of an
// account the session no longer follows. Caller holds mu.
func (s *Session) forgetAccountLocked(pubkey string) {
	if s.current != nil && s.current.PublicKey == pubkey {
		return
	}
	if s.openItemByAccountLocked(pubkey) != nil {
		return
	}
	delete(s.slots, pubkey)
	if cid, ok := s.solutionCIDs[pubkey]; ok {
		delete(s.solutions, cid)
		delete(s.solutionCIDs, pubkey)
	}
}

// persistHistory writes the current history. Failures are logged; the in-memory
// state stays authoritative for the session.
func (s *Session) persistHistory(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	raw, err := encodeHistory(s.history)
	s.mu.Unlock()
	if err != nil {
		s.log.WithError(err).Error("encode history")
		return
	}
	if err := s.store.Set(ctx, HistoryKey(s.trader), raw); err != nil {
		s.log.WithError(err).Warn("persist history")
	}
}

// record hands a terminal item to the recorder.
func (s *Session) record(ctx context.Context, item *domain.ExerciseHistoryItem) {
	if s.recorder == nil || item == nil || !item.State.IsTerminal() {
		return
	}
	if err := s.recorder.Record(ctx, s.trader, item); err != nil {
		s.log.WithError(err).WithField("cid", item.CID).Warn("record settlement")
	}
}
