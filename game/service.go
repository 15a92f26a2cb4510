package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/finpath/generic"
)

// DefaultHistoryLimit caps History when the caller passes no limit.
const DefaultHistoryLimit = 50

// Initializer builds the starting state of a path.
type Initializer interface {
	InitializeState(p Path, rng generic.Rand, now time.Time) (GameState, error)
}

// Config configures a Service. Zero values pick sensible defaults.
type Config struct {
	Holding generic.HoldingMode
	// Seed makes every game replayable: the generator for an action is
	// derived from Seed, the player and the month. Nil draws fresh
	// randomness for every action.
	Seed  *uint64
	Clock func() time.Time
	NewID func() generic.ItemID
}

// Service runs actions against persisted games.
type Service struct {
	store Store
	init  Initializer
	locks *Locker
	log   *zap.Logger
	cfg   Config
}

func NewService(store Store, init Initializer, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Holding == "" {
		cfg.Holding = generic.HoldingWallClock
	}
	return &Service{
		store: store,
		init:  init,
		locks: NewLocker(),
		log:   logger,
		cfg:   cfg,
	}
}

// Result is what an action returns to the caller.
type Result struct {
	State   GameState `json:"state"`
	Metrics Metrics   `json:"metrics"`
}

// =============================================================================
// RANDOMNESS
// =============================================================================

// globalRand draws from the process-wide generator, which is safe for
// concurrent use.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

func (s *Service) rngFor(id PlayerID, month int) generic.Rand {
	if s.cfg.Seed == nil {
		return globalRand{}
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	return rand.New(rand.NewPCG(*s.cfg.Seed^h.Sum64(), uint64(month)))
}

func (s *Service) options(id PlayerID, month int) Options {
	return Options{
		Now:     s.cfg.Clock(),
		RNG:     s.rngFor(id, month),
		Holding: s.cfg.Holding,
		NewID:   s.cfg.NewID,
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// SelectPath starts a new game on p. A game that already has a path is left
// alone and ErrPathAlreadySelected is returned.
func (s *Service) SelectPath(ctx context.Context, id PlayerID, p Path) (Result, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	current, version, err := s.store.LoadState(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load state: %w", err)
	}
	if current.Started() {
		return Result{}, fmt.Errorf("%w: %s", generic.ErrPathAlreadySelected, current.CurrentPath)
	}

	now := s.cfg.Clock()
	state, err := s.init.InitializeState(p, s.rngFor(id, 0), now)
	if err != nil {
		return Result{}, err
	}
	state.LastPlayed = now

	if _, err := s.store.SaveState(ctx, id, state, version); err != nil {
		return Result{}, fmt.Errorf("save state: %w", err)
	}
	s.log.Info("path selected", zap.String("player", string(id)), zap.String("path", string(p)))
	return s.result(state)
}

// State returns the player's game. A player who has not picked a path gets
// the zero GameState.
func (s *Service) State(ctx context.Context, id PlayerID) (GameState, error) {
	state, _, err := s.store.LoadState(ctx, id)
	if err != nil {
		return GameState{}, fmt.Errorf("load state: %w", err)
	}
	return state, nil
}

// Metrics returns the projection of the player's active path.
func (s *Service) Metrics(ctx context.Context, id PlayerID) (Metrics, error) {
	state, err := s.State(ctx, id)
	if err != nil {
		return Metrics{}, err
	}
	return ComputeMetrics(state)
}

// Act applies action to the player's game. p must be the current path.
func (s *Service) Act(ctx context.Context, id PlayerID, p Path, action generic.Action, payload json.RawMessage) (Result, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	state, version, err := s.store.LoadState(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load state: %w", err)
	}
	if !state.Started() {
		return Result{}, generic.ErrNoActivePath
	}
	if state.CurrentPath != p {
		return Result{}, fmt.Errorf("%w: playing %s, got %s", generic.ErrPathMismatch, state.CurrentPath, p)
	}

	opts := s.options(id, state.Progress)
	next, err := ApplyAction(state, action, payload, opts)
	if err != nil {
		s.log.Warn("action rejected",
			zap.String("player", string(id)),
			zap.String("path", string(p)),
			zap.String("action", string(action)),
			zap.Error(err))
		return Result{}, err
	}
	next.LastPlayed = opts.Now

	entry := HistoryEntry{
		ID:       uuid.NewString(),
		PlayerID: id,
		Path:     p,
		Action:   action,
		Payload:  payload,
		Progress: next.Progress,
		At:       opts.Now,
	}
	err = s.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.SaveState(ctx, id, next, version); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Debug("action applied",
		zap.String("player", string(id)),
		zap.String("path", string(p)),
		zap.String("action", string(action)),
		zap.Int("progress", next.Progress))
	return s.result(next)
}

// History returns the player's most recent actions, newest first.
func (s *Service) History(ctx context.Context, id PlayerID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	entries, err := s.store.ListHistory(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// Prune deletes history older than retention and expired sessions.
func (s *Service) Prune(ctx context.Context, retention time.Duration) error {
	now := s.cfg.Clock()
	history, herr := s.store.PruneHistory(ctx, now.Add(-retention))
	sessions, serr := s.store.DeleteExpiredSessions(ctx, now)
	if err := errors.Join(herr, serr); err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	s.log.Info("pruned",
		zap.Int64("history_entries", history),
		zap.Int64("sessions", sessions))
	return nil
}

func (s *Service) result(state GameState) (Result, error) {
	m, err := ComputeMetrics(state)
	if err != nil {
		return Result{}, err
	}
	return Result{State: state, Metrics: m}, nil
}
