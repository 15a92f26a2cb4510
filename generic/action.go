/*
action.go - Action dispatch shared by all path engines

PURPOSE:
  A path engine is a table from action name to handler. Table.Apply looks
  the action up, clones the state, runs the handler against the clone and
  enforces the funds invariant. The caller's state is never touched, so a
  failed action leaves nothing half-applied.

FUNDS GUARD:
  Handlers marked Spends are checked after they run: any fund (savings,
  capital) that went down AND ended below zero fails the action with
  InsufficientFundsError. The month tick is bookkeeping, not a spend, and is
  allowed to push a fund negative.

RANDOMNESS AND TIME:
  Handlers never read the wall clock or a global generator. Both arrive in
  the Turn, so a seeded generator replays a game exactly.
*/
package generic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Action is a plain action identifier, e.g. "advance-month".
type Action string

// AdvanceMonth is the tick action every path implements.
const AdvanceMonth Action = "advance-month"

// Rand is the subset of *rand.Rand the engines need.
type Rand interface {
	Float64() float64
}

// HoldingMode selects how sell-investment measures how long an investment
// was held.
type HoldingMode string

const (
	// HoldingWallClock measures real elapsed time since purchase (30-day months).
	HoldingWallClock HoldingMode = "wall-clock"
	// HoldingGameMonths measures simulated months since purchase.
	HoldingGameMonths HoldingMode = "game-months"
)

// ParseHoldingMode validates a holding mode name. Empty means wall-clock.
func ParseHoldingMode(s string) (HoldingMode, error) {
	switch HoldingMode(s) {
	case "", HoldingWallClock:
		return HoldingWallClock, nil
	case HoldingGameMonths:
		return HoldingGameMonths, nil
	}
	return "", fmt.Errorf("unknown holding mode %q", s)
}

// Turn carries everything an action may depend on besides the state.
type Turn struct {
	Month   int       // progress before the action is applied
	Now     time.Time // wall clock, supplied by the caller
	RNG     Rand
	Holding HoldingMode
	NewID   func() ItemID
}

// ID returns a fresh item id.
func (t Turn) ID() ItemID {
	if t.NewID != nil {
		return t.NewID()
	}
	return ItemID(uuid.NewString())
}

// NextMonth is the progress value after a tick.
func (t Turn) NextMonth() int { return t.Month + 1 }

// =============================================================================
// STATE CONTRACT
// =============================================================================

// Fund is a named balance the guard protects.
type Fund struct {
	Name    string
	Balance Money
}

// State is implemented by each path's state pointer type.
type State[S any] interface {
	Clone() S
	Funds() []Fund
}

// Handler mutates a cloned state in place.
type Handler[S any] struct {
	Run    func(s S, t Turn, payload json.RawMessage) error
	Spends bool
}

// Table is one path's action-dispatch table.
type Table[S State[S]] struct {
	Path     string
	Handlers map[Action]Handler[S]
}

// Apply runs action against a copy of s and returns the new state.
// On error the returned state is s itself.
func (tb Table[S]) Apply(s S, t Turn, action Action, payload json.RawMessage) (S, error) {
	h, ok := tb.Handlers[action]
	if !ok {
		return s, &InvalidActionError{Path: tb.Path, Action: action}
	}

	next := s.Clone()
	if err := h.Run(next, t, payload); err != nil {
		return s, err
	}
	if h.Spends {
		if err := CheckFunds(s.Funds(), next.Funds()); err != nil {
			return s, err
		}
	}
	return next, nil
}

// Actions lists the table's action names, sorted.
func (tb Table[S]) Actions() []Action {
	out := make([]Action, 0, len(tb.Handlers))
	for a := range tb.Handlers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckFunds compares fund balances before and after an action.
func CheckFunds(before, after []Fund) error {
	prev := make(map[string]Money, len(before))
	for _, f := range before {
		prev[f.Name] = f.Balance
	}
	for _, f := range after {
		was, ok := prev[f.Name]
		if !ok || !f.Balance.LessThan(was) || !f.Balance.IsNegative() {
			continue
		}
		return &InsufficientFundsError{
			Fund:      f.Name,
			Available: was,
			Requested: was.Sub(f.Balance),
		}
	}
	return nil
}

// =============================================================================
// PAYLOADS
// =============================================================================

// Decode unmarshals a payload into T. An empty payload decodes to the zero T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return v, &PayloadError{Reason: err.Error()}
	}
	return v, nil
}

// EncodePayload marshals v for Apply. It panics on values json cannot encode,
// so it is meant for literals in callers and tests.
func EncodePayload(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encode payload: %v", err))
	}
	return raw
}

// RequirePositive rejects zero and negative amounts.
func RequirePositive(field string, m Money) error {
	if !m.IsPositive() {
		return Invalid(field, "must be positive")
	}
	return nil
}

// RequireNonNegative rejects negative amounts.
func RequireNonNegative(field string, m Money) error {
	if m.IsNegative() {
		return Invalid(field, "must not be negative")
	}
	return nil
}
