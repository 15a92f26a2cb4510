/*
errors.go - Centralized error types for the simulation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Path packages return these (or wrap them) so the HTTP shell can map any
  failure to a status code with errors.Is, without knowing the path.

ERROR CATEGORIES:
  1. Request errors - unknown action, malformed payload, bad index
  2. Funds errors - a spend that would overdraw savings or capital
  3. Game errors - wrong or missing path
  4. Store errors - missing records, lost optimistic-lock races

PROPAGATION:
  The engine never partially applies an action. A failed action returns the
  caller's state untouched alongside one of these errors.
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAction is returned for an action string the path does not know.
	ErrInvalidAction = errors.New("invalid action")

	// ErrInvalidIndex is returned when a list reference points at nothing.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrInsufficientFunds is returned when a spend would overdraw a fund.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidPayload is returned when a payload is malformed or out of range.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidPath is returned for a path id outside the closed set.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNoActivePath is returned when the game has not been started.
	ErrNoActivePath = errors.New("no active path")

	// ErrPathMismatch is returned when an action targets a path that is not
	// the player's current path.
	ErrPathMismatch = errors.New("path does not match current game")

	// ErrPathAlreadySelected is returned when selecting a path for a game
	// that already has one.
	ErrPathAlreadySelected = errors.New("path already selected")

	// ErrPlayerNotFound is returned when a referenced player doesn't exist.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrPlayerExists is returned when signing up with a taken email.
	ErrPlayerExists = errors.New("player already exists")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnauthorized is returned for missing, expired or wrong credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidActionError names the rejected action.
type InvalidActionError struct {
	Path   string
	Action Action
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action %q for path %s", e.Action, e.Path)
}

func (e *InvalidActionError) Unwrap() error { return ErrInvalidAction }

// InvalidIndexError describes a list reference that resolved to nothing.
type InvalidIndexError struct {
	List  string // "expenses", "loans", "investments"
	Ref   ItemRef
	Count int
}

func (e *InvalidIndexError) Error() string {
	if e.Ref.ID != "" {
		return fmt.Sprintf("%s: no item with id %s", e.List, e.Ref.ID)
	}
	if e.Ref.Index == nil {
		return fmt.Sprintf("%s: item reference requires id or index", e.List)
	}
	return fmt.Sprintf("%s: index %d out of range [0,%d)", e.List, *e.Ref.Index, e.Count)
}

func (e *InvalidIndexError) Unwrap() error { return ErrInvalidIndex }

// InsufficientFundsError provides details about a shortfall.
type InsufficientFundsError struct {
	Fund      string
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s: available %s, requested %s",
		e.Fund, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// PayloadError describes why a payload was rejected.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	if e.Field == "" {
		return "invalid payload: " + e.Reason
	}
	return fmt.Sprintf("invalid payload: %s %s", e.Field, e.Reason)
}

func (e *PayloadError) Unwrap() error { return ErrInvalidPayload }

// Invalid is shorthand for a PayloadError.
func Invalid(field, reason string) error {
	return &PayloadError{Field: field, Reason: reason}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrInvalidIndex) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrPathMismatch)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrNoActivePath)
}

// IsConflict returns true if retrying with fresh state might succeed.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrPlayerExists) ||
		errors.Is(err, ErrPathAlreadySelected)
}
