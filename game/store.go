/*
store.go - Persistence interfaces for players, sessions, game states and history

PURPOSE:
  Defines the boundary between the Service and the database. The engine
  never sees a Store; the Service loads a GameState, applies an action and
  saves the result.

OPTIMISTIC LOCKING:
  Every saved state carries a version. SaveState succeeds only when the
  stored version still equals the one the caller loaded, then bumps it.
  A stale write fails with ErrConcurrentModification instead of silently
  overwriting a newer state. Version 0 means "nothing stored yet".

HISTORY:
  Every applied action is appended to the player's history in the same
  transaction as the state write. History is append-only apart from
  retention pruning.

IMPLEMENTATIONS:
  - game/store/memory.go: In-memory, for tests and the simulate command
  - store/sqlite/sqlite.go: SQLite, the default
  - store/postgres/postgres.go: PostgreSQL via pgx
*/
package game

import (
	"context"
	"encoding/json"
	"time"

	"github.com/warp/finpath/generic"
)

// PlayerID identifies a player.
type PlayerID string

// Player is a registered account.
type Player struct {
	ID           PlayerID
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Session is a bearer token issued at login.
type Session struct {
	Token     string
	PlayerID  PlayerID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// HistoryEntry records one applied action.
type HistoryEntry struct {
	ID       string          `json:"id"`
	PlayerID PlayerID        `json:"player_id"`
	Path     Path            `json:"path"`
	Action   generic.Action  `json:"action"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Progress int             `json:"progress"` // after the action
	At       time.Time       `json:"at"`
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// PlayerStore persists accounts.
type PlayerStore interface {
	// CreatePlayer fails with ErrPlayerExists when the email is taken.
	CreatePlayer(ctx context.Context, p Player) error
	// GetPlayer and GetPlayerByEmail fail with ErrPlayerNotFound.
	GetPlayer(ctx context.Context, id PlayerID) (Player, error)
	GetPlayerByEmail(ctx context.Context, email string) (Player, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	// GetSession fails with ErrUnauthorized for an unknown token.
	GetSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
	// DeleteExpiredSessions removes sessions that expired before now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// StateStore persists one GameState per player.
type StateStore interface {
	// LoadState returns the stored state and its version. A player without
	// a stored state gets the zero GameState and version 0.
	LoadState(ctx context.Context, id PlayerID) (GameState, int64, error)
	// SaveState writes state if the stored version equals expected and
	// returns the new version.
	SaveState(ctx context.Context, id PlayerID, state GameState, expected int64) (int64, error)
}

// HistoryStore persists the action log.
type HistoryStore interface {
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// ListHistory returns up to limit entries, newest first.
	ListHistory(ctx context.Context, id PlayerID, limit int) ([]HistoryEntry, error)
	// PruneHistory deletes entries recorded before cutoff.
	PruneHistory(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full persistence surface the Service needs.
type Store interface {
	PlayerStore
	SessionStore
	StateStore
	HistoryStore

	// WithTx runs fn in a transaction. If fn returns an error nothing it
	// wrote is kept.
	WithTx(ctx context.Context, fn func(Store) error) error
}
