// Package store provides an in-memory game.Store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps. States are stored as JSON so a loaded
// state never aliases one held by a caller.
type Memory struct {
	mu       sync.RWMutex
	players  map[game.PlayerID]game.Player
	emails   map[string]game.PlayerID
	sessions map[string]game.Session
	states   map[game.PlayerID]storedState
	history  map[game.PlayerID][]game.HistoryEntry
}

type storedState struct {
	data    []byte
	version int64
}

var _ game.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		players:  make(map[game.PlayerID]game.Player),
		emails:   make(map[string]game.PlayerID),
		sessions: make(map[string]game.Session),
		states:   make(map[game.PlayerID]storedState),
		history:  make(map[game.PlayerID][]game.HistoryEntry),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// =============================================================================
// PLAYERS
// =============================================================================

func (m *Memory) CreatePlayer(_ context.Context, p game.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPlayerLocked(p)
}

func (m *Memory) createPlayerLocked(p game.Player) error {
	email := normalizeEmail(p.Email)
	if _, taken := m.emails[email]; taken {
		return generic.ErrPlayerExists
	}
	if _, taken := m.players[p.ID]; taken {
		return generic.ErrPlayerExists
	}
	p.Email = email
	m.players[p.ID] = p
	m.emails[email] = p.ID
	return nil
}

func (m *Memory) GetPlayer(_ context.Context, id game.PlayerID) (game.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return game.Player{}, generic.ErrPlayerNotFound
	}
	return p, nil
}

func (m *Memory) GetPlayerByEmail(_ context.Context, email string) (game.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[normalizeEmail(email)]
	if !ok {
		return game.Player{}, generic.ErrPlayerNotFound
	}
	return m.players[id], nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Memory) CreateSession(_ context.Context, s game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, token string) (game.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return game.Session{}, generic.ErrUnauthorized
	}
	return s, nil
}

func (m *Memory) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *Memory) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteExpiredLocked(now), nil
}

func (m *Memory) deleteExpiredLocked(now time.Time) int64 {
	var n int64
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

// =============================================================================
// GAME STATES
// =============================================================================

func (m *Memory) LoadState(_ context.Context, id game.PlayerID) (game.GameState, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadStateLocked(id)
}

func (m *Memory) loadStateLocked(id game.PlayerID) (game.GameState, int64, error) {
	stored, ok := m.states[id]
	if !ok {
		return game.GameState{}, 0, nil
	}
	var state game.GameState
	if err := json.Unmarshal(stored.data, &state); err != nil {
		return game.GameState{}, 0, fmt.Errorf("decode state: %w", err)
	}
	return state, stored.version, nil
}

func (m *Memory) SaveState(_ context.Context, id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveStateLocked(id, state, expected)
}

func (m *Memory) saveStateLocked(id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	if m.states[id].version != expected {
		return 0, generic.ErrConcurrentModification
	}
	data, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("encode state: %w", err)
	}
	next := expected + 1
	m.states[id] = storedState{data: data, version: next}
	return next, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (m *Memory) AppendHistory(_ context.Context, e game.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendHistoryLocked(e)
	return nil
}

func (m *Memory) appendHistoryLocked(e game.HistoryEntry) {
	m.history[e.PlayerID] = append(m.history[e.PlayerID], e)
}

func (m *Memory) ListHistory(_ context.Context, id game.PlayerID, limit int) ([]game.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listHistoryLocked(id, limit), nil
}

func (m *Memory) listHistoryLocked(id game.PlayerID, limit int) []game.HistoryEntry {
	entries := m.history[id]
	out := make([]game.HistoryEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out
}

func (m *Memory) PruneHistory(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneHistoryLocked(cutoff), nil
}

func (m *Memory) pruneHistoryLocked(cutoff time.Time) int64 {
	var n int64
	for id, entries := range m.history {
		kept := entries[:0]
		for _, e := range entries {
			if e.At.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(m.history, id)
			continue
		}
		m.history[id] = kept
	}
	return n
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn with the store locked. Writes go straight to the maps;
// on error the snapshot taken before fn is restored.
func (m *Memory) WithTx(_ context.Context, fn func(game.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	players  map[game.PlayerID]game.Player
	emails   map[string]game.PlayerID
	sessions map[string]game.Session
	states   map[game.PlayerID]storedState
	history  map[game.PlayerID][]game.HistoryEntry
}

func (m *Memory) snapshot() memorySnapshot {
	history := make(map[game.PlayerID][]game.HistoryEntry, len(m.history))
	for id, entries := range m.history {
		history[id] = generic.CloneSlice(entries)
	}
	return memorySnapshot{
		players:  maps.Clone(m.players),
		emails:   maps.Clone(m.emails),
		sessions: maps.Clone(m.sessions),
		states:   maps.Clone(m.states),
		history:  history,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.players = s.players
	m.emails = s.emails
	m.sessions = s.sessions
	m.states = s.states
	m.history = s.history
}

// txView is the Store handed to WithTx callbacks. The parent lock is
// already held, so it calls the *Locked variants.
type txView struct {
	parent *Memory
}

func (tv *txView) CreatePlayer(_ context.Context, p game.Player) error {
	return tv.parent.createPlayerLocked(p)
}

func (tv *txView) GetPlayer(_ context.Context, id game.PlayerID) (game.Player, error) {
	p, ok := tv.parent.players[id]
	if !ok {
		return game.Player{}, generic.ErrPlayerNotFound
	}
	return p, nil
}

func (tv *txView) GetPlayerByEmail(_ context.Context, email string) (game.Player, error) {
	id, ok := tv.parent.emails[normalizeEmail(email)]
	if !ok {
		return game.Player{}, generic.ErrPlayerNotFound
	}
	return tv.parent.players[id], nil
}

func (tv *txView) CreateSession(_ context.Context, s game.Session) error {
	tv.parent.sessions[s.Token] = s
	return nil
}

func (tv *txView) GetSession(_ context.Context, token string) (game.Session, error) {
	s, ok := tv.parent.sessions[token]
	if !ok {
		return game.Session{}, generic.ErrUnauthorized
	}
	return s, nil
}

func (tv *txView) DeleteSession(_ context.Context, token string) error {
	delete(tv.parent.sessions, token)
	return nil
}

func (tv *txView) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	return tv.parent.deleteExpiredLocked(now), nil
}

func (tv *txView) LoadState(_ context.Context, id game.PlayerID) (game.GameState, int64, error) {
	return tv.parent.loadStateLocked(id)
}

func (tv *txView) SaveState(_ context.Context, id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	return tv.parent.saveStateLocked(id, state, expected)
}

func (tv *txView) AppendHistory(_ context.Context, e game.HistoryEntry) error {
	tv.parent.appendHistoryLocked(e)
	return nil
}

func (tv *txView) ListHistory(_ context.Context, id game.PlayerID, limit int) ([]game.HistoryEntry, error) {
	return tv.parent.listHistoryLocked(id, limit), nil
}

func (tv *txView) PruneHistory(_ context.Context, cutoff time.Time) (int64, error) {
	return tv.parent.pruneHistoryLocked(cutoff), nil
}

// WithTx on a view runs fn in the enclosing transaction.
func (tv *txView) WithTx(_ context.Context, fn func(game.Store) error) error {
	return fn(tv)
}
