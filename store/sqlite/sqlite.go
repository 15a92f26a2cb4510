/*
Package sqlite provides a SQLite-backed game.Store.

PURPOSE:
  The default persistence for a single-node deployment. One file holds
  players, sessions, one versioned game state per player and the action
  history.

KEY TABLES:
  players:     Accounts, email is unique (stored lowercased)
  sessions:    Bearer tokens with an expiry
  game_states: One JSON document per player plus its version
  history:     Append-only action log, ordered by an autoincrement seq

OPTIMISTIC LOCKING:
  SaveState with expected = 0 inserts and fails on an existing row; any
  other expected value is an UPDATE guarded by "version = ?". Either way a
  lost race surfaces as generic.ErrConcurrentModification.

TIME COLUMNS:
  Times are stored as INTEGER unix nanoseconds (UTC) so retention and
  expiry comparisons are plain integer comparisons.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single writer.
  An in-memory database is pinned to one connection because every new
  connection to ":memory:" would open an empty database.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/finpath.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  svc := game.NewService(st, presets, logger, game.Config{})

SEE ALSO:
  - game/store.go: Interface definitions
  - game/store/memory.go: In-memory implementation for testing
  - store/postgres: The same schema on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
)

// Store implements game.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ game.Store = (*Store)(nil)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires
		ON sessions(expires_at);

	CREATE TABLE IF NOT EXISTS game_states (
		player_id TEXT PRIMARY KEY REFERENCES players(id) ON DELETE CASCADE,
		state_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		action TEXT NOT NULL,
		payload_json TEXT,
		progress INTEGER NOT NULL,
		at INTEGER NOT NULL
	);

	-- Newest-first listing per player (hot path)
	CREATE INDEX IF NOT EXISTS idx_history_player_seq
		ON history(player_id, seq DESC);

	-- Retention pruning
	CREATE INDEX IF NOT EXISTS idx_history_at
		ON history(at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is the part of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// PLAYERS
// =============================================================================

func (s *Store) CreatePlayer(ctx context.Context, p game.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPlayer(ctx, s.db, p)
}

func createPlayer(ctx context.Context, q querier, p game.Player) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO players (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		string(p.ID), normalizeEmail(p.Email), p.Name, p.PasswordHash, toUnix(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrPlayerExists
		}
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id game.PlayerID) (game.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlayer(ctx, s.db, "id", string(id))
}

func (s *Store) GetPlayerByEmail(ctx context.Context, email string) (game.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlayer(ctx, s.db, "email", normalizeEmail(email))
}

// getPlayer looks a player up by column, which must be "id" or "email".
func getPlayer(ctx context.Context, q querier, column, value string) (game.Player, error) {
	var (
		p         game.Player
		id        string
		createdAt int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, email, name, password_hash, created_at FROM players WHERE "+column+" = ?",
		value,
	).Scan(&id, &p.Email, &p.Name, &p.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Player{}, generic.ErrPlayerNotFound
	}
	if err != nil {
		return game.Player{}, fmt.Errorf("failed to get player: %w", err)
	}
	p.ID = game.PlayerID(id)
	p.CreatedAt = fromUnix(createdAt)
	return p, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, sess game.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createSession(ctx, s.db, sess)
}

func createSession(ctx context.Context, q querier, sess game.Session) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO sessions (token, player_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		sess.Token, string(sess.PlayerID), toUnix(sess.CreatedAt), toUnix(sess.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token string) (game.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSession(ctx, s.db, token)
}

func getSession(ctx context.Context, q querier, token string) (game.Session, error) {
	var (
		sess                 game.Session
		playerID             string
		createdAt, expiresAt int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT token, player_id, created_at, expires_at FROM sessions WHERE token = ?",
		token,
	).Scan(&sess.Token, &playerID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Session{}, generic.ErrUnauthorized
	}
	if err != nil {
		return game.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	sess.PlayerID = game.PlayerID(playerID)
	sess.CreatedAt = fromUnix(createdAt)
	sess.ExpiresAt = fromUnix(expiresAt)
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSession(ctx, s.db, token)
}

func deleteSession(ctx context.Context, q querier, token string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteExpiredSessions(ctx, s.db, now)
}

func deleteExpiredSessions(ctx context.Context, q querier, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", toUnix(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// GAME STATES
// =============================================================================

func (s *Store) LoadState(ctx context.Context, id game.PlayerID) (game.GameState, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadState(ctx, s.db, id)
}

func loadState(ctx context.Context, q querier, id game.PlayerID) (game.GameState, int64, error) {
	var (
		data    string
		version int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT state_json, version FROM game_states WHERE player_id = ?",
		string(id),
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return game.GameState{}, 0, nil
	}
	if err != nil {
		return game.GameState{}, 0, fmt.Errorf("failed to load state: %w", err)
	}

	var state game.GameState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return game.GameState{}, 0, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, version, nil
}

func (s *Store) SaveState(ctx context.Context, id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveState(ctx, s.db, id, state, expected)
}

func saveState(ctx context.Context, q querier, id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("failed to encode state: %w", err)
	}
	now := toUnix(time.Now())

	if expected == 0 {
		_, err := q.ExecContext(ctx,
			"INSERT INTO game_states (player_id, state_json, version, updated_at) VALUES (?, ?, 1, ?)",
			string(id), string(data), now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return 0, generic.ErrConcurrentModification
			}
			return 0, fmt.Errorf("failed to insert state: %w", err)
		}
		return 1, nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE game_states
		SET state_json = ?, version = version + 1, updated_at = ?
		WHERE player_id = ? AND version = ?
	`, string(data), now, string(id), expected)
	if err != nil {
		return 0, fmt.Errorf("failed to update state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, generic.ErrConcurrentModification
	}
	return expected + 1, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (s *Store) AppendHistory(ctx context.Context, e game.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendHistory(ctx, s.db, e)
}

func appendHistory(ctx context.Context, q querier, e game.HistoryEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO history (id, player_id, path, action, payload_json, progress, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.PlayerID), string(e.Path), string(e.Action),
		nullString(string(e.Payload)), e.Progress, toUnix(e.At))
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, id game.PlayerID, limit int) ([]game.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listHistory(ctx, s.db, id, limit)
}

func listHistory(ctx context.Context, q querier, id game.PlayerID, limit int) ([]game.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, player_id, path, action, payload_json, progress, at
		FROM history
		WHERE player_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []game.HistoryEntry{}
	for rows.Next() {
		var (
			e                      game.HistoryEntry
			playerID, path, action string
			payload                sql.NullString
			at                     int64
		)
		if err := rows.Scan(&e.ID, &playerID, &path, &action, &payload, &e.Progress, &at); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.PlayerID = game.PlayerID(playerID)
		e.Path = game.Path(path)
		e.Action = generic.Action(action)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.At = fromUnix(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pruneHistory(ctx, s.db, cutoff)
}

func pruneHistory(ctx context.Context, q querier, cutoff time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM history WHERE at < ?", toUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(game.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every call on the open transaction. The parent lock is
// already held.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreatePlayer(ctx context.Context, p game.Player) error {
	return createPlayer(ctx, ts.tx, p)
}

func (ts *txStore) GetPlayer(ctx context.Context, id game.PlayerID) (game.Player, error) {
	return getPlayer(ctx, ts.tx, "id", string(id))
}

func (ts *txStore) GetPlayerByEmail(ctx context.Context, email string) (game.Player, error) {
	return getPlayer(ctx, ts.tx, "email", normalizeEmail(email))
}

func (ts *txStore) CreateSession(ctx context.Context, sess game.Session) error {
	return createSession(ctx, ts.tx, sess)
}

func (ts *txStore) GetSession(ctx context.Context, token string) (game.Session, error) {
	return getSession(ctx, ts.tx, token)
}

func (ts *txStore) DeleteSession(ctx context.Context, token string) error {
	return deleteSession(ctx, ts.tx, token)
}

func (ts *txStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpiredSessions(ctx, ts.tx, now)
}

func (ts *txStore) LoadState(ctx context.Context, id game.PlayerID) (game.GameState, int64, error) {
	return loadState(ctx, ts.tx, id)
}

func (ts *txStore) SaveState(ctx context.Context, id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	return saveState(ctx, ts.tx, id, state, expected)
}

func (ts *txStore) AppendHistory(ctx context.Context, e game.HistoryEntry) error {
	return appendHistory(ctx, ts.tx, e)
}

func (ts *txStore) ListHistory(ctx context.Context, id game.PlayerID, limit int) ([]game.HistoryEntry, error) {
	return listHistory(ctx, ts.tx, id, limit)
}

func (ts *txStore) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	return pruneHistory(ctx, ts.tx, cutoff)
}

// WithTx on a transaction store runs fn in the enclosing transaction.
func (ts *txStore) WithTx(_ context.Context, fn func(game.Store) error) error {
	return fn(ts)
}

// =============================================================================
// HELPERS
// =============================================================================

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
