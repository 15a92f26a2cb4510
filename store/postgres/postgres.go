// Package postgres provides a PostgreSQL-backed game.Store on pgx.
//
// The schema mirrors store/sqlite: players, sessions, one versioned JSONB
// game state per player and an append-only history. Row-level concurrency
// is left to PostgreSQL; the optimistic version check in SaveState is the
// only guard the Service relies on.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
)

// Connect opens a pool and checks the server answers.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Store implements game.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ game.Store = (*Store)(nil)

// New wraps pool. Call Migrate once before use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	password_hash BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS game_states (
	player_id TEXT PRIMARY KEY REFERENCES players(id) ON DELETE CASCADE,
	state JSONB NOT NULL,
	version BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS history (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	action TEXT NOT NULL,
	payload JSONB,
	progress INTEGER NOT NULL,
	at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_player_seq ON history(player_id, seq DESC);
CREATE INDEX IF NOT EXISTS idx_history_at ON history(at);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds every statement; Store and txStore only pick the dbtx.
type queries struct {
	db dbtx
}

func (s *Store) q() queries { return queries{db: s.pool} }

func (s *Store) CreatePlayer(ctx context.Context, p game.Player) error {
	return s.q().createPlayer(ctx, p)
}

func (s *Store) GetPlayer(ctx context.Context, id game.PlayerID) (game.Player, error) {
	return s.q().getPlayer(ctx, "id", string(id))
}

func (s *Store) GetPlayerByEmail(ctx context.Context, email string) (game.Player, error) {
	return s.q().getPlayer(ctx, "email", normalizeEmail(email))
}

func (s *Store) CreateSession(ctx context.Context, sess game.Session) error {
	return s.q().createSession(ctx, sess)
}

func (s *Store) GetSession(ctx context.Context, token string) (game.Session, error) {
	return s.q().getSession(ctx, token)
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	return s.q().deleteSession(ctx, token)
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.q().deleteExpiredSessions(ctx, now)
}

func (s *Store) LoadState(ctx context.Context, id game.PlayerID) (game.GameState, int64, error) {
	return s.q().loadState(ctx, id)
}

func (s *Store) SaveState(ctx context.Context, id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	return s.q().saveState(ctx, id, state, expected)
}

func (s *Store) AppendHistory(ctx context.Context, e game.HistoryEntry) error {
	return s.q().appendHistory(ctx, e)
}

func (s *Store) ListHistory(ctx context.Context, id game.PlayerID, limit int) ([]game.HistoryEntry, error) {
	return s.q().listHistory(ctx, id, limit)
}

func (s *Store) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.q().pruneHistory(ctx, cutoff)
}

// WithTx runs fn in a READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(game.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{q: queries{db: tx}}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// =============================================================================
// QUERIES
// =============================================================================

func (q queries) createPlayer(ctx context.Context, p game.Player) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO players (id, email, name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		string(p.ID), normalizeEmail(p.Email), p.Name, p.PasswordHash, p.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return generic.ErrPlayerExists
	}
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	return nil
}

// getPlayer looks a player up by column, which must be "id" or "email".
func (q queries) getPlayer(ctx context.Context, column, value string) (game.Player, error) {
	var (
		p  game.Player
		id string
	)
	err := q.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at FROM players WHERE `+column+` = $1`,
		value).Scan(&id, &p.Email, &p.Name, &p.PasswordHash, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Player{}, generic.ErrPlayerNotFound
	}
	if err != nil {
		return game.Player{}, fmt.Errorf("get player: %w", err)
	}
	p.ID = game.PlayerID(id)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (q queries) createSession(ctx context.Context, sess game.Session) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO sessions (token, player_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		sess.Token, string(sess.PlayerID), sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (q queries) getSession(ctx context.Context, token string) (game.Session, error) {
	var (
		sess     game.Session
		playerID string
	)
	err := q.db.QueryRow(ctx,
		`SELECT token, player_id, created_at, expires_at FROM sessions WHERE token = $1`,
		token).Scan(&sess.Token, &playerID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Session{}, generic.ErrUnauthorized
	}
	if err != nil {
		return game.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.PlayerID = game.PlayerID(playerID)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return sess, nil
}

func (q queries) deleteSession(ctx context.Context, token string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (q queries) deleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q queries) loadState(ctx context.Context, id game.PlayerID) (game.GameState, int64, error) {
	var (
		data    []byte
		version int64
	)
	err := q.db.QueryRow(ctx,
		`SELECT state, version FROM game_states WHERE player_id = $1`,
		string(id)).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.GameState{}, 0, nil
	}
	if err != nil {
		return game.GameState{}, 0, fmt.Errorf("load state: %w", err)
	}

	var state game.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return game.GameState{}, 0, fmt.Errorf("decode state: %w", err)
	}
	return state, version, nil
}

func (q queries) saveState(ctx context.Context, id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("encode state: %w", err)
	}

	if expected == 0 {
		_, err := q.db.Exec(ctx,
			`INSERT INTO game_states (player_id, state, version) VALUES ($1, $2, 1)`,
			string(id), data)
		if isUniqueViolation(err) {
			return 0, generic.ErrConcurrentModification
		}
		if err != nil {
			return 0, fmt.Errorf("insert state: %w", err)
		}
		return 1, nil
	}

	tag, err := q.db.Exec(ctx, `
		UPDATE game_states
		SET state = $2, version = version + 1, updated_at = now()
		WHERE player_id = $1 AND version = $3
	`, string(id), data, expected)
	if err != nil {
		return 0, fmt.Errorf("update state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, generic.ErrConcurrentModification
	}
	return expected + 1, nil
}

func (q queries) appendHistory(ctx context.Context, e game.HistoryEntry) error {
	var payload []byte
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO history (id, player_id, path, action, payload, progress, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, string(e.PlayerID), string(e.Path), string(e.Action), payload, e.Progress, e.At.UTC())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (q queries) listHistory(ctx context.Context, id game.PlayerID, limit int) ([]game.HistoryEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, player_id, path, action, payload, progress, at
		FROM history
		WHERE player_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []game.HistoryEntry{}
	for rows.Next() {
		var (
			e                      game.HistoryEntry
			playerID, path, action string
			payload                []byte
		)
		if err := rows.Scan(&e.ID, &playerID, &path, &action, &payload, &e.Progress, &e.At); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.PlayerID = game.PlayerID(playerID)
		e.Path = game.Path(path)
		e.Action = generic.Action(action)
		if payload != nil {
			e.Payload = json.RawMessage(payload)
		}
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q queries) pruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM history WHERE at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

type txStore struct {
	q queries
}

func (ts *txStore) CreatePlayer(ctx context.Context, p game.Player) error {
	return ts.q.createPlayer(ctx, p)
}

func (ts *txStore) GetPlayer(ctx context.Context, id game.PlayerID) (game.Player, error) {
	return ts.q.getPlayer(ctx, "id", string(id))
}

func (ts *txStore) GetPlayerByEmail(ctx context.Context, email string) (game.Player, error) {
	return ts.q.getPlayer(ctx, "email", normalizeEmail(email))
}

func (ts *txStore) CreateSession(ctx context.Context, sess game.Session) error {
	return ts.q.createSession(ctx, sess)
}

func (ts *txStore) GetSession(ctx context.Context, token string) (game.Session, error) {
	return ts.q.getSession(ctx, token)
}

func (ts *txStore) DeleteSession(ctx context.Context, token string) error {
	return ts.q.deleteSession(ctx, token)
}

func (ts *txStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return ts.q.deleteExpiredSessions(ctx, now)
}

func (ts *txStore) LoadState(ctx context.Context, id game.PlayerID) (game.GameState, int64, error) {
	return ts.q.loadState(ctx, id)
}

func (ts *txStore) SaveState(ctx context.Context, id game.PlayerID, state game.GameState, expected int64) (int64, error) {
	return ts.q.saveState(ctx, id, state, expected)
}

func (ts *txStore) AppendHistory(ctx context.Context, e game.HistoryEntry) error {
	return ts.q.appendHistory(ctx, e)
}

func (ts *txStore) ListHistory(ctx context.Context, id game.PlayerID, limit int) ([]game.HistoryEntry, error) {
	return ts.q.listHistory(ctx, id, limit)
}

func (ts *txStore) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	return ts.q.pruneHistory(ctx, cutoff)
}

func (ts *txStore) WithTx(_ context.Context, fn func(game.Store) error) error {
	return fn(ts)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
