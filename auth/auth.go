// Package auth handles player accounts and bearer sessions.
//
// Passwords are hashed with bcrypt. A successful signup or login issues a
// random session token that is valid for the configured TTL; the API
// resolves it back to a player on every authenticated request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
)

const (
	DefaultSessionTTL = 24 * time.Hour

	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordLength = 72
)

// Store is the persistence auth needs.
type Store interface {
	game.PlayerStore
	game.SessionStore
}

// Config configures a Service. Zero values pick defaults.
type Config struct {
	SessionTTL time.Duration
	BcryptCost int
	Clock      func() time.Time
}

type Service struct {
	store Store
	log   *zap.Logger
	cfg   Config
}

func NewService(store Store, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{store: store, log: logger, cfg: cfg}
}

// Credentials are what signup and login accept.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Session is returned to the client after signup or login.
type Session struct {
	Token     string        `json:"token"`
	PlayerID  game.PlayerID `json:"player_id"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Signup creates a player and logs them in.
func (s *Service) Signup(ctx context.Context, c Credentials) (Session, error) {
	email, err := validateEmail(c.Email)
	if err != nil {
		return Session{}, err
	}
	if n := len(c.Password); n < MinPasswordLength || n > MaxPasswordLength {
		return Session{}, generic.Invalid("password",
			fmt.Sprintf("must be %d to %d bytes", MinPasswordLength, MaxPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), s.cfg.BcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	name := strings.TrimSpace(c.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	p := game.Player{
		ID:           game.PlayerID(uuid.NewString()),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.cfg.Clock().UTC(),
	}
	if err := s.store.CreatePlayer(ctx, p); err != nil {
		return Session{}, err
	}
	s.log.Info("player signed up", zap.String("player", string(p.ID)))
	return s.issue(ctx, p)
}

// Login checks the password and issues a new session. Unknown emails and
// wrong passwords both fail with ErrUnauthorized.
func (s *Service) Login(ctx context.Context, c Credentials) (Session, error) {
	p, err := s.store.GetPlayerByEmail(ctx, c.Email)
	if errors.Is(err, generic.ErrPlayerNotFound) {
		return Session{}, fmt.Errorf("%w: invalid email or password", generic.ErrUnauthorized)
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(c.Password)); err != nil {
		s.log.Debug("login rejected", zap.String("player", string(p.ID)))
		return Session{}, fmt.Errorf("%w: invalid email or password", generic.ErrUnauthorized)
	}
	return s.issue(ctx, p)
}

// Authenticate resolves a bearer token to its player. Expired sessions are
// deleted and rejected.
func (s *Service) Authenticate(ctx context.Context, token string) (game.PlayerID, error) {
	if token == "" {
		return "", generic.ErrUnauthorized
	}
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		return "", err
	}
	if sess.Expired(s.cfg.Clock()) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			s.log.Warn("delete expired session", zap.Error(err))
		}
		return "", fmt.Errorf("%w: session expired", generic.ErrUnauthorized)
	}
	return sess.PlayerID, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

func (s *Service) issue(ctx context.Context, p game.Player) (Session, error) {
	now := s.cfg.Clock().UTC()
	sess := game.Session{
		Token:     uuid.NewString(),
		PlayerID:  p.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return Session{
		Token:     sess.Token,
		PlayerID:  p.ID,
		Email:     p.Email,
		Name:      p.Name,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

func validateEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", generic.Invalid("email", "is not a valid address")
	}
	return email, nil
}
