package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/identity"
	"github.com/metlabs/metlabs_back/internal/metrics"
	"github.com/metlabs/metlabs_back/internal/store"
)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// timingHash returns a hash compared against for unknown emails so that the
// response time does not reveal whether an account exists.
func timingHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("metlabs-timing-equaliser"), identity.PasswordCost)
	})
	return dummyHash
}

// Options tunes session behaviour.
type Options struct {
	TokenTTL time.Duration
	// StrictSessions requires a presented token to equal the stored session
	// token, so each login supersedes earlier tokens.
	StrictSessions bool
}

// Service authenticates users and resolves bearer tokens.
type Service struct {
	users  identity.Repository
	tokens *TokenService
	opts   Options
	logger *zap.Logger
}

// NewService builds an auth service.
func NewService(users identity.Repository, tokens *TokenService, opts Options, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, opts: opts, logger: logger}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresIn time.Duration
	User      Identity
}

// Login verifies credentials, issues a token and stores it as the user's
// session token. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResult{}, apperr.Validation("email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(timingHash(), []byte(password))
			metrics.ObserveLogin("invalid_credentials")
			return LoginResult{}, apperr.InvalidCredentials()
		}
		return LoginResult{}, apperr.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		metrics.ObserveLogin("invalid_credentials")
		return LoginResult{}, apperr.InvalidCredentials()
	}

	ttl := s.opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	token, err := s.tokens.Issue(user.ID, user.Email, ttl)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.users.Update(ctx, user.ID, identity.Update{SessionToken: &token}); err != nil {
		return LoginResult{}, apperr.Internal(err)
	}

	metrics.ObserveLogin("success")
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return LoginResult{Token: token, ExpiresIn: ttl, User: Identity{UserID: user.ID, Email: user.Email}}, nil
}

// Resolve verifies a token and, with strict sessions, checks it is still
// the user's current session token.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	if !s.opts.StrictSessions {
		return id, nil
	}

	user, err := s.users.FindByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, apperr.InvalidToken(err)
		}
		return Identity{}, apperr.Internal(err)
	}
	if subtle.ConstantTimeCompare([]byte(user.SessionToken), []byte(token)) != 1 {
		return Identity{}, apperr.InvalidToken(errors.New("token superseded"))
	}
	return id, nil
}

// Logout clears the stored session token.
func (s *Service) Logout(ctx context.Context, userID string) error {
	cleared := ""
	if err := s.users.Update(ctx, userID, identity.Update{SessionToken: &cleared}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal(err)
	}
	return nil
}
