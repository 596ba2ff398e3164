package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/metlabs/metlabs_back/internal/apperr"
)

// DefaultTokenTTL applies when no positive lifetime is configured.
const DefaultTokenTTL = time.Hour

// Claims is the signed token payload.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the caller recovered from a verified token.
type Identity struct {
	UserID string
	Email  string
}

// TokenService issues and verifies HS256 access tokens.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService returns a ConfigurationError when the secret is empty.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, apperr.Configuration(errors.New("jwt secret is not configured"))
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for the user valid for ttl. Every token carries a
// unique id so two logins within the same second still differ.
func (t *TokenService) Issue(userID, email string, ttl time.Duration) (string, error) {
	if t == nil || len(t.secret) == 0 {
		return "", apperr.Configuration(errors.New("jwt secret is not configured"))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := t.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("sign token: %w", err))
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry. All failures produce the
// same InvalidToken error.
func (t *TokenService) Verify(token string) (Identity, error) {
	if t == nil || len(t.secret) == 0 {
		return Identity{}, apperr.Configuration(errors.New("jwt secret is not configured"))
	}
	if token == "" {
		return Identity{}, apperr.InvalidToken(errors.New("empty token"))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, apperr.InvalidToken(err)
	}
	if !parsed.Valid || claims.UserID == "" || claims.Email == "" {
		return Identity{}, apperr.InvalidToken(errors.New("incomplete claims"))
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
