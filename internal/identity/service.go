package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/store"
)

// PasswordCost is the bcrypt work factor for stored password hashes.
const PasswordCost = 10

const errEmailTaken = "email is already registered"

// Service manages the user lifecycle.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Register validates the profile and password and stores a new user with a
// hashed password. It never issues a session token.
func (s *Service) Register(ctx context.Context, profile Profile, password string) (User, error) {
	now := s.now().UTC()
	if err := validateProfile(profile, now); err != nil {
		return User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}

	if _, err := s.repo.FindByEmail(ctx, profile.Email); err == nil {
		return User{}, apperr.Conflict(errEmailTaken, nil)
	} else if !errors.Is(err, store.ErrNotFound) {
		return User{}, apperr.Internal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return User{}, apperr.Internal(err)
	}

	user := User{
		ID:           uuid.NewString(),
		Name:         profile.Name,
		Email:        profile.Email,
		Phone:        profile.Phone,
		Nationality:  profile.Nationality,
		Sex:          profile.Sex,
		BirthDate:    profile.BirthDate,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The lookup above is advisory; the unique index decides concurrent races.
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return User{}, apperr.Conflict(errEmailTaken, err)
		}
		return User{}, apperr.Internal(err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, apperr.Internal(err)
	}
	return user, nil
}
