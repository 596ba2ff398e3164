package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/notification"
	"github.com/metlabs/metlabs_back/internal/store"
)

const (
	resetTokenBytes = 32
	resetTokenTTL   = time.Hour
)

// ResetRepository persists password reset tokens.
type ResetRepository interface {
	Create(ctx context.Context, reset PasswordReset) error
	FindByToken(ctx context.Context, token string) (PasswordReset, error)
	MarkUsed(ctx context.Context, token string, at time.Time) error
}

// Recovery issues and redeems password reset tokens.
type Recovery struct {
	users    Repository
	resets   ResetRepository
	notifier notification.Notifier
	appURL   string
	logger   *zap.Logger
	now      func() time.Time
}

func NewRecovery(users Repository, resets ResetRepository, notifier notification.Notifier, appURL string, logger *zap.Logger) *Recovery {
	return &Recovery{
		users:    users,
		resets:   resets,
		notifier: notifier,
		appURL:   strings.TrimRight(appURL, "/"),
		logger:   logger,
		now:      time.Now,
	}
}

// RequestPasswordReset sends a reset link when the email belongs to a user.
// The result is the same whether or not the account exists.
func (r *Recovery) RequestPasswordReset(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return apperr.Internal(err)
	}

	token, err := newResetToken()
	if err != nil {
		return apperr.Internal(err)
	}
	now := r.now().UTC()
	reset := PasswordReset{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(resetTokenTTL),
		CreatedAt: now,
	}
	if err := r.resets.Create(ctx, reset); err != nil {
		return apperr.Internal(err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", r.appURL, url.QueryEscape(token))
	msg := notification.Message{
		Kind:        notification.KindPasswordReset,
		Destination: user.Email,
		Subject:     "Reset your password",
		Body:        fmt.Sprintf("Use the following link to choose a new password. It expires in one hour.\n%s", link),
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		r.logger.Error("send password reset", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword redeems a reset token and replaces the password. The current
// session token is cleared so existing sessions stop resolving.
func (r *Recovery) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return apperr.Validation("token is required")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	reset, err := r.resets.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.InvalidToken(err)
		}
		return apperr.Internal(err)
	}
	now := r.now().UTC()
	if reset.UsedAt != nil || !now.Before(reset.ExpiresAt) {
		return apperr.InvalidToken(errors.New("reset token expired or used"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), PasswordCost)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := r.resets.MarkUsed(ctx, token, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.InvalidToken(err)
		}
		return apperr.Internal(err)
	}

	cleared := ""
	if err := r.users.Update(ctx, reset.UserID, Update{PasswordHash: hash, SessionToken: &cleared}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal(err)
	}

	r.logger.Info("password reset", zap.String("user_id", reset.UserID))
	return nil
}

func newResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
