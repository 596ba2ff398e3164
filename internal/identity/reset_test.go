package identity

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/logging"
	"github.com/metlabs/metlabs_back/internal/notification"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) last() (notification.Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return notification.Message{}, false
	}
	return n.messages[len(n.messages)-1], true
}

func setupRecovery(t *testing.T) (*Recovery, Repository, *recordingNotifier, User) {
	t.Helper()
	users := NewMemoryRepository()
	svc := NewService(users, logging.Discard())
	user, err := svc.Register(context.Background(), validProfile(), "Abcd1234!")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	notifier := &recordingNotifier{}
	rec := NewRecovery(users, NewMemoryResetRepository(), notifier, "https://app.metlabs.io/", logging.Discard())
	return rec, users, notifier, user
}

func tokenFromLink(t *testing.T, body string) string {
	t.Helper()
	idx := strings.Index(body, "token=")
	if idx < 0 {
		t.Fatalf("no token in body %q", body)
	}
	return strings.TrimSpace(body[idx+len("token="):])
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	rec, _, notifier, _ := setupRecovery(t)

	if err := rec.RequestPasswordReset(context.Background(), "nobody@x.com"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if _, sent := notifier.last(); sent {
		t.Fatalf("no message expected for unknown email")
	}
}

func TestResetPasswordFlow(t *testing.T) {
	rec, users, notifier, user := setupRecovery(t)
	ctx := context.Background()

	session := "old-session"
	if err := users.Update(ctx, user.ID, Update{SessionToken: &session}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	if err := rec.RequestPasswordReset(ctx, "a@x.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	msg, sent := notifier.last()
	if !sent {
		t.Fatalf("expected reset message")
	}
	if msg.Kind != notification.KindPasswordReset || msg.Destination != "a@x.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.Body, "https://app.metlabs.io/reset-password?token=") {
		t.Fatalf("reset link missing from body %q", msg.Body)
	}
	token := tokenFromLink(t, msg.Body)
	if len(token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(token))
	}

	if err := rec.ResetPassword(ctx, token, "Newpass99$"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	stored, err := users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword(stored.PasswordHash, []byte("Newpass99$")); err != nil {
		t.Fatalf("new password not stored: %v", err)
	}
	if stored.SessionToken != "" {
		t.Fatalf("session token should be cleared after reset")
	}

	if err := rec.ResetPassword(ctx, token, "Another77#"); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Fatalf("reused token must be rejected, got %v", err)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	rec, _, notifier, _ := setupRecovery(t)
	ctx := context.Background()

	issued := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return issued }
	if err := rec.RequestPasswordReset(ctx, "a@x.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	msg, _ := notifier.last()
	token := tokenFromLink(t, msg.Body)

	rec.now = func() time.Time { return issued.Add(time.Hour + time.Second) }
	if err := rec.ResetPassword(ctx, token, "Newpass99$"); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Fatalf("expired token must be rejected, got %v", err)
	}
}

func TestResetPasswordRejectsWeakPassword(t *testing.T) {
	rec, _, _, _ := setupRecovery(t)
	if err := rec.ResetPassword(context.Background(), "whatever", "weak"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResetPasswordUnknownToken(t *testing.T) {
	rec, _, _, _ := setupRecovery(t)
	if err := rec.ResetPassword(context.Background(), "deadbeef", "Newpass99$"); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
