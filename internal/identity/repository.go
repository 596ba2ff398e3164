package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metlabs/metlabs_back/internal/store"
)

// Repository persists users. Lookups return store.ErrNotFound when no row
// matches and Create returns store.ErrUniqueViolation for a taken email.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Update(ctx context.Context, id string, upd Update) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, name, email, phone, nationality, sex, birth_date, password_hash,
	wallet_address, session_token, created_at, updated_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, name, email, phone, nationality, sex, birth_date, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		userID, user.Name, user.Email, user.Phone, user.Nationality, user.Sex, user.BirthDate, user.PasswordHash, user.CreatedAt.UTC())
	return store.Classify(err)
}

// FindByEmail fetches a user by exact email match.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindByID fetches a user by identifier. Malformed identifiers are reported
// as not found.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, store.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// Update writes the non-nil fields of upd.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd Update) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return store.ErrNotFound
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.SessionToken != nil {
		set("session_token", nullable(*upd.SessionToken))
	}
	if upd.WalletAddress != nil {
		set("wallet_address", nullable(*upd.WalletAddress))
	}
	if upd.PasswordHash != nil {
		set("password_hash", upd.PasswordHash)
	}
	if len(sets) == 0 {
		return nil
	}
	set("updated_at", time.Now().UTC())
	args = append(args, userID)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return store.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id            uuid.UUID
		user          User
		walletAddress *string
		sessionToken  *string
	)
	if err := row.Scan(&id, &user.Name, &user.Email, &user.Phone, &user.Nationality, &user.Sex, &user.BirthDate,
		&user.PasswordHash, &walletAddress, &sessionToken, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, store.Classify(err)
	}
	user.ID = id.String()
	if walletAddress != nil {
		user.WalletAddress = *walletAddress
	}
	if sessionToken != nil {
		user.SessionToken = *sessionToken
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PostgresResetRepository stores password reset tokens.
type PostgresResetRepository struct {
	db *pgxpool.Pool
}

func NewPostgresResetRepository(db *pgxpool.Pool) *PostgresResetRepository {
	return &PostgresResetRepository{db: db}
}

func (r *PostgresResetRepository) Create(ctx context.Context, reset PasswordReset) error {
	userID, err := uuid.Parse(reset.UserID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO password_resets (token, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		reset.Token, userID, reset.ExpiresAt.UTC(), reset.CreatedAt.UTC())
	return store.Classify(err)
}

func (r *PostgresResetRepository) FindByToken(ctx context.Context, token string) (PasswordReset, error) {
	var (
		reset  PasswordReset
		userID uuid.UUID
	)
	err := r.db.QueryRow(ctx, `SELECT token, user_id, expires_at, used_at, created_at FROM password_resets WHERE token = $1`, token).
		Scan(&reset.Token, &userID, &reset.ExpiresAt, &reset.UsedAt, &reset.CreatedAt)
	if err != nil {
		return PasswordReset{}, store.Classify(err)
	}
	reset.UserID = userID.String()
	return reset, nil
}

// MarkUsed consumes the token. It returns store.ErrNotFound when the token is
// unknown or was already consumed, which makes concurrent redemption safe.
func (r *PostgresResetRepository) MarkUsed(ctx context.Context, token string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE password_resets SET used_at = $1 WHERE token = $2 AND used_at IS NULL`, at.UTC(), token)
	if err != nil {
		return store.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
