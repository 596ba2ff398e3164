package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/metlabs/metlabs_back/internal/store"
)

// Repository persists wallets. Addresses and owners are unique; a second
// wallet for either yields store.ErrUniqueViolation.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	FindByAddress(ctx context.Context, address string) (Wallet, error)
	FindByOwner(ctx context.Context, ownerID string) (Wallet, error)
	// Claim assigns an orphaned wallet to ownerID. It fails with
	// store.ErrUniqueViolation when another user already owns the address.
	Claim(ctx context.Context, address, ownerID string) error
	ListOwned(ctx context.Context, limit int) ([]Wallet, error)
	UpdateBalance(ctx context.Context, address string, amount decimal.Decimal, at time.Time) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, address, user_id, balance::text, balance_checked_at, created_at`

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return fmt.Errorf("parse wallet id: %w", err)
	}
	var ownerID *uuid.UUID
	if wallet.OwnerID != "" {
		id, err := uuid.Parse(wallet.OwnerID)
		if err != nil {
			return fmt.Errorf("parse owner id: %w", err)
		}
		ownerID = &id
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, address, user_id, created_at) VALUES ($1, $2, $3, $4)`,
		walletID, wallet.Address, ownerID, wallet.CreatedAt.UTC())
	return store.Classify(err)
}

// FindByAddress fetches a wallet by its checksummed address.
func (r *PostgresRepository) FindByAddress(ctx context.Context, address string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address)
	return scanWallet(row)
}

// FindByOwner fetches the wallet bound to a user.
func (r *PostgresRepository) FindByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, store.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, id)
	return scanWallet(row)
}

func (r *PostgresRepository) Claim(ctx context.Context, address, ownerID string) error {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return fmt.Errorf("parse owner id: %w", err)
	}
	cmd, err := r.db.Exec(ctx, `UPDATE wallets SET user_id = $1 WHERE address = $2 AND (user_id IS NULL OR user_id = $1)`, id, address)
	if err != nil {
		return store.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.FindByAddress(ctx, address); err != nil {
			return err
		}
		return store.ErrUniqueViolation
	}
	return nil
}

// ListOwned returns owned wallets, least recently refreshed first.
func (r *PostgresRepository) ListOwned(ctx context.Context, limit int) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id IS NOT NULL
        ORDER BY balance_checked_at ASC NULLS FIRST LIMIT $1`, limit)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (r *PostgresRepository) UpdateBalance(ctx context.Context, address string, amount decimal.Decimal, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE wallets SET balance = $1::text::numeric, balance_checked_at = $2 WHERE address = $3`,
		amount.String(), at.UTC(), address)
	if err != nil {
		return store.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		id        uuid.UUID
		ownerID   *uuid.UUID
		balance   *string
		checkedAt *time.Time
	)
	if err := row.Scan(&id, &w.Address, &ownerID, &balance, &checkedAt, &w.CreatedAt); err != nil {
		return Wallet{}, store.Classify(err)
	}
	w.ID = id.String()
	if ownerID != nil {
		w.OwnerID = ownerID.String()
	}
	if balance != nil {
		amount, err := decimal.NewFromString(*balance)
		if err != nil {
			return Wallet{}, errors.Join(fmt.Errorf("parse balance for %s", w.Address), err)
		}
		w.Balance = Balance{Amount: amount, Valid: true}
		if checkedAt != nil {
			w.Balance.CheckedAt = checkedAt.UTC()
		}
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return w, nil
}
