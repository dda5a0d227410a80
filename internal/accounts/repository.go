package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merchantd/platform/internal/models"
)

// ErrAccountNotFound indicates the account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Repository implements account data access operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new accounts repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `id, username, email, store_name, created_at, updated_at`

// CreateAccount creates a new account
func (r *Repository) CreateAccount(ctx context.Context, req CreateAccountRequest) (*models.Account, error) {
	now := time.Now().UTC()
	account := &models.Account{
		ID:        uuid.New(),
		Username:  req.Username,
		Email:     req.Email,
		StoreName: req.StoreName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.Username, account.Email, account.StoreName,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetAccount retrieves an account by ID
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetAccountByUsername retrieves an account by username
func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
}

// GetAccountByEmail retrieves an account by email
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// UpdateAccount updates an existing account
func (r *Repository) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET username = $2, email = $3, store_name = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns,
		id, req.Username, req.Email, req.StoreName,
	)
	return scanAccount(row)
}

// DeleteAccount deletes an account by ID
func (r *Repository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *Repository) get(ctx context.Context, query string, arg any) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, query, arg))
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID, &account.Username, &account.Email, &account.StoreName,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &account, nil
}
