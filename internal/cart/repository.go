package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/merchantd/platform/internal/models"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists carts as a denormalized JSONB document per account.
type Repository struct {
	db DBTX
}

// NewRepository creates a new cart repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// Get fetches the cart for an account. A missing row yields an empty cart.
func (r *Repository) Get(ctx context.Context, accountID uuid.UUID) (*models.Cart, error) {
	var (
		cart  models.Cart
		items []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, items, updated_at
		FROM carts
		WHERE account_id = $1`,
		accountID,
	).Scan(&cart.AccountID, &items, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Cart{AccountID: accountID, Items: []models.CartItem{}}, nil
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	if err := json.Unmarshal(items, &cart.Items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return &cart, nil
}

// Upsert writes the full cart document.
func (r *Repository) Upsert(ctx context.Context, cart *models.Cart) error {
	items, err := json.Marshal(cart.Items)
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO carts (account_id, items, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id)
		DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`,
		cart.AccountID, items, cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

// Delete removes the cart row for an account.
func (r *Repository) Delete(ctx context.Context, accountID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// DeleteInTx removes the cart row inside an existing transaction.
func (r *Repository) DeleteInTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) error {
	return r.WithTx(tx).Delete(ctx, accountID)
}
