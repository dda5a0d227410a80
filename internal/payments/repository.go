package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/merchantd/platform/internal/models"
	"github.com/merchantd/platform/internal/sqlutil"
)

// ErrPaymentNotFound indicates the payment does not exist.
var ErrPaymentNotFound = errors.New("payment not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements payment and commission persistence.
type Repository struct {
	db DBTX
}

// NewRepository creates a new payments repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

const paymentColumns = `id, tenant_id, plugin_id, amount, currency, provider, status, created_at`

// CreatePaymentInTx inserts a payment row inside an existing transaction.
func (r *Repository) CreatePaymentInTx(ctx context.Context, tx *sql.Tx, p *models.Payment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.TenantID, p.PluginID, p.Amount, p.Currency, p.Provider,
		string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// CreateCommissionInTx inserts a commission share inside an existing transaction.
func (r *Repository) CreateCommissionInTx(ctx context.Context, tx *sql.Tx, c *models.Commission) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commissions (id, payment_id, beneficiary, role, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.PaymentID, sqlutil.ToNullUUID(c.Beneficiary), string(c.Role),
		c.Amount, c.Currency, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create commission: %w", err)
	}
	return nil
}

// GetPayment fetches a payment by ID.
func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var (
		p      models.Payment
		status string
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	).Scan(&p.ID, &p.TenantID, &p.PluginID, &p.Amount, &p.Currency, &p.Provider, &status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	p.Status = models.PaymentStatus(status)
	return &p, nil
}

// ListCommissions returns the commission shares for a payment.
func (r *Repository) ListCommissions(ctx context.Context, paymentID uuid.UUID) ([]models.Commission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, payment_id, beneficiary, role, amount, currency, created_at
		FROM commissions
		WHERE payment_id = $1
		ORDER BY created_at ASC`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	defer rows.Close()

	var commissions []models.Commission
	for rows.Next() {
		var (
			c           models.Commission
			beneficiary uuid.NullUUID
			role        string
		)
		if err := rows.Scan(&c.ID, &c.PaymentID, &beneficiary, &role, &c.Amount, &c.Currency, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan commission: %w", err)
		}
		c.Beneficiary = sqlutil.FromNullUUID(beneficiary)
		c.Role = models.CommissionRole(role)
		commissions = append(commissions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commissions: %w", err)
	}
	return commissions, nil
}
