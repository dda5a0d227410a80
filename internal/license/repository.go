package license

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/merchantd/platform/internal/sqlutil"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements license persistence.
type Repository struct {
	db DBTX
}

// NewRepository creates a new license repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// UpdateStatusInTx transitions the status inside an existing transaction.
func (r *Repository) UpdateStatusInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status Status, at time.Time) error {
	return r.WithTx(tx).UpdateStatus(ctx, id, status, at)
}

const licenseColumns = `
	id, tenant_id, plugin_id, key_hash, status, purchased_at,
	activated_at, deactivated_at, amount, currency, features`

// Create inserts a new license row.
func (r *Repository) Create(ctx context.Context, lic *PluginLicense) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plugin_licenses (`+licenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		lic.ID,
		lic.TenantID,
		lic.PluginID,
		lic.KeyHash,
		string(lic.Status),
		lic.PurchasedAt,
		sqlutil.ToSqlTime(lic.ActivatedAt),
		sqlutil.ToSqlTime(lic.DeactivatedAt),
		lic.Amount,
		lic.Currency,
		pq.Array(lic.Features),
	)
	if err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}
	return nil
}

// Get fetches a license by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*PluginLicense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+licenseColumns+` FROM plugin_licenses WHERE id = $1`, id)
	return scanLicense(row)
}

// GetByTenantAndPlugin fetches the most recent license for a tenant/plugin pair.
func (r *Repository) GetByTenantAndPlugin(ctx context.Context, tenantID, pluginID uuid.UUID) (*PluginLicense, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+licenseColumns+`
		FROM plugin_licenses
		WHERE tenant_id = $1 AND plugin_id = $2
		ORDER BY purchased_at DESC
		LIMIT 1`,
		tenantID, pluginID)
	return scanLicense(row)
}

// UpdateStatus transitions the stored status and stamps the matching timestamp.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	var query string
	switch status {
	case StatusActive:
		query = `UPDATE plugin_licenses SET status = $2, activated_at = $3 WHERE id = $1`
	case StatusRevoked:
		query = `UPDATE plugin_licenses SET status = $2, deactivated_at = $3 WHERE id = $1`
	default:
		query = `UPDATE plugin_licenses SET status = $2 WHERE id = $1`
	}

	res, err := r.db.ExecContext(ctx, query, id, string(status), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*PluginLicense, error) {
	var (
		lic           PluginLicense
		status        string
		activatedAt   sql.NullTime
		deactivatedAt sql.NullTime
		features      pq.StringArray
	)

	err := row.Scan(
		&lic.ID,
		&lic.TenantID,
		&lic.PluginID,
		&lic.KeyHash,
		&status,
		&lic.PurchasedAt,
		&activatedAt,
		&deactivatedAt,
		&lic.Amount,
		&lic.Currency,
		&features,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("failed to scan license: %w", err)
	}

	lic.Status, err = ParseStatus(status)
	if err != nil {
		return nil, err
	}
	lic.ActivatedAt = sqlutil.FromSqlTime(activatedAt)
	lic.DeactivatedAt = sqlutil.FromSqlTime(deactivatedAt)
	lic.Features = []string(features)

	return &lic, nil
}
