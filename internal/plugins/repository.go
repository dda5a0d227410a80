package plugins

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/merchantd/platform/internal/models"
	"github.com/merchantd/platform/internal/sqlutil"
)

// ErrPluginNotFound indicates the plugin does not exist.
var ErrPluginNotFound = errors.New("plugin not found")

// ErrInstallationNotFound indicates no installation exists for the tenant/plugin pair.
var ErrInstallationNotFound = errors.New("installation not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements plugin catalog and installation data access.
type Repository struct {
	db DBTX
}

// NewRepository creates a new plugins repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

const pluginColumns = `
	id, slug, name, vendor, version, price, currency, features, published,
	created_at, updated_at`

// CreatePlugin inserts a catalog listing.
func (r *Repository) CreatePlugin(ctx context.Context, p *models.Plugin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plugins (`+pluginColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		p.ID, p.Slug, p.Name, p.Vendor, p.Version, p.Price, p.Currency,
		pq.Array(p.Features), p.Published, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create plugin: %w", err)
	}
	return nil
}

// GetPlugin fetches a plugin by ID.
func (r *Repository) GetPlugin(ctx context.Context, id uuid.UUID) (*models.Plugin, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+pluginColumns+` FROM plugins WHERE id = $1`, id)
	return scanPlugin(row)
}

// GetPluginBySlug fetches a plugin by slug.
func (r *Repository) GetPluginBySlug(ctx context.Context, slug string) (*models.Plugin, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+pluginColumns+` FROM plugins WHERE slug = $1`, slug)
	return scanPlugin(row)
}

// ListPublishedPlugins returns the public catalog.
func (r *Repository) ListPublishedPlugins(ctx context.Context) ([]models.Plugin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+pluginColumns+` FROM plugins WHERE published ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer rows.Close()

	var plugins []models.Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plugins: %w", err)
	}
	return plugins, nil
}

// UpdatePlugin updates the mutable listing fields.
func (r *Repository) UpdatePlugin(ctx context.Context, p *models.Plugin) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE plugins
		SET name = $2, version = $3, price = $4, currency = $5,
		    features = $6, published = $7, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Version, p.Price, p.Currency, pq.Array(p.Features), p.Published,
	)
	if err != nil {
		return fmt.Errorf("failed to update plugin: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPluginNotFound
	}
	return nil
}

const installationColumns = `
	id, tenant_id, plugin_id, status, installed_at, uninstalled_at`

// CreateInstallationInTx inserts an installation row inside an existing
// transaction.
func (r *Repository) CreateInstallationInTx(ctx context.Context, tx *sql.Tx, inst *models.Installation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO plugin_installations (`+installationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		inst.ID, inst.TenantID, inst.PluginID, string(inst.Status),
		inst.InstalledAt, sqlutil.ToSqlTime(inst.UninstalledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create installation: %w", err)
	}
	return nil
}

// GetInstallation fetches the current installation for a tenant/plugin pair.
func (r *Repository) GetInstallation(ctx context.Context, tenantID, pluginID uuid.UUID) (*models.Installation, error) {
	var (
		inst          models.Installation
		status        string
		uninstalledAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT`+installationColumns+`
		FROM plugin_installations
		WHERE tenant_id = $1 AND plugin_id = $2
		ORDER BY installed_at DESC
		LIMIT 1`,
		tenantID, pluginID,
	).Scan(&inst.ID, &inst.TenantID, &inst.PluginID, &status, &inst.InstalledAt, &uninstalledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstallationNotFound
		}
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	inst.Status = models.InstallationStatus(status)
	inst.UninstalledAt = sqlutil.FromSqlTime(uninstalledAt)
	return &inst, nil
}

// UpdateInstallationStatusInTx transitions an installation inside an
// existing transaction.
func (r *Repository) UpdateInstallationStatusInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status models.InstallationStatus, uninstalledAt *time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE plugin_installations
		SET status = $2, uninstalled_at = $3
		WHERE id = $1`,
		id, string(status), sqlutil.ToSqlTime(uninstalledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update installation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInstallationNotFound
	}
	return nil
}

type pluginScanner interface {
	Scan(dest ...any) error
}

func scanPlugin(row pluginScanner) (*models.Plugin, error) {
	var (
		p        models.Plugin
		features pq.StringArray
	)

	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Vendor, &p.Version, &p.Price,
		&p.Currency, &features, &p.Published, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPluginNotFound
		}
		return nil, fmt.Errorf("failed to scan plugin: %w", err)
	}

	p.Features = []string(features)
	return &p, nil
}
