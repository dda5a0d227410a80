package plugins

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/license"
	"github.com/merchantd/platform/internal/models"
	"github.com/merchantd/platform/internal/outbox"
	"github.com/merchantd/platform/internal/sqlutil"
)

// ErrLicenseRequired indicates the tenant has no usable license for the plugin.
var ErrLicenseRequired = errors.New("usable license required")

// ErrAlreadyInstalled indicates the plugin is already installed for the tenant.
var ErrAlreadyInstalled = errors.New("plugin already installed")

// PluginsRepository defines what the app layer needs from the repository.
type PluginsRepository interface {
	CreatePlugin(ctx context.Context, p *models.Plugin) error
	GetPlugin(ctx context.Context, id uuid.UUID) (*models.Plugin, error)
	GetPluginBySlug(ctx context.Context, slug string) (*models.Plugin, error)
	ListPublishedPlugins(ctx context.Context) ([]models.Plugin, error)
	UpdatePlugin(ctx context.Context, p *models.Plugin) error
	CreateInstallationInTx(ctx context.Context, tx *sql.Tx, inst *models.Installation) error
	GetInstallation(ctx context.Context, tenantID, pluginID uuid.UUID) (*models.Installation, error)
	UpdateInstallationStatusInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status models.InstallationStatus, uninstalledAt *time.Time) error
}

// LicenseChecker gates installation on license validity.
type LicenseChecker interface {
	Validate(ctx context.Context, tenantID, pluginID uuid.UUID) (license.Validation, error)
}

// EventEmitter writes outbox events inside the caller's transaction.
type EventEmitter interface {
	EmitJSON(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID, eventType string, aggregateID uuid.UUID, v any) (*outbox.OutboxEvent, error)
}

// App handles plugin catalog and installation business logic.
type App struct {
	db       *sql.DB
	repo     PluginsRepository
	licenses LicenseChecker
	emitter  EventEmitter
	clock    clockwork.Clock

	runTx func(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error
}

// NewApp creates a new plugins App.
func NewApp(db *sql.DB, repo PluginsRepository, licenses LicenseChecker, emitter EventEmitter) *App {
	return &App{
		db:       db,
		repo:     repo,
		licenses: licenses,
		emitter:  emitter,
		clock:    clockwork.NewRealClock(),
		runTx:    sqlutil.Run,
	}
}

// WithClock swaps the clock, used by tests.
func (a *App) WithClock(clock clockwork.Clock) *App {
	a.clock = clock
	return a
}

// CreatePlugin lists a new plugin in the catalog, unpublished.
func (a *App) CreatePlugin(ctx context.Context, req CreatePluginRequest) (*models.Plugin, error) {
	if err := validateCreatePluginRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	existing, err := a.repo.GetPluginBySlug(ctx, req.Slug)
	if err == nil && existing != nil {
		return nil, fmt.Errorf("plugin with slug %s already exists", req.Slug)
	}

	now := a.clock.Now().UTC()
	plugin := &models.Plugin{
		ID:        uuid.New(),
		Slug:      req.Slug,
		Name:      req.Name,
		Vendor:    req.Vendor,
		Version:   req.Version,
		Price:     req.Price,
		Currency:  strings.ToUpper(req.Currency),
		Features:  req.Features,
		Published: false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.repo.CreatePlugin(ctx, plugin); err != nil {
		return nil, fmt.Errorf("failed to create plugin: %w", err)
	}

	log.Info().Str("plugin_id", plugin.ID.String()).Str("slug", plugin.Slug).Msg("plugin created")
	return plugin, nil
}

// GetPlugin retrieves a plugin by ID.
func (a *App) GetPlugin(ctx context.Context, id uuid.UUID) (*models.Plugin, error) {
	plugin, err := a.repo.GetPlugin(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get plugin: %w", err)
	}
	return plugin, nil
}

// ListCatalog returns all published plugins.
func (a *App) ListCatalog(ctx context.Context) ([]models.Plugin, error) {
	plugins, err := a.repo.ListPublishedPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	return plugins, nil
}

// UpdatePlugin updates a listing.
func (a *App) UpdatePlugin(ctx context.Context, id uuid.UUID, req UpdatePluginRequest) (*models.Plugin, error) {
	plugin, err := a.repo.GetPlugin(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("plugin not found: %w", err)
	}

	if req.Name == "" {
		return nil, fmt.Errorf("validation failed: name cannot be empty")
	}

	plugin.Name = req.Name
	plugin.Version = req.Version
	plugin.Price = req.Price
	plugin.Currency = strings.ToUpper(req.Currency)
	plugin.Features = req.Features
	plugin.Published = req.Published

	if err := a.repo.UpdatePlugin(ctx, plugin); err != nil {
		return nil, fmt.Errorf("failed to update plugin: %w", err)
	}
	return plugin, nil
}

// Install installs a plugin for a tenant. Requires a usable license; the
// installation row and the plugin.installed outbox event commit together.
func (a *App) Install(ctx context.Context, tenantID, pluginID uuid.UUID) (*models.Installation, error) {
	plugin, err := a.repo.GetPlugin(ctx, pluginID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plugin: %w", err)
	}

	validation, err := a.licenses.Validate(ctx, tenantID, pluginID)
	if err != nil {
		return nil, fmt.Errorf("failed to validate license: %w", err)
	}
	if !validation.Valid {
		return nil, fmt.Errorf("%w: license status %s", ErrLicenseRequired, validation.Status)
	}

	existing, err := a.repo.GetInstallation(ctx, tenantID, pluginID)
	if err != nil && !errors.Is(err, ErrInstallationNotFound) {
		return nil, fmt.Errorf("failed to check installation: %w", err)
	}
	if existing != nil && existing.Status != models.InstallationStatusUninstalled {
		return nil, ErrAlreadyInstalled
	}

	inst := &models.Installation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PluginID:    pluginID,
		Status:      models.InstallationStatusInstalled,
		InstalledAt: a.clock.Now().UTC(),
	}

	err = a.runTx(ctx, a.db, func(tx *sql.Tx) error {
		if err := a.repo.CreateInstallationInTx(ctx, tx, inst); err != nil {
			return err
		}
		_, err := a.emitter.EmitJSON(ctx, tx, tenantID, outbox.EventTypePluginInstalled, pluginID, map[string]any{
			"installation_id": inst.ID,
			"plugin_id":       pluginID,
			"plugin_slug":     plugin.Slug,
			"plugin_version":  plugin.Version,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to install plugin: %w", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("plugin_id", pluginID.String()).
		Msg("plugin installed")

	return inst, nil
}

// Uninstall removes a plugin installation, emitting plugin.uninstalled in
// the same transaction.
func (a *App) Uninstall(ctx context.Context, tenantID, pluginID uuid.UUID) error {
	inst, err := a.repo.GetInstallation(ctx, tenantID, pluginID)
	if err != nil {
		return fmt.Errorf("failed to get installation: %w", err)
	}
	if inst.Status == models.InstallationStatusUninstalled {
		return ErrInstallationNotFound
	}

	now := a.clock.Now().UTC()
	err = a.runTx(ctx, a.db, func(tx *sql.Tx) error {
		if err := a.repo.UpdateInstallationStatusInTx(ctx, tx, inst.ID, models.InstallationStatusUninstalled, &now); err != nil {
			return err
		}
		_, err := a.emitter.EmitJSON(ctx, tx, tenantID, outbox.EventTypePluginUninstalled, pluginID, map[string]any{
			"installation_id": inst.ID,
			"plugin_id":       pluginID,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to uninstall plugin: %w", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("plugin_id", pluginID.String()).
		Msg("plugin uninstalled")

	return nil
}

func validateCreatePluginRequest(req CreatePluginRequest) error {
	if req.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if req.Vendor == "" {
		return fmt.Errorf("vendor is required")
	}
	if req.Price < 0 {
		return fmt.Errorf("price cannot be negative")
	}
	if len(req.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code")
	}
	return nil
}
