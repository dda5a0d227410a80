package plugins

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/platform/internal/license"
	"github.com/merchantd/platform/internal/models"
	"github.com/merchantd/platform/internal/outbox"
)

type fakePluginsRepo struct {
	plugins       map[uuid.UUID]*models.Plugin
	installations map[uuid.UUID]*models.Installation
}

func newFakePluginsRepo() *fakePluginsRepo {
	return &fakePluginsRepo{
		plugins:       make(map[uuid.UUID]*models.Plugin),
		installations: make(map[uuid.UUID]*models.Installation),
	}
}

func (r *fakePluginsRepo) CreatePlugin(ctx context.Context, p *models.Plugin) error {
	r.plugins[p.ID] = p
	return nil
}

func (r *fakePluginsRepo) GetPlugin(ctx context.Context, id uuid.UUID) (*models.Plugin, error) {
	if p, ok := r.plugins[id]; ok {
		return p, nil
	}
	return nil, ErrPluginNotFound
}

func (r *fakePluginsRepo) GetPluginBySlug(ctx context.Context, slug string) (*models.Plugin, error) {
	for _, p := range r.plugins {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, ErrPluginNotFound
}

func (r *fakePluginsRepo) ListPublishedPlugins(ctx context.Context) ([]models.Plugin, error) {
	var out []models.Plugin
	for _, p := range r.plugins {
		if p.Published {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePluginsRepo) UpdatePlugin(ctx context.Context, p *models.Plugin) error {
	r.plugins[p.ID] = p
	return nil
}

func (r *fakePluginsRepo) CreateInstallationInTx(ctx context.Context, tx *sql.Tx, inst *models.Installation) error {
	r.installations[inst.ID] = inst
	return nil
}

func (r *fakePluginsRepo) GetInstallation(ctx context.Context, tenantID, pluginID uuid.UUID) (*models.Installation, error) {
	var latest *models.Installation
	for _, inst := range r.installations {
		if inst.TenantID != tenantID || inst.PluginID != pluginID {
			continue
		}
		if latest == nil || inst.InstalledAt.After(latest.InstalledAt) {
			latest = inst
		}
	}
	if latest == nil {
		return nil, ErrInstallationNotFound
	}
	return latest, nil
}

func (r *fakePluginsRepo) UpdateInstallationStatusInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status models.InstallationStatus, uninstalledAt *time.Time) error {
	inst, ok := r.installations[id]
	if !ok {
		return ErrInstallationNotFound
	}
	inst.Status = status
	inst.UninstalledAt = uninstalledAt
	return nil
}

type fakeLicenseChecker struct {
	validation license.Validation
	err        error
}

func (f *fakeLicenseChecker) Validate(ctx context.Context, tenantID, pluginID uuid.UUID) (license.Validation, error) {
	return f.validation, f.err
}

type fakeEmitter struct {
	events []string
}

func (e *fakeEmitter) EmitJSON(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID, eventType string, aggregateID uuid.UUID, v any) (*outbox.OutboxEvent, error) {
	e.events = append(e.events, eventType)
	return &outbox.OutboxEvent{ID: uuid.New(), EventType: eventType}, nil
}

func newTestApp(repo PluginsRepository, licenses LicenseChecker, emitter EventEmitter) *App {
	app := NewApp(nil, repo, licenses, emitter)
	app.runTx = func(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
		return fn(nil)
	}
	return app
}

func TestCreatePlugin(t *testing.T) {
	t.Parallel()

	repo := newFakePluginsRepo()
	app := newTestApp(repo, &fakeLicenseChecker{}, &fakeEmitter{})

	plugin, err := app.CreatePlugin(context.Background(), CreatePluginRequest{
		Slug:     "seo-toolkit",
		Name:     "SEO Toolkit",
		Vendor:   "Acme",
		Version:  "1.2.0",
		Price:    2900,
		Currency: "usd",
	})
	require.NoError(t, err)
	require.Equal(t, "USD", plugin.Currency)
	require.False(t, plugin.Published, "new listings start unpublished")

	// The slug is unique.
	_, err = app.CreatePlugin(context.Background(), CreatePluginRequest{
		Slug:   "seo-toolkit",
		Name:   "Another",
		Vendor: "Acme",
	})
	require.Error(t, err)
}

func TestCreatePluginValidation(t *testing.T) {
	t.Parallel()

	app := newTestApp(newFakePluginsRepo(), &fakeLicenseChecker{}, &fakeEmitter{})

	tests := []struct {
		name string
		req  CreatePluginRequest
	}{
		{name: "missing slug", req: CreatePluginRequest{Name: "X", Vendor: "V"}},
		{name: "missing name", req: CreatePluginRequest{Slug: "x", Vendor: "V"}},
		{name: "missing vendor", req: CreatePluginRequest{Slug: "x", Name: "X"}},
		{name: "negative price", req: CreatePluginRequest{Slug: "x", Name: "X", Vendor: "V", Price: -1}},
		{name: "bad currency", req: CreatePluginRequest{Slug: "x", Name: "X", Vendor: "V", Currency: "DOLLARS"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := app.CreatePlugin(context.Background(), tt.req)
			require.Error(t, err)
		})
	}
}

func TestListCatalogOnlyPublished(t *testing.T) {
	t.Parallel()

	repo := newFakePluginsRepo()
	app := newTestApp(repo, &fakeLicenseChecker{}, &fakeEmitter{})

	plugin, err := app.CreatePlugin(context.Background(), CreatePluginRequest{
		Slug: "hidden", Name: "Hidden", Vendor: "Acme",
	})
	require.NoError(t, err)

	catalog, err := app.ListCatalog(context.Background())
	require.NoError(t, err)
	require.Empty(t, catalog)

	_, err = app.UpdatePlugin(context.Background(), plugin.ID, UpdatePluginRequest{
		Name: "Hidden", Published: true,
	})
	require.NoError(t, err)

	catalog, err = app.ListCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 1)
}

func TestInstallRequiresUsableLicense(t *testing.T) {
	t.Parallel()

	repo := newFakePluginsRepo()
	checker := &fakeLicenseChecker{validation: license.Validation{Valid: false, Status: license.StatusExpired}}
	emitter := &fakeEmitter{}
	app := newTestApp(repo, checker, emitter)

	plugin, err := app.CreatePlugin(context.Background(), CreatePluginRequest{
		Slug: "seo-toolkit", Name: "SEO Toolkit", Vendor: "Acme",
	})
	require.NoError(t, err)

	_, err = app.Install(context.Background(), uuid.New(), plugin.ID)
	require.ErrorIs(t, err, ErrLicenseRequired)
	require.Empty(t, emitter.events)
}

func TestInstallAndUninstall(t *testing.T) {
	t.Parallel()

	repo := newFakePluginsRepo()
	checker := &fakeLicenseChecker{validation: license.Validation{Valid: true, Status: license.StatusActive}}
	emitter := &fakeEmitter{}
	app := newTestApp(repo, checker, emitter)

	plugin, err := app.CreatePlugin(context.Background(), CreatePluginRequest{
		Slug: "seo-toolkit", Name: "SEO Toolkit", Vendor: "Acme", Version: "1.0.0",
	})
	require.NoError(t, err)

	tenantID := uuid.New()

	inst, err := app.Install(context.Background(), tenantID, plugin.ID)
	require.NoError(t, err)
	require.Equal(t, models.InstallationStatusInstalled, inst.Status)
	require.Equal(t, []string{outbox.EventTypePluginInstalled}, emitter.events)

	// Installing again conflicts while the installation is live.
	_, err = app.Install(context.Background(), tenantID, plugin.ID)
	require.ErrorIs(t, err, ErrAlreadyInstalled)

	require.NoError(t, app.Uninstall(context.Background(), tenantID, plugin.ID))
	require.Equal(t, []string{outbox.EventTypePluginInstalled, outbox.EventTypePluginUninstalled}, emitter.events)

	// Uninstalling twice fails; reinstalling succeeds.
	require.ErrorIs(t, app.Uninstall(context.Background(), tenantID, plugin.ID), ErrInstallationNotFound)

	_, err = app.Install(context.Background(), tenantID, plugin.ID)
	require.NoError(t, err)
}

func TestInstallUnknownPlugin(t *testing.T) {
	t.Parallel()

	app := newTestApp(newFakePluginsRepo(), &fakeLicenseChecker{}, &fakeEmitter{})

	_, err := app.Install(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrPluginNotFound)
}
