package license

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/platform/internal/outbox"
)

type fakeLicenseRepo struct {
	licenses map[uuid.UUID]*PluginLicense
	lookups  int
	getErr   error
}

func newFakeLicenseRepo() *fakeLicenseRepo {
	return &fakeLicenseRepo{licenses: make(map[uuid.UUID]*PluginLicense)}
}

func (r *fakeLicenseRepo) Create(ctx context.Context, lic *PluginLicense) error {
	r.licenses[lic.ID] = lic
	return nil
}

func (r *fakeLicenseRepo) Get(ctx context.Context, id uuid.UUID) (*PluginLicense, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	lic, ok := r.licenses[id]
	if !ok {
		return nil, ErrLicenseNotFound
	}
	copied := *lic
	return &copied, nil
}

func (r *fakeLicenseRepo) GetByTenantAndPlugin(ctx context.Context, tenantID, pluginID uuid.UUID) (*PluginLicense, error) {
	r.lookups++
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, lic := range r.licenses {
		if lic.TenantID == tenantID && lic.PluginID == pluginID {
			copied := *lic
			return &copied, nil
		}
	}
	return nil, ErrLicenseNotFound
}

func (r *fakeLicenseRepo) UpdateStatusInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status Status, at time.Time) error {
	lic, ok := r.licenses[id]
	if !ok {
		return ErrLicenseNotFound
	}
	lic.Status = status
	return nil
}

type fakeEmitter struct {
	events []string
	err    error
}

func (e *fakeEmitter) EmitJSON(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID, eventType string, aggregateID uuid.UUID, v any) (*outbox.OutboxEvent, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.events = append(e.events, eventType)
	return &outbox.OutboxEvent{ID: uuid.New(), EventType: eventType}, nil
}

func newTestApp(repo LicenseRepository, emitter EventEmitter, clock clockwork.Clock) *App {
	app := NewApp(nil, repo, emitter, DefaultConfig()).WithClock(clock)
	app.runTx = func(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
		return fn(nil)
	}
	return app
}

func TestCreateAndValidateLicense(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	repo := newFakeLicenseRepo()
	app := newTestApp(repo, &fakeEmitter{}, clock)

	tenantID := uuid.New()
	pluginID := uuid.New()

	lic, err := app.CreateLicense(context.Background(), CreateLicenseRequest{
		TenantID: tenantID,
		PluginID: pluginID,
		Key:      "LIC-0001",
		Amount:   4900,
		Currency: "USD",
		Features: []string{"export"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, lic.Status)
	require.Equal(t, Fingerprint("LIC-0001"), lic.KeyHash)

	// A pending license does not grant access.
	v, err := app.Validate(context.Background(), tenantID, pluginID)
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, StatusPending, v.Status)
}

func TestActivateLicense(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	repo := newFakeLicenseRepo()
	emitter := &fakeEmitter{}
	app := newTestApp(repo, emitter, clock)

	lic, err := app.CreateLicense(context.Background(), CreateLicenseRequest{
		TenantID: uuid.New(),
		PluginID: uuid.New(),
		Key:      "LIC-0002",
	})
	require.NoError(t, err)

	_, err = app.Activate(context.Background(), lic.ID, "wrong-key")
	require.ErrorIs(t, err, ErrKeyMismatch)
	require.Empty(t, emitter.events)

	activated, err := app.Activate(context.Background(), lic.ID, "LIC-0002")
	require.NoError(t, err)
	require.Equal(t, StatusActive, activated.Status)
	require.NotNil(t, activated.ActivatedAt)
	require.Equal(t, []string{outbox.EventTypeLicenseActivated}, emitter.events)

	// A second activation finds the license no longer pending.
	_, err = app.Activate(context.Background(), lic.ID, "LIC-0002")
	require.ErrorIs(t, err, ErrNotActivatable)
}

func TestValidateDerivesGraceAndExpiry(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	repo := newFakeLicenseRepo()
	app := newTestApp(repo, &fakeEmitter{}, clock)

	tenantID := uuid.New()
	pluginID := uuid.New()

	lic, err := app.CreateLicense(context.Background(), CreateLicenseRequest{
		TenantID: tenantID,
		PluginID: pluginID,
		Key:      "LIC-0003",
		Features: []string{"*"},
	})
	require.NoError(t, err)

	_, err = app.Activate(context.Background(), lic.ID, "LIC-0003")
	require.NoError(t, err)

	v, err := app.Validate(context.Background(), tenantID, pluginID)
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.Equal(t, StatusActive, v.Status)
	require.True(t, v.HasFeature("anything"))

	// Inside the grace window the license is still usable.
	clock.Advance(ValidityPeriod + 24*time.Hour)
	app.cache.Invalidate(tenantID, pluginID)

	v, err = app.Validate(context.Background(), tenantID, pluginID)
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.Equal(t, StatusGrace, v.Status)
	require.NotNil(t, v.GraceUntil)

	// Past grace it is expired.
	clock.Advance(GracePeriod)
	app.cache.Invalidate(tenantID, pluginID)

	v, err = app.Validate(context.Background(), tenantID, pluginID)
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, StatusExpired, v.Status)
}

func TestValidateServesFreshCache(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	repo := newFakeLicenseRepo()
	app := newTestApp(repo, &fakeEmitter{}, clock)

	tenantID := uuid.New()
	pluginID := uuid.New()

	lic, err := app.CreateLicense(context.Background(), CreateLicenseRequest{
		TenantID: tenantID,
		PluginID: pluginID,
		Key:      "LIC-0004",
	})
	require.NoError(t, err)
	_, err = app.Activate(context.Background(), lic.ID, "LIC-0004")
	require.NoError(t, err)

	_, err = app.Validate(context.Background(), tenantID, pluginID)
	require.NoError(t, err)
	lookups := repo.lookups

	// A second validation inside the fresh TTL never touches the store.
	_, err = app.Validate(context.Background(), tenantID, pluginID)
	require.NoError(t, err)
	require.Equal(t, lookups, repo.lookups)
}

func TestValidateFallsBackToOfflineCache(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	repo := newFakeLicenseRepo()
	app := newTestApp(repo, &fakeEmitter{}, clock)

	tenantID := uuid.New()
	pluginID := uuid.New()

	lic, err := app.CreateLicense(context.Background(), CreateLicenseRequest{
		TenantID: tenantID,
		PluginID: pluginID,
		Key:      "LIC-0005",
	})
	require.NoError(t, err)
	_, err = app.Activate(context.Background(), lic.ID, "LIC-0005")
	require.NoError(t, err)

	_, err = app.Validate(context.Background(), tenantID, pluginID)
	require.NoError(t, err)

	// Store goes down past the fresh TTL but inside the offline window.
	repo.getErr = errors.New("connection refused")
	clock.Advance(time.Hour)

	v, err := app.Validate(context.Background(), tenantID, pluginID)
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.True(t, v.Stale)

	// Past the offline window the failure surfaces.
	clock.Advance(app.config.OfflineWindow)

	_, err = app.Validate(context.Background(), tenantID, pluginID)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestValidateMissingLicense(t *testing.T) {
	t.Parallel()

	app := newTestApp(newFakeLicenseRepo(), &fakeEmitter{}, clockwork.NewFakeClock())

	v, err := app.Validate(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.False(t, v.Valid)
}

func TestDeactivateLicense(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	repo := newFakeLicenseRepo()
	emitter := &fakeEmitter{}
	app := newTestApp(repo, emitter, clock)

	lic, err := app.CreateLicense(context.Background(), CreateLicenseRequest{
		TenantID: uuid.New(),
		PluginID: uuid.New(),
		Key:      "LIC-0006",
	})
	require.NoError(t, err)

	// A pending license cannot be deactivated.
	_, err = app.Deactivate(context.Background(), lic.ID)
	require.ErrorIs(t, err, ErrNotDeactivatable)

	_, err = app.Activate(context.Background(), lic.ID, "LIC-0006")
	require.NoError(t, err)

	revoked, err := app.Deactivate(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRevoked, revoked.Status)
	require.NotNil(t, revoked.DeactivatedAt)
	require.Contains(t, emitter.events, outbox.EventTypeLicenseDeactivated)

	// Revoked licenses never validate.
	v, err := app.Validate(context.Background(), lic.TenantID, lic.PluginID)
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, StatusRevoked, v.Status)
}

func TestCheckFeature(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	repo := newFakeLicenseRepo()
	app := newTestApp(repo, &fakeEmitter{}, clock)

	tenantID := uuid.New()
	pluginID := uuid.New()

	lic, err := app.CreateLicense(context.Background(), CreateLicenseRequest{
		TenantID: tenantID,
		PluginID: pluginID,
		Key:      "LIC-0007",
		Features: []string{"export"},
	})
	require.NoError(t, err)
	_, err = app.Activate(context.Background(), lic.ID, "LIC-0007")
	require.NoError(t, err)

	ok, err := app.CheckFeature(context.Background(), tenantID, pluginID, "export")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = app.CheckFeature(context.Background(), tenantID, pluginID, "sso")
	require.NoError(t, err)
	require.False(t, ok)
}
