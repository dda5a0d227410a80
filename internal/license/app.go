package license

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/outbox"
	"github.com/merchantd/platform/internal/sqlutil"
)

// LicenseRepository defines what the app layer needs from the repository.
type LicenseRepository interface {
	Create(ctx context.Context, lic *PluginLicense) error
	Get(ctx context.Context, id uuid.UUID) (*PluginLicense, error)
	GetByTenantAndPlugin(ctx context.Context, tenantID, pluginID uuid.UUID) (*PluginLicense, error)
	UpdateStatusInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status Status, at time.Time) error
}

// EventEmitter writes outbox events inside the caller's transaction.
type EventEmitter interface {
	EmitJSON(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID, eventType string, aggregateID uuid.UUID, v any) (*outbox.OutboxEvent, error)
}

// Config holds license service tuning knobs.
type Config struct {
	FreshTTL      time.Duration // cache age served without touching the store
	OfflineWindow time.Duration // cache age served when the store is unreachable
}

func DefaultConfig() Config {
	return Config{
		FreshTTL:      5 * time.Minute,
		OfflineWindow: 7 * 24 * time.Hour,
	}
}

// App handles license business logic: validation with offline caching,
// activation with key verification, and deactivation.
type App struct {
	db      *sql.DB
	repo    LicenseRepository
	emitter EventEmitter
	cache   *ValidationCache
	clock   clockwork.Clock
	config  Config

	runTx func(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error
}

// NewApp creates a new license App.
func NewApp(db *sql.DB, repo LicenseRepository, emitter EventEmitter, cfg Config) *App {
	clock := clockwork.NewRealClock()
	return &App{
		db:      db,
		repo:    repo,
		emitter: emitter,
		cache:   NewValidationCache(clock),
		clock:   clock,
		config:  cfg,
		runTx:   sqlutil.Run,
	}
}

// WithClock swaps the clock (and rebuilds the cache on it), used by tests.
func (a *App) WithClock(clock clockwork.Clock) *App {
	a.clock = clock
	a.cache = NewValidationCache(clock)
	return a
}

// Fingerprint returns the stored form of a license key.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CreateLicenseRequest carries the data for a new license purchase.
type CreateLicenseRequest struct {
	TenantID uuid.UUID
	PluginID uuid.UUID
	Key      string
	Amount   int64
	Currency string
	Features []string
}

// CreateLicense records a purchased license in PENDING state.
func (a *App) CreateLicense(ctx context.Context, req CreateLicenseRequest) (*PluginLicense, error) {
	if req.TenantID == uuid.Nil || req.PluginID == uuid.Nil {
		return nil, fmt.Errorf("tenant and plugin ids are required")
	}
	if req.Key == "" {
		return nil, fmt.Errorf("license key is required")
	}

	lic := &PluginLicense{
		ID:          uuid.New(),
		TenantID:    req.TenantID,
		PluginID:    req.PluginID,
		KeyHash:     Fingerprint(req.Key),
		Status:      StatusPending,
		PurchasedAt: a.clock.Now().UTC(),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Features:    req.Features,
	}

	if err := a.repo.Create(ctx, lic); err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}

	log.Info().
		Str("license_id", lic.ID.String()).
		Str("plugin_id", lic.PluginID.String()).
		Msg("license created")

	return lic, nil
}

// Validate answers whether the tenant's license for the plugin is usable and
// with which features. Results are cached; when the store is unreachable,
// cached results up to the offline window are served as stale.
func (a *App) Validate(ctx context.Context, tenantID, pluginID uuid.UUID) (Validation, error) {
	if v, ok := a.cache.GetFresh(tenantID, pluginID, a.config.FreshTTL); ok {
		return v, nil
	}

	lic, err := a.repo.GetByTenantAndPlugin(ctx, tenantID, pluginID)
	if err != nil {
		if errors.Is(err, ErrLicenseNotFound) {
			return Validation{Valid: false}, nil
		}

		// Store unreachable: fall back to the offline cache.
		if v, ok := a.cache.GetStale(tenantID, pluginID, a.config.OfflineWindow); ok {
			log.Warn().
				Err(err).
				Str("tenant_id", tenantID.String()).
				Str("plugin_id", pluginID.String()).
				Msg("license store unreachable, serving cached validation")
			return v, nil
		}

		return Validation{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	v := a.validationFor(lic)
	a.cache.Put(tenantID, pluginID, v)

	return v, nil
}

// CheckFeature reports whether the tenant's license grants the feature.
func (a *App) CheckFeature(ctx context.Context, tenantID, pluginID uuid.UUID, feature string) (bool, error) {
	v, err := a.Validate(ctx, tenantID, pluginID)
	if err != nil {
		return false, err
	}
	return v.HasFeature(feature), nil
}

// Activate verifies the presented key against the stored fingerprint and
// transitions the license to ACTIVE, emitting license.activated in the same
// transaction.
func (a *App) Activate(ctx context.Context, licenseID uuid.UUID, key string) (*PluginLicense, error) {
	lic, err := a.repo.Get(ctx, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}

	if Fingerprint(key) != lic.KeyHash {
		return nil, ErrKeyMismatch
	}
	if lic.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrNotActivatable, lic.Status)
	}

	now := a.clock.Now().UTC()
	err = a.runTx(ctx, a.db, func(tx *sql.Tx) error {
		if err := a.repo.UpdateStatusInTx(ctx, tx, licenseID, StatusActive, now); err != nil {
			return err
		}
		_, err := a.emitter.EmitJSON(ctx, tx, lic.TenantID, outbox.EventTypeLicenseActivated, lic.PluginID, map[string]any{
			"license_id": lic.ID,
			"plugin_id":  lic.PluginID,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate license: %w", err)
	}

	lic.Status = StatusActive
	lic.ActivatedAt = &now
	a.cache.Invalidate(lic.TenantID, lic.PluginID)

	log.Info().
		Str("license_id", lic.ID.String()).
		Str("plugin_id", lic.PluginID.String()).
		Msg("license activated")

	return lic, nil
}

// Deactivate revokes a usable license, emitting license.deactivated in the
// same transaction.
func (a *App) Deactivate(ctx context.Context, licenseID uuid.UUID) (*PluginLicense, error) {
	lic, err := a.repo.Get(ctx, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}

	if !lic.EffectiveStatus(a.clock.Now()).Usable() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotDeactivatable, lic.Status)
	}

	now := a.clock.Now().UTC()
	err = a.runTx(ctx, a.db, func(tx *sql.Tx) error {
		if err := a.repo.UpdateStatusInTx(ctx, tx, licenseID, StatusRevoked, now); err != nil {
			return err
		}
		_, err := a.emitter.EmitJSON(ctx, tx, lic.TenantID, outbox.EventTypeLicenseDeactivated, lic.PluginID, map[string]any{
			"license_id": lic.ID,
			"plugin_id":  lic.PluginID,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate license: %w", err)
	}

	lic.Status = StatusRevoked
	lic.DeactivatedAt = &now
	a.cache.Invalidate(lic.TenantID, lic.PluginID)

	log.Info().
		Str("license_id", lic.ID.String()).
		Str("plugin_id", lic.PluginID.String()).
		Msg("license deactivated")

	return lic, nil
}

func (a *App) validationFor(lic *PluginLicense) Validation {
	status := lic.EffectiveStatus(a.clock.Now())

	v := Validation{
		Valid:     status.Usable(),
		Status:    status,
		ExpiresAt: lic.ExpiresAt(),
		Features:  lic.Features,
	}
	if status == StatusGrace {
		graceUntil := lic.GraceUntil()
		v.GraceUntil = &graceUntil
	}
	return v
}
