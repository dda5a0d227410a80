package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/models"
	"github.com/merchantd/platform/internal/outbox"
	"github.com/merchantd/platform/internal/sqlutil"
)

// PaymentsRepository defines what the app layer needs from the repository.
type PaymentsRepository interface {
	CreatePaymentInTx(ctx context.Context, tx *sql.Tx, p *models.Payment) error
	CreateCommissionInTx(ctx context.Context, tx *sql.Tx, c *models.Commission) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListCommissions(ctx context.Context, paymentID uuid.UUID) ([]models.Commission, error)
}

// EventEmitter writes outbox events inside the caller's transaction.
type EventEmitter interface {
	EmitJSON(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID, eventType string, aggregateID uuid.UUID, v any) (*outbox.OutboxEvent, error)
}

// ErrProviderNotEnabled indicates the payment provider is not in the
// configured allow list.
var ErrProviderNotEnabled = errors.New("payment provider not enabled")

// App handles payment and commission business logic.
type App struct {
	db        *sql.DB
	repo      PaymentsRepository
	emitter   EventEmitter
	rates     CommissionRates
	providers []string
	clock     clockwork.Clock

	runTx func(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error
}

// NewApp creates a new payments App.
func NewApp(db *sql.DB, repo PaymentsRepository, emitter EventEmitter, rates CommissionRates) *App {
	return &App{
		db:      db,
		repo:    repo,
		emitter: emitter,
		rates:   rates,
		clock:   clockwork.NewRealClock(),
		runTx:   sqlutil.Run,
	}
}

// WithClock swaps the clock, used by tests.
func (a *App) WithClock(clock clockwork.Clock) *App {
	a.clock = clock
	return a
}

// WithProviders restricts payments to the given provider names. An empty
// list accepts any provider.
func (a *App) WithProviders(providers []string) *App {
	a.providers = providers
	return a
}

func (a *App) checkProvider(provider string) error {
	if provider == "" {
		return fmt.Errorf("provider is required")
	}
	if len(a.providers) == 0 {
		return nil
	}
	for _, p := range a.providers {
		if strings.EqualFold(p, provider) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrProviderNotEnabled, provider)
}

// RecordPaymentRequest carries the data for a completed purchase.
type RecordPaymentRequest struct {
	TenantID    uuid.UUID
	PluginID    uuid.UUID
	Amount      int64
	Currency    string
	Provider    string
	AffiliateID *uuid.UUID
	AgentID     *uuid.UUID
}

// RecordPayment persists the payment, its commission shares, and the
// payment.recorded outbox event in one transaction.
func (a *App) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*models.Payment, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if err := a.checkProvider(req.Provider); err != nil {
		return nil, err
	}

	var payment *models.Payment
	err := a.runTx(ctx, a.db, func(tx *sql.Tx) error {
		var err error
		payment, err = a.recordInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	return payment, nil
}

// ProcessCheckout converts a cart into a single payment inside the caller's
// checkout transaction. Implements the cart checkout processor.
func (a *App) ProcessCheckout(ctx context.Context, tx *sql.Tx, c *models.Cart, provider string) (*models.Payment, error) {
	if len(c.Items) == 0 {
		return nil, fmt.Errorf("cannot checkout empty cart")
	}
	if err := a.checkProvider(provider); err != nil {
		return nil, err
	}

	// Single-item carts keep the plugin reference; bundles reference the
	// first item and itemize in the event payload.
	return a.recordInTx(ctx, tx, RecordPaymentRequest{
		TenantID: c.AccountID,
		PluginID: c.Items[0].PluginID,
		Amount:   c.Total(),
		Currency: c.Items[0].Currency,
		Provider: provider,
	})
}

// GetPayment retrieves a payment by ID.
func (a *App) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := a.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// ListCommissions returns the commission shares for a payment.
func (a *App) ListCommissions(ctx context.Context, paymentID uuid.UUID) ([]models.Commission, error) {
	commissions, err := a.repo.ListCommissions(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	return commissions, nil
}

func (a *App) recordInTx(ctx context.Context, tx *sql.Tx, req RecordPaymentRequest) (*models.Payment, error) {
	now := a.clock.Now().UTC()

	payment := &models.Payment{
		ID:        uuid.New(),
		TenantID:  req.TenantID,
		PluginID:  req.PluginID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Provider:  req.Provider,
		Status:    models.PaymentStatusCompleted,
		CreatedAt: now,
	}

	if err := a.repo.CreatePaymentInTx(ctx, tx, payment); err != nil {
		return nil, err
	}

	split := a.rates.Split(req.Amount, req.AffiliateID != nil, req.AgentID != nil)

	shares := []struct {
		role        models.CommissionRole
		beneficiary *uuid.UUID
		amount      int64
	}{
		{models.CommissionRoleAffiliate, req.AffiliateID, split.Affiliate},
		{models.CommissionRoleAgent, req.AgentID, split.Agent},
		{models.CommissionRolePlatform, nil, split.Platform},
	}
	for _, share := range shares {
		if share.amount <= 0 {
			continue
		}
		commission := &models.Commission{
			ID:          uuid.New(),
			PaymentID:   payment.ID,
			Beneficiary: share.beneficiary,
			Role:        share.role,
			Amount:      share.amount,
			Currency:    req.Currency,
			CreatedAt:   now,
		}
		if err := a.repo.CreateCommissionInTx(ctx, tx, commission); err != nil {
			return nil, err
		}
	}

	_, err := a.emitter.EmitJSON(ctx, tx, req.TenantID, outbox.EventTypePaymentRecorded, payment.ID, map[string]any{
		"payment_id": payment.ID,
		"plugin_id":  payment.PluginID,
		"amount":     payment.Amount,
		"currency":   payment.Currency,
		"provider":   payment.Provider,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("payment_id", payment.ID.String()).
		Str("tenant_id", payment.TenantID.String()).
		Int64("amount", payment.Amount).
		Msg("payment recorded")

	return payment, nil
}
