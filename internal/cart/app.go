package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/models"
	"github.com/merchantd/platform/internal/outbox"
	"github.com/merchantd/platform/internal/sqlutil"
)

var (
	// ErrEmptyCart indicates checkout was attempted on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrItemNotFound indicates the plugin is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrCurrencyMismatch indicates an item priced in a different currency
	// than the rest of the cart.
	ErrCurrencyMismatch = errors.New("cart currency mismatch")
	// ErrPluginUnavailable indicates the plugin is not published.
	ErrPluginUnavailable = errors.New("plugin not available")
)

// CartRepository defines what the app layer needs from the repository.
type CartRepository interface {
	Get(ctx context.Context, accountID uuid.UUID) (*models.Cart, error)
	Upsert(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, accountID uuid.UUID) error
	DeleteInTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) error
}

// Cache is the read-through cart cache. A nil cart with nil error is a miss.
type Cache interface {
	Get(ctx context.Context, accountID uuid.UUID) (*models.Cart, error)
	Set(ctx context.Context, cart *models.Cart) error
	Invalidate(ctx context.Context, accountID uuid.UUID) error
}

// PluginCatalog resolves plugins being added to a cart.
type PluginCatalog interface {
	GetPlugin(ctx context.Context, id uuid.UUID) (*models.Plugin, error)
}

// CheckoutProcessor converts a cart into a payment inside the checkout
// transaction. Implemented by the payments app.
type CheckoutProcessor interface {
	ProcessCheckout(ctx context.Context, tx *sql.Tx, cart *models.Cart, provider string) (*models.Payment, error)
}

// EventEmitter writes outbox events inside the caller's transaction.
type EventEmitter interface {
	EmitJSON(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID, eventType string, aggregateID uuid.UUID, v any) (*outbox.OutboxEvent, error)
}

// App handles cart business logic.
type App struct {
	db       *sql.DB
	repo     CartRepository
	cache    Cache
	catalog  PluginCatalog
	checkout CheckoutProcessor
	emitter  EventEmitter
	clock    clockwork.Clock

	runTx func(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error
}

// NewApp creates a new cart App.
func NewApp(db *sql.DB, repo CartRepository, cache Cache, catalog PluginCatalog, checkout CheckoutProcessor, emitter EventEmitter) *App {
	return &App{
		db:       db,
		repo:     repo,
		cache:    cache,
		catalog:  catalog,
		checkout: checkout,
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

// GetCart returns the account's cart, reading through the cache.
func (a *App) GetCart(ctx context.Context, accountID uuid.UUID) (*models.Cart, error) {
	if cached, err := a.cache.Get(ctx, accountID); err != nil {
		log.Warn().Err(err).Str("account_id", accountID.String()).Msg("cart cache read failed, falling back to database")
	} else if cached != nil {
		return cached, nil
	}

	cart, err := a.repo.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	if err := a.cache.Set(ctx, cart); err != nil {
		log.Warn().Err(err).Str("account_id", accountID.String()).Msg("failed to cache cart")
	}
	return cart, nil
}

// AddItem adds a published plugin to the cart, merging quantity when the
// plugin is already present.
func (a *App) AddItem(ctx context.Context, accountID, pluginID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	plugin, err := a.catalog.GetPlugin(ctx, pluginID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugin: %w", err)
	}
	if !plugin.Published {
		return nil, ErrPluginUnavailable
	}

	cart, err := a.repo.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	if len(cart.Items) > 0 && cart.Items[0].Currency != plugin.Currency {
		return nil, fmt.Errorf("%w: cart is %s, plugin is %s", ErrCurrencyMismatch, cart.Items[0].Currency, plugin.Currency)
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].PluginID == pluginID && cart.Items[i].UnitPrice == plugin.Price {
			cart.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, models.CartItem{
			ID:         uuid.New(),
			PluginID:   plugin.ID,
			PluginName: plugin.Name,
			Quantity:   quantity,
			UnitPrice:  plugin.Price,
			Currency:   plugin.Currency,
		})
	}

	if err := a.save(ctx, cart); err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", accountID.String()).
		Str("plugin_id", pluginID.String()).
		Int("quantity", quantity).
		Msg("cart item added")

	return cart, nil
}

// UpdateItemQuantity sets the quantity for a plugin already in the cart.
// Quantity zero removes the item.
func (a *App) UpdateItemQuantity(ctx context.Context, accountID, pluginID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("quantity cannot be negative")
	}
	if quantity == 0 {
		return a.RemoveItem(ctx, accountID, pluginID)
	}

	cart, err := a.repo.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].PluginID == pluginID {
			cart.Items[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		return nil, ErrItemNotFound
	}

	if err := a.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem drops a plugin from the cart.
func (a *App) RemoveItem(ctx context.Context, accountID, pluginID uuid.UUID) (*models.Cart, error) {
	cart, err := a.repo.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	kept := cart.Items[:0]
	found := false
	for _, item := range cart.Items {
		if item.PluginID == pluginID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return nil, ErrItemNotFound
	}
	cart.Items = kept

	if err := a.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Clear empties the cart.
func (a *App) Clear(ctx context.Context, accountID uuid.UUID) error {
	if err := a.repo.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	if err := a.cache.Invalidate(ctx, accountID); err != nil {
		log.Warn().Err(err).Str("account_id", accountID.String()).Msg("failed to invalidate cart cache")
	}
	return nil
}

// Checkout converts the cart into a payment. Payment row, cart deletion and
// the cart.checked_out outbox event commit in one transaction.
func (a *App) Checkout(ctx context.Context, accountID uuid.UUID, provider string) (*models.Payment, error) {
	cart, err := a.GetCart(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	var payment *models.Payment
	err = a.runTx(ctx, a.db, func(tx *sql.Tx) error {
		payment, err = a.checkout.ProcessCheckout(ctx, tx, cart, provider)
		if err != nil {
			return err
		}

		if err := a.repo.DeleteInTx(ctx, tx, accountID); err != nil {
			return err
		}

		_, err = a.emitter.EmitJSON(ctx, tx, accountID, outbox.EventTypeCartCheckedOut, payment.ID, map[string]any{
			"payment_id": payment.ID,
			"total":      cart.Total(),
			"currency":   cart.Items[0].Currency,
			"item_count": cart.ItemCount(),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to checkout cart: %w", err)
	}

	if err := a.cache.Invalidate(ctx, accountID); err != nil {
		log.Warn().Err(err).Str("account_id", accountID.String()).Msg("failed to invalidate cart cache")
	}

	log.Info().
		Str("account_id", accountID.String()).
		Str("payment_id", payment.ID.String()).
		Int64("total", cart.Total()).
		Msg("cart checked out")

	return payment, nil
}

func (a *App) save(ctx context.Context, cart *models.Cart) error {
	cart.UpdatedAt = a.clock.Now().UTC()

	if err := a.repo.Upsert(ctx, cart); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	if err := a.cache.Set(ctx, cart); err != nil {
		log.Warn().Err(err).Str("account_id", cart.AccountID.String()).Msg("failed to cache cart")
	}
	return nil
}
