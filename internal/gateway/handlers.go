package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/accounts"
	"github.com/merchantd/platform/internal/cart"
	"github.com/merchantd/platform/internal/license"
	"github.com/merchantd/platform/internal/models"
	"github.com/merchantd/platform/internal/payments"
	"github.com/merchantd/platform/internal/plugins"
)

// Handlers exposes the platform services over REST.
type Handlers struct {
	accounts *accounts.App
	plugins  *plugins.App
	carts    *cart.App
	licenses *license.App
	payments PaymentsReader
	auth     *Authenticator
}

// PaymentsReader is the read surface the gateway needs from the payments service.
type PaymentsReader interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListCommissions(ctx context.Context, paymentID uuid.UUID) ([]models.Commission, error)
}

func NewHandlers(accountsApp *accounts.App, pluginsApp *plugins.App, cartApp *cart.App, licenseApp *license.App, payments PaymentsReader, auth *Authenticator) *Handlers {
	return &Handlers{
		accounts: accountsApp,
		plugins:  pluginsApp,
		carts:    cartApp,
		licenses: licenseApp,
		payments: payments,
		auth:     auth,
	}
}

// Accounts

type createAccountResponse struct {
	Account *models.Account `json:"account"`
	Token   string          `json:"token"`
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accounts.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Each merchant account is its own tenant.
	token, err := h.auth.IssueToken(account.ID, account.ID)
	if err != nil {
		log.Error().Err(err).Str("account_id", account.ID.String()).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "internal", "failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, createAccountResponse{Account: account, Token: token})
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "account not found")
			return
		}
		h.internalError(w, err, "failed to get account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	var req accounts.UpdateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	account, err := h.accounts.UpdateAccount(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "account not found")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), id); err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "account not found")
			return
		}
		h.internalError(w, err, "failed to delete account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Plugins

func (h *Handlers) CreatePlugin(w http.ResponseWriter, r *http.Request) {
	var req plugins.CreatePluginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	plugin, err := h.plugins.CreatePlugin(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, plugin)
}

func (h *Handlers) GetPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "pluginID")
	if !ok {
		return
	}

	plugin, err := h.plugins.GetPlugin(r.Context(), id)
	if err != nil {
		if errors.Is(err, plugins.ErrPluginNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plugin not found")
			return
		}
		h.internalError(w, err, "failed to get plugin")
		return
	}
	writeJSON(w, http.StatusOK, plugin)
}

func (h *Handlers) ListCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.plugins.ListCatalog(r.Context())
	if err != nil {
		h.internalError(w, err, "failed to list catalog")
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (h *Handlers) UpdatePlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "pluginID")
	if !ok {
		return
	}

	var req plugins.UpdatePluginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	plugin, err := h.plugins.UpdatePlugin(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, plugins.ErrPluginNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plugin not found")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plugin)
}

func (h *Handlers) InstallPlugin(w http.ResponseWriter, r *http.Request) {
	identity, pluginID, ok := identityAndPlugin(w, r)
	if !ok {
		return
	}

	installation, err := h.plugins.Install(r.Context(), identity.TenantID, pluginID)
	if err != nil {
		switch {
		case errors.Is(err, plugins.ErrPluginNotFound):
			writeError(w, http.StatusNotFound, "not_found", "plugin not found")
		case errors.Is(err, plugins.ErrLicenseRequired):
			writeError(w, http.StatusForbidden, "license_invalid", "usable license required to install")
		case errors.Is(err, plugins.ErrAlreadyInstalled):
			writeError(w, http.StatusConflict, "conflict", "plugin already installed")
		default:
			h.internalError(w, err, "failed to install plugin")
		}
		return
	}
	writeJSON(w, http.StatusCreated, installation)
}

func (h *Handlers) UninstallPlugin(w http.ResponseWriter, r *http.Request) {
	identity, pluginID, ok := identityAndPlugin(w, r)
	if !ok {
		return
	}

	if err := h.plugins.Uninstall(r.Context(), identity.TenantID, pluginID); err != nil {
		if errors.Is(err, plugins.ErrInstallationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plugin is not installed")
			return
		}
		h.internalError(w, err, "failed to uninstall plugin")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"uninstalled": true})
}

// Cart

type cartItemRequest struct {
	PluginID uuid.UUID `json:"plugin_id"`
	Quantity int       `json:"quantity"`
}

type checkoutRequest struct {
	Provider string `json:"provider"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	c, err := h.carts.GetCart(r.Context(), identity.AccountID)
	if err != nil {
		h.internalError(w, err, "failed to get cart")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	c, err := h.carts.AddItem(r.Context(), identity.AccountID, req.PluginID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrPluginUnavailable):
			writeError(w, http.StatusNotFound, "not_found", "plugin not available")
		case errors.Is(err, cart.ErrCurrencyMismatch):
			writeError(w, http.StatusConflict, "currency_mismatch", "cart items must share one currency")
		default:
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	identity, pluginID, ok := identityAndPlugin(w, r)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	c, err := h.carts.UpdateItemQuantity(r.Context(), identity.AccountID, pluginID, req.Quantity)
	if err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "item not in cart")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	identity, pluginID, ok := identityAndPlugin(w, r)
	if !ok {
		return
	}

	c, err := h.carts.RemoveItem(r.Context(), identity.AccountID, pluginID)
	if err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "item not in cart")
			return
		}
		h.internalError(w, err, "failed to remove cart item")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	if err := h.carts.Clear(r.Context(), identity.AccountID); err != nil {
		h.internalError(w, err, "failed to clear cart")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	payment, err := h.carts.Checkout(r.Context(), identity.AccountID, req.Provider)
	if err != nil {
		if errors.Is(err, cart.ErrEmptyCart) {
			writeError(w, http.StatusConflict, "empty_cart", "cannot check out an empty cart")
			return
		}
		if errors.Is(err, payments.ErrProviderNotEnabled) {
			writeError(w, http.StatusBadRequest, "provider_not_enabled", "payment provider is not enabled")
			return
		}
		h.internalError(w, err, "checkout failed")
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// Licenses

type createLicenseRequest struct {
	PluginID uuid.UUID `json:"plugin_id"`
	Key      string    `json:"key"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
	Features []string  `json:"features"`
}

type activateLicenseRequest struct {
	Key string `json:"key"`
}

func (h *Handlers) CreateLicense(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req createLicenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	lic, err := h.licenses.CreateLicense(r.Context(), license.CreateLicenseRequest{
		TenantID: identity.TenantID,
		PluginID: req.PluginID,
		Key:      req.Key,
		Amount:   req.Amount,
		Currency: req.Currency,
		Features: req.Features,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, lic)
}

func (h *Handlers) ActivateLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "licenseID")
	if !ok {
		return
	}

	var req activateLicenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	lic, err := h.licenses.Activate(r.Context(), id, req.Key)
	if err != nil {
		switch {
		case errors.Is(err, license.ErrLicenseNotFound):
			writeError(w, http.StatusNotFound, "not_found", "license not found")
		case errors.Is(err, license.ErrKeyMismatch):
			writeError(w, http.StatusForbidden, "key_mismatch", "license key does not match")
		case errors.Is(err, license.ErrNotActivatable):
			writeError(w, http.StatusConflict, "conflict", "license is not pending activation")
		default:
			h.internalError(w, err, "failed to activate license")
		}
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

func (h *Handlers) DeactivateLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "licenseID")
	if !ok {
		return
	}

	lic, err := h.licenses.Deactivate(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, license.ErrLicenseNotFound):
			writeError(w, http.StatusNotFound, "not_found", "license not found")
		case errors.Is(err, license.ErrNotDeactivatable):
			writeError(w, http.StatusConflict, "conflict", "license is not active")
		default:
			h.internalError(w, err, "failed to deactivate license")
		}
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

func (h *Handlers) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	identity, pluginID, ok := identityAndPlugin(w, r)
	if !ok {
		return
	}

	validation, err := h.licenses.Validate(r.Context(), identity.TenantID, pluginID)
	if err != nil {
		if errors.Is(err, license.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "license_check_unavailable", "license store unreachable and no cached validation")
			return
		}
		h.internalError(w, err, "license validation failed")
		return
	}
	writeJSON(w, http.StatusOK, validation)
}

// Payments

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "paymentID")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "payment not found")
			return
		}
		h.internalError(w, err, "failed to get payment")
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handlers) ListCommissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "paymentID")
	if !ok {
		return
	}

	commissions, err := h.payments.ListCommissions(r.Context(), id)
	if err != nil {
		h.internalError(w, err, "failed to list commissions")
		return
	}
	writeJSON(w, http.StatusOK, commissions)
}

// Helpers

func (h *Handlers) internalError(w http.ResponseWriter, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "internal", msg)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func identityAndPlugin(w http.ResponseWriter, r *http.Request) (Identity, uuid.UUID, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return Identity{}, uuid.Nil, false
	}
	pluginID, ok := pathUUID(w, r, "pluginID")
	if !ok {
		return Identity{}, uuid.Nil, false
	}
	return identity, pluginID, true
}
