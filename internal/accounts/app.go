package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/models"
)

// AccountsRepository defines what the app layer needs from the repository
type AccountsRepository interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*models.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*models.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// App handles accounts business logic
type App struct {
	repo AccountsRepository
}

// NewApp creates a new accounts App
func NewApp(repo AccountsRepository) *App {
	return &App{repo: repo}
}

// CreateAccount creates a new account with validation
func (a *App) CreateAccount(ctx context.Context, req CreateAccountRequest) (*models.Account, error) {
	if err := validateAccountFields(req.Username, req.Email, req.StoreName); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Check if account with same username already exists
	existing, err := a.repo.GetAccountByUsername(ctx, req.Username)
	if err == nil && existing != nil {
		return nil, fmt.Errorf("account with username %s already exists", req.Username)
	}

	// Check if account with same email already exists
	existing, err = a.repo.GetAccountByEmail(ctx, req.Email)
	if err == nil && existing != nil {
		return nil, fmt.Errorf("account with email %s already exists", req.Email)
	}

	account, err := a.repo.CreateAccount(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	log.Info().Str("username", account.Username).Str("email", account.Email).Msg("account created")
	return account, nil
}

// GetAccount retrieves an account by ID
func (a *App) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := a.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (a *App) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	account, err := a.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

// UpdateAccount updates an existing account with validation
func (a *App) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*models.Account, error) {
	if err := validateAccountFields(req.Username, req.Email, req.StoreName); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	existing, err := a.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("account not found: %w", err)
	}

	// Check if username is being changed and if new username already exists
	if req.Username != existing.Username {
		conflict, err := a.repo.GetAccountByUsername(ctx, req.Username)
		if err == nil && conflict != nil {
			return nil, fmt.Errorf("account with username %s already exists", req.Username)
		}
	}

	// Check if email is being changed and if new email already exists
	if req.Email != existing.Email {
		conflict, err := a.repo.GetAccountByEmail(ctx, req.Email)
		if err == nil && conflict != nil {
			return nil, fmt.Errorf("account with email %s already exists", req.Email)
		}
	}

	account, err := a.repo.UpdateAccount(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	log.Info().Str("username", account.Username).Msg("account updated")
	return account, nil
}

// DeleteAccount deletes an account by ID
func (a *App) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	account, err := a.repo.GetAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("account not found: %w", err)
	}

	if err := a.repo.DeleteAccount(ctx, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	log.Info().Str("username", account.Username).Msg("account deleted")
	return nil
}

func validateAccountFields(username, email, storeName string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return fmt.Errorf("email format is invalid")
	}
	if storeName == "" {
		return fmt.Errorf("store name is required")
	}
	return nil
}
