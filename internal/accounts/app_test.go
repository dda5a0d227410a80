package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/platform/internal/models"
)

type fakeAccountsRepo struct {
	accounts map[uuid.UUID]*models.Account
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{accounts: make(map[uuid.UUID]*models.Account)}
}

func (r *fakeAccountsRepo) CreateAccount(ctx context.Context, req CreateAccountRequest) (*models.Account, error) {
	now := time.Now().UTC()
	account := &models.Account{
		ID:        uuid.New(),
		Username:  req.Username,
		Email:     req.Email,
		StoreName: req.StoreName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.accounts[account.ID] = account
	return account, nil
}

func (r *fakeAccountsRepo) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if a, ok := r.accounts[id]; ok {
		return a, nil
	}
	return nil, ErrAccountNotFound
}

func (r *fakeAccountsRepo) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	for _, a := range r.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *fakeAccountsRepo) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *fakeAccountsRepo) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*models.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a.Username = req.Username
	a.Email = req.Email
	a.StoreName = req.StoreName
	a.UpdatedAt = time.Now().UTC()
	return a, nil
}

func (r *fakeAccountsRepo) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(r.accounts, id)
	return nil
}

func TestCreateAccount(t *testing.T) {
	t.Parallel()

	app := NewApp(newFakeAccountsRepo())

	account, err := app.CreateAccount(context.Background(), CreateAccountRequest{
		Username:  "acme",
		Email:     "owner@acme.dev",
		StoreName: "Acme Store",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, account.ID)
	require.Equal(t, "acme", account.Username)

	// Duplicate username is rejected.
	_, err = app.CreateAccount(context.Background(), CreateAccountRequest{
		Username:  "acme",
		Email:     "other@acme.dev",
		StoreName: "Other",
	})
	require.Error(t, err)

	// Duplicate email is rejected.
	_, err = app.CreateAccount(context.Background(), CreateAccountRequest{
		Username:  "acme2",
		Email:     "owner@acme.dev",
		StoreName: "Other",
	})
	require.Error(t, err)
}

func TestCreateAccountValidation(t *testing.T) {
	t.Parallel()

	app := NewApp(newFakeAccountsRepo())

	tests := []struct {
		name string
		req  CreateAccountRequest
	}{
		{name: "missing username", req: CreateAccountRequest{Email: "a@b.c", StoreName: "S"}},
		{name: "missing email", req: CreateAccountRequest{Username: "u", StoreName: "S"}},
		{name: "invalid email", req: CreateAccountRequest{Username: "u", Email: "not-an-email", StoreName: "S"}},
		{name: "missing store name", req: CreateAccountRequest{Username: "u", Email: "a@b.c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := app.CreateAccount(context.Background(), tt.req)
			require.Error(t, err)
		})
	}
}

func TestUpdateAccount(t *testing.T) {
	t.Parallel()

	repo := newFakeAccountsRepo()
	app := NewApp(repo)

	first, err := app.CreateAccount(context.Background(), CreateAccountRequest{
		Username: "first", Email: "first@x.dev", StoreName: "First",
	})
	require.NoError(t, err)

	second, err := app.CreateAccount(context.Background(), CreateAccountRequest{
		Username: "second", Email: "second@x.dev", StoreName: "Second",
	})
	require.NoError(t, err)

	// Renaming onto a taken username conflicts.
	_, err = app.UpdateAccount(context.Background(), second.ID, UpdateAccountRequest{
		Username: "first", Email: "second@x.dev", StoreName: "Second",
	})
	require.Error(t, err)

	// Keeping your own username is fine.
	updated, err := app.UpdateAccount(context.Background(), first.ID, UpdateAccountRequest{
		Username: "first", Email: "first@x.dev", StoreName: "Renamed Store",
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed Store", updated.StoreName)
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()

	app := NewApp(newFakeAccountsRepo())

	account, err := app.CreateAccount(context.Background(), CreateAccountRequest{
		Username: "gone", Email: "gone@x.dev", StoreName: "Gone",
	})
	require.NoError(t, err)

	require.NoError(t, app.DeleteAccount(context.Background(), account.ID))

	_, err = app.GetAccount(context.Background(), account.ID)
	require.ErrorIs(t, err, ErrAccountNotFound)

	require.Error(t, app.DeleteAccount(context.Background(), account.ID))
}
