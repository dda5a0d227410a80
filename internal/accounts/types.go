package accounts

// CreateAccountRequest represents the data needed to create a new account
type CreateAccountRequest struct {
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	StoreName string `json:"store_name" validate:"required"`
}

// UpdateAccountRequest represents the data that can be updated for an account
type UpdateAccountRequest struct {
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	StoreName string `json:"store_name" validate:"required"`
}
