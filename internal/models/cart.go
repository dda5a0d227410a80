package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a single plugin entry in a cart.
type CartItem struct {
	ID         uuid.UUID `json:"id"`
	PluginID   uuid.UUID `json:"plugin_id"`
	PluginName string    `json:"plugin_name"`
	Quantity   int       `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"` // minor units
	Currency   string    `json:"currency"`
}

// Cart is the denormalized shopping cart for an account.
type Cart struct {
	AccountID uuid.UUID  `json:"account_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Total returns the cart total in minor units. Mixed-currency carts are
// rejected at add time, so the sum is well defined.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// ItemCount returns the total quantity across all items.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}
