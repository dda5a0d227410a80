package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus defines the status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment represents a completed or in-flight purchase of a plugin.
type Payment struct {
	ID        uuid.UUID     `json:"id"`
	TenantID  uuid.UUID     `json:"tenant_id"`
	PluginID  uuid.UUID     `json:"plugin_id"`
	Amount    int64         `json:"amount"` // minor units
	Currency  string        `json:"currency"`
	Provider  string        `json:"provider"`
	Status    PaymentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// CommissionRole identifies who earns a commission share.
type CommissionRole string

const (
	CommissionRoleAffiliate CommissionRole = "AFFILIATE"
	CommissionRoleAgent     CommissionRole = "AGENT"
	CommissionRolePlatform  CommissionRole = "PLATFORM"
)

// Commission is one share of a payment owed to an affiliate, agent, or the
// platform itself.
type Commission struct {
	ID          uuid.UUID      `json:"id"`
	PaymentID   uuid.UUID      `json:"payment_id"`
	Beneficiary *uuid.UUID     `json:"beneficiary,omitempty"` // nil for platform share
	Role        CommissionRole `json:"role"`
	Amount      int64          `json:"amount"` // minor units
	Currency    string         `json:"currency"`
	CreatedAt   time.Time      `json:"created_at"`
}
