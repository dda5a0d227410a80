package license

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Expiry and grace windows are derived at read time, never stored.
const (
	// ValidityPeriod is how long a license is good for after purchase.
	ValidityPeriod = 365 * 24 * time.Hour
	// GracePeriod is the window after expiry during which the license is
	// still treated as usable.
	GracePeriod = 7 * 24 * time.Hour
)

// Status defines the lifecycle state of a plugin license.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusGrace   Status = "GRACE"   // derived: past expiry, inside grace
	StatusExpired Status = "EXPIRED" // derived: past expiry and grace
	StatusRevoked Status = "REVOKED"
)

// ParseStatus validates and converts a raw string status.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// IsValid reports whether the status is part of the license lifecycle.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusGrace, StatusExpired, StatusRevoked:
		return true
	default:
		return false
	}
}

// Usable reports whether a license in this status grants plugin access.
func (s Status) Usable() bool {
	return s == StatusActive || s == StatusGrace
}

func (s Status) String() string {
	return string(s)
}

// PluginLicense represents a purchased plugin entitlement.
// GRACE and EXPIRED are never persisted; the stored status is one of
// PENDING, ACTIVE, REVOKED and expiry is computed from PurchasedAt.
type PluginLicense struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	PluginID      uuid.UUID  `json:"plugin_id"`
	KeyHash       string     `json:"-"`
	Status        Status     `json:"status"`
	PurchasedAt   time.Time  `json:"purchased_at"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	Amount        int64      `json:"amount"` // minor units
	Currency      string     `json:"currency"`
	Features      []string   `json:"features"`
}

// ExpiresAt returns the derived expiry: one year after purchase.
func (l *PluginLicense) ExpiresAt() time.Time {
	return l.PurchasedAt.Add(ValidityPeriod)
}

// GraceUntil returns the end of the post-expiry grace window.
func (l *PluginLicense) GraceUntil() time.Time {
	return l.ExpiresAt().Add(GracePeriod)
}

// EffectiveStatus derives the status visible to callers at the given time.
func (l *PluginLicense) EffectiveStatus(now time.Time) Status {
	switch l.Status {
	case StatusRevoked, StatusPending:
		return l.Status
	}

	expiry := l.ExpiresAt()
	switch {
	case now.Before(expiry):
		return StatusActive
	case now.Before(l.GraceUntil()):
		return StatusGrace
	default:
		return StatusExpired
	}
}

// Validation is the answer to "is plugin X usable, and with which features".
type Validation struct {
	Valid      bool       `json:"valid"`
	Status     Status     `json:"status"`
	ExpiresAt  time.Time  `json:"expires_at"`
	GraceUntil *time.Time `json:"grace_until,omitempty"`
	Features   []string   `json:"features"`
	Stale      bool       `json:"stale,omitempty"` // served from the offline cache
}

// HasFeature reports whether the validation grants the named feature.
// A feature list containing "*" grants everything.
func (v Validation) HasFeature(feature string) bool {
	if !v.Valid {
		return false
	}
	for _, f := range v.Features {
		if f == "*" || f == feature {
			return true
		}
	}
	return false
}
