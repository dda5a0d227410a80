package models

import (
	"time"

	"github.com/google/uuid"
)

// Plugin represents a marketplace plugin listing.
type Plugin struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Vendor    string    `json:"vendor"`
	Version   string    `json:"version"`
	Price     int64     `json:"price"` // minor units
	Currency  string    `json:"currency"`
	Features  []string  `json:"features"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InstallationStatus defines the lifecycle state of a plugin installation.
type InstallationStatus string

const (
	InstallationStatusInstalled   InstallationStatus = "INSTALLED"
	InstallationStatusDisabled    InstallationStatus = "DISABLED"
	InstallationStatusUninstalled InstallationStatus = "UNINSTALLED"
)

// Installation represents a plugin installed into a tenant's store.
type Installation struct {
	ID            uuid.UUID          `json:"id"`
	TenantID      uuid.UUID          `json:"tenant_id"`
	PluginID      uuid.UUID          `json:"plugin_id"`
	Status        InstallationStatus `json:"status"`
	InstalledAt   time.Time          `json:"installed_at"`
	UninstalledAt *time.Time         `json:"uninstalled_at,omitempty"`
}
