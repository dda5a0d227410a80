package license

import "errors"

var (
	// ErrLicenseNotFound indicates no license exists for the tenant/plugin pair.
	ErrLicenseNotFound = errors.New("license not found")
	// ErrInvalidStatus indicates an unknown lifecycle status string.
	ErrInvalidStatus = errors.New("invalid license status")
	// ErrKeyMismatch indicates the presented license key does not match the stored fingerprint.
	ErrKeyMismatch = errors.New("license key mismatch")
	// ErrNotActivatable indicates the license is not in a state that allows activation.
	ErrNotActivatable = errors.New("license cannot be activated")
	// ErrNotDeactivatable indicates the license is not in a state that allows deactivation.
	ErrNotDeactivatable = errors.New("license cannot be deactivated")
	// ErrStoreUnavailable indicates the backing store could not be reached
	// and no cached validation inside the offline window existed.
	ErrStoreUnavailable = errors.New("license store unavailable")
)
