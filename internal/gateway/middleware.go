package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/license"
)

// LicenseValidator checks whether a tenant holds a usable license for a plugin.
type LicenseValidator interface {
	Validate(ctx context.Context, tenantID, pluginID uuid.UUID) (license.Validation, error)
}

// RequireLicense gates a plugin-scoped route on a usable license for the
// caller's tenant. The plugin ID is read from the {pluginID} path value.
func RequireLicense(validator LicenseValidator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}

		pluginID, err := uuid.Parse(r.PathValue("pluginID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid plugin id")
			return
		}

		validation, err := validator.Validate(r.Context(), identity.TenantID, pluginID)
		if err != nil {
			if errors.Is(err, license.ErrStoreUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "license_check_unavailable", "license store unreachable and no cached validation")
				return
			}
			log.Error().Err(err).
				Str("tenant_id", identity.TenantID.String()).
				Str("plugin_id", pluginID.String()).
				Msg("license validation failed")
			writeError(w, http.StatusInternalServerError, "internal", "license validation failed")
			return
		}

		if !validation.Valid {
			writeError(w, http.StatusForbidden, "license_invalid", "no usable license for this plugin")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs every request with method, path and status.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Msg("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
