package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/platform/internal/license"
)

type fakeValidator struct {
	validation license.Validation
	err        error
}

func (f *fakeValidator) Validate(ctx context.Context, tenantID, pluginID uuid.UUID) (license.Validation, error) {
	return f.validation, f.err
}

func licenseGuardRequest(t *testing.T, auth *Authenticator, pluginID string) *http.Request {
	t.Helper()

	token, err := auth.IssueToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/plugins/"+pluginID+"/install", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.SetPathValue("pluginID", pluginID)
	return req
}

func TestRequireLicense(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("test-secret", time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	t.Run("usable license passes", func(t *testing.T) {
		t.Parallel()

		validator := &fakeValidator{validation: license.Validation{Valid: true, Status: license.StatusActive}}
		handler := auth.RequireAuth(RequireLicense(validator, next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, licenseGuardRequest(t, auth, uuid.NewString()))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid license is forbidden", func(t *testing.T) {
		t.Parallel()

		validator := &fakeValidator{validation: license.Validation{Valid: false, Status: license.StatusExpired}}
		handler := auth.RequireAuth(RequireLicense(validator, next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, licenseGuardRequest(t, auth, uuid.NewString()))
		require.Equal(t, http.StatusForbidden, rec.Code)

		var body envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.False(t, body.Success)
		require.Equal(t, "license_invalid", body.Error)
	})

	t.Run("store outage is service unavailable", func(t *testing.T) {
		t.Parallel()

		validator := &fakeValidator{err: license.ErrStoreUnavailable}
		handler := auth.RequireAuth(RequireLicense(validator, next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, licenseGuardRequest(t, auth, uuid.NewString()))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("malformed plugin id", func(t *testing.T) {
		t.Parallel()

		validator := &fakeValidator{validation: license.Validation{Valid: true}}
		handler := auth.RequireAuth(RequireLicense(validator, next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, licenseGuardRequest(t, auth, "not-a-uuid"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unexpected validator error", func(t *testing.T) {
		t.Parallel()

		validator := &fakeValidator{err: errors.New("boom")}
		handler := auth.RequireAuth(RequireLicense(validator, next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, licenseGuardRequest(t, auth, uuid.NewString()))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestEnvelopeShape(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"id": "abc"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"success":true,"data":{"id":"abc"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "not_found", "plugin not found")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"success":false,"error":"not_found","message":"plugin not found"}`, rec.Body.String())
}
