// Package httpapi serves the campaign API: starting campaigns, synchronous
// analysis and calendar runs, approvals and progress streams.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/auth"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// caller returns the authenticated caller after checking scope. It writes
// the error response itself and returns nil on failure.
func caller(w http.ResponseWriter, r *http.Request, scope string) *auth.UserContext {
	u, err := auth.GetUserContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil
	}
	if err := auth.RequireScopes(r.Context(), scope); err != nil {
		if errors.Is(err, auth.ErrMissingScope) {
			writeError(w, http.StatusForbidden, err.Error())
		} else {
			writeError(w, http.StatusUnauthorized, err.Error())
		}
		return nil
	}
	return u
}

// tenantFor resolves the tenant a request acts on: the requested one, or the
// caller's own when none was given. ok is false when the caller may not act
// for the requested tenant.
func tenantFor(u *auth.UserContext, requested string) (string, bool) {
	if requested == "" {
		return u.Tenant, u.Tenant != ""
	}
	return requested, u.CanAccessTenant(requested)
}
