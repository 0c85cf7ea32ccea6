// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "auth.identity"

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// ContextWithIdentity attaches an identity. Used by middleware and tests.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// TokenFromRequest extracts the bearer token from the Authorization header
// or, for websocket upgrades where browsers cannot set headers, from the
// token query parameter.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// ErrorWriter renders a rejected request. The HTTP layer injects its
// standard error envelope so auth failures look like every other API
// error; a nil writer falls back to plain-text http.Error.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

func writeAuthError(onError ErrorWriter, w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if onError != nil {
		onError(w, r, status, code, message)
		return
	}
	http.Error(w, message, status)
}

// Middleware returns a handler wrapper that validates the request's token
// and attaches the identity. Requests without a valid token are rejected
// with 401.
func (m *JWTManager) Middleware(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeAuthError(onError, w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials")
				return
			}
			id, err := m.ValidateToken(token)
			if err != nil {
				writeAuthError(onError, w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// RequireStaff returns a handler wrapper gating elevated identities. Must
// run inside Middleware.
func RequireStaff(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || !id.Staff {
				writeAuthError(onError, w, r, http.StatusForbidden, "FORBIDDEN", "staff access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
