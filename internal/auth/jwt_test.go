// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vigilhq/vigil/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}
	return m
}

func TestNewJWTManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTManager("short", time.Hour); err == nil {
		t.Error("short secret accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := testManager(t)
	u := &models.User{
		ID:       "user-1",
		Username: "casey",
		FullName: "Casey Tran",
		Phone:    "+15550188",
		Staff:    true,
	}

	token, err := m.GenerateToken(u)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	id, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if id.UserID != u.ID || id.Username != u.Username || !id.Staff {
		t.Errorf("identity = %+v, want claims from %+v", id, u)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	m := testManager(t)
	other, err := NewJWTManager("ffffffffffffffffffffffffffffffff", time.Hour)
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}

	token, err := other.GenerateToken(&models.User{ID: "u", Username: "u"})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret accepted")
	}
	if _, err := m.ValidateToken("not-a-jwt"); err == nil {
		t.Error("malformed token accepted")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := testManager(t)
	m.timeout = -time.Minute

	token, err := m.GenerateToken(&models.User{ID: "u", Username: "u"})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestMiddleware(t *testing.T) {
	m := testManager(t)
	token, err := m.GenerateToken(&models.User{ID: "user-1", Username: "casey"})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var captured *Identity
	handler := m.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query parameter", "", token, http.StatusOK},
		{"missing token", "", "", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured = nil
			url := "/protected"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (captured == nil || captured.UserID != "user-1") {
				t.Errorf("identity not attached: %+v", captured)
			}
		})
	}
}

func TestRequireStaff(t *testing.T) {
	handler := RequireStaff(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/ops", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), &Identity{UserID: "u", Staff: false}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-staff status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ops", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), &Identity{UserID: "u", Staff: true}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("staff status = %d, want 200", rec.Code)
	}
}

func TestRejectionUsesInjectedErrorWriter(t *testing.T) {
	m := testManager(t)

	var gotStatus int
	var gotCode string
	writer := func(w http.ResponseWriter, r *http.Request, status int, code, message string) {
		gotStatus, gotCode = status, code
		w.WriteHeader(status)
	}

	handler := m.Middleware(writer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if gotStatus != http.StatusUnauthorized || gotCode != "UNAUTHORIZED" {
		t.Errorf("middleware rejection = (%d, %q), want (401, UNAUTHORIZED)", gotStatus, gotCode)
	}

	handler = RequireStaff(writer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/ops", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), &Identity{UserID: "u", Staff: false}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if gotStatus != http.StatusForbidden || gotCode != "FORBIDDEN" {
		t.Errorf("staff rejection = (%d, %q), want (403, FORBIDDEN)", gotStatus, gotCode)
	}
}
