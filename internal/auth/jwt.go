// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package auth validates the JWT bearer tokens minted by the external
// identity service and exposes the resulting identity to handlers and
// websocket sessions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vigilhq/vigil/internal/models"
)

// Claims are the JWT claims Vigil reads. Subject carries the user id.
type Claims struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone_number,omitempty"`
	Staff    bool   `json:"is_staff,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated principal attached to requests and
// websocket sessions.
type Identity struct {
	UserID   string
	Username string
	FullName string
	Phone    string
	Staff    bool
}

// ErrInvalidToken covers every validation failure: expiry, bad signature,
// malformed structure, wrong algorithm.
var ErrInvalidToken = errors.New("invalid or expired token")

// JWTManager signs and validates HS256 session tokens.
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager builds a manager. The secret must be at least 32 bytes.
func NewJWTManager(secret string, timeout time.Duration) (*JWTManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), timeout: timeout}, nil
}

// GenerateToken mints a signed token for a user.
func (m *JWTManager) GenerateToken(u *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: u.Username,
		FullName: u.FullName,
		Phone:    u.Phone,
		Staff:    u.Staff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm, and expiry, and returns the
// embedded identity.
func (m *JWTManager) ValidateToken(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		FullName: claims.FullName,
		Phone:    claims.Phone,
		Staff:    claims.Staff,
	}, nil
}
