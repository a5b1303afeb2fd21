// Package auth issues and validates the bearer tokens used by the API
// and enforces the operator role model.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ignite/adops-console/internal/config"
)

// Operator roles, from most to least privileged. Admins manage
// everything including automations; managers run reports and alerts
// but cannot touch automations; viewers are read-only.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleViewer  = "viewer"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleManager || role == RoleViewer
}

// Claims is the token payload.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and parses tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager builds a token manager from config. The TTL defaults to
// eight hours when unset.
func NewManager(cfg config.AuthConfig) *Manager {
	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	if ttl == 0 {
		ttl = 480 * time.Minute
	}
	return &Manager{secret: []byte(cfg.JWTSecret), ttl: ttl}
}

// Issue creates a signed token for the user.
func (m *Manager) Issue(user *User) (string, error) {
	if len(m.secret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse validates a token and returns its claims. Expired or
// tampered tokens fail.
func (m *Manager) Parse(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return &claims, nil
}
