package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignite/adops-console/internal/pkg/logger"
)

// User is an operator account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrBadCredentials is returned for any authentication failure so
// callers cannot distinguish a missing user from a wrong password.
var ErrBadCredentials = fmt.Errorf("invalid username or password")

// UserStore persists operator accounts.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, COALESCE(email, ''), password_hash, role, is_active, created_at`

// Create inserts a new account with a hashed password.
func (s *UserStore) Create(ctx context.Context, username, email, password, role string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING created_at
	`, u.ID, u.Username, sql.NullString{String: u.Email, Valid: u.Email != ""},
		u.PasswordHash, u.Role).Scan(&u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByUsername reads one account; nil when absent.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// GetByID reads one account; nil when absent.
func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *UserStore) scanOne(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Authenticate verifies a username/password pair against an active
// account.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// EnsureAdmin creates a bootstrap admin account when the users table
// is empty, so a fresh deployment is reachable.
func (s *UserStore) EnsureAdmin(ctx context.Context, username, password string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if username == "" || password == "" {
		logger.Warn("users table is empty and no bootstrap admin is configured")
		return nil
	}
	_, err := s.Create(ctx, username, "", password, RoleAdmin)
	if err != nil {
		return err
	}
	logger.Info("bootstrap admin account created", "username", username)
	return nil
}
