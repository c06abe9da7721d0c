// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLoginDisabled      = errors.New("login disabled for account")
	ErrPasswordTooShort   = errors.New("password too short")
)

// MinUserPassword applies to accounts created by administrators,
// MinOwnerPassword to the CEO created during company registration.
const (
	MinUserPassword  = 12
	MinOwnerPassword = 8
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// NewServiceWithCost is used by tests to keep bcrypt fast.
func NewServiceWithCost(store UserStore, cost int) *Service {
	return &Service{store: store, cost: cost}
}

// HashPassword enforces minLen and returns a bcrypt hash.
func (s *Service) HashPassword(password string, minLen int) (string, error) {
	if len(password) < minLen {
		return "", fmt.Errorf("%w: need at least %d characters", ErrPasswordTooShort, minLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// SignIn authenticates a user. An unknown email and a wrong password yield the
// same error; a valid password on a disabled account yields ErrLoginDisabled.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.CanAuthenticate {
		return store.User{}, ErrLoginDisabled
	}
	return user, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
