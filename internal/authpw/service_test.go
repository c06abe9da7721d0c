package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct {
	users map[string]store.User
	err   error
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if m.err != nil {
		return store.User{}, m.err
	}
	user, ok := m.users[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func newTestService(t *testing.T, users ...store.User) *Service {
	t.Helper()
	m := &mockUserStore{users: map[string]store.User{}}
	for _, u := range users {
		m.users[u.Email] = u
	}
	return NewServiceWithCost(m, bcrypt.MinCost)
}

func hashed(t *testing.T, svc *Service, password string) string {
	t.Helper()
	hash, err := svc.HashPassword(password, MinOwnerPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func TestHashPasswordEnforcesLength(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.HashPassword("short", MinUserPassword); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := svc.HashPassword("long-enough-password", MinUserPassword); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSignIn(t *testing.T) {
	base := newTestService(t)
	hash := hashed(t, base, "correct horse")

	svc := newTestService(t,
		store.User{ID: "u1", Email: "ceo@example.com", PasswordHash: hash, CanAuthenticate: true},
		store.User{ID: "u2", Email: "blocked@example.com", PasswordHash: hash, CanAuthenticate: false},
	)
	ctx := context.Background()

	user, err := svc.SignIn(ctx, "  CEO@example.com ", "correct horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("expected u1, got %s", user.ID)
	}

	if _, err := svc.SignIn(ctx, "ceo@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "blocked@example.com", "correct horse"); !errors.Is(err, ErrLoginDisabled) {
		t.Fatalf("expected ErrLoginDisabled, got %v", err)
	}
}

func TestSignInPropagatesStoreFailure(t *testing.T) {
	svc := NewServiceWithCost(&mockUserStore{err: errors.New("db down")}, bcrypt.MinCost)
	_, err := svc.SignIn(context.Background(), "a@b.c", "password")
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
