package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), DefaultTTL)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func testSnapshot(userID string) Snapshot {
	spec := "construction"
	return Snapshot{
		UserID: userID,
		User: UserData{
			ID:              userID,
			Email:           userID + "@example.com",
			FullName:        "Test User",
			Role:            "expert",
			IsActive:        true,
			CanAuthenticate: true,
			Specialization:  &spec,
			Settings:        map[string]any{"theme": "dark"},
		},
		Company: &CompanyData{ID: "company-1", Name: "Acme", IsActive: true},
	}
}

type countingObserver map[string]int

func (c countingObserver) SessionEvent(event string) { c[event]++ }

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)

	store, err := NewRedisStore("redis://"+s.Addr(), 0)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if store.TTL() != DefaultTTL {
		t.Fatalf("expected default ttl, got %s", store.TTL())
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	if _, err := NewRedisStore("redis://127.0.0.1:1", DefaultTTL); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestCreateAndResolve(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	token, err := store.Create(ctx, testSnapshot("user-1"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	key := KeyPrefix + token
	if !s.Exists(key) {
		t.Fatalf("expected key %s to exist", key)
	}
	if ttl := s.TTL(key); ttl != 604800*time.Second {
		t.Fatalf("expected ttl 604800s, got %s", ttl)
	}

	raw, err := s.Get(key)
	if err != nil {
		t.Fatalf("read raw value: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	for _, field := range []string{"user_id", "user", "company"} {
		if _, ok := payload[field]; !ok {
			t.Fatalf("payload missing %q: %s", field, raw)
		}
	}

	snapshot, err := store.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if snapshot.User.ID != "user-1" || snapshot.Company.Name != "Acme" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.User.Settings["theme"] != "dark" {
		t.Fatalf("settings lost: %+v", snapshot.User.Settings)
	}
}

func TestCreateRejectsInvalidSnapshot(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	bad := testSnapshot("user-1")
	bad.User.Role = "viewer"
	if _, err := store.Create(context.Background(), bad); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestResolveExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	token, err := store.Create(ctx, testSnapshot("user-2"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s.FastForward(DefaultTTL + time.Second)

	if _, err := store.Resolve(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestResolveUnknownAndMalformedToken(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	unknown := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	if _, err := store.Resolve(ctx, unknown); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.Resolve(ctx, "../../etc"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for malformed token, got %v", err)
	}
}

func TestResolveEvictsCorruptPayload(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	observer := countingObserver{}
	store.SetObserver(observer)

	ctx := context.Background()
	token, err := store.Create(ctx, testSnapshot("user-3"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Set(KeyPrefix+token, "{not json"); err != nil {
		t.Fatalf("corrupt value: %v", err)
	}

	if _, err := store.Resolve(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if s.Exists(KeyPrefix + token) {
		t.Fatal("corrupt session should have been deleted")
	}
	if observer["evicted"] != 1 {
		t.Fatalf("expected one eviction event, got %v", observer)
	}
}

func TestResolveEvictsStructurallyInvalidPayload(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	token, err := store.Create(ctx, testSnapshot("user-4"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Set(KeyPrefix+token, `{"user_id":"user-4","user":{"id":"other"}}`); err != nil {
		t.Fatalf("overwrite value: %v", err)
	}

	if _, err := store.Resolve(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if s.Exists(KeyPrefix + token) {
		t.Fatal("invalid session should have been deleted")
	}
}

func TestRevoke(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	token, err := store.Create(ctx, testSnapshot("user-5"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := store.Resolve(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}
	if err := store.Revoke(ctx, token); err != nil {
		t.Fatalf("second Revoke should be a no-op, got %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	first, err := store.Create(ctx, testSnapshot("user-1"))
	if err != nil {
		t.Fatalf("Create 1 failed: %v", err)
	}
	second, err := store.Create(ctx, testSnapshot("user-2"))
	if err != nil {
		t.Fatalf("Create 2 failed: %v", err)
	}

	if err := store.Revoke(ctx, first); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	snapshot, err := store.Resolve(ctx, second)
	if err != nil {
		t.Fatalf("Resolve second failed: %v", err)
	}
	if snapshot.UserID != "user-2" {
		t.Fatalf("expected user-2, got %s", snapshot.UserID)
	}
}
