// Package session stores authenticated user snapshots in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/auth"
	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/redis/go-redis/v9"
)

const (
	KeyPrefix  = "session:"
	DefaultTTL = 7 * 24 * time.Hour
)

var ErrSessionNotFound = errors.New("session not found")

// UserData is the user half of a snapshot. It is copied at login and is not
// refreshed when the user row changes.
type UserData struct {
	ID              string         `json:"id"`
	Email           string         `json:"email"`
	FullName        string         `json:"full_name"`
	Role            string         `json:"role"`
	IsActive        bool           `json:"is_active"`
	CanAuthenticate bool           `json:"can_authenticate"`
	Specialization  *string        `json:"specialization"`
	Settings        map[string]any `json:"settings"`
}

type CompanyData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Snapshot is the JSON value stored under session:{token}.
type Snapshot struct {
	UserID  string       `json:"user_id"`
	User    UserData     `json:"user"`
	Company *CompanyData `json:"company"`
}

func (s Snapshot) validate() error {
	if s.UserID == "" || s.User.ID != s.UserID {
		return errors.New("user id mismatch")
	}
	if _, ok := rbac.Parse(s.User.Role); !ok {
		return fmt.Errorf("unknown role %q", s.User.Role)
	}
	if s.Company == nil || s.Company.ID == "" {
		return errors.New("missing company")
	}
	return nil
}

// Observer receives lifecycle events; metrics.Metrics satisfies it.
type Observer interface {
	SessionEvent(event string)
}

type RedisStore struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	observer Observer
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: KeyPrefix, ttl: ttl}
}

func (s *RedisStore) SetObserver(o Observer) {
	s.observer = o
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) emit(event string) {
	if s.observer != nil {
		s.observer.SessionEvent(event)
	}
}

// Create stores snapshot under a fresh token and returns the token.
func (s *RedisStore) Create(ctx context.Context, snapshot Snapshot) (string, error) {
	if err := snapshot.validate(); err != nil {
		return "", fmt.Errorf("invalid snapshot: %w", err)
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	s.emit("created")
	return token, nil
}

// Resolve returns the snapshot for token. Payloads that fail to decode are
// deleted and reported as ErrSessionNotFound.
func (s *RedisStore) Resolve(ctx context.Context, token string) (Snapshot, error) {
	if !auth.ValidTokenFormat(token) {
		return Snapshot{}, ErrSessionNotFound
	}

	key := s.key(token)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrSessionNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("lookup session: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err == nil {
		err = snapshot.validate()
		if err == nil {
			s.emit("resolved")
			return snapshot, nil
		}
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return Snapshot{}, fmt.Errorf("evict corrupt session: %w", err)
	}
	s.emit("evicted")
	return Snapshot{}, ErrSessionNotFound
}

// Revoke deletes the session; revoking an unknown token is not an error.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.emit("revoked")
	return nil
}

func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
