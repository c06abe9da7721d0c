package auth

import "testing"

func TestNewSessionTokenIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := NewSessionToken()
		if err != nil {
			t.Fatalf("NewSessionToken: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
		if !ValidTokenFormat(token) {
			t.Fatalf("generated token rejected: %q", token)
		}
	}
}

func TestValidTokenFormat(t *testing.T) {
	for _, token := range []string{"", "short", "has space in it", "!!!!"} {
		if ValidTokenFormat(token) {
			t.Fatalf("expected %q to be rejected", token)
		}
	}
}
