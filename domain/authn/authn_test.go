package authn

import (
	"testing"
	"time"
)

func TestExtractBearerAPIKey(t *testing.T) {
	raw, ok := ExtractBearerAPIKey("Bearer gw_abc123")
	if !ok || raw != "gw_abc123" {
		t.Fatalf("got %q %v", raw, ok)
	}
	if _, ok := ExtractBearerAPIKey("Bearer eyJhbGciOi..."); ok {
		t.Fatal("JWT-shaped token must not match the API-key path")
	}
	if _, ok := ExtractBearerAPIKey("Basic xyz"); ok {
		t.Fatal("non-bearer auth must not match")
	}
}

func TestHashKeyDeterministic(t *testing.T) {
	if HashKey("gw_abc") != HashKey("gw_abc") {
		t.Fatal("hash must be deterministic")
	}
	if HashKey("gw_abc") == HashKey("gw_abd") {
		t.Fatal("different keys must hash differently")
	}
}

func TestValidateKeyRevoked(t *testing.T) {
	ok, reason := ValidateKey(ApiKey{Status: KeyRevoked}, time.Now())
	if ok || reason == "" {
		t.Fatal("revoked key must be rejected")
	}
}

func TestValidateKeyExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	ok, _ := ValidateKey(ApiKey{Status: KeyActive, ExpiresAt: &past}, time.Now())
	if ok {
		t.Fatal("expired key must be rejected")
	}
}

func TestValidateKeyActive(t *testing.T) {
	future := time.Now().Add(time.Hour)
	ok, _ := ValidateKey(ApiKey{Status: KeyActive, ExpiresAt: &future}, time.Now())
	if !ok {
		t.Fatal("active unexpired key must pass")
	}
}

func TestScopeIDForKey(t *testing.T) {
	if ScopeIDForKey(ApiKey{TeamID: "t1"}) != "t1" {
		t.Fatal("team scope expected")
	}
	if ScopeIDForKey(ApiKey{OwnerUserID: "u1"}) != "personal:u1" {
		t.Fatal("personal scope expected")
	}
}

func TestHasEndpointAccess(t *testing.T) {
	if !HasEndpointAccess(nil, "anything") {
		t.Fatal("empty allowlist means unrestricted")
	}
	if !HasEndpointAccess([]string{"chat"}, "chat") {
		t.Fatal("exact match should pass")
	}
	if HasEndpointAccess([]string{"chat"}, "embeddings") {
		t.Fatal("non-listed endpoint should be denied")
	}
}
