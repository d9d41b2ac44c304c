// Package authn implements C9's two caller-authentication paths. Pure
// value types and validation; I/O (hash lookup, session token
// verification) is performed by the orchestrating app service through
// ports. Grounded in the teacher's domain/key package — SHA-256 hash
// lookup by literal "gw_" prefix replaces the teacher's bcrypt + 12-char
// prefix scheme, since spec.md §4.9 requires an exact-hash lookup.
package authn

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// apiKeyPrefix is the literal prefix every raw API key carries, overridden
// at startup from config.AuthConfig.KeyPrefix via Configure.
var apiKeyPrefix = "gw_"

// Configure sets apiKeyPrefix from config.AuthConfig.KeyPrefix. An empty
// value leaves the default in place.
func Configure(keyPrefix string) {
	if keyPrefix != "" {
		apiKeyPrefix = keyPrefix
	}
}

// CallerType distinguishes the two authentication paths.
type CallerType string

const (
	CallerAPIKey  CallerType = "apiKey"
	CallerSession CallerType = "session"
)

// KeyStatus is an API key's lifecycle state.
type KeyStatus string

const (
	KeyActive  KeyStatus = "active"
	KeyRevoked KeyStatus = "revoked"
	KeyExpired KeyStatus = "expired"
)

// ApiKey is the opaque repository record described in spec.md §3.
type ApiKey struct {
	ID              string
	KeyHash         string // sha-256 hex
	Status          KeyStatus
	TeamID          string
	OwnerUserID     string
	CreatedBy       string
	PlanID          string
	ExpiresAt       *time.Time
	AllowedEndpoints []string
	AllowedIPs      []string
	RateLimit       int64
	DailyQuota      int64
	MonthlyQuota    int64
	MaxRequestSize  int64
}

// AuthResult is produced by C9 and is read-only thereafter except for
// C10's one scope-promotion mutation.
type AuthResult struct {
	CallerType       CallerType
	CallerID         string
	ScopeID          string
	ApiKeyID         string
	PlanID           string
	AllowedEndpoints []string
	AllowedIPs       []string
	RateLimit        int64
	DailyQuota       int64
	MonthlyQuota     int64
	MaxRequestSize   int64
}

// ExtractBearerAPIKey reports whether the Authorization header carries a
// gateway API key ("Bearer gw_<raw>") and returns the raw key.
func ExtractBearerAPIKey(authorization string) (rawKey string, ok bool) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return "", false
	}
	token := strings.TrimPrefix(authorization, bearerPrefix)
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return "", false
	}
	return token, true
}

// ExtractBearerToken returns any bearer token regardless of shape, used
// for the session path.
func ExtractBearerToken(authorization string) (token string, ok bool) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(authorization, bearerPrefix), true
}

// HashKey computes the lowercase hex SHA-256 hash used for lookup.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// ValidateKey applies spec.md §4.9's rejection rules: missing (handled by
// the caller, since lookup is by the store), wrong status, or expired.
func ValidateKey(k ApiKey, now time.Time) (ok bool, reason string) {
	if k.Status != KeyActive {
		return false, "key_not_active"
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false, "key_expired"
	}
	return true, ""
}

// ScopeIDForKey derives the scopeId for a validated key: teamId if
// non-empty, else "personal:<ownerUserId>".
func ScopeIDForKey(k ApiKey) string {
	if k.TeamID != "" {
		return k.TeamID
	}
	return "personal:" + k.OwnerUserID
}

// HasEndpointAccess reports whether allowedEndpoints permits endpointName; an empty
// list means unrestricted.
func HasEndpointAccess(allowedEndpoints []string, endpointName string) bool {
	if len(allowedEndpoints) == 0 {
		return true
	}
	for _, e := range allowedEndpoints {
		if e == endpointName || e == "*" {
			return true
		}
	}
	return false
}
