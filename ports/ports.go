// Package ports defines interfaces (contracts) between layers. These
// interfaces enable dependency injection and testability. Implementations
// live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/svcgate/gateway/domain/authn"
	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/proxy"
	"github.com/svcgate/gateway/domain/scope"
	"github.com/svcgate/gateway/domain/usage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// -----------------------------------------------------------------------------
// Configuration Store Ports (C8 resolver's collaborators)
// -----------------------------------------------------------------------------

// ConnectorStore retrieves published connectors visible to a scope or by slug.
type ConnectorStore interface {
	GetBySlug(ctx context.Context, filter scope.Filter) (connector.Connector, error)
	ListEndpoints(ctx context.Context, connectorID string) ([]connector.Endpoint, error)
}

// -----------------------------------------------------------------------------
// Authentication Ports (C9)
// -----------------------------------------------------------------------------

// ApiKeyStore looks up API keys by their hash for C9's key-auth path.
type ApiKeyStore interface {
	GetByHash(ctx context.Context, hash string) (authn.ApiKey, error)
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
}

// SessionValidator verifies a session bearer token for C9's session path.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (userID string, err error)
}

// -----------------------------------------------------------------------------
// Access Port (C10)
// -----------------------------------------------------------------------------

// TeamMembershipStore answers whether a user belongs to a team, for C10's
// personal -> team scope promotion.
type TeamMembershipStore interface {
	IsMember(ctx context.Context, userID, teamID string) (bool, error)
}

// -----------------------------------------------------------------------------
// Secret Vault Port (C11)
// -----------------------------------------------------------------------------

// SecretStore retrieves and decrypts secrets referenced by a connector's
// secretRefs. Implementations own the encryption key and call
// domain/secret.Decrypt.
type SecretStore interface {
	// Resolve fetches and decrypts every ref in refs, keyed by ref name.
	// A missing or undecryptable ref is simply absent from the result map
	// (spec.md §7: secret-resolution failure is never fatal).
	Resolve(ctx context.Context, scopeID, connectorSlug string, refs []string) (map[string]string, error)
}

// -----------------------------------------------------------------------------
// Rate Limit / Quota Ports (C5)
// -----------------------------------------------------------------------------

// RateLimitKV is the external counter store backing C5's fixed-window
// rate limiter.
type RateLimitKV interface {
	// Incr increments the counter at key, setting ttl only on first creation,
	// and returns the new count.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// QuotaKV is the external counter store backing C5's daily/monthly quotas.
type QuotaKV interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// -----------------------------------------------------------------------------
// Upstream Port (C14)
// -----------------------------------------------------------------------------

// UpstreamClient performs the actual HTTP dispatch to a connector's upstream.
type UpstreamClient interface {
	// Do sends req with the given timeout and reports the outcome
	// classification needed by the retry loop.
	Do(ctx context.Context, req proxy.UpstreamRequest, timeout time.Duration) (proxy.Response, proxy.Outcome, error)

	// DoStreaming sends req and returns the response with its body left
	// unread as Response.Stream, for connectors with streamingEnabled.
	// Never retried once called (spec.md §4.14).
	DoStreaming(ctx context.Context, req proxy.UpstreamRequest) (proxy.Response, error)
}

// -----------------------------------------------------------------------------
// Usage Sink Port (C16)
// -----------------------------------------------------------------------------

// UsageStore persists usage records in batches.
type UsageStore interface {
	RecordBatch(ctx context.Context, records []usage.Record) error
}

// UsageCounter answers the persisted-usage fallback count C5 falls back to
// when QuotaKV is unavailable (spec.md §4.5): the number of already-recorded
// requests for a scope/consumer since a period boundary.
type UsageCounter interface {
	CountSince(ctx context.Context, scopeID, consumerSuffix string, since time.Time) (int64, error)
}

// -----------------------------------------------------------------------------
// Metrics Port
// -----------------------------------------------------------------------------

// Metrics records Prometheus-style counters/histograms for the dataplane.
// Implemented by adapters/metrics using client_golang.
type Metrics interface {
	ObserveRequest(connectorSlug, endpointName string, status int, latencyMs int64, cached bool)
	ObserveBreakerState(slug string, state int)
	ObserveUpstreamRetry(slug string)
}

