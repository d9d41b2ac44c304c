package app

import (
	"context"
	"strings"
	"time"

	"github.com/svcgate/gateway/domain/cache"
	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/scope"
	"github.com/svcgate/gateway/ports"
)

const configCacheSize = 2000

// ResolverService implements C8: the scope-aware, TTL-cached, path-matching
// connector/endpoint lookup.
type ResolverService struct {
	store       ports.ConnectorStore
	cache       *cache.Cache[cache.ConfigEntry[connector.ResolvedConfig]]
	positiveTTL time.Duration
	negativeTTL time.Duration
}

// NewResolverService builds the resolver with its own bounded config cache.
// positiveTTL/negativeTTL come from config.CacheConfig; a zero value falls
// back to spec.md §4.8's defaults (60s / 5s).
func NewResolverService(store ports.ConnectorStore, positiveTTL, negativeTTL time.Duration) *ResolverService {
	if positiveTTL <= 0 {
		positiveTTL = 60 * time.Second
	}
	if negativeTTL <= 0 {
		negativeTTL = 5 * time.Second
	}
	return &ResolverService{
		store:       store,
		cache:       cache.New[cache.ConfigEntry[connector.ResolvedConfig]](configCacheSize),
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
	}
}

func configCacheKey(scopeID, slug, method, path string) string {
	return "config:" + scopeID + ":" + slug + ":" + strings.ToUpper(method) + ":" + path
}

// Resolve implements spec.md §4.8's algorithm: cache lookup, scope-filtered
// connector fetch, path-pattern endpoint match, cache the result (positive
// or negative).
func (r *ResolverService) Resolve(ctx context.Context, sc scope.Scope, slug, method, path string) (connector.ResolvedConfig, bool, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	scopeID := sc.Serialize()
	key := configCacheKey(scopeID, slug, method, path)

	if entry, ok := r.cache.Get(key); ok {
		return entry.Value, entry.Found, nil
	}

	filter := sc.BuildFilter(slug)
	conn, err := r.store.GetBySlug(ctx, filter)
	if err != nil || conn.Status != connector.StatusPublished {
		r.cache.Set(key, cache.ConfigEntry[connector.ResolvedConfig]{Found: false}, r.negativeTTL)
		return connector.ResolvedConfig{}, false, nil
	}

	endpoints, err := r.store.ListEndpoints(ctx, conn.ID)
	if err != nil {
		r.cache.Set(key, cache.ConfigEntry[connector.ResolvedConfig]{Found: false}, r.negativeTTL)
		return connector.ResolvedConfig{}, false, nil
	}

	candidate, ok := connector.SelectEndpoint(endpoints, method, path)
	if !ok {
		r.cache.Set(key, cache.ConfigEntry[connector.ResolvedConfig]{Found: false}, r.negativeTTL)
		return connector.ResolvedConfig{}, false, nil
	}

	resolved := connector.ResolvedConfig{Connector: conn, Endpoint: candidate.Endpoint}
	r.cache.Set(key, cache.ConfigEntry[connector.ResolvedConfig]{Value: resolved, Found: true}, r.positiveTTL)
	return resolved, true, nil
}

// Invalidate drops every cached entry for scopeID+slug (spec.md §4.8).
func (r *ResolverService) Invalidate(scopeID, slug string) {
	r.cache.InvalidatePrefix("config:" + scopeID + ":" + slug + ":")
}
