package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/svcgate/gateway/domain/cache"
	"github.com/svcgate/gateway/domain/secret"
	"github.com/svcgate/gateway/ports"
)

const (
	secretPositiveTTL = 300 * time.Second
	secretNegativeTTL = 30 * time.Second
	secretCacheSize   = 5000
)

// SecretService implements C11: decrypts and caches per-(scope,slug,ref)
// secrets, resolving cache-miss refs in parallel.
type SecretService struct {
	store ports.SecretStore
	cache *cache.Cache[string]
	log   zerolog.Logger
}

// NewSecretService builds the secret resolver with its own bounded cache.
func NewSecretService(store ports.SecretStore, log zerolog.Logger) *SecretService {
	return &SecretService{
		store: store,
		cache: cache.New[string](secretCacheSize),
		log:   log,
	}
}

// Resolve fetches every ref in refs for scopeID/slug, serving cached
// decryptions where possible and resolving the rest concurrently (spec.md
// §4.11: "resolution proceeds in parallel across refs"). A ref that cannot
// be resolved is simply absent from the result, never fatal.
func (s *SecretService) Resolve(ctx context.Context, scopeID, slug string, refs []string) map[string]string {
	out := make(map[string]string, len(refs))
	var missing []string

	for _, ref := range refs {
		key := secret.Key(scopeID, slug, ref)
		if v, ok := s.cache.Get(key); ok {
			if v != "" {
				out[ref] = v
			}
			continue
		}
		missing = append(missing, ref)
	}

	if len(missing) == 0 {
		return out
	}

	type result struct {
		ref   string
		value string
		found bool
	}
	results := make(chan result, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range missing {
		ref := ref
		g.Go(func() error {
			resolved, err := s.store.Resolve(gctx, scopeID, slug, []string{ref})
			if err != nil {
				s.log.Warn().Err(err).Str("ref", ref).Str("slug", slug).Msg("secret resolution failed")
				results <- result{ref: ref}
				return nil
			}
			v, found := resolved[ref]
			results <- result{ref: ref, value: v, found: found}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	for r := range results {
		key := secret.Key(scopeID, slug, r.ref)
		if r.found && r.value != "" {
			s.cache.Set(key, r.value, secretPositiveTTL)
			out[r.ref] = r.value
		} else {
			s.cache.Set(key, "", secretNegativeTTL)
		}
	}

	return out
}
