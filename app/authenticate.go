// Package app provides application services that orchestrate domain logic
// for the gateway dataplane (C8-C17), wiring pure domain packages to the
// external collaborators declared in ports.
package app

import (
	"context"
	"net/http"

	"github.com/svcgate/gateway/domain/authn"
	"github.com/svcgate/gateway/ports"
)

// AuthnService implements C9: the dual-path (API key / session) caller
// authenticator.
type AuthnService struct {
	keys    ports.ApiKeyStore
	session ports.SessionValidator
	clock   ports.Clock
}

// AuthnDeps are AuthnService's external collaborators.
type AuthnDeps struct {
	Keys    ports.ApiKeyStore
	Session ports.SessionValidator
	Clock   ports.Clock
}

// NewAuthnService builds the authenticator.
func NewAuthnService(deps AuthnDeps) *AuthnService {
	return &AuthnService{keys: deps.Keys, session: deps.Session, clock: deps.Clock}
}

// Authenticate runs C9's two paths against the inbound request's
// Authorization header, returning nil (not an error) when neither path
// resolves a caller -- spec.md §4.9 treats that as a 401 at the handler.
func (s *AuthnService) Authenticate(ctx context.Context, r *http.Request) (*authn.AuthResult, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, nil
	}

	if rawKey, ok := authn.ExtractBearerAPIKey(authHeader); ok {
		return s.authenticateAPIKey(ctx, rawKey)
	}

	if token, ok := authn.ExtractBearerToken(authHeader); ok {
		return s.authenticateSession(ctx, token, r)
	}

	return nil, nil
}

func (s *AuthnService) authenticateAPIKey(ctx context.Context, rawKey string) (*authn.AuthResult, error) {
	hash := authn.HashKey(rawKey)
	key, err := s.keys.GetByHash(ctx, hash)
	if err != nil {
		return nil, nil
	}

	now := s.clock.Now()
	if ok, _ := authn.ValidateKey(key, now); !ok {
		return nil, nil
	}

	// Fire-and-forget lastUsedAt update; a failure here never blocks the
	// request, per spec.md §4.9.
	go func() {
		_ = s.keys.UpdateLastUsed(context.Background(), key.ID, now)
	}()

	return &authn.AuthResult{
		CallerType:       authn.CallerAPIKey,
		CallerID:         key.ID,
		ScopeID:          authn.ScopeIDForKey(key),
		ApiKeyID:         key.ID,
		PlanID:           key.PlanID,
		AllowedEndpoints: key.AllowedEndpoints,
		AllowedIPs:       key.AllowedIPs,
		RateLimit:        key.RateLimit,
		DailyQuota:       key.DailyQuota,
		MonthlyQuota:     key.MonthlyQuota,
		MaxRequestSize:   key.MaxRequestSize,
	}, nil
}

func (s *AuthnService) authenticateSession(ctx context.Context, token string, r *http.Request) (*authn.AuthResult, error) {
	if s.session == nil {
		return nil, nil
	}
	userID, err := s.session.Validate(ctx, token)
	if err != nil || userID == "" {
		return nil, nil
	}

	scopeID := "personal:" + userID
	if teamID := r.Header.Get("x-team-id"); teamID != "" {
		scopeID = teamID
	}

	return &authn.AuthResult{
		CallerType: authn.CallerSession,
		CallerID:   userID,
		ScopeID:    scopeID,
	}, nil
}
