package app

import (
	"context"

	"github.com/svcgate/gateway/domain/access"
	"github.com/svcgate/gateway/domain/authn"
	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/ports"
)

// AccessService implements C10: cross-scope access verification with
// personal->team membership promotion.
type AccessService struct {
	memberships ports.TeamMembershipStore
}

// NewAccessService builds the access verifier.
func NewAccessService(memberships ports.TeamMembershipStore) *AccessService {
	return &AccessService{memberships: memberships}
}

// Verify checks auth's scope against conn's ownership, promoting auth's
// ScopeID in place when step 3 of spec.md §4.10 applies.
func (s *AccessService) Verify(ctx context.Context, auth *authn.AuthResult, conn connector.Connector) (bool, error) {
	ownership := access.ConnectorOwnership{
		TeamID:      conn.TeamID,
		OwnerUserID: conn.OwnerUserID,
		Visibility:  string(conn.Visibility),
	}

	checker := func(userID, teamID string) (bool, error) {
		return s.memberships.IsMember(ctx, userID, teamID)
	}

	result, err := access.Verify(auth.ScopeID, auth.CallerType == authn.CallerSession, ownership, checker)
	if err != nil {
		return false, err
	}
	if result.PromotedScope != "" {
		auth.ScopeID = result.PromotedScope
	}
	return result.Allowed, nil
}
