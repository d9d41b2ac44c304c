// Package access implements C10's cross-scope access verification,
// including the personal->team membership promotion.
package access

import "strings"

// ConnectorOwnership is the subset of a resolved Connector's fields needed
// to decide access.
type ConnectorOwnership struct {
	TeamID      string
	OwnerUserID string
	Visibility  string // "private"|"team"|"public"
}

const personalPrefix = "personal:"

// MembershipChecker looks up whether a user belongs to a team; the app
// layer supplies a repository-backed implementation.
type MembershipChecker func(userID, teamID string) (bool, error)

// Result is the outcome of an access check: either allowed (optionally
// with a promoted scope) or denied.
type Result struct {
	Allowed      bool
	PromotedScope string // non-empty iff a personal scope was promoted to this team scope
}

// Verify implements spec.md §4.10's four-step algorithm. visibility=public
// connectors are allowed unconditionally to any authenticated caller (step
// 0), since the resolver is invoked with scopeId=public for that path.
// callerIsSession gates the membership-promotion step, which applies only
// to session-authenticated callers.
func Verify(scopeID string, callerIsSession bool, conn ConnectorOwnership, checkMembership MembershipChecker) (Result, error) {
	if conn.Visibility == "public" {
		return Result{Allowed: true}, nil
	}

	if conn.TeamID != "" && scopeID == conn.TeamID {
		return Result{Allowed: true}, nil
	}

	if conn.OwnerUserID != "" && scopeID == personalPrefix+conn.OwnerUserID {
		return Result{Allowed: true}, nil
	}

	if callerIsSession && strings.HasPrefix(scopeID, personalPrefix) && conn.TeamID != "" && checkMembership != nil {
		userID := strings.TrimPrefix(scopeID, personalPrefix)
		isMember, err := checkMembership(userID, conn.TeamID)
		if err != nil {
			return Result{}, err
		}
		if isMember {
			return Result{Allowed: true, PromotedScope: conn.TeamID}, nil
		}
	}

	return Result{Allowed: false}, nil
}
