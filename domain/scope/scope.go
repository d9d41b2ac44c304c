// Package scope provides the tenancy identifier carried by every dataplane
// request: a team, a personal user, or the public sentinel. It is a pure
// value package — parsing and serialization only, no I/O.
package scope

import "strings"

// Kind tags which variant a Scope holds.
type Kind int

const (
	Team Kind = iota
	Personal
	Public
)

const personalPrefix = "personal:"

// publicSentinel is the textual form used for the visibility=public access
// path (see spec.md §4.10 note and §9 open question on the public sentinel).
const publicSentinel = "public"

// Scope is a tagged union: exactly one of Team/Personal/Public is meaningful,
// selected by Kind.
type Scope struct {
	Kind     Kind
	TeamID   string
	UserID   string
}

// NewTeam builds a team-scoped Scope.
func NewTeam(teamID string) Scope { return Scope{Kind: Team, TeamID: teamID} }

// NewPersonal builds a personal-scoped Scope.
func NewPersonal(userID string) Scope { return Scope{Kind: Personal, UserID: userID} }

// NewPublic builds the sentinel public Scope used when resolving a
// visibility=public connector without a tenant-owning scope.
func NewPublic() Scope { return Scope{Kind: Public} }

// Parse decodes the textual form used at the network edge (e.g. the
// x-team-id header or a stored scopeId column).
//
// Rule: if raw begins with the literal prefix "personal:", the remainder is
// the userId; the literal "public" is the sentinel; otherwise the entire
// string is a teamId. A team ID can never legitimately begin with
// "personal:" because team IDs are opaque UUIDs, so any such input is
// treated as personal per spec.md §4.1.
func Parse(raw string) Scope {
	if raw == publicSentinel {
		return NewPublic()
	}
	if strings.HasPrefix(raw, personalPrefix) {
		return NewPersonal(strings.TrimPrefix(raw, personalPrefix))
	}
	return NewTeam(raw)
}

// Serialize encodes a Scope back to its textual form.
func (s Scope) Serialize() string {
	switch s.Kind {
	case Personal:
		return personalPrefix + s.UserID
	case Public:
		return publicSentinel
	default:
		return s.TeamID
	}
}

// IsPersonal reports whether the textual form denotes a personal scope.
func IsPersonal(raw string) bool {
	return strings.HasPrefix(raw, personalPrefix)
}

// Filter is the scope-aware lookup predicate used by the config resolver
// (C8) to find a connector: exactly one of TeamID/OwnerUserID/Public is set.
type Filter struct {
	ConnectorSlug string
	TeamID        string
	OwnerUserID   string
	Public        bool
}

// BuildFilter constructs the repository filter for a given connector slug
// under this scope.
func (s Scope) BuildFilter(slug string) Filter {
	switch s.Kind {
	case Personal:
		return Filter{ConnectorSlug: slug, OwnerUserID: s.UserID}
	case Public:
		return Filter{ConnectorSlug: slug, Public: true}
	default:
		return Filter{ConnectorSlug: slug, TeamID: s.TeamID}
	}
}

// Equal reports whether two scopes denote the same tenant.
func (s Scope) Equal(other Scope) bool {
	return s.Kind == other.Kind && s.TeamID == other.TeamID && s.UserID == other.UserID
}
