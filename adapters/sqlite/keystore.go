package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/svcgate/gateway/domain/authn"
	"github.com/svcgate/gateway/ports"
)

// ApiKeyStore implements ports.ApiKeyStore using SQLite.
type ApiKeyStore struct {
	db *DB
}

// NewApiKeyStore creates a new SQLite API key store.
func NewApiKeyStore(db *DB) *ApiKeyStore {
	return &ApiKeyStore{db: db}
}

const apiKeyColumns = `
	id, key_hash, status, team_id, owner_user_id, created_by, plan_id,
	expires_at, allowed_endpoints, allowed_ips, rate_limit, daily_quota,
	monthly_quota, max_request_size, created_at, last_used_at
`

// GetByHash looks up an API key by its SHA-256 hash (C9).
func (s *ApiKeyStore) GetByHash(ctx context.Context, hash string) (authn.ApiKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE key_hash = ?
	`, hash)
	return scanApiKeyRow(row)
}

// UpdateLastUsed records the time an API key was last used.
func (s *ApiKeyStore) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = ? WHERE id = ?
	`, at, id)
	return err
}

// Create stores a new API key. Used by the management surface and test
// fixtures, not by the dataplane itself.
func (s *ApiKeyStore) Create(ctx context.Context, k authn.ApiKey, createdAt time.Time) error {
	allowedEndpoints, err := json.Marshal(k.AllowedEndpoints)
	if err != nil {
		return err
	}
	allowedIPs, err := json.Marshal(k.AllowedIPs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (
			id, key_hash, status, team_id, owner_user_id, created_by, plan_id,
			expires_at, allowed_endpoints, allowed_ips, rate_limit, daily_quota,
			monthly_quota, max_request_size, created_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		k.ID, k.KeyHash, string(k.Status), k.TeamID, k.OwnerUserID, k.CreatedBy, k.PlanID,
		nullTime(k.ExpiresAt), string(allowedEndpoints), string(allowedIPs), k.RateLimit, k.DailyQuota,
		k.MonthlyQuota, k.MaxRequestSize, createdAt, nil,
	)
	return err
}

func scanApiKeyRow(row *sql.Row) (authn.ApiKey, error) {
	var k authn.ApiKey
	var status, allowedEndpoints, allowedIPs string
	var expiresAt, lastUsedAt sql.NullTime
	var createdAt time.Time

	err := row.Scan(
		&k.ID, &k.KeyHash, &status, &k.TeamID, &k.OwnerUserID, &k.CreatedBy, &k.PlanID,
		&expiresAt, &allowedEndpoints, &allowedIPs, &k.RateLimit, &k.DailyQuota,
		&k.MonthlyQuota, &k.MaxRequestSize, &createdAt, &lastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return authn.ApiKey{}, ErrNotFound
	}
	if err != nil {
		return authn.ApiKey{}, err
	}

	k.Status = authn.KeyStatus(status)
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	if err := unmarshalIfSet(allowedEndpoints, &k.AllowedEndpoints); err != nil {
		return authn.ApiKey{}, err
	}
	if err := unmarshalIfSet(allowedIPs, &k.AllowedIPs); err != nil {
		return authn.ApiKey{}, err
	}

	return k, nil
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// TeamMembershipStore implements ports.TeamMembershipStore using SQLite.
type TeamMembershipStore struct {
	db *DB
}

// NewTeamMembershipStore creates a new SQLite team membership store.
func NewTeamMembershipStore(db *DB) *TeamMembershipStore {
	return &TeamMembershipStore{db: db}
}

// IsMember reports whether userID belongs to teamID (C10's
// membership-promotion check).
func (s *TeamMembershipStore) IsMember(ctx context.Context, userID, teamID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM team_members WHERE team_id = ? AND user_id = ?
	`, teamID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddMember records a team membership. Used by test fixtures and the
// (out-of-scope) management surface.
func (s *TeamMembershipStore) AddMember(ctx context.Context, teamID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = excluded.role
	`, teamID, userID, role)
	return err
}

var (
	_ ports.ApiKeyStore         = (*ApiKeyStore)(nil)
	_ ports.TeamMembershipStore = (*TeamMembershipStore)(nil)
)
