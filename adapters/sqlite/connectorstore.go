package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/scope"
	"github.com/svcgate/gateway/ports"
)

// ConnectorStore implements ports.ConnectorStore using SQLite.
type ConnectorStore struct {
	db *DB
}

// NewConnectorStore creates a new SQLite connector store.
func NewConnectorStore(db *DB) *ConnectorStore {
	return &ConnectorStore{db: db}
}

const connectorColumns = `
	id, slug, team_id, owner_user_id, display_name, status, visibility,
	upstream_base_url, allowed_hosts, default_timeout_ms, health_check_path,
	auth_type, auth_config, secret_refs, response_wrapper, streaming_enabled,
	error_mapping, created_at, updated_at
`

// GetBySlug resolves a connector by scope filter and slug (C8). Exactly one
// of filter.TeamID/OwnerUserID/Public is honored, matching scope.Filter's
// invariant.
func (s *ConnectorStore) GetBySlug(ctx context.Context, filter scope.Filter) (connector.Connector, error) {
	var row *sql.Row
	switch {
	case filter.Public:
		row = s.db.QueryRowContext(ctx, `
			SELECT `+connectorColumns+`
			FROM connectors
			WHERE slug = ? AND visibility = 'public' AND status = 'published'
		`, filter.ConnectorSlug)
	case filter.OwnerUserID != "":
		row = s.db.QueryRowContext(ctx, `
			SELECT `+connectorColumns+`
			FROM connectors
			WHERE slug = ? AND owner_user_id = ?
		`, filter.ConnectorSlug, filter.OwnerUserID)
	default:
		row = s.db.QueryRowContext(ctx, `
			SELECT `+connectorColumns+`
			FROM connectors
			WHERE slug = ? AND team_id = ?
		`, filter.ConnectorSlug, filter.TeamID)
	}
	return scanConnectorRow(row)
}

// ListEndpoints returns all endpoints belonging to a connector (C8).
func (s *ConnectorStore) ListEndpoints(ctx context.Context, connectorID string) ([]connector.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, connector_id, name, method, path, enabled,
		       upstream_method, upstream_path, upstream_content_type,
		       upstream_query_params, upstream_static_body, body_transform_name,
		       header_mapping, rate_limit, timeout_ms, max_request_size,
		       max_response_size, cache_ttl_seconds, retries, body_pattern,
		       body_blacklist, body_schema, required_headers, response_body_transform
		FROM endpoints
		WHERE connector_id = ?
	`, connectorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []connector.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// Create stores a new connector. Used by the (out-of-scope for the
// dataplane) management surface and by tests seeding fixtures.
func (s *ConnectorStore) Create(ctx context.Context, c connector.Connector) error {
	allowedHosts, err := json.Marshal(c.AllowedHosts)
	if err != nil {
		return err
	}
	authConfig, err := json.Marshal(c.AuthConfig)
	if err != nil {
		return err
	}
	secretRefs, err := json.Marshal(c.SecretRefs)
	if err != nil {
		return err
	}
	errorMapping, err := json.Marshal(c.ErrorMapping)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connectors (
			id, slug, team_id, owner_user_id, display_name, status, visibility,
			upstream_base_url, allowed_hosts, default_timeout_ms, health_check_path,
			auth_type, auth_config, secret_refs, response_wrapper, streaming_enabled,
			error_mapping, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Slug, c.TeamID, c.OwnerUserID, c.DisplayName, string(c.Status), string(c.Visibility),
		c.UpstreamBaseURL, string(allowedHosts), c.DefaultTimeoutMs, c.HealthCheckPath,
		c.AuthType, string(authConfig), string(secretRefs), boolToInt(c.ResponseWrapper), boolToInt(c.StreamingEnabled),
		string(errorMapping), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// CreateEndpoint stores a new endpoint under a connector.
func (s *ConnectorStore) CreateEndpoint(ctx context.Context, e connector.Endpoint) error {
	queryParams, err := json.Marshal(e.UpstreamQueryParams)
	if err != nil {
		return err
	}
	headerMapping, err := json.Marshal(e.HeaderMapping)
	if err != nil {
		return err
	}
	blacklist, err := json.Marshal(e.BodyBlacklist)
	if err != nil {
		return err
	}
	requiredHeaders, err := json.Marshal(e.RequiredHeaders)
	if err != nil {
		return err
	}
	var schema string
	if e.BodySchema != nil {
		raw, err := json.Marshal(e.BodySchema)
		if err != nil {
			return err
		}
		schema = string(raw)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO endpoints (
			id, connector_id, name, method, path, enabled,
			upstream_method, upstream_path, upstream_content_type,
			upstream_query_params, upstream_static_body, body_transform_name,
			header_mapping, rate_limit, timeout_ms, max_request_size,
			max_response_size, cache_ttl_seconds, retries, body_pattern,
			body_blacklist, body_schema, required_headers, response_body_transform
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.ConnectorID, e.Name, e.Method, e.Path, boolToInt(e.Enabled),
		e.UpstreamMethod, e.UpstreamPath, e.UpstreamContentType,
		string(queryParams), e.UpstreamStaticBody, e.BodyTransformName,
		string(headerMapping), e.RateLimit, e.TimeoutMs, e.MaxRequestSize,
		e.MaxResponseSize, e.CacheTTLSeconds, e.Retries, e.BodyPattern,
		string(blacklist), schema, string(requiredHeaders), e.ResponseBodyTransform,
	)
	return err
}

func scanConnectorRow(row *sql.Row) (connector.Connector, error) {
	var c connector.Connector
	var status, visibility, allowedHosts, authConfig, secretRefs, errorMapping string
	var responseWrapper, streamingEnabled int

	err := row.Scan(
		&c.ID, &c.Slug, &c.TeamID, &c.OwnerUserID, &c.DisplayName, &status, &visibility,
		&c.UpstreamBaseURL, &allowedHosts, &c.DefaultTimeoutMs, &c.HealthCheckPath,
		&c.AuthType, &authConfig, &secretRefs, &responseWrapper, &streamingEnabled,
		&errorMapping, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return connector.Connector{}, ErrNotFound
	}
	if err != nil {
		return connector.Connector{}, err
	}

	c.Status = connector.Status(status)
	c.Visibility = connector.Visibility(visibility)
	c.ResponseWrapper = responseWrapper != 0
	c.StreamingEnabled = streamingEnabled != 0

	if err := unmarshalIfSet(allowedHosts, &c.AllowedHosts); err != nil {
		return connector.Connector{}, err
	}
	if err := unmarshalIfSet(authConfig, &c.AuthConfig); err != nil {
		return connector.Connector{}, err
	}
	if err := unmarshalIfSet(secretRefs, &c.SecretRefs); err != nil {
		return connector.Connector{}, err
	}
	errorMappingRaw := map[string]string{}
	if err := unmarshalIfSet(errorMapping, &errorMappingRaw); err != nil {
		return connector.Connector{}, err
	}
	if len(errorMappingRaw) > 0 {
		c.ErrorMapping = make(map[int]string, len(errorMappingRaw))
		for k, v := range errorMappingRaw {
			if code, err := strconv.Atoi(k); err == nil {
				c.ErrorMapping[code] = v
			}
		}
	}

	return c, nil
}

func scanEndpoint(rows *sql.Rows) (connector.Endpoint, error) {
	var e connector.Endpoint
	var enabled int
	var queryParams, headerMapping, blacklist, schema, requiredHeaders string

	err := rows.Scan(
		&e.ID, &e.ConnectorID, &e.Name, &e.Method, &e.Path, &enabled,
		&e.UpstreamMethod, &e.UpstreamPath, &e.UpstreamContentType,
		&queryParams, &e.UpstreamStaticBody, &e.BodyTransformName,
		&headerMapping, &e.RateLimit, &e.TimeoutMs, &e.MaxRequestSize,
		&e.MaxResponseSize, &e.CacheTTLSeconds, &e.Retries, &e.BodyPattern,
		&blacklist, &schema, &requiredHeaders, &e.ResponseBodyTransform,
	)
	if err != nil {
		return connector.Endpoint{}, err
	}

	e.Enabled = enabled != 0

	if err := unmarshalIfSet(queryParams, &e.UpstreamQueryParams); err != nil {
		return connector.Endpoint{}, err
	}
	if err := unmarshalIfSet(headerMapping, &e.HeaderMapping); err != nil {
		return connector.Endpoint{}, err
	}
	if err := unmarshalIfSet(blacklist, &e.BodyBlacklist); err != nil {
		return connector.Endpoint{}, err
	}
	if err := unmarshalIfSet(requiredHeaders, &e.RequiredHeaders); err != nil {
		return connector.Endpoint{}, err
	}
	if schema != "" {
		var s connector.JSONSchema
		if err := json.Unmarshal([]byte(schema), &s); err != nil {
			return connector.Endpoint{}, err
		}
		e.BodySchema = &s
	}

	return e, nil
}

func unmarshalIfSet(raw string, dst any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.ConnectorStore = (*ConnectorStore)(nil)
