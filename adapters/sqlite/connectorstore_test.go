package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/svcgate/gateway/adapters/sqlite"
	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/scope"
)

func seedConnector(t *testing.T, store *sqlite.ConnectorStore, c connector.Connector) {
	t.Helper()
	if err := store.Create(context.Background(), c); err != nil {
		t.Fatalf("create connector: %v", err)
	}
}

func TestConnectorStoreGetBySlugTeamScope(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	store := sqlite.NewConnectorStore(db)

	now := time.Now().UTC().Truncate(time.Second)
	seedConnector(t, store, connector.Connector{
		ID: "c1", Slug: "weather", TeamID: "team-1",
		Status: connector.StatusPublished, Visibility: connector.VisibilityTeam,
		UpstreamBaseURL: "https://api.weather.example",
		AllowedHosts:    []string{"api.weather.example"},
		SecretRefs:      []string{"apiKey"},
		ErrorMapping:    map[int]string{404: "not_found"},
		CreatedAt:       now, UpdatedAt: now,
	})

	got, err := store.GetBySlug(context.Background(), scope.Filter{ConnectorSlug: "weather", TeamID: "team-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Slug != "weather" || got.TeamID != "team-1" {
		t.Fatalf("got %+v", got)
	}
	if len(got.AllowedHosts) != 1 || got.AllowedHosts[0] != "api.weather.example" {
		t.Fatalf("allowed hosts not round-tripped: %v", got.AllowedHosts)
	}
	if got.ErrorMapping[404] != "not_found" {
		t.Fatalf("error mapping not round-tripped: %v", got.ErrorMapping)
	}
}

func TestConnectorStoreGetBySlugNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	store := sqlite.NewConnectorStore(db)

	_, err := store.GetBySlug(context.Background(), scope.Filter{ConnectorSlug: "missing", TeamID: "team-1"})
	if err != sqlite.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestConnectorStoreGetBySlugPublicScope(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	store := sqlite.NewConnectorStore(db)

	now := time.Now().UTC()
	seedConnector(t, store, connector.Connector{
		ID: "c2", Slug: "news", TeamID: "team-2",
		Status: connector.StatusPublished, Visibility: connector.VisibilityPublic,
		UpstreamBaseURL: "https://news.example",
		CreatedAt:       now, UpdatedAt: now,
	})

	got, err := store.GetBySlug(context.Background(), scope.Filter{ConnectorSlug: "news", Public: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Slug != "news" {
		t.Fatalf("got %+v", got)
	}

	// A draft/private connector must not be resolvable via the public filter.
	seedConnector(t, store, connector.Connector{
		ID: "c3", Slug: "draft-news", TeamID: "team-2",
		Status: connector.StatusDraft, Visibility: connector.VisibilityPublic,
		UpstreamBaseURL: "https://news.example",
		CreatedAt:       now, UpdatedAt: now,
	})
	if _, err := store.GetBySlug(context.Background(), scope.Filter{ConnectorSlug: "draft-news", Public: true}); err != sqlite.ErrNotFound {
		t.Fatalf("draft connector must not resolve via public filter, got %v", err)
	}
}

func TestConnectorStoreListEndpoints(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	connStore := sqlite.NewConnectorStore(db)

	now := time.Now().UTC()
	seedConnector(t, connStore, connector.Connector{
		ID: "c1", Slug: "weather", TeamID: "team-1",
		Status: connector.StatusPublished, Visibility: connector.VisibilityTeam,
		UpstreamBaseURL: "https://api.weather.example",
		CreatedAt:       now, UpdatedAt: now,
	})

	err := connStore.CreateEndpoint(context.Background(), connector.Endpoint{
		ID: "e1", ConnectorID: "c1", Name: "current", Method: "GET", Path: "/current",
		Enabled: true, UpstreamMethod: "GET", UpstreamPath: "/v1/current",
		BodyTransformName:     "passthrough",
		ResponseBodyTransform: "none",
		RequiredHeaders:       []string{"x-request-id"},
		BodySchema:            &connector.JSONSchema{Type: "object", Required: []string{"city"}},
	})
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	endpoints, err := connStore.ListEndpoints(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(endpoints) != 1 {
		t.Fatalf("got %d endpoints, want 1", len(endpoints))
	}
	e := endpoints[0]
	if e.Name != "current" || !e.Enabled {
		t.Fatalf("got %+v", e)
	}
	if len(e.RequiredHeaders) != 1 || e.RequiredHeaders[0] != "x-request-id" {
		t.Fatalf("required headers not round-tripped: %v", e.RequiredHeaders)
	}
	if e.BodySchema == nil || e.BodySchema.Type != "object" {
		t.Fatalf("body schema not round-tripped: %+v", e.BodySchema)
	}
}
