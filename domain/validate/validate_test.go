package validate

import (
	"net/http"
	"testing"

	"github.com/svcgate/gateway/domain/connector"
)

func TestRunRequiredHeaderMissing(t *testing.T) {
	err := Run(Input{
		Headers:         http.Header{},
		RequiredHeaders: []string{"X-Client-Id"},
	})
	if err == nil {
		t.Fatal("expected error for missing required header")
	}
}

func TestRunRequiredHeaderPresent(t *testing.T) {
	h := http.Header{}
	h.Set("X-Client-Id", "abc")
	err := Run(Input{Headers: h, RequiredHeaders: []string{"X-Client-Id"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunBodyPatternMismatch(t *testing.T) {
	err := Run(Input{
		Headers:     http.Header{},
		Body:        []byte(`{"foo":"bar"}`),
		BodyPattern: `"baz"`,
	})
	if err == nil {
		t.Fatal("expected pattern mismatch error")
	}
}

func TestRunBodyPatternMatch(t *testing.T) {
	err := Run(Input{
		Headers:     http.Header{},
		Body:        []byte(`{"foo":"bar"}`),
		BodyPattern: `"foo"`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunBodyPatternSkippedWhenOversized(t *testing.T) {
	big := make([]byte, maxBodyPatternLen+1)
	err := Run(Input{Headers: http.Header{}, Body: big, BodyPattern: `nevermatches`})
	if err != nil {
		t.Fatalf("pattern check should be skipped for oversized bodies, got %v", err)
	}
}

func TestRunBlacklist(t *testing.T) {
	err := Run(Input{
		Headers:       http.Header{},
		Body:          []byte(`{"cmd":"DROP TABLE users"}`),
		BodyBlacklist: []string{"drop table"},
	})
	if err == nil {
		t.Fatal("expected blacklist violation")
	}
}

func TestRunBlacklistCaseInsensitive(t *testing.T) {
	err := Run(Input{
		Headers:       http.Header{},
		Body:          []byte(`{"cmd":"Drop Table users"}`),
		BodyBlacklist: []string{"drop table"},
	})
	if err == nil {
		t.Fatal("expected case-insensitive blacklist match")
	}
}

func TestRunSchemaObjectRequired(t *testing.T) {
	schema := &connector.JSONSchema{Type: "object", Required: []string{"name"}}
	err := Run(Input{Headers: http.Header{}, Body: []byte(`{"other":1}`), BodySchema: schema})
	if err == nil {
		t.Fatal("expected required-field violation")
	}
}

func TestRunSchemaPropertyType(t *testing.T) {
	schema := &connector.JSONSchema{Type: "object", Properties: map[string]string{"age": "number"}}
	err := Run(Input{Headers: http.Header{}, Body: []byte(`{"age":"not-a-number"}`), BodySchema: schema})
	if err == nil {
		t.Fatal("expected type mismatch violation")
	}
}

func TestRunSchemaExtraPropertiesAllowed(t *testing.T) {
	schema := &connector.JSONSchema{Type: "object", Required: []string{"name"}}
	err := Run(Input{Headers: http.Header{}, Body: []byte(`{"name":"a","extra":true}`), BodySchema: schema})
	if err != nil {
		t.Fatalf("extra properties should be allowed, got %v", err)
	}
}

func TestRunSchemaArrayType(t *testing.T) {
	schema := &connector.JSONSchema{Type: "array"}
	if err := Run(Input{Headers: http.Header{}, Body: []byte(`[1,2,3]`), BodySchema: schema}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Run(Input{Headers: http.Header{}, Body: []byte(`{}`), BodySchema: schema}); err == nil {
		t.Fatal("expected type violation for object where array required")
	}
}

func TestRunSchemaParseFailure(t *testing.T) {
	schema := &connector.JSONSchema{Type: "object"}
	err := Run(Input{Headers: http.Header{}, Body: []byte(`not json`), BodySchema: schema})
	if err == nil {
		t.Fatal("expected parse-failure rejection")
	}
}
