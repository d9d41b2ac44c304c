package transform

import (
	"strings"
	"testing"
)

func TestAuthBearer(t *testing.T) {
	headers := map[string]string{}
	s := ResolveAuthStrategy("bearer")
	_, err := s(AuthInput{Headers: headers, AuthConfig: map[string]any{"tokenRef": "token"}, Secrets: map[string]string{"token": "sk-test"}})
	if err != nil {
		t.Fatal(err)
	}
	if headers["Authorization"] != "Bearer sk-test" {
		t.Errorf("got %q", headers["Authorization"])
	}
}

func TestAuthBearerMissingSecretWarns(t *testing.T) {
	headers := map[string]string{}
	s := ResolveAuthStrategy("bearer")
	s(AuthInput{Headers: headers, AuthConfig: map[string]any{}, Secrets: map[string]string{}})
	if headers[warningHeader] != warningMissingSecret {
		t.Error("expected missing-auth-secret warning")
	}
	if _, ok := headers["Authorization"]; ok {
		t.Error("no Authorization header should be set")
	}
}

func TestAuthQuery(t *testing.T) {
	s := ResolveAuthStrategy("query")
	out, err := s(AuthInput{
		Headers:    map[string]string{},
		AuthConfig: map[string]any{"paramName": "key", "secretRef": "api_key"},
		Secrets:    map[string]string{"api_key": "AIza-test"},
		URL:        "https://generativelanguage.googleapis.com/v1/test",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.URL, "key=AIza-test") {
		t.Errorf("got %q", out.URL)
	}
}

func TestAuthUnknownFallsBackToNone(t *testing.T) {
	s := ResolveAuthStrategy("nonsense")
	out, err := s(AuthInput{URL: "https://x.example.com"})
	if err != nil || out.URL != "https://x.example.com" {
		t.Errorf("got %+v, %v", out, err)
	}
}

func TestInterpolateSecretsUnresolvedCollapses(t *testing.T) {
	result, resolved := InterpolateSecrets("prefix-{{secrets.MISSING}}-suffix", map[string]string{})
	if resolved {
		t.Error("expected unresolved")
	}
	if result != "prefix--suffix" {
		t.Errorf("got %q", result)
	}
}

func TestAuthAWSS3SetsAuthorizationHeader(t *testing.T) {
	s := ResolveAuthStrategy("aws-s3")
	headers := map[string]string{}
	_, err := s(AuthInput{
		Headers: headers,
		Secrets: map[string]string{"access_key": "AKTEST", "secret_key": "secret123"},
		Method:  "GET",
		URL:     "https://bucket.s3.amazonaws.com/key",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(headers["authorization"], "AWS4-HMAC-SHA256") {
		t.Errorf("got %q", headers["authorization"])
	}
}
