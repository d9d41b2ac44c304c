package hostguard

import "testing"

func TestIsPrivate(t *testing.T) {
	private := []string{
		"127.0.0.1", "10.1.2.3", "172.16.0.5", "192.168.1.1",
		"0.0.0.0", "169.254.1.1", "::1", "fe80::1", "localhost", "LOCALHOST",
	}
	for _, h := range private {
		if !IsPrivate(h) {
			t.Errorf("expected %q to be private", h)
		}
	}

	public := []string{"8.8.8.8", "api.example.com", "1.1.1.1"}
	for _, h := range public {
		if IsPrivate(h) {
			t.Errorf("expected %q to be public", h)
		}
	}
}

func TestValidatePrivateAlwaysRejected(t *testing.T) {
	if Validate("127.0.0.1", []string{"*"}) {
		t.Fatal("private host must never pass, regardless of allowlist")
	}
	if Validate("127.0.0.1", nil) {
		t.Fatal("private host must never pass even with empty allowlist")
	}
}

func TestValidateEmptyAllowlistPasses(t *testing.T) {
	if !Validate("api.example.com", nil) {
		t.Fatal("empty allowlist should pass any non-private host")
	}
}

func TestValidateWildcardBoundary(t *testing.T) {
	cases := []struct {
		host    string
		allowed bool
	}{
		{"api.example.com", true},
		{"a.example.com", true},
		{"x.y.example.com", true},
		{"example.com", true},
		{"evil-example.com", false},
		{"notexample.com", false},
		{"example.com.evil.com", false},
	}
	for _, c := range cases {
		got := Validate(c.host, []string{"*.example.com"})
		if got != c.allowed {
			t.Errorf("Validate(%q, *.example.com) = %v, want %v", c.host, got, c.allowed)
		}
	}
}

func TestValidateExactPattern(t *testing.T) {
	if !Validate("api.example.com", []string{"api.example.com"}) {
		t.Fatal("exact pattern should match itself")
	}
	if Validate("sub.api.example.com", []string{"api.example.com"}) {
		t.Fatal("exact pattern must not match subdomains")
	}
}

func TestMatchIPAllowlist(t *testing.T) {
	list := []string{"1.2.3.4", "10.0.0.0/8", "0.0.0.0/0"}
	if !MatchIPAllowlist("1.2.3.4", list) {
		t.Error("exact IP should match")
	}
	if !MatchIPAllowlist("10.5.5.5", list) {
		t.Error("CIDR should match")
	}
	if !MatchIPAllowlist("9.9.9.9", []string{"0.0.0.0/0"}) {
		t.Error("/0 should match everything")
	}
	if !MatchIPAllowlist("5.5.5.5", []string{"5.5.5.5/32"}) {
		t.Error("/32 should match exact host")
	}
	if MatchIPAllowlist("5.5.5.6", []string{"5.5.5.5/32"}) {
		t.Error("/32 should not match a different host")
	}
}
