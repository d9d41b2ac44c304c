package transform

import "testing"

func TestResolveBodyStrategyExtractPrefix(t *testing.T) {
	s := ResolveBodyStrategy("extract:model")
	out := s(BodyInput{ConsumerBody: `{"model":"gpt-4","n":1}`})
	if string(out.Bytes) != `"gpt-4"` {
		t.Errorf("got %q", out.Bytes)
	}
}

func TestResolveBodyStrategyUnknownFallsBackToPassthrough(t *testing.T) {
	s := ResolveBodyStrategy("whatever")
	out := s(BodyInput{ConsumerBody: "hello"})
	if string(out.Bytes) != "hello" {
		t.Errorf("got %q", out.Bytes)
	}
}

func TestBodyPassthroughEmptyIsUndefined(t *testing.T) {
	out := bodyPassthrough(BodyInput{ConsumerBody: ""})
	if !out.Undefined {
		t.Error("expected undefined for empty body")
	}
}

func TestBodyExtractIdempotent(t *testing.T) {
	s := ResolveBodyStrategy("extract:a.b")
	first := s(BodyInput{ConsumerBody: `{"a":{"b":"hello"}}`})
	second := s(BodyInput{ConsumerBody: string(first.Bytes)})
	if string(first.Bytes) != string(second.Bytes) {
		t.Errorf("extract not idempotent: %q vs %q", first.Bytes, second.Bytes)
	}
}

func TestBodyExtractMissingPathFallsBack(t *testing.T) {
	s := ResolveBodyStrategy("extract:missing.path")
	out := s(BodyInput{ConsumerBody: `{"a":1}`})
	if string(out.Bytes) != `{"a":1}` {
		t.Errorf("got %q", out.Bytes)
	}
}

func TestBodyFormEncode(t *testing.T) {
	out := bodyFormEncode(BodyInput{ConsumerBody: `{"amount":2000,"currency":"usd"}`})
	s := string(out.Bytes)
	if !contains(s, "amount=2000") || !contains(s, "currency=usd") {
		t.Errorf("got %q", s)
	}
}

func TestBodyFormEncodeNested(t *testing.T) {
	out := bodyFormEncode(BodyInput{ConsumerBody: `{"card":{"number":"4242"}}`})
	s := string(out.Bytes)
	if !contains(s, "card%5Bnumber%5D=4242") {
		t.Errorf("got %q", s)
	}
}

func TestBodyTemplate(t *testing.T) {
	out := bodyTemplate(BodyInput{
		ConsumerBody:       `{"name":"alice"}`,
		UpstreamStaticBody: `{"greeting":"hello {{body.name}}"}`,
	})
	if string(out.Bytes) != `{"greeting":"hello alice"}` {
		t.Errorf("got %q", out.Bytes)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
