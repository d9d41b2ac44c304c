package ratelimit

import (
	"testing"
	"time"
)

func TestConsumeWithinLimit(t *testing.T) {
	now := time.Now()
	var state State
	for i := int64(1); i <= 5; i++ {
		res, next := Consume(state, 5, now)
		state = next
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 5-i {
			t.Errorf("request %d remaining = %d, want %d", i, res.Remaining, 5-i)
		}
	}
}

func TestConsumeOverLimit(t *testing.T) {
	now := time.Now()
	state := State{Count: 5, WindowEnd: now.Add(30 * time.Second)}
	res, _ := Consume(state, 5, now)
	if res.Allowed {
		t.Fatal("6th request over a limit of 5 should be denied")
	}
	if res.RetryAfter <= 0 {
		t.Error("expected a positive retry-after")
	}
}

func TestConsumeNewWindowResets(t *testing.T) {
	now := time.Now()
	state := State{Count: 5, WindowEnd: now.Add(-time.Second)}
	res, next := Consume(state, 5, now)
	if !res.Allowed {
		t.Fatal("expired window should reset the counter")
	}
	if next.Count != 1 {
		t.Errorf("expected count 1 in new window, got %d", next.Count)
	}
}

func TestConsumerKey(t *testing.T) {
	if got := ConsumerKey("key1", "user1"); got != "key1" {
		t.Errorf("got %q", got)
	}
	if got := ConsumerKey("", "user1"); got != "session:user1" {
		t.Errorf("got %q", got)
	}
}

func TestKeySchema(t *testing.T) {
	if got := Key(100, "session:u1"); got != "rl:gw:100:session:u1" {
		t.Errorf("got %q", got)
	}
}
