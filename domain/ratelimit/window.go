// Package ratelimit provides the pure fixed-window rate limiting algorithm
// backing C5. All functions are deterministic — same input always produces
// the same output; the external KV (adapters/kv) supplies atomicity across
// concurrent callers for the same consumerKey.
package ratelimit

import "time"

// Window is the fixed window duration every limiter uses (spec.md §4.5),
// overridden at startup from config.RateLimitConfig.WindowSecs via Configure.
var Window = 60 * time.Second

// Configure sets Window from config.RateLimitConfig. A zero value leaves
// the default in place.
func Configure(windowSecs int) {
	if windowSecs > 0 {
		Window = time.Duration(windowSecs) * time.Second
	}
}

// State is the per-key window state persisted in the external KV.
type State struct {
	Count     int64
	WindowEnd time.Time
}

// Result is the outcome of one consume() call.
type Result struct {
	Allowed      bool
	Limit        int64
	Remaining    int64
	ResetIn      time.Duration
	RetryAfter   time.Duration
}

// Consume charges one point against limit within the 60s fixed window
// rooted at state.WindowEnd. This is a pure function; the caller persists
// the returned State.
func Consume(state State, limit int64, now time.Time) (Result, State) {
	if now.After(state.WindowEnd) || state.WindowEnd.IsZero() {
		state = State{Count: 0, WindowEnd: now.Add(Window)}
	}

	if state.Count < limit {
		state.Count++
		return Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - state.Count,
			ResetIn:   resetIn(state.WindowEnd, now),
		}, state
	}

	return Result{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetIn:    resetIn(state.WindowEnd, now),
		RetryAfter: resetIn(state.WindowEnd, now),
	}, state
}

func resetIn(windowEnd, now time.Time) time.Duration {
	d := windowEnd.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Key builds the external KV key for a given rateLimit points value and
// consumer key, per spec.md §4.5: "rl:gw:<rateLimit>:<consumerKey>".
func Key(rateLimit int64, consumerKey string) string {
	return "rl:gw:" + itoa(rateLimit) + ":" + consumerKey
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ConsumerKey builds the consumer-identity portion of the rate-limit and
// quota key schemas: the API key ID if present, else "session:<callerId>".
func ConsumerKey(apiKeyID, callerID string) string {
	if apiKeyID != "" {
		return apiKeyID
	}
	return "session:" + callerID
}
