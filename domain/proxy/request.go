// Package proxy holds C14's value types and pure retry/dispatch-count
// logic. The actual upstream I/O lives in adapters/http (ports.UpstreamClient);
// this package keeps the decisions -- how many attempts, which outcome maps
// to which error -- free of network dependencies. The retry sleep itself is
// computed by app.ProxyService via github.com/jpillora/backoff.
package proxy

import (
	"fmt"
	"io"
	"net/http"
)

// UpstreamRequest is produced by C13 (the transform orchestrator) and
// consumed by C14.
type UpstreamRequest struct {
	URL     string
	Method  string
	Headers http.Header
	Body    []byte
}

// Response is the upstream HTTP response, already read into memory for the
// non-streaming path; Stream is set instead of Body for streaming responses,
// and the caller is responsible for closing it.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	Stream  io.ReadCloser
}

// ProxyResult is produced by C14. A response-cache hit is answered by
// app.DataplaneService without building a ProxyResult, so nothing in this
// module sets Cached to true.
type ProxyResult struct {
	Response         Response
	UpstreamLatencyMs int64
	Cached           bool
}

// MaxRetries caps the configured retry count per spec.md §3's endpoint
// invariant ("retries <= 5").
const MaxRetries = 5

// Attempts returns the total dispatch-attempt count for a configured retry
// count, clamped to MaxRetries extra attempts beyond the first.
func Attempts(retries int) int {
	if retries < 0 {
		retries = 0
	}
	if retries > MaxRetries {
		retries = MaxRetries
	}
	return 1 + retries
}

// Outcome classifies one dispatch attempt's result for the retry loop.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeNetworkError
)

// String implements fmt.Stringer for diagnostics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNetworkError:
		return "network_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ShouldRetry reports whether the dispatch loop should attempt again after
// a network error on the given 1-indexed attempt out of totalAttempts.
// Timeouts never retry (spec.md §4.14 step 3).
func ShouldRetry(outcome Outcome, attempt, totalAttempts int) bool {
	return outcome == OutcomeNetworkError && attempt < totalAttempts
}
