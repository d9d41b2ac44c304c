// Package usage implements C16's record type and buffering policy. All
// functions here are pure; the actual batched writes go through
// ports.UsageStore.
package usage

import "time"

// Record is produced at the end of every completed request, success or
// error (spec.md §3).
type Record struct {
	ScopeID           string
	ConnectorID       string
	EndpointName      string
	ApiKeyID          string
	CallerType        string // "session"|"apiKey"
	CallerID          string
	Method            string
	Path              string
	StatusCode        int
	LatencyMs         int64
	UpstreamLatencyMs int64
	RequestBytes      int64
	ResponseBytes     int64
	Cached            bool
	Error             string
	Region            string
	Timestamp         time.Time
}

// Flush trigger thresholds for the long-lived deployment mode (spec.md
// §4.16).
const (
	FlushSoftThreshold = 50
	FlushHardThreshold = 500
	FlushInterval      = 5 * time.Second
	FlushMaxRetries    = 2
)
