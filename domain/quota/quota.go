// Package quota implements the daily/monthly quota counters of spec.md
// §4.5. Pure helpers for key schemas, TTL computation, and the
// allow/deny decision; the actual atomic increment lives in the external
// KV (adapters/kv) with a persisted-usage fallback (adapters/sqlite) when
// the KV is unavailable.
package quota

import "time"

// Period distinguishes the daily and monthly counters.
type Period string

const (
	Daily   Period = "d"
	Monthly Period = "m"
)

// Key builds the quota KV key: "gw:quota:d:<scopeId>:<consumerSuffix>:<YYYYMMDD>"
// or "gw:quota:m:<scopeId>:<consumerSuffix>:<YYYYMM>".
func Key(period Period, scopeID, consumerSuffix string, at time.Time) string {
	var stamp string
	if period == Daily {
		stamp = at.UTC().Format("20060102")
	} else {
		stamp = at.UTC().Format("200601")
	}
	return "gw:quota:" + string(period) + ":" + scopeID + ":" + consumerSuffix + ":" + stamp
}

// TTLUntilBoundary returns the duration remaining until the end of the
// current UTC day (Daily) or month (Monthly) from "at" — used to set the
// KV key's expiry on the first increment of a period.
func TTLUntilBoundary(period Period, at time.Time) time.Duration {
	at = at.UTC()
	var boundary time.Time
	if period == Daily {
		boundary = time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	} else {
		boundary = time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	}
	return boundary.Sub(at)
}

// PeriodBounds returns the [start, end) of the UTC day or month containing t,
// used for the persisted-usage fallback when the KV is unavailable.
func PeriodBounds(period Period, t time.Time) (start, end time.Time) {
	t = t.UTC()
	if period == Daily {
		start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
		return
	}
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return
}

// Allowed decides whether a request is permitted given the post-increment
// count and the configured limit. Per spec.md §9's open question, the rule
// chosen here is: reject when the incremented count would EXCEED the
// limit, i.e. allow iff newCount <= limit. A non-positive limit means
// unlimited.
func Allowed(newCount, limit int64) bool {
	if limit <= 0 {
		return true
	}
	return newCount <= limit
}
