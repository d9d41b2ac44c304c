package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/svcgate/gateway/domain/usage"
	"github.com/svcgate/gateway/ports"
)

// UsageStore implements ports.UsageStore using SQLite, the durable sink
// for the usage.Buffer's flushed batches (C16).
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// RecordBatch stores multiple usage records in one transaction, matching
// the teacher's batched-insert idiom for flush-driven writers.
func (s *UsageStore) RecordBatch(ctx context.Context, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records (
			scope_id, connector_id, endpoint_name, api_key_id, caller_type, caller_id,
			method, path, status_code, latency_ms, upstream_latency_ms,
			request_bytes, response_bytes, cached, error, region, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ScopeID, r.ConnectorID, r.EndpointName, r.ApiKeyID, r.CallerType, r.CallerID,
			r.Method, r.Path, r.StatusCode, r.LatencyMs, r.UpstreamLatencyMs,
			r.RequestBytes, r.ResponseBytes, boolToInt(r.Cached), r.Error, r.Region, r.Timestamp.UTC(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CountSince implements ports.UsageCounter, the C5 fallback path consulted
// when QuotaKV errors out: it counts usage_records already persisted for
// this scope/consumer since a period boundary (domain/quota.PeriodBounds).
// consumerSuffix is ratelimit.ConsumerKey's output -- either a raw api key
// ID, or "session:<userID>" for the session-auth path.
func (s *UsageStore) CountSince(ctx context.Context, scopeID, consumerSuffix string, since time.Time) (int64, error) {
	var count int64
	var err error
	if callerID, ok := strings.CutPrefix(consumerSuffix, "session:"); ok {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM usage_records
			WHERE scope_id = ? AND caller_type = 'session' AND caller_id = ? AND occurred_at >= ?
		`, scopeID, callerID, since.UTC()).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM usage_records
			WHERE scope_id = ? AND api_key_id = ? AND occurred_at >= ?
		`, scopeID, consumerSuffix, since.UTC()).Scan(&count)
	}
	return count, err
}

// Cleanup removes usage records older than a retention boundary.
func (s *UsageStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM usage_records WHERE occurred_at < ?
	`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

var (
	_ ports.UsageStore   = (*UsageStore)(nil)
	_ ports.UsageCounter = (*UsageStore)(nil)
)
