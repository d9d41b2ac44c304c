package app

import (
	"context"
	"net/url"
	"time"

	"github.com/jpillora/backoff"

	"github.com/svcgate/gateway/domain/breaker"
	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/gatewayerr"
	"github.com/svcgate/gateway/domain/hostguard"
	"github.com/svcgate/gateway/domain/proxy"
	"github.com/svcgate/gateway/domain/quota"
	"github.com/svcgate/gateway/domain/ratelimit"
	"github.com/svcgate/gateway/ports"
)

// dispatchBackoff builds the retry sleep schedule for one Dispatch call:
// 200ms, 400ms, 800ms, ... doubling per attempt, matching spec.md §4.14's
// "sleep 100 * 2^attempt ms" rule.
func dispatchBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: 200 * time.Millisecond, Factor: 2}
}

// ProxyDeps are ProxyService's external collaborators.
type ProxyDeps struct {
	Upstream    ports.UpstreamClient
	RateLimitKV ports.RateLimitKV
	QuotaKV     ports.QuotaKV

	// UsageCounter is consulted only when QuotaKV errors: it counts
	// already-persisted usage records since the current period boundary
	// (spec.md §4.5). Nil disables the fallback -- a QuotaKV error then
	// fails the request with ErrInternal, as before.
	UsageCounter ports.UsageCounter

	Breakers         *breaker.Store
	Limiters         *ratelimit.LimiterCache
	Clock            ports.Clock
	Metrics          ports.Metrics
	RateLimitEnabled bool
}

// ProxyService implements C5 (rate limit / quota), C6 (circuit breaker),
// and C14 (SSRF-checked, retrying upstream dispatch), in the pipeline
// order spec.md §4 lays out: limiter/quota gates run before the breaker
// check, which runs before any dispatch is attempted.
type ProxyService struct {
	deps ProxyDeps
}

// NewProxyService builds the dispatch orchestrator.
func NewProxyService(deps ProxyDeps) *ProxyService {
	return &ProxyService{deps: deps}
}

// Gate implements C5: consumes one point from the caller's fixed-window
// rate limit and, if configured, the daily/monthly quota counters. It
// returns the first gatewayerr encountered, or nil if the request may
// proceed.
func (s *ProxyService) Gate(ctx context.Context, scopeID, apiKeyID, callerID string, rateLimit, dailyQuota, monthlyQuota int64) error {
	now := s.deps.Clock.Now()
	consumerSuffix := ratelimit.ConsumerKey(apiKeyID, callerID)

	if rateLimit > 0 && s.deps.RateLimitEnabled {
		limiter := s.deps.Limiters.Get(rateLimit)
		key := ratelimit.Key(limiter.Limit, consumerSuffix)
		count, err := s.deps.RateLimitKV.Incr(ctx, key, ratelimit.Window)
		if err != nil {
			return gatewayerr.ErrInternal
		}
		if count > rateLimit {
			return gatewayerr.ErrRateLimited
		}
	}

	if dailyQuota > 0 {
		if err := s.checkQuota(ctx, quota.Daily, scopeID, consumerSuffix, dailyQuota, now); err != nil {
			return err
		}
	}
	if monthlyQuota > 0 {
		if err := s.checkQuota(ctx, quota.Monthly, scopeID, consumerSuffix, monthlyQuota, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *ProxyService) checkQuota(ctx context.Context, period quota.Period, scopeID, consumerSuffix string, limit int64, now time.Time) error {
	key := quota.Key(period, scopeID, consumerSuffix, now)
	count, err := s.deps.QuotaKV.Incr(ctx, key, quota.TTLUntilBoundary(period, now))
	if err != nil {
		return s.checkQuotaFallback(ctx, period, scopeID, consumerSuffix, limit, now)
	}
	if !quota.Allowed(count, limit) {
		return gatewayerr.ErrQuotaExceeded
	}
	return nil
}

// checkQuotaFallback implements spec.md §4.5's KV-unavailable path: when the
// quota counter store can't be reached, fall back to counting usage records
// already persisted since the current day/month boundary, plus the request
// now in flight.
func (s *ProxyService) checkQuotaFallback(ctx context.Context, period quota.Period, scopeID, consumerSuffix string, limit int64, now time.Time) error {
	if s.deps.UsageCounter == nil {
		return gatewayerr.ErrInternal
	}
	start, _ := quota.PeriodBounds(period, now)
	count, err := s.deps.UsageCounter.CountSince(ctx, scopeID, consumerSuffix, start)
	if err != nil {
		return gatewayerr.ErrInternal
	}
	if !quota.Allowed(count+1, limit) {
		return gatewayerr.ErrQuotaExceeded
	}
	return nil
}

// Dispatch implements C14: SSRF-validates the upstream host, checks the
// connector's circuit breaker, then dispatches with retries: the attempt
// count and retry eligibility come from domain/proxy, the sleep between
// attempts from dispatchBackoff.
func (s *ProxyService) Dispatch(ctx context.Context, conn connector.Connector, req proxy.UpstreamRequest, timeout time.Duration, retries int) (proxy.ProxyResult, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return proxy.ProxyResult{}, gatewayerr.ErrInternal
	}
	if !hostguard.Validate(u.Hostname(), conn.AllowedHosts) {
		return proxy.ProxyResult{}, gatewayerr.ErrSSRFBlocked
	}

	now := s.deps.Clock.Now()
	if !s.deps.Breakers.Allow(conn.Slug, now) {
		return proxy.ProxyResult{}, gatewayerr.ErrCircuitOpen
	}

	totalAttempts := proxy.Attempts(retries)
	bo := dispatchBackoff()

	for attempt := 1; attempt <= totalAttempts; attempt++ {
		start := time.Now()
		resp, outcome, _ := s.deps.Upstream.Do(ctx, req, timeout)
		latencyMs := time.Since(start).Milliseconds()

		if outcome == proxy.OutcomeSuccess {
			s.deps.Breakers.Success(conn.Slug, s.deps.Clock.Now())
			return proxy.ProxyResult{Response: resp, UpstreamLatencyMs: latencyMs}, nil
		}

		if outcome == proxy.OutcomeTimeout {
			s.deps.Breakers.Failure(conn.Slug, s.deps.Clock.Now())
			return proxy.ProxyResult{}, gatewayerr.ErrUpstreamTimeout
		}

		if !proxy.ShouldRetry(outcome, attempt, totalAttempts) {
			// Attempts exhausted: this is the one point in the loop that
			// counts against the breaker (spec.md §4.14 step 3), not every
			// intermediate failing attempt.
			s.deps.Breakers.Failure(conn.Slug, s.deps.Clock.Now())
			break
		}

		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveUpstreamRetry(conn.Slug)
		}
		select {
		case <-time.After(bo.Duration()):
		case <-ctx.Done():
			s.deps.Breakers.Failure(conn.Slug, s.deps.Clock.Now())
			return proxy.ProxyResult{}, gatewayerr.ErrUpstreamUnavailable
		}
	}

	return proxy.ProxyResult{}, gatewayerr.ErrUpstreamUnavailable
}

// StreamDispatch implements C14 for streamingEnabled connectors: the same
// SSRF and breaker checks as Dispatch, but a single unretriable call that
// hands the live response body back unread (spec.md §4.14: streaming
// responses must not be buffered, and are never retried).
func (s *ProxyService) StreamDispatch(ctx context.Context, conn connector.Connector, req proxy.UpstreamRequest) (proxy.ProxyResult, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return proxy.ProxyResult{}, gatewayerr.ErrInternal
	}
	if !hostguard.Validate(u.Hostname(), conn.AllowedHosts) {
		return proxy.ProxyResult{}, gatewayerr.ErrSSRFBlocked
	}

	now := s.deps.Clock.Now()
	if !s.deps.Breakers.Allow(conn.Slug, now) {
		return proxy.ProxyResult{}, gatewayerr.ErrCircuitOpen
	}

	start := time.Now()
	resp, err := s.deps.Upstream.DoStreaming(ctx, req)
	if err != nil {
		s.deps.Breakers.Failure(conn.Slug, s.deps.Clock.Now())
		return proxy.ProxyResult{}, gatewayerr.ErrUpstreamUnavailable
	}
	s.deps.Breakers.Success(conn.Slug, s.deps.Clock.Now())

	return proxy.ProxyResult{Response: resp, UpstreamLatencyMs: time.Since(start).Milliseconds()}, nil
}
