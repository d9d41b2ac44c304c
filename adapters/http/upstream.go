package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	"github.com/svcgate/gateway/domain/hostguard"
	"github.com/svcgate/gateway/domain/proxy"
	"github.com/svcgate/gateway/ports"
)

// UpstreamClient dispatches C14's resolved requests to connector upstreams.
// A dnscache.Resolver sits in the dial path so the IP actually connected to
// is re-checked against hostguard's private-range rules -- the host-level
// allowlist check happens earlier in app/proxy.go, but a hostname that
// resolves differently between that check and the TCP dial (DNS rebinding)
// would otherwise slip through.
type UpstreamClient struct {
	client   *http.Client
	resolver *dnscache.Resolver
}

// UpstreamConfig tunes the shared transport pool.
type UpstreamConfig struct {
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// NewUpstreamClient builds an UpstreamClient with connection pooling and
// rebinding-safe DNS resolution.
func NewUpstreamClient(cfg UpstreamConfig) *UpstreamClient {
	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle == 0 {
		maxIdle = 100
	}
	idleTimeout := cfg.IdleConnTimeout
	if idleTimeout == 0 {
		idleTimeout = 90 * time.Second
	}

	resolver := &dnscache.Resolver{}

	transport := &http.Transport{
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     idleTimeout,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				if hostguard.IsPrivate(ip) {
					lastErr = errors.New("upstream: resolved address is private, dial refused")
					continue
				}
				var d net.Dialer
				conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = errors.New("upstream: no addresses returned")
			}
			return nil, lastErr
		},
	}

	return &UpstreamClient{
		client:   &http.Client{Transport: transport},
		resolver: resolver,
	}
}

var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// Do sends req with a per-attempt cancellation timeout and classifies the
// outcome for C14's retry loop.
func (u *UpstreamClient) Do(ctx context.Context, req proxy.UpstreamRequest, timeout time.Duration) (proxy.Response, proxy.Outcome, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return proxy.Response{}, proxy.OutcomeNetworkError, err
	}
	for k, vs := range req.Headers {
		if _, hop := hopByHopHeaders[k]; hop {
			continue
		}
		httpReq.Header[k] = vs
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			return proxy.Response{}, proxy.OutcomeTimeout, err
		}
		return proxy.Response{}, proxy.OutcomeNetworkError, err
	}
	defer resp.Body.Close()

	const maxResponseBody = 32 << 20
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			return proxy.Response{}, proxy.OutcomeTimeout, err
		}
		return proxy.Response{}, proxy.OutcomeNetworkError, err
	}

	headers := make(http.Header)
	for k, vs := range resp.Header {
		if _, hop := hopByHopHeaders[k]; hop {
			continue
		}
		headers[k] = vs
	}

	return proxy.Response{
		Status:  resp.StatusCode,
		Headers: headers,
		Body:    respBody,
	}, proxy.OutcomeSuccess, nil
}

// DoStreaming sends req and returns the live response body unread as
// Response.Stream, for connectors with streamingEnabled; the caller owns
// closing it, and a retry is never attempted once the body starts flowing
// (spec.md §4.14).
func (u *UpstreamClient) DoStreaming(ctx context.Context, req proxy.UpstreamRequest) (proxy.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return proxy.Response{}, err
	}
	for k, vs := range req.Headers {
		if _, hop := hopByHopHeaders[k]; hop {
			continue
		}
		httpReq.Header[k] = vs
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return proxy.Response{}, err
	}

	headers := make(http.Header)
	for k, vs := range resp.Header {
		if _, hop := hopByHopHeaders[k]; hop {
			continue
		}
		headers[k] = vs
	}

	return proxy.Response{Status: resp.StatusCode, Headers: headers, Stream: resp.Body}, nil
}

// Close releases pooled idle connections.
func (u *UpstreamClient) Close() error {
	u.client.CloseIdleConnections()
	return nil
}

var _ ports.UpstreamClient = (*UpstreamClient)(nil)
