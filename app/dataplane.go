package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	realclientip "github.com/realclientip/realclientip-go"
	"github.com/rs/zerolog"

	"github.com/svcgate/gateway/domain/authn"
	"github.com/svcgate/gateway/domain/cache"
	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/gatewayerr"
	"github.com/svcgate/gateway/domain/hostguard"
	"github.com/svcgate/gateway/domain/proxy"
	"github.com/svcgate/gateway/domain/scope"
	"github.com/svcgate/gateway/domain/usage"
	"github.com/svcgate/gateway/domain/validate"
)

// MaxBodyBytes is the absolute ceiling the HTTP adapter applies when
// reading a request body, independent of any configured endpoint or plan
// maxRequestSize -- those are checked afterward against the actual count.
const MaxBodyBytes = 10 << 20

// DataplaneDeps wires every C8-C16 service into the C17 top-level
// orchestrator.
type DataplaneDeps struct {
	Authn        *AuthnService
	Resolver     *ResolverService
	Access       *AccessService
	Secrets      *SecretService
	Orchestrator *Orchestrator
	Proxy        *ProxyService
	Response     *ResponseBuilder
	Usage        *UsageService
	Log          zerolog.Logger
}

// DataplaneService implements C17: the full per-request pipeline of
// spec.md §4.17.
type DataplaneService struct {
	deps            DataplaneDeps
	responseCache   *cache.Cache[cache.Entry]
	clientIPStrategy realclientip.Strategy
}

const defaultResponseCacheSize = 1000

// NewDataplaneService builds the dataplane handler with its own response
// cache (C4). responseCacheSize comes from config.CacheConfig.ResponseMaxEntries;
// a value <= 0 falls back to defaultResponseCacheSize.
func NewDataplaneService(deps DataplaneDeps, responseCacheSize int) *DataplaneService {
	if responseCacheSize <= 0 {
		responseCacheSize = defaultResponseCacheSize
	}
	return &DataplaneService{
		deps:          deps,
		responseCache: cache.New[cache.Entry](responseCacheSize),
		clientIPStrategy: realclientip.NewChainStrategy(
			realclientip.Must(realclientip.NewRightmostNonPrivateStrategy("X-Forwarded-For")),
			realclientip.RemoteAddrStrategy{},
		),
	}
}

// Result is what the HTTP adapter renders back to the consumer.
type Result struct {
	Status        int
	Headers       map[string]string
	Body          []byte
	Stream        io.Reader
	ConnectorSlug string
	EndpointName  string
	Cached        bool
}

// Handle runs the dataplane pipeline for one inbound request against
// connector slug, matched consumer path, and body already read into
// memory by the caller (the HTTP adapter owns the size-limited read).
func (d *DataplaneService) Handle(ctx context.Context, r *http.Request, slug, consumerPath string, body []byte) (Result, error) {
	requestID := r.Header.Get("x-request-id")
	traceID := r.Header.Get("x-trace-id")
	start := time.Now()

	result, usageRec, err := d.run(ctx, r, slug, consumerPath, body, requestID, traceID)
	usageRec.LatencyMs = time.Since(start).Milliseconds()
	usageRec.Timestamp = start.UTC()
	if err != nil {
		if ge, ok := err.(*gatewayerr.Error); ok {
			usageRec.StatusCode = ge.HTTPStatus
			usageRec.Error = ge.Code
		} else {
			usageRec.StatusCode = http.StatusInternalServerError
			usageRec.Error = gatewayerr.ErrInternal.Code
		}
	} else {
		usageRec.StatusCode = result.Status
		usageRec.ResponseBytes = int64(len(result.Body))
	}
	d.deps.Usage.Record(context.Background(), usageRec)

	return result, err
}

func (d *DataplaneService) run(ctx context.Context, r *http.Request, slug, consumerPath string, body []byte, requestID, traceID string) (Result, usage.Record, error) {
	rec := usage.Record{
		ConnectorID:  slug,
		Method:       r.Method,
		Path:         consumerPath,
		RequestBytes: int64(len(body)),
	}

	auth, err := d.deps.Authn.Authenticate(ctx, r)
	if err != nil || auth == nil {
		return Result{}, rec, gatewayerr.ErrUnauthenticated
	}
	rec.ApiKeyID = auth.ApiKeyID
	rec.CallerType = string(auth.CallerType)
	rec.CallerID = auth.CallerID

	config, found, err := d.deps.Resolver.Resolve(ctx, scope.Parse(auth.ScopeID), slug, r.Method, consumerPath)
	if err != nil {
		return Result{}, rec, gatewayerr.ErrInternal
	}
	if !found {
		config, found, err = d.deps.Resolver.Resolve(ctx, scope.NewPublic(), slug, r.Method, consumerPath)
		if err != nil {
			return Result{}, rec, gatewayerr.ErrInternal
		}
		if !found {
			return Result{}, rec, gatewayerr.ErrConfigNotFound
		}
	}
	rec.ConnectorID = config.Connector.ID
	rec.EndpointName = config.Endpoint.Name
	rec.ScopeID = auth.ScopeID

	allowed, err := d.deps.Access.Verify(ctx, auth, config.Connector)
	if err != nil {
		return Result{}, rec, gatewayerr.ErrInternal
	}
	if !allowed {
		return Result{}, rec, gatewayerr.ErrForbidden
	}
	rec.ScopeID = auth.ScopeID

	if !authn.HasEndpointAccess(auth.AllowedEndpoints, config.Endpoint.Name) {
		return Result{}, rec, gatewayerr.ErrForbidden
	}
	if len(auth.AllowedIPs) > 0 {
		ip := d.clientIPStrategy.ClientIP(r.Header, r.RemoteAddr)
		ip, _ = realclientip.SplitHostZone(ip)
		if ip == "" || !hostguard.MatchIPAllowlist(ip, auth.AllowedIPs) {
			return Result{}, rec, gatewayerr.ErrForbidden
		}
	}

	maxSize := auth.MaxRequestSize
	if config.Endpoint.MaxRequestSize > 0 && (maxSize <= 0 || config.Endpoint.MaxRequestSize < maxSize) {
		maxSize = config.Endpoint.MaxRequestSize
	}
	if maxSize > 0 && int64(len(body)) > maxSize {
		return Result{}, rec, gatewayerr.ErrRequestTooLarge
	}

	if err := d.deps.Proxy.Gate(ctx, auth.ScopeID, auth.ApiKeyID, auth.CallerID, auth.RateLimit, auth.DailyQuota, auth.MonthlyQuota); err != nil {
		return Result{}, rec, err
	}

	if err := validate.Run(validate.Input{
		Headers:         r.Header,
		Body:            body,
		RequiredHeaders: config.Endpoint.RequiredHeaders,
		BodyPattern:     config.Endpoint.BodyPattern,
		BodyBlacklist:   config.Endpoint.BodyBlacklist,
		BodySchema:      config.Endpoint.BodySchema,
	}); err != nil {
		return Result{}, rec, err
	}

	cacheKey := ""
	if r.Method == http.MethodGet && config.Endpoint.CacheTTLSeconds > 0 {
		cacheKey = responseCacheKey(auth.ScopeID, slug, r.Method, consumerPath, body)
		if entry, ok := d.responseCache.Get(cacheKey); ok {
			rec.Cached = true
			headers := make(map[string]string, len(entry.Headers))
			for k, vs := range entry.Headers {
				if len(vs) > 0 {
					headers[k] = vs[0]
				}
			}
			return Result{
				Status:        entry.Status,
				Headers:       headers,
				Body:          entry.Body,
				ConnectorSlug: slug,
				EndpointName:  config.Endpoint.Name,
				Cached:        true,
			}, rec, nil
		}
	}

	secrets := d.deps.Secrets.Resolve(ctx, auth.ScopeID, slug, config.Connector.SecretRefs)

	pathParams, _ := connector.MatchPath(config.Endpoint.Path, consumerPath)
	upstreamReq, err := d.deps.Orchestrator.Build(OrchestratorRequest{
		Config:          config,
		PathParams:      pathParams,
		ConsumerMethod:  r.Method,
		ConsumerURL:     r.URL,
		ConsumerHeaders: r.Header,
		ConsumerBody:    body,
		Secrets:         secrets,
		RequestID:       requestID,
		TraceID:         traceID,
	})
	if err != nil {
		return Result{}, rec, gatewayerr.ErrInternal
	}

	var proxyResult proxy.ProxyResult
	if config.Connector.StreamingEnabled {
		proxyResult, err = d.deps.Proxy.StreamDispatch(ctx, config.Connector, upstreamReq)
	} else {
		proxyResult, err = d.deps.Proxy.Dispatch(ctx, config.Connector, upstreamReq, config.EffectiveTimeout(), config.Endpoint.Retries)
	}
	if err != nil {
		return Result{}, rec, err
	}
	rec.UpstreamLatencyMs = proxyResult.UpstreamLatencyMs

	respOut, err := d.deps.Response.Build(ResponseRequest{
		Config:         config,
		Result:         proxyResult,
		UpstreamStream: proxyResult.Response.Stream,
		RequestID:      requestID,
		TraceID:        traceID,
	})
	if err != nil {
		return Result{}, rec, gatewayerr.ErrInternal
	}

	if cacheKey != "" && respOut.Stream == nil {
		headers := make(map[string][]string, len(respOut.Headers))
		for k, v := range respOut.Headers {
			headers[k] = []string{v}
		}
		d.responseCache.Set(cacheKey, cache.Entry{
			Body:    respOut.Body,
			Status:  respOut.Status,
			Headers: headers,
		}, time.Duration(config.Endpoint.CacheTTLSeconds)*time.Second)
	}

	return Result{
		Status:        respOut.Status,
		Headers:       respOut.Headers,
		Body:          respOut.Body,
		Stream:        respOut.Stream,
		ConnectorSlug: slug,
		EndpointName:  config.Endpoint.Name,
	}, rec, nil
}

func responseCacheKey(scopeID, slug, method, path string, body []byte) string {
	if strings.EqualFold(method, http.MethodGet) {
		body = nil
	}
	return cache.BuildResponseKey(scopeID, slug, method, path, body)
}
