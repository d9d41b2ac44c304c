package app

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/proxy"
	"github.com/svcgate/gateway/domain/transform"
)

// OrchestratorRequest carries everything C13 needs to build the upstream
// request: the resolved config, the matched path params, the inbound
// consumer request's relevant parts, and the secrets already resolved
// by C11.
type OrchestratorRequest struct {
	Config          connector.ResolvedConfig
	PathParams      map[string]string
	ConsumerMethod  string
	ConsumerURL     *url.URL
	ConsumerHeaders http.Header
	ConsumerBody    []byte
	Secrets         map[string]string
	RequestID       string
	TraceID         string
}

// Orchestrator implements C13: builds a proxy.UpstreamRequest by
// substituting the path, resolving query params, mapping headers,
// transforming the body, and injecting auth.
type Orchestrator struct{}

// NewOrchestrator builds the request orchestrator. It has no external
// collaborators; every transform it drives is a pure domain function.
func NewOrchestrator() *Orchestrator { return &Orchestrator{} }

// Build assembles the upstream request per spec.md §4.13's steps, in
// order: path substitution, query merge, method resolution, header
// mapping, body transform, auth injection.
func (o *Orchestrator) Build(req OrchestratorRequest) (proxy.UpstreamRequest, error) {
	conn := req.Config.Connector
	ep := req.Config.Endpoint

	upstreamPath := ep.UpstreamPath
	if upstreamPath == "" {
		upstreamPath = ep.Path
	}
	path := connector.SubstitutePath(upstreamPath, req.PathParams)

	base := strings.TrimRight(conn.UpstreamBaseURL, "/")
	fullURL := base + path

	q := url.Values{}
	if req.ConsumerURL != nil {
		for k, vs := range req.ConsumerURL.Query() {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
	}
	for _, kv := range ep.UpstreamQueryParams {
		q.Set(kv.Key, kv.Value)
	}
	if len(q) > 0 {
		fullURL += "?" + q.Encode()
	}

	method := ep.UpstreamMethod
	if method == "" {
		method = ep.Method
	}

	headers := make(http.Header)
	if req.ConsumerHeaders != nil {
		if ct := req.ConsumerHeaders.Get("Content-Type"); ct != "" {
			headers.Set("Content-Type", ct)
		}
	}
	if ep.UpstreamContentType != "" {
		headers.Set("Content-Type", ep.UpstreamContentType)
	}
	if req.RequestID != "" {
		headers.Set("X-Request-Id", req.RequestID)
	}
	if req.TraceID != "" {
		headers.Set("X-Trace-Id", req.TraceID)
	}
	for k, v := range ep.HeaderMapping {
		resolved, _ := transform.InterpolateSecrets(v, req.Secrets)
		headers.Set(k, resolved)
	}

	bodyOut := transform.ResolveBodyStrategy(ep.BodyTransformName)(transform.BodyInput{
		BodyTransform:      ep.BodyTransformName,
		ConsumerBody:       string(req.ConsumerBody),
		ConsumerBodyRaw:    req.ConsumerBody,
		UpstreamStaticBody: ep.UpstreamStaticBody,
	})
	var body []byte
	if !bodyOut.Undefined {
		body = bodyOut.Bytes
	}

	headerMap := make(map[string]string, len(headers))
	for k := range headers {
		headerMap[k] = headers.Get(k)
	}

	authOut, err := transform.ResolveAuthStrategy(conn.AuthType)(transform.AuthInput{
		Headers:       headerMap,
		AuthConfig:    conn.AuthConfig,
		Secrets:       req.Secrets,
		ConnectorSlug: conn.Slug,
		Method:        method,
		URL:           fullURL,
		Body:          body,
	})
	if err != nil {
		return proxy.UpstreamRequest{}, err
	}
	for k, v := range headerMap {
		headers.Set(k, v)
	}

	return proxy.UpstreamRequest{
		URL:     authOut.URL,
		Method:  method,
		Headers: headers,
		Body:    body,
	}, nil
}
