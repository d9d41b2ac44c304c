package app

import (
	"io"

	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/proxy"
	"github.com/svcgate/gateway/domain/transform"
)

// ResponseRequest carries what C15 needs to build the consumer-facing
// response from a dispatched upstream result.
type ResponseRequest struct {
	Config            connector.ResolvedConfig
	Result            proxy.ProxyResult
	UpstreamStream    io.Reader
	RequestID         string
	TraceID           string
}

// ResponseBuilder implements C15: selects the response mode per
// spec.md §4.15 and dispatches to the matching transform strategy.
type ResponseBuilder struct{}

// NewResponseBuilder builds the response assembler. Like the request
// orchestrator, every decision it makes is a pure domain/transform call.
func NewResponseBuilder() *ResponseBuilder { return &ResponseBuilder{} }

// Build runs ResolveMode then dispatches to the selected strategy.
func (b *ResponseBuilder) Build(req ResponseRequest) (transform.ResponseOutput, error) {
	conn := req.Config.Connector
	ep := req.Config.Endpoint
	resp := req.Result.Response

	upstreamCT := ""
	if vs := resp.Headers.Values("Content-Type"); len(vs) > 0 {
		upstreamCT = vs[0]
	}

	mode := transform.ResolveMode(conn.StreamingEnabled, upstreamCT, ep.ResponseBodyTransform, conn.ResponseWrapper)

	in := transform.ResponseInput{
		UpstreamStatus:        resp.Status,
		UpstreamHeaders:       map[string][]string(resp.Headers),
		UpstreamBody:          resp.Body,
		UpstreamBodyStream:    req.UpstreamStream,
		ConnectorSlug:         conn.Slug,
		ResponseWrapper:       conn.ResponseWrapper,
		StreamingEnabled:      conn.StreamingEnabled,
		ErrorMapping:          conn.ErrorMapping,
		ResponseBodyTransform: ep.ResponseBodyTransform,
		UpstreamLatencyMs:     req.Result.UpstreamLatencyMs,
		Cached:                req.Result.Cached,
		RequestID:             req.RequestID,
		TraceID:               req.TraceID,
	}

	return transform.ResolveResponseStrategy(mode)(in)
}
