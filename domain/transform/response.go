package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// strippedHeaders lists upstream response headers the gateway never passes
// through (spec.md §4.7), lowercase for case-insensitive comparison.
var strippedHeaders = map[string]bool{
	"server": true, "x-powered-by": true, "x-aspnet-version": true,
	"x-aspnetmvc-version": true, "via": true, "set-cookie": true,
	"content-length": true, "transfer-encoding": true,
	"content-encoding": true, "etag": true, "last-modified": true,
}

// ResponseInput is the input to every response strategy.
type ResponseInput struct {
	UpstreamStatus        int
	UpstreamHeaders       map[string][]string
	UpstreamBody          []byte
	UpstreamBodyStream    io.Reader // set only for the streaming strategy
	ConnectorSlug         string
	ResponseWrapper       bool
	StreamingEnabled      bool
	ErrorMapping          map[int]string
	ResponseBodyTransform string
	UpstreamLatencyMs     int64
	Cached                bool
	RequestID             string
	TraceID               string
}

// ResponseOutput is the gateway's outbound response.
type ResponseOutput struct {
	Status  int
	Headers map[string]string
	Body    []byte
	Stream  io.Reader // non-nil for streaming responses
}

// ResponseStrategy builds the consumer-facing response from an upstream one.
type ResponseStrategy func(in ResponseInput) (ResponseOutput, error)

var responseStrategies = map[string]ResponseStrategy{
	"envelope":  responseEnvelope,
	"raw":       responseRaw,
	"streaming": responseStreaming,
}

// ResolveResponseStrategy applies §4.7's lookup rule: "field-map:" prefix
// always resolves to the field-map strategy; unknown names fall back to raw.
func ResolveResponseStrategy(name string) ResponseStrategy {
	if strings.HasPrefix(name, "field-map:") {
		spec := strings.TrimPrefix(name, "field-map:")
		return func(in ResponseInput) (ResponseOutput, error) { return responseFieldMap(in, spec) }
	}
	if s, ok := responseStrategies[name]; ok {
		return s
	}
	return responseRaw
}

// ResolveMode implements C15's strategy-selection algorithm.
func ResolveMode(streamingEnabled bool, upstreamContentType, responseBodyTransform string, responseWrapper bool) string {
	if streamingEnabled && strings.Contains(upstreamContentType, "text/event-stream") {
		return "streaming"
	}
	if strings.HasPrefix(responseBodyTransform, "field-map") {
		return responseBodyTransform
	}
	if responseWrapper {
		return "envelope"
	}
	return "raw"
}

func copySafeHeaders(src map[string][]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, vs := range src {
		if strippedHeaders[strings.ToLower(k)] || len(vs) == 0 {
			continue
		}
		out[k] = vs[0]
	}
	return out
}

// addGatewayHeaders is applied AFTER copying upstream headers so the
// upstream cannot spoof them.
func addGatewayHeaders(headers map[string]string, in ResponseInput, cacheStatus string) {
	headers["X-Gateway-Latency"] = strconv.FormatInt(in.UpstreamLatencyMs, 10)
	headers["X-Gateway-Cache"] = cacheStatus
	if in.RequestID != "" {
		headers["x-request-id"] = in.RequestID
	}
	if in.TraceID != "" {
		headers["x-trace-id"] = in.TraceID
	}
}

func cacheStatusOf(in ResponseInput) string {
	if in.Cached {
		return "HIT"
	}
	return "MISS"
}

func contentTypeOf(headers map[string][]string) string {
	for k, vs := range headers {
		if strings.EqualFold(k, "content-type") && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func responseEnvelope(in ResponseInput) (ResponseOutput, error) {
	headers := copySafeHeaders(in.UpstreamHeaders)
	ok := in.UpstreamStatus >= 200 && in.UpstreamStatus < 300

	ct := contentTypeOf(in.UpstreamHeaders)
	if !strings.Contains(ct, "json") {
		addGatewayHeaders(headers, in, cacheStatusOf(in))
		return ResponseOutput{Status: in.UpstreamStatus, Headers: headers, Body: in.UpstreamBody}, nil
	}

	var parsed any
	if len(in.UpstreamBody) > 0 && json.Valid(in.UpstreamBody) {
		_ = json.Unmarshal(in.UpstreamBody, &parsed)
	} else {
		parsed = string(in.UpstreamBody)
	}

	envelope := map[string]any{
		"success": ok,
		"data":    parsed,
		"meta": map[string]any{
			"connector":     in.ConnectorSlug,
			"upstreamStatus": in.UpstreamStatus,
			"latencyMs":     in.UpstreamLatencyMs,
			"cached":        in.Cached,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	if !ok {
		if msg, exists := in.ErrorMapping[in.UpstreamStatus]; exists {
			envelope["error"] = map[string]string{
				"code":    fmt.Sprintf("UPSTREAM_%d", in.UpstreamStatus),
				"message": msg,
			}
		}
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return ResponseOutput{}, fmt.Errorf("response envelope: marshal: %w", err)
	}
	headers["Content-Type"] = "application/json"
	addGatewayHeaders(headers, in, cacheStatusOf(in))
	return ResponseOutput{Status: in.UpstreamStatus, Headers: headers, Body: body}, nil
}

func responseRaw(in ResponseInput) (ResponseOutput, error) {
	headers := copySafeHeaders(in.UpstreamHeaders)
	addGatewayHeaders(headers, in, cacheStatusOf(in))
	return ResponseOutput{Status: in.UpstreamStatus, Headers: headers, Body: in.UpstreamBody}, nil
}

func responseStreaming(in ResponseInput) (ResponseOutput, error) {
	headers := copySafeHeaders(in.UpstreamHeaders)
	headers["Content-Type"] = "text/event-stream"
	headers["Cache-Control"] = "no-cache"
	headers["Connection"] = "keep-alive"
	addGatewayHeaders(headers, in, cacheStatusOf(in))
	return ResponseOutput{Status: in.UpstreamStatus, Headers: headers, Stream: in.UpstreamBodyStream}, nil
}

// responseFieldMap parses "src1->dst1,src2->dst2,…" and rebuilds a JSON
// object from the named source dot-paths into the named destination
// dot-paths. An empty spec or non-JSON body passes through unchanged.
func responseFieldMap(in ResponseInput, spec string) (ResponseOutput, error) {
	headers := copySafeHeaders(in.UpstreamHeaders)
	ct := contentTypeOf(in.UpstreamHeaders)

	if spec == "" || !strings.Contains(ct, "json") || !json.Valid(in.UpstreamBody) {
		addGatewayHeaders(headers, in, cacheStatusOf(in))
		return ResponseOutput{Status: in.UpstreamStatus, Headers: headers, Body: in.UpstreamBody}, nil
	}

	src := gjson.ParseBytes(in.UpstreamBody)
	out := []byte("{}")
	for _, pair := range strings.Split(spec, ",") {
		parts := strings.SplitN(pair, "->", 2)
		if len(parts) != 2 {
			continue
		}
		srcPath := strings.TrimSpace(parts[0])
		dstPath := strings.TrimSpace(parts[1])
		v := src.Get(srcPath)
		if !v.Exists() {
			continue
		}
		updated, err := sjson.SetRawBytes(out, dstPath, []byte(v.Raw))
		if err != nil {
			return ResponseOutput{}, fmt.Errorf("field-map: set %s: %w", dstPath, err)
		}
		out = updated
	}

	headers["Content-Type"] = "application/json"
	addGatewayHeaders(headers, in, cacheStatusOf(in))
	return ResponseOutput{Status: in.UpstreamStatus, Headers: headers, Body: out}, nil
}
