// Package sigv4 implements AWS Signature Version 4 request signing for
// S3-compatible upstreams (spec.md §4.3).
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SignInput carries everything needed to sign one HTTP request.
type SignInput struct {
	Method      string
	URL         string // full URL including query string
	Headers     map[string]string
	Body        []byte
	AccessKey   string
	SecretKey   string
	Region      string
	Service     string
	SignPayload bool // default false: uses UNSIGNED-PAYLOAD
	Now         time.Time
}

// Sign returns a copy of Headers with host, x-amz-date, x-amz-content-sha256
// and authorization added; in.Headers itself is left unchanged.
func Sign(in SignInput) (map[string]string, error) {
	u, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("sigv4: parse url: %w", err)
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	headers := make(map[string]string, len(in.Headers)+3)
	for k, v := range in.Headers {
		headers[k] = v
	}
	headers["host"] = u.Host
	headers["x-amz-date"] = amzDate

	payloadHash := "UNSIGNED-PAYLOAD"
	if in.SignPayload {
		payloadHash = hashHex(in.Body)
	}
	headers["x-amz-content-sha256"] = payloadHash

	canonicalHeaders, signedHeaders := canonicalizeHeaders(headers)
	canonicalReq := strings.Join([]string{
		strings.ToUpper(in.Method),
		encodePath(u.EscapedPath()),
		canonicalQuery(u.RawQuery),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, in.Region, in.Service)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		hashHex([]byte(canonicalReq)),
	}, "\n")

	signingKey := deriveSigningKey(in.SecretKey, dateStamp, in.Region, in.Service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	headers["authorization"] = fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		in.AccessKey, credentialScope, signedHeaders, signature,
	)

	return headers, nil
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func deriveSigningKey(secretKey, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

// canonicalizeHeaders lowercases+trims keys/values, sorts lexicographically,
// and returns the canonical header block plus the ";"-joined signed header
// list.
func canonicalizeHeaders(headers map[string]string) (canonical string, signed string) {
	keys := make([]string, 0, len(headers))
	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lk := strings.ToLower(strings.TrimSpace(k))
		lower[lk] = strings.TrimSpace(v)
		keys = append(keys, lk)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(lower[k])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(keys, ";")
}

// canonicalQuery percent-encodes keys/values and sorts by key, tie-broken
// by value.
func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, _ := url.ParseQuery(rawQuery)
	type kv struct{ k, v string }
	var pairs []kv
	for k, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, kv{k: awsEscape(k), v: awsEscape(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.k+"="+p.v)
	}
	return strings.Join(parts, "&")
}

// encodePath splits on "/", URL-encodes each decoded segment, and rejoins,
// per the AWS canonical-path rule.
func encodePath(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			decoded = seg
		}
		segments[i] = awsEscape(decoded)
	}
	return strings.Join(segments, "/")
}

// awsEscape percent-encodes per RFC 3986 with AWS's unreserved set
// (A-Z a-z 0-9 - _ . ~), matching url.QueryEscape but with "~" unescaped
// and space encoded as %20 rather than "+".
func awsEscape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}
