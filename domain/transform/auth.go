package transform

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/svcgate/gateway/domain/sigv4"
)

// AuthInput is the input to every auth-injection strategy. Headers and URL
// are mutated in place (URL is replaced via the returned value since Go
// strings are immutable).
type AuthInput struct {
	Headers         map[string]string
	AuthConfig      map[string]any
	Secrets         map[string]string
	ConnectorSlug   string
	Method          string
	URL             string
	Body            []byte
}

// AuthOutput carries the (possibly rewritten) URL; Headers are mutated
// directly on the input map.
type AuthOutput struct {
	URL string
}

// AuthStrategy injects credentials into an upstream request.
type AuthStrategy func(in AuthInput) (AuthOutput, error)

var authStrategies = map[string]AuthStrategy{
	"none":   authNone,
	"bearer": authBearer,
	"basic":  authBasic,
	"header": authHeader,
	"query":  authQuery,
	"aws-s3": authAWSS3,
}

// ResolveAuthStrategy falls back to "none" for unknown names.
func ResolveAuthStrategy(name string) AuthStrategy {
	if s, ok := authStrategies[name]; ok {
		return s
	}
	return authNone
}

const warningHeader = "X-Gateway-Warning"
const warningMissingSecret = "missing-auth-secret"

func authNone(in AuthInput) (AuthOutput, error) {
	return AuthOutput{URL: in.URL}, nil
}

func cfgString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func authBearer(in AuthInput) (AuthOutput, error) {
	ref := cfgString(in.AuthConfig, "tokenRef", "token")
	token := in.Secrets[ref]
	if token == "" {
		in.Headers[warningHeader] = warningMissingSecret
		return AuthOutput{URL: in.URL}, nil
	}
	in.Headers["Authorization"] = "Bearer " + token
	return AuthOutput{URL: in.URL}, nil
}

func authBasic(in AuthInput) (AuthOutput, error) {
	userRef := cfgString(in.AuthConfig, "usernameRef", "username")
	passRef := cfgString(in.AuthConfig, "passwordRef", "password")
	user := in.Secrets[userRef]
	pass := in.Secrets[passRef]
	if user == "" && pass == "" {
		in.Headers[warningHeader] = warningMissingSecret
		return AuthOutput{URL: in.URL}, nil
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	in.Headers["Authorization"] = "Basic " + encoded
	return AuthOutput{URL: in.URL}, nil
}

var secretRefPattern = regexp.MustCompile(`\{\{secrets\.([A-Za-z0-9_-]+)\}\}`)

// InterpolateSecrets replaces {{secrets.NAME}} references; unresolved
// references collapse to the empty string, and resolved indicates whether
// every reference found a value.
func InterpolateSecrets(value string, secrets map[string]string) (result string, resolved bool) {
	resolved = true
	result = secretRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := secretRefPattern.FindStringSubmatch(match)[1]
		v, ok := secrets[name]
		if !ok || v == "" {
			resolved = false
			return ""
		}
		return v
	})
	return result, resolved
}

func authHeader(in AuthInput) (AuthOutput, error) {
	headersCfg, _ := in.AuthConfig["headers"].(map[string]any)
	anyUnresolved := false
	for k, rawV := range headersCfg {
		v, _ := rawV.(string)
		resolvedVal, ok := InterpolateSecrets(v, in.Secrets)
		if !ok {
			anyUnresolved = true
		}
		in.Headers[k] = resolvedVal
	}
	if anyUnresolved {
		in.Headers[warningHeader] = warningMissingSecret
	}
	return AuthOutput{URL: in.URL}, nil
}

func authQuery(in AuthInput) (AuthOutput, error) {
	paramName := cfgString(in.AuthConfig, "paramName", "key")
	secretRef := cfgString(in.AuthConfig, "secretRef", "token")
	val := in.Secrets[secretRef]
	if val == "" {
		in.Headers[warningHeader] = warningMissingSecret
		return AuthOutput{URL: in.URL}, nil
	}

	u, err := url.Parse(in.URL)
	if err != nil {
		return AuthOutput{}, fmt.Errorf("auth query: parse url: %w", err)
	}
	q := u.Query()
	q.Set(paramName, val)
	u.RawQuery = q.Encode()
	return AuthOutput{URL: u.String()}, nil
}

func authAWSS3(in AuthInput) (AuthOutput, error) {
	accessRef := cfgString(in.AuthConfig, "accessKeyRef", "access_key")
	secretRef := cfgString(in.AuthConfig, "secretKeyRef", "secret_key")
	region := cfgString(in.AuthConfig, "region", "us-east-1")
	service := cfgString(in.AuthConfig, "service", "s3")

	accessKey := in.Secrets[accessRef]
	secretKey := in.Secrets[secretRef]
	if accessKey == "" || secretKey == "" {
		return AuthOutput{URL: in.URL}, nil
	}

	signed, err := sigv4.Sign(sigv4.SignInput{
		Method:    strings.ToUpper(in.Method),
		URL:       in.URL,
		Headers:   in.Headers,
		Body:      in.Body,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Region:    region,
		Service:   service,
	})
	if err != nil {
		return AuthOutput{}, err
	}
	for k, v := range signed {
		in.Headers[k] = v
	}
	return AuthOutput{URL: in.URL}, nil
}
