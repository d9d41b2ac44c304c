// Package transform implements the C7 strategy registries: body, auth
// injection, and response. Each registry is a name->impl map with O(1)
// lookup and a prefix rule for the parameterized strategies
// ("extract:<path>", "field-map:<spec>"), per spec.md §4.7 and §9's
// guidance to express this as either a tagged dispatch or an interface
// table indexed by name. Dot-path JSON access uses
// github.com/tidwall/gjson/sjson, grounded in eugener-gandalf's provider
// translation layer.
package transform

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// BodyInput is the input to every body strategy.
type BodyInput struct {
	BodyTransform       string // strategy name, possibly "extract:<dotPath>"
	ConsumerBody        string
	ConsumerBodyRaw     []byte
	UpstreamStaticBody  string
}

// BodyOutput carries the resulting payload; Undefined distinguishes "no
// body" from an empty-string body.
type BodyOutput struct {
	Bytes     []byte
	Undefined bool
}

func undefinedBody() BodyOutput { return BodyOutput{Undefined: true} }

// BodyStrategy transforms a consumer request body into an upstream body.
type BodyStrategy func(in BodyInput) BodyOutput

var bodyStrategies = map[string]BodyStrategy{
	"passthrough": bodyPassthrough,
	"static":      bodyStatic,
	"template":    bodyTemplate,
	"binary":      bodyBinary,
	"form-encode": bodyFormEncode,
}

// ResolveBodyStrategy applies the lookup rule of spec.md §4.7: a name
// beginning with "extract:" always resolves to the extract strategy;
// any other unknown name falls back to passthrough.
func ResolveBodyStrategy(name string) BodyStrategy {
	if strings.HasPrefix(name, "extract:") {
		dotPath := strings.TrimPrefix(name, "extract:")
		return func(in BodyInput) BodyOutput { return bodyExtract(in, dotPath) }
	}
	if s, ok := bodyStrategies[name]; ok {
		return s
	}
	return bodyPassthrough
}

func bodyPassthrough(in BodyInput) BodyOutput {
	if in.ConsumerBody == "" {
		return undefinedBody()
	}
	return BodyOutput{Bytes: []byte(in.ConsumerBody)}
}

func bodyStatic(in BodyInput) BodyOutput {
	if in.UpstreamStaticBody == "" {
		return undefinedBody()
	}
	return BodyOutput{Bytes: []byte(in.UpstreamStaticBody)}
}

var templateVarPattern = regexp.MustCompile(`\{\{body\.([A-Za-z0-9_.\[\]]+)\}\}`)

func bodyTemplate(in BodyInput) BodyOutput {
	if !json.Valid([]byte(in.ConsumerBody)) {
		return BodyOutput{Bytes: []byte(in.ConsumerBody)}
	}
	parsed := gjson.Parse(in.ConsumerBody)
	result := templateVarPattern.ReplaceAllStringFunc(in.UpstreamStaticBody, func(match string) string {
		dotPath := templateVarPattern.FindStringSubmatch(match)[1]
		v := parsed.Get(dotPath)
		if !v.Exists() {
			return ""
		}
		return v.String()
	})
	return BodyOutput{Bytes: []byte(result)}
}

func bodyExtract(in BodyInput, dotPath string) BodyOutput {
	if !json.Valid([]byte(in.ConsumerBody)) {
		return BodyOutput{Bytes: []byte(in.ConsumerBody)}
	}
	parsed := gjson.Parse(in.ConsumerBody)
	v := parsed.Get(dotPath)
	if !v.Exists() {
		return BodyOutput{Bytes: []byte(in.ConsumerBody)}
	}
	return BodyOutput{Bytes: []byte(v.Raw)}
}

func bodyBinary(in BodyInput) BodyOutput {
	if len(in.ConsumerBodyRaw) == 0 {
		return undefinedBody()
	}
	return BodyOutput{Bytes: in.ConsumerBodyRaw}
}

const formEncodeMaxDepth = 10

func bodyFormEncode(in BodyInput) BodyOutput {
	if !json.Valid([]byte(in.ConsumerBody)) {
		return BodyOutput{Bytes: []byte(in.ConsumerBody)}
	}
	var obj any
	if err := json.Unmarshal([]byte(in.ConsumerBody), &obj); err != nil {
		return BodyOutput{Bytes: []byte(in.ConsumerBody)}
	}
	values := url.Values{}
	flattenForm("", obj, values, 0)
	return BodyOutput{Bytes: []byte(values.Encode())}
}

// flattenForm serializes obj to bracket-notation form fields
// (card[number]=…, items[0]=…), skipping null/undefined values.
func flattenForm(prefix string, v any, out url.Values, depth int) {
	if depth > formEncodeMaxDepth {
		return
	}
	switch val := v.(type) {
	case nil:
		return
	case map[string]any:
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "[" + k + "]"
			}
			flattenForm(key, child, out, depth+1)
		}
	case []any:
		for i, child := range val {
			key := fmt.Sprintf("%s[%d]", prefix, i)
			flattenForm(key, child, out, depth+1)
		}
	case string:
		out.Set(prefix, val)
	case float64:
		out.Set(prefix, strconv.FormatFloat(val, 'f', -1, 64))
	case bool:
		out.Set(prefix, strconv.FormatBool(val))
	}
}
