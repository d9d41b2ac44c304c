// Package validate implements C12's request validation checks, run in
// order and failing fast on the first violation (spec.md §4.12).
package validate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/svcgate/gateway/domain/connector"
	"github.com/svcgate/gateway/domain/gatewayerr"
)

const maxBodyPatternLen = 1_000_000

// Input is everything C12 needs to validate one inbound request.
type Input struct {
	Headers         http.Header
	Body            []byte
	RequiredHeaders []string
	BodyPattern     string
	BodyBlacklist   []string
	BodySchema      *connector.JSONSchema
}

// Run executes the checks in order; the first violation short-circuits.
func Run(in Input) error {
	if err := checkRequiredHeaders(in.Headers, in.RequiredHeaders); err != nil {
		return err
	}
	if err := checkBodyPattern(in.Body, in.BodyPattern); err != nil {
		return err
	}
	if err := checkBlacklist(in.Body, in.BodyBlacklist); err != nil {
		return err
	}
	if err := checkSchema(in.Body, in.BodySchema); err != nil {
		return err
	}
	return nil
}

func checkRequiredHeaders(headers http.Header, required []string) error {
	for _, name := range required {
		if headers.Get(name) == "" {
			return gatewayerr.Validation(fmt.Sprintf("required-header:%s", name))
		}
	}
	return nil
}

func checkBodyPattern(body []byte, pattern string) error {
	if pattern == "" || len(body) > maxBodyPatternLen {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		// An invalid regex is a configuration error, not a request rejection.
		panic(fmt.Sprintf("validate: invalid bodyPattern configuration: %v", err))
	}
	if !re.Match(body) {
		return gatewayerr.Validation("body-pattern")
	}
	return nil
}

func checkBlacklist(body []byte, blacklist []string) error {
	if len(blacklist) == 0 {
		return nil
	}
	lower := strings.ToLower(string(body))
	for _, word := range blacklist {
		if strings.Contains(lower, strings.ToLower(word)) {
			return gatewayerr.Validation("body-blacklist")
		}
	}
	return nil
}

func checkSchema(body []byte, schema *connector.JSONSchema) error {
	if schema == nil {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return gatewayerr.Validation("body-schema:parse")
	}

	switch schema.Type {
	case "object":
		obj, ok := parsed.(map[string]any)
		if !ok {
			return gatewayerr.Validation("body-schema:type")
		}
		for _, req := range schema.Required {
			if _, present := obj[req]; !present {
				return gatewayerr.Validation(fmt.Sprintf("body-schema:required:%s", req))
			}
		}
		for prop, wantType := range schema.Properties {
			v, present := obj[prop]
			if !present {
				continue
			}
			if !matchesPrimitive(v, wantType) {
				return gatewayerr.Validation(fmt.Sprintf("body-schema:property:%s", prop))
			}
		}
	case "array":
		if _, ok := parsed.([]any); !ok {
			return gatewayerr.Validation("body-schema:type")
		}
	}
	return nil
}

func matchesPrimitive(v any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}
