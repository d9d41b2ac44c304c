package connector

import (
	"sort"
	"strings"
)

// segKind classifies one path segment of a pattern.
type segKind int

const (
	segLiteral segKind = iota
	segParam
	segCatchAll
)

type segment struct {
	kind segKind
	name string // for segParam/segCatchAll
	lit  string // for segLiteral
}

func splitPattern(pattern string) []segment {
	pattern = strings.TrimPrefix(pattern, "/")
	if pattern == "" {
		return nil
	}
	parts := strings.Split(pattern, "/")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		switch {
		case strings.HasPrefix(p, ":") && strings.HasSuffix(p, "*"):
			segs = append(segs, segment{kind: segCatchAll, name: strings.TrimSuffix(strings.TrimPrefix(p, ":"), "*")})
		case strings.HasPrefix(p, ":"):
			segs = append(segs, segment{kind: segParam, name: strings.TrimPrefix(p, ":")})
		default:
			segs = append(segs, segment{kind: segLiteral, lit: p})
		}
	}
	return segs
}

// specificity returns a sort key where higher values must be tried first:
// concrete segments outrank :param, :param outranks :param*.
func specificity(segs []segment) [3]int {
	var literals, params, catchAll int
	for _, s := range segs {
		switch s.kind {
		case segLiteral:
			literals++
		case segParam:
			params++
		case segCatchAll:
			catchAll++
		}
	}
	return [3]int{literals, params, -catchAll}
}

// MatchPath reports whether consumerPath matches pattern, returning any
// captured :param/:param* values by name.
func MatchPath(pattern, consumerPath string) (params map[string]string, ok bool) {
	patSegs := splitPattern(pattern)
	pathParts := strings.Split(strings.TrimPrefix(consumerPath, "/"), "/")
	if len(patSegs) == 0 && strings.TrimPrefix(consumerPath, "/") == "" {
		return map[string]string{}, true
	}

	params = make(map[string]string)
	for i, seg := range patSegs {
		switch seg.kind {
		case segCatchAll:
			if i >= len(pathParts) {
				return nil, false
			}
			rest := pathParts[i:]
			if len(rest) == 0 || (len(rest) == 1 && rest[0] == "") {
				return nil, false // catch-all requires >= 1 trailing segment
			}
			params[seg.name] = strings.Join(rest, "/")
			return params, i == len(patSegs)-1
		case segParam:
			if i >= len(pathParts) || pathParts[i] == "" {
				return nil, false
			}
			params[seg.name] = pathParts[i]
		default:
			if i >= len(pathParts) || pathParts[i] != seg.lit {
				return nil, false
			}
		}
	}
	return params, len(patSegs) == len(pathParts)
}

// CandidateEndpoint pairs an Endpoint with its match outcome, used by
// SelectEndpoint.
type CandidateEndpoint struct {
	Endpoint Endpoint
	Params   map[string]string
}

// SelectEndpoint sorts candidates (enabled, method-matching) by descending
// specificity and returns the first whose path pattern matches
// consumerPath, per spec.md §4.8's algorithm step 3.
func SelectEndpoint(endpoints []Endpoint, method, consumerPath string) (CandidateEndpoint, bool) {
	candidates := make([]Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if !e.Enabled {
			continue
		}
		if !strings.EqualFold(e.Method, method) {
			continue
		}
		candidates = append(candidates, e)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si := specificity(splitPattern(candidates[i].Path))
		sj := specificity(splitPattern(candidates[j].Path))
		if si[0] != sj[0] {
			return si[0] > sj[0]
		}
		if si[1] != sj[1] {
			return si[1] > sj[1]
		}
		return si[2] > sj[2]
	})

	for _, e := range candidates {
		if params, ok := MatchPath(e.Path, consumerPath); ok {
			return CandidateEndpoint{Endpoint: e, Params: params}, true
		}
	}
	return CandidateEndpoint{}, false
}

// SubstitutePath replaces :param/:param* segments in upstreamPattern with
// the values captured by matching the consumer's inbound path against the
// endpoint's own path pattern (spec.md §4.13 step 1: "substitute :param /
// :param* ... using the consumer path segments by position").
func SubstitutePath(upstreamPattern string, params map[string]string) string {
	segs := splitPattern(upstreamPattern)
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s.kind {
		case segLiteral:
			out = append(out, s.lit)
		case segParam:
			out = append(out, params[s.name])
		case segCatchAll:
			out = append(out, params[s.name])
		}
	}
	return "/" + strings.Join(out, "/")
}
