package routestore

import (
	"regexp"
	"sort"
)

const (
	ModeAllPay      = "all-pay"
	ModeConditional = "conditional"

	ActionPay  = "pay"
	ActionFree = "free"
)

// CompiledRoute is an X402Route CRD after defaulting and validation.
type CompiledRoute struct {
	Name      string
	Namespace string

	// Publisher is the owner address whose license gates the route.
	Publisher string

	Wallet         string
	Network        string
	Asset          string
	// Decimals of the asset; nil means the USDC default. Zero is a valid
	// precision.
	Decimals       *int
	TimeoutSeconds int
	FacilitatorURL string

	// DefaultPrice is the route-wide human price ("0.01"), empty when unset.
	DefaultPrice string

	Rules    []CompiledRule
	Backends map[string]string // ingress path -> backend URL
}

// CompiledRule is a single route rule with optional conditions.
type CompiledRule struct {
	Path string
	// Price is the rule's own price override, empty when the rule defers.
	Price      string
	Free       bool
	Mode       string
	Conditions []CompiledCondition
}

// CompiledCondition is a pre-compiled header condition.
type CompiledCondition struct {
	Header  string
	Pattern *regexp.Regexp
	Action  string
}

// Rule returns the first rule matching path.
func (r *CompiledRoute) Rule(path string) (*CompiledRule, bool) {
	for i := range r.Rules {
		if MatchPath(r.Rules[i].Path, path) {
			return &r.Rules[i], true
		}
	}
	return nil, false
}

// Backend picks the upstream for path: exact ingress path, then the longest
// matching pattern, then the only backend.
func (r *CompiledRoute) Backend(path string) string {
	if u, ok := r.Backends[path]; ok {
		return u
	}

	patterns := make([]string, 0, len(r.Backends))
	for p := range r.Backends {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	for _, p := range patterns {
		if MatchPath(p, path) || prefixMatch(p, path) {
			return r.Backends[p]
		}
	}

	if len(patterns) == 1 {
		return r.Backends[patterns[0]]
	}
	return ""
}

// prefixMatch treats an ingress path as a Prefix path type.
func prefixMatch(ingressPath, path string) bool {
	if ingressPath == "/" {
		return true
	}
	return MatchPath(ingressPath+"/**", path)
}
