// Package pricing resolves what a crawl request must pay and to whom.
package pricing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/crawl"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/routestore"
)

const (
	SchemeExact    = "exact"
	DefaultTimeout = 300
)

// Requirement is what a proof must satisfy for one resource. It is
// serialized verbatim into the 402 body.
type Requirement struct {
	Scheme   string `json:"scheme"`
	Network  string `json:"network"`
	Amount   string `json:"amount"`
	Resource string `json:"resource"`
	Asset    string `json:"asset"`
	PayTo    string `json:"payTo"`
	Timeout  int    `json:"timeout"`

	Currency string `json:"-"`
}

// Free reports whether nothing is owed.
func (r Requirement) Free() bool { return r.Amount == "0" }

// PriceFunc prices a request from its attributes. ok is false when the
// function has no opinion.
type PriceFunc func(req *crawl.Request) (price string, ok bool)

// PathPrice charges price for paths matching pattern.
func PathPrice(pattern, price string) PriceFunc {
	return func(req *crawl.Request) (string, bool) {
		if routestore.MatchPath(pattern, req.Path()) {
			return price, true
		}
		return "", false
	}
}

var browserUA = regexp.MustCompile(`^Mozilla/\d`)

var agentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bot`),
	regexp.MustCompile(`(?i)crawler`),
	regexp.MustCompile(`(?i)spider`),
	regexp.MustCompile(`(?i)openai`),
	regexp.MustCompile(`(?i)anthropic`),
	regexp.MustCompile(`(?i)claude`),
	regexp.MustCompile(`(?i)gpt-?[34]?`),
	regexp.MustCompile(`(?i)perplexity`),
	regexp.MustCompile(`(?i)langchain`),
	regexp.MustCompile(`(?i)llama-?index`),
	regexp.MustCompile(`(?i)headless`),
	regexp.MustCompile(`(?i)agent/`),
}

// HumanBrowsersFree prices requests from ordinary browsers at zero.
func HumanBrowsersFree() PriceFunc {
	return func(req *crawl.Request) (string, bool) {
		if IsHumanBrowser(req) {
			return "0", true
		}
		return "", false
	}
}

// IsHumanBrowser reports whether req looks like an interactive browser
// rather than an automated agent.
func IsHumanBrowser(req *crawl.Request) bool {
	if req.HeaderValue("X-AI-Agent") != "" || req.HeaderValue(crawl.HeaderCrawler) != "" {
		return false
	}
	ua := req.UserAgent()
	if !browserUA.MatchString(ua) {
		return false
	}
	for _, p := range agentPatterns {
		if p.MatchString(ua) {
			return false
		}
	}
	return true
}

// Policy resolves a Requirement from a request and its matched route. It
// holds no mutable state, so identical inputs yield identical requirements.
type Policy struct {
	// Funcs are consulted in order when the matched rule sets no price.
	Funcs []PriceFunc
	// DefaultPrice applies when neither the route nor Funcs price the request.
	DefaultPrice string
	// Timeout in seconds when the route sets none.
	Timeout int
}

// Resolve prices req against route and its matched rule.
func (p *Policy) Resolve(req *crawl.Request, route *routestore.CompiledRoute, rule *routestore.CompiledRule) (Requirement, error) {
	if route == nil {
		return Requirement{}, fmt.Errorf("no route for %s", req.Path())
	}

	decimals := DefaultDecimals
	if route.Decimals != nil {
		decimals = *route.Decimals
	}
	price := p.price(req, route, rule)
	if price == "" {
		return Requirement{}, fmt.Errorf("no price configured for %s", req.Path())
	}
	amount, err := ParseAmount(price, decimals)
	if err != nil {
		return Requirement{}, fmt.Errorf("route %s/%s: %w", route.Namespace, route.Name, err)
	}

	asset := route.Asset
	currency := DefaultCurrency
	if asset == "" {
		asset, _ = USDCAddress(route.Network)
	} else if usdc, ok := USDCAddress(route.Network); !ok || !strings.EqualFold(usdc, asset) {
		currency = asset
	}

	timeout := route.TimeoutSeconds
	if timeout <= 0 {
		timeout = p.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return Requirement{
		Scheme:   SchemeExact,
		Network:  ChainID(route.Network),
		Amount:   amount,
		Resource: req.URL(),
		Asset:    asset,
		PayTo:    route.Wallet,
		Timeout:  timeout,
		Currency: currency,
	}, nil
}

// price walks the override rule, the pricing functions and the flat defaults.
func (p *Policy) price(req *crawl.Request, route *routestore.CompiledRoute, rule *routestore.CompiledRule) string {
	if rule != nil {
		if rule.Free {
			return "0"
		}
		if rule.Mode == routestore.ModeConditional && !PaymentRequired(req, rule.Conditions) {
			return "0"
		}
		if rule.Price != "" {
			return rule.Price
		}
	}
	for _, f := range p.Funcs {
		if price, ok := f(req); ok {
			return price
		}
	}
	if route.DefaultPrice != "" {
		return route.DefaultPrice
	}
	return p.DefaultPrice
}

// PaymentRequired evaluates conditional rules against request headers. The
// first matching condition decides; with no match payment is required.
func PaymentRequired(req *crawl.Request, conditions []routestore.CompiledCondition) bool {
	for _, cond := range conditions {
		v := req.HeaderValue(cond.Header)
		if v == "" {
			continue
		}
		if cond.Pattern.MatchString(v) {
			return cond.Action != routestore.ActionFree
		}
	}
	return true
}
