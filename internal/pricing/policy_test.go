package pricing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"reflect"
	"regexp"
	"testing"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/crawl"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/routestore"
)

const wallet = "0x1111111111111111111111111111111111111111"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		decimals int
		want     string
		wantErr  bool
	}{
		{name: "dollar cent", price: "$0.01", decimals: 6, want: "10000"},
		{name: "plain cent", price: "0.01", decimals: 6, want: "10000"},
		{name: "whole", price: "1", decimals: 6, want: "1000000"},
		{name: "mixed", price: "$1.50", decimals: 6, want: "1500000"},
		{name: "smallest unit", price: "0.000001", decimals: 6, want: "1"},
		{name: "floors extra digits", price: "0.0000019", decimals: 6, want: "1"},
		{name: "floors to zero", price: "0.0000001", decimals: 6, want: "0"},
		{name: "leading dot", price: ".5", decimals: 2, want: "50"},
		{name: "zero", price: "0", decimals: 6, want: "0"},
		{name: "zero decimals", price: "12.99", decimals: 0, want: "12"},
		{name: "whitespace", price: "  $0.10 ", decimals: 6, want: "100000"},
		{name: "empty", price: "", decimals: 6, wantErr: true},
		{name: "bare dollar", price: "$", decimals: 6, wantErr: true},
		{name: "negative", price: "-0.01", decimals: 6, wantErr: true},
		{name: "letters", price: "abc", decimals: 6, wantErr: true},
		{name: "double dot", price: "0.0.1", decimals: 6, wantErr: true},
		{name: "lone dot", price: ".", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.price, tt.decimals)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.price, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAmount(%q) = %q, want %q", tt.price, got, tt.want)
			}
		})
	}
}

func newRequest(t *testing.T, rawURL string, header http.Header) *crawl.Request {
	t.Helper()
	req, err := crawl.New(http.MethodGet, rawURL, header, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func testRoute() *routestore.CompiledRoute {
	return &routestore.CompiledRoute{
		Name:      "news",
		Namespace: "default",
		Wallet:    wallet,
		Network:   "base-sepolia",
		Rules: []routestore.CompiledRule{
			{Path: "/free/**", Free: true, Mode: routestore.ModeAllPay},
			{Path: "/premium/**", Price: "$0.05", Mode: routestore.ModeAllPay},
			{Path: "/conditional/**", Mode: routestore.ModeConditional, Conditions: []routestore.CompiledCondition{
				{Header: "User-Agent", Pattern: regexp.MustCompile(`(?i)bot`), Action: routestore.ActionPay},
				{Header: "User-Agent", Pattern: regexp.MustCompile(`Mozilla`), Action: routestore.ActionFree},
			}},
			{Path: "/**", Mode: routestore.ModeAllPay},
		},
	}
}

func resolve(t *testing.T, p *Policy, route *routestore.CompiledRoute, req *crawl.Request) Requirement {
	t.Helper()
	rule, ok := route.Rule(req.Path())
	if !ok {
		t.Fatalf("no rule for %s", req.Path())
	}
	got, err := p.Resolve(req, route, rule)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return got
}

func TestResolveArticleScenario(t *testing.T) {
	p := &Policy{DefaultPrice: "$0.01"}
	req := newRequest(t, "https://news.example.com/article/1", nil)

	got := resolve(t, p, testRoute(), req)

	want := Requirement{
		Scheme:   SchemeExact,
		Network:  "eip155:84532",
		Amount:   "10000",
		Resource: "https://news.example.com/article/1",
		Asset:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:    wallet,
		Timeout:  DefaultTimeout,
		Currency: DefaultCurrency,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %+v\nwant %+v", got, want)
	}
}

func TestResolveStrategies(t *testing.T) {
	p := &Policy{
		DefaultPrice: "0.01",
		Funcs: []PriceFunc{
			HumanBrowsersFree(),
			PathPrice("/reports/**", "0.25"),
		},
	}
	browser := http.Header{"User-Agent": {"Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0"}}
	bot := http.Header{"User-Agent": {"Mozilla/5.0 (compatible; GPTBot/1.1)"}}

	tests := []struct {
		name   string
		url    string
		header http.Header
		want   string
	}{
		{name: "free rule", url: "http://h/free/a", header: bot, want: "0"},
		{name: "override beats funcs", url: "http://h/premium/x", header: browser, want: "50000"},
		{name: "conditional pay", url: "http://h/conditional/x", header: bot, want: "10000"},
		{name: "conditional free", url: "http://h/conditional/x", header: browser, want: "0"},
		{name: "conditional no header", url: "http://h/conditional/x", want: "10000"},
		{name: "func human browser", url: "http://h/article/1", header: browser, want: "0"},
		{name: "func path price", url: "http://h/reports/q3", header: bot, want: "250000"},
		{name: "flat default", url: "http://h/article/1", header: bot, want: "10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolve(t, p, testRoute(), newRequest(t, tt.url, tt.header))
			if got.Amount != tt.want {
				t.Errorf("Amount = %q, want %q", got.Amount, tt.want)
			}
			if (tt.want == "0") != got.Free() {
				t.Errorf("Free() = %v for amount %q", got.Free(), got.Amount)
			}
		})
	}
}

func TestResolveRouteDefaults(t *testing.T) {
	route := testRoute()
	route.DefaultPrice = "2"
	two := 2
	route.Decimals = &two
	route.TimeoutSeconds = 60
	route.Asset = "0x2222222222222222222222222222222222222222"

	got := resolve(t, &Policy{DefaultPrice: "0.01", Timeout: 120}, route, newRequest(t, "http://h/x", nil))
	if got.Amount != "200" {
		t.Errorf("Amount = %q, want route default at route decimals", got.Amount)
	}
	if got.Timeout != 60 {
		t.Errorf("Timeout = %d, want 60", got.Timeout)
	}
	if got.Asset != route.Asset || got.Currency != route.Asset {
		t.Errorf("Asset/Currency = %q/%q", got.Asset, got.Currency)
	}
}

func TestResolveZeroDecimalAsset(t *testing.T) {
	route := testRoute()
	route.DefaultPrice = "3"
	zero := 0
	route.Decimals = &zero

	got := resolve(t, &Policy{}, route, newRequest(t, "http://h/x", nil))
	if got.Amount != "3" {
		t.Errorf("Amount = %q, want 3 whole units", got.Amount)
	}
}

func TestResolveIsPure(t *testing.T) {
	p := &Policy{DefaultPrice: "0.01", Funcs: []PriceFunc{PathPrice("/premium/**", "1")}}
	route := testRoute()
	header := http.Header{"User-Agent": {"ClaudeBot/1.0"}, "Accept": {"text/html"}}

	first := resolve(t, p, route, newRequest(t, "https://h/article/1?page=2", header))
	second := resolve(t, p, route, newRequest(t, "https://h/article/1?page=2", header))

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("requirements differ: %+v vs %+v", first, second)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("serialized requirements differ:\n%s\n%s", a, b)
	}
}

func TestResolveErrors(t *testing.T) {
	req := newRequest(t, "http://h/x", nil)
	route := testRoute()
	rule, _ := route.Rule("/x")

	if _, err := (&Policy{}).Resolve(req, route, rule); err == nil {
		t.Error("expected error when nothing prices the request")
	}
	if _, err := (&Policy{DefaultPrice: "cheap"}).Resolve(req, route, rule); err == nil {
		t.Error("expected error for an unparseable price")
	}
	if _, err := (&Policy{DefaultPrice: "1"}).Resolve(req, nil, nil); err == nil {
		t.Error("expected error without a route")
	}
}

func TestChainID(t *testing.T) {
	if got := ChainID("base"); got != "eip155:8453" {
		t.Errorf("ChainID(base) = %q", got)
	}
	if got := ChainID("eip155:1"); got != "eip155:1" {
		t.Errorf("ChainID passthrough = %q", got)
	}
	if got := NumericChainID("base-sepolia"); got != "84532" {
		t.Errorf("NumericChainID = %q", got)
	}
	if !SameNetwork("base", "EIP155:8453") {
		t.Error("SameNetwork should normalize friendly names")
	}
}
