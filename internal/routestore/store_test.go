package routestore

import (
	"fmt"
	"sync"
	"testing"
)

func TestMatchPath(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/article/1", "/article/1", true},
		{"/article/1", "/article/2", false},
		{"/article/*", "/article", true},
		{"/article/*", "/article/1", true},
		{"/article/*", "/article/1/comments", true},
		{"/premium/**", "/premium/a/b/c", true},
		{"/premium/**", "/premiumx", false},
		{"/**", "/anything/at/all", true},
		{"/api/*/posts", "/api/7/posts", true},
		{"/api/*/posts", "/api/7/comments", false},
		{"/api/*/posts", "/api/7/posts/1", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			if got := MatchPath(tt.pattern, tt.path); got != tt.want {
				t.Errorf("MatchPath(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestStoreMatchIsDeterministic(t *testing.T) {
	s := New()
	s.Set("b", "route", &CompiledRoute{Name: "b", Rules: []CompiledRule{{Path: "/**"}}})
	s.Set("a", "route", &CompiledRoute{Name: "a", Rules: []CompiledRule{{Path: "/article/*"}}})

	for i := 0; i < 20; i++ {
		route, rule, ok := s.Match("/article/1")
		if !ok {
			t.Fatal("expected a match")
		}
		if route.Name != "a" || rule.Path != "/article/*" {
			t.Fatalf("Match() = %s %s, want a /article/*", route.Name, rule.Path)
		}
	}

	route, _, ok := s.Match("/other")
	if !ok || route.Name != "b" {
		t.Errorf("Match(/other) should fall through to the catch-all route")
	}
}

func TestStoreNoMatch(t *testing.T) {
	s := New()
	s.Set("ns", "r", &CompiledRoute{Rules: []CompiledRule{{Path: "/api/*"}}})
	if _, _, ok := s.Match("/web"); ok {
		t.Error("expected no match for /web")
	}
	s.Delete("ns", "r")
	if s.Count() != 0 {
		t.Errorf("Count() = %d after delete", s.Count())
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("r%d", i)
			s.Set("ns", name, &CompiledRoute{Name: name, Rules: []CompiledRule{{Path: "/x"}}})
			s.Match("/x")
			s.Snapshot()
		}(i)
	}
	wg.Wait()
	if s.Count() != 16 {
		t.Errorf("Count() = %d, want 16", s.Count())
	}
}

func TestBackend(t *testing.T) {
	route := &CompiledRoute{Backends: map[string]string{
		"/":        "http://web.default.svc.cluster.local:80",
		"/api":     "http://api.default.svc.cluster.local:8080",
		"/api/v2":  "http://api2.default.svc.cluster.local:8080",
		"/static/": "http://static.default.svc.cluster.local:80",
	}}

	tests := []struct {
		path string
		want string
	}{
		{"/api", "http://api.default.svc.cluster.local:8080"},
		{"/api/users", "http://api.default.svc.cluster.local:8080"},
		{"/api/v2/users", "http://api2.default.svc.cluster.local:8080"},
		{"/article/1", "http://web.default.svc.cluster.local:80"},
	}
	for _, tt := range tests {
		if got := route.Backend(tt.path); got != tt.want {
			t.Errorf("Backend(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	single := &CompiledRoute{Backends: map[string]string{"/app": "http://app:80"}}
	if got := single.Backend("/elsewhere"); got != "http://app:80" {
		t.Errorf("single backend fallback = %q", got)
	}
}
