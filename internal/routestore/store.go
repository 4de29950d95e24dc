package routestore

import (
	"sort"
	"sync"
)

// Store is a thread-safe in-memory route store shared between the controller and gateway.
type Store struct {
	mu     sync.RWMutex
	routes map[string]*CompiledRoute // key: "namespace/name"
}

func New() *Store {
	return &Store{routes: make(map[string]*CompiledRoute)}
}

func key(namespace, name string) string { return namespace + "/" + name }

// Set adds or replaces a compiled route.
func (s *Store) Set(namespace, name string, route *CompiledRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[key(namespace, name)] = route
}

func (s *Store) Delete(namespace, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, key(namespace, name))
}

// Get returns a single route by namespace and name.
func (s *Store) Get(namespace, name string) (*CompiledRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[key(namespace, name)]
	return r, ok
}

// Snapshot returns the routes ordered by namespace/name.
func (s *Store) Snapshot() []*CompiledRoute {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.routes))
	for k := range s.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]*CompiledRoute, 0, len(keys))
	for _, k := range keys {
		result = append(result, s.routes[k])
	}
	return result
}

// Match returns the first route, in Snapshot order, with a rule for path.
func (s *Store) Match(path string) (*CompiledRoute, *CompiledRule, bool) {
	for _, route := range s.Snapshot() {
		if rule, ok := route.Rule(path); ok {
			return route, rule, true
		}
	}
	return nil, nil, false
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routes)
}
