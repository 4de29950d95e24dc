package routestore

import "strings"

// MatchPath reports whether path matches pattern.
//   - "/api/v1/users" matches only itself
//   - "/api/*" and "/api/**" match "/api" and anything below it
//   - "/api/*/posts" matches one segment in place of the *
func MatchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}

	for _, suffix := range []string{"/**", "/*"} {
		if !strings.HasSuffix(pattern, suffix) {
			continue
		}
		prefix := strings.TrimRight(strings.TrimSuffix(pattern, suffix), "/")
		if prefix == "" {
			return true
		}
		clean := strings.TrimRight(path, "/")
		return clean == prefix || strings.HasPrefix(clean, prefix+"/")
	}

	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if seg != "*" && seg != got[i] {
			return false
		}
	}
	return true
}
