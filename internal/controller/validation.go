package controller

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// blockedPrefixes are address ranges a facilitator may never resolve to.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// validateFacilitatorURL rejects facilitator URLs that would let a route
// author point the gateway's verification calls at internal addresses.
// In-cluster service names may use plain HTTP; everything else needs HTTPS.
func validateFacilitatorURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed, must be http or https", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("missing hostname")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("hostname %q is not allowed", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return fmt.Errorf("IP address %s is in a private or reserved range", host)
		}
		if u.Scheme != "https" {
			return fmt.Errorf("HTTP not allowed for IP address %s, use HTTPS", host)
		}
		return nil
	}

	if u.Scheme == "http" && !clusterLocal(host) {
		return fmt.Errorf("HTTP not allowed for external hostname %q, use HTTPS", host)
	}
	return nil
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clusterLocal matches bare service names and *.svc / *.svc.cluster.local.
func clusterLocal(host string) bool {
	return !strings.Contains(host, ".") ||
		strings.HasSuffix(host, ".svc") ||
		strings.HasSuffix(host, ".svc.cluster.local")
}
