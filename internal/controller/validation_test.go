package controller

import (
	"net/netip"
	"testing"
)

func TestValidateFacilitatorURLAccepts(t *testing.T) {
	for _, u := range []string{
		"https://x402.org/facilitator",
		"https://facilitator.example.com:8443/verify",
		"https://mock-facilitator:8080",
		"http://mock-facilitator:8080",
		"http://my-facilitator",
		"http://facilitator.payments.svc",
		"http://facilitator.payments.svc.cluster.local:8080",
		"https://[2606:4700::1111]/verify",
	} {
		if err := validateFacilitatorURL(u); err != nil {
			t.Errorf("validateFacilitatorURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateFacilitatorURLRejects(t *testing.T) {
	rejected := map[string][]string{
		"scheme": {
			"ftp://example.com/file",
			"file:///etc/passwd",
			"gopher://evil.com",
		},
		"no host": {
			"https:///path",
		},
		"plain http outside the cluster": {
			"http://example.com/verify",
			"http://facilitator.example.com:8080",
			"http://8.8.8.8/verify",
		},
		"local hostname": {
			"http://localhost:8080",
			"https://localhost",
			"https://api.localhost",
			"https://metadata.internal",
			"https://foo.bar.internal",
		},
		"internal address": {
			"https://127.0.0.2",
			"https://10.0.0.1:8080/verify",
			"https://172.31.255.255",
			"https://192.168.1.1",
			"https://169.254.169.254/latest/meta-data/",
			"https://100.127.255.255",
			"https://[::1]:8080",
			"https://[fc00::1]",
			"https://[fdff::1]",
			"https://[fe80::1]",
			"https://[::ffff:127.0.0.1]",
			"https://[::ffff:100.64.0.1]",
		},
	}

	for reason, urls := range rejected {
		t.Run(reason, func(t *testing.T) {
			for _, u := range urls {
				if err := validateFacilitatorURL(u); err == nil {
					t.Errorf("validateFacilitatorURL(%q) accepted", u)
				}
			}
		})
	}
}

// lastAddr returns the highest address inside p.
func lastAddr(p netip.Prefix) netip.Addr {
	b := p.Masked().Addr().AsSlice()
	for i := p.Bits(); i < len(b)*8; i++ {
		b[i/8] |= 0x80 >> (i % 8)
	}
	last, _ := netip.AddrFromSlice(b)
	return last
}

func TestBlockedPrefixEdges(t *testing.T) {
	for _, p := range blockedPrefixes {
		first, last := p.Masked().Addr(), lastAddr(p)
		for _, a := range []netip.Addr{first, last} {
			if !blockedAddr(a) {
				t.Errorf("%s: %s not blocked", p, a)
			}
			if a.Is4() && !blockedAddr(netip.AddrFrom16(a.As16())) {
				t.Errorf("%s: mapped %s not blocked", p, a)
			}
		}
	}
}

func TestBlockedAddr(t *testing.T) {
	tests := []struct {
		addr    string
		blocked bool
	}{
		// carrier-grade NAT, 100.64.0.0/10
		{"100.63.255.255", false},
		{"100.64.0.0", true},
		{"100.127.255.255", true},
		{"100.128.0.0", false},

		// 172.16.0.0/12
		{"172.15.255.255", false},
		{"172.16.0.0", true},
		{"172.31.255.255", true},
		{"172.32.0.0", false},

		{"126.255.255.255", false},
		{"128.0.0.0", false},
		{"169.253.255.255", false},
		{"169.255.0.0", false},
		{"192.167.255.255", false},
		{"192.169.0.0", false},
		{"1.0.0.0", false},

		// unique local, fc00::/7
		{"fbff:ffff:ffff:ffff:ffff:ffff:ffff:ffff", false},
		{"fc00::1", true},
		{"fdff::1", true},
		{"fe00::1", false},

		// link-local, fe80::/10
		{"fe7f:ffff:ffff:ffff:ffff:ffff:ffff:ffff", false},
		{"febf:ffff:ffff:ffff:ffff:ffff:ffff:ffff", true},
		{"fec0::", false},

		{"::", true},
		{"::2", false},
		{"2001:db8::1", false},

		// IPv4-mapped IPv6 is judged by its IPv4 address.
		{"::ffff:10.1.2.3", true},
		{"::ffff:100.100.0.1", true},
		{"::ffff:172.32.0.1", false},
		{"::ffff:8.8.8.8", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			addr := netip.MustParseAddr(tt.addr)
			if got := blockedAddr(addr); got != tt.blocked {
				t.Errorf("blockedAddr(%s) = %v, want %v", addr, got, tt.blocked)
			}
		})
	}
}

func TestClusterLocal(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"mock-facilitator", true},
		{"facilitator.payments.svc", true},
		{"facilitator.payments.svc.cluster.local", true},
		{"example.com", false},
		{"svc.example.com", false},
		{"payments.svc.example.com", false},
	}

	for _, tt := range tests {
		if got := clusterLocal(tt.host); got != tt.want {
			t.Errorf("clusterLocal(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}
