package util

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestClientIPRespectsTrustedProxies(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10", " "})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name    string
		remote  string
		xff     []string
		realIP  string
		trusted *TrustedProxies
		want    string
	}{
		{"untrusted peer ignores headers", "198.51.100.10:1234", []string{"203.0.113.5"}, "203.0.113.6", nil, "198.51.100.10"},
		{"trusted peer uses forwarded for", "10.0.0.20:1234", []string{"203.0.113.5"}, "", trusted, "203.0.113.5"},
		{"rightmost untrusted hop wins", "10.0.0.20:1234", []string{"198.51.100.1, 203.0.113.5, 10.0.0.10"}, "", trusted, "203.0.113.5"},
		{"repeated headers are joined", "192.168.1.10:80", []string{"203.0.113.9", "10.1.2.3"}, "", trusted, "203.0.113.9"},
		{"garbage forwarded falls back to real ip", "10.0.0.20:1234", []string{"nope"}, "203.0.113.7", trusted, "203.0.113.7"},
		{"fully trusted chain returns leftmost", "10.0.0.20:1234", []string{"10.0.0.5, 10.0.0.10"}, "", trusted, "10.0.0.5"},
		{"ipv4 mapped peer is unmapped", "[::ffff:10.0.0.20]:1234", []string{"203.0.113.5"}, "", trusted, "203.0.113.5"},
		{"unparsable peer is returned as is", "pipe", nil, "", trusted, "pipe"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/magazines/m1/read", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	tp, err := NewTrustedProxies([]string{"10.0.0.0/8", "2001:db8::1"})
	if err != nil {
		t.Fatalf("expected valid entries, got err: %v", err)
	}
	if !tp.Contains(netip.MustParseAddr("2001:db8::1")) || tp.Contains(netip.MustParseAddr("2001:db8::2")) {
		t.Fatalf("single address entry should match exactly")
	}
	if _, err := NewTrustedProxies([]string{"bad-cidr"}); err == nil {
		t.Fatalf("expected parse error for invalid entry")
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/99"}); err == nil {
		t.Fatalf("expected parse error for invalid prefix")
	}
	if tp, err := NewTrustedProxies(nil); err != nil || tp != nil {
		t.Fatalf("empty list should trust nobody, got %v %v", tp, err)
	}
}
