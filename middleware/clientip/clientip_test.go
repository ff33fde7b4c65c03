package clientip

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolver_PrefersTrustedHeader(t *testing.T) {
	rv := Resolver{Header: "X-Real-IP", TrustXForwardedFor: true}

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Real-IP", " 203.0.113.7 ")
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := rv.Resolve(r); got != "203.0.113.7" {
		t.Fatalf("expected header ip, got %q", got)
	}
}

func TestResolver_TrustXForwardedForUsesFirstIP(t *testing.T) {
	rv := Resolver{TrustXForwardedFor: true}

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := rv.Resolve(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestResolver_IgnoresXForwardedForWhenNotTrusted(t *testing.T) {
	rv := Resolver{}

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := rv.Resolve(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestResolver_UnmapsIPv4MappedRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "[::ffff:10.0.0.1]:80"

	if got := (Resolver{}).Resolve(r); got != "10.0.0.1" {
		t.Fatalf("expected unmapped ipv4, got %q", got)
	}
}

func TestResolver_UnknownWhenNoAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = ""

	if got := (Resolver{}).Resolve(r); got != Unknown {
		t.Fatalf("expected %q, got %q", Unknown, got)
	}
}

func TestSubnetOf(t *testing.T) {
	cases := map[string]string{
		"1.2.3.4":             "1.2.3.0/24",
		"::ffff:10.0.0.1":     "10.0.0.0/24",
		"2001:db8:abcd:12::1": "2001:db8:abcd::/48",
		"":                    Unknown,
		"not-an-ip":           "not-an-ip",
	}
	for in, want := range cases {
		if got := SubnetOf(in); got != want {
			t.Fatalf("SubnetOf(%q): expected %q, got %q", in, want, got)
		}
	}
}
