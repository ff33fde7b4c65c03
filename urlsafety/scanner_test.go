package urlsafety

import (
	"strings"
	"testing"
)

type flagSink struct {
	urls    []string
	reasons []string
}

func (f *flagSink) RecordFlagged(url, reason string) {
	f.urls = append(f.urls, url)
	f.reasons = append(f.reasons, reason)
}

func TestIsIPLiteralHost(t *testing.T) {
	ip := []string{
		"http://123.123.123.123/x",
		"http://[::1]/",
		"http://0x7f000001/",
		"http://2130706433/",
		"http://0177.0.0.1/",
		// ponto final da raiz resolve para o mesmo IP
		"http://123.123.123.123./x",
		"http://0x7f000001./",
	}
	for _, u := range ip {
		if !IsIPLiteralHost(u) {
			t.Fatalf("expected %s to be ip literal", u)
		}
	}
	for _, u := range []string{"https://example.com", "https://123abc.example.com", "not a url"} {
		if IsIPLiteralHost(u) {
			t.Fatalf("expected %s to not be ip literal", u)
		}
	}
}

func TestIsNestedShortener(t *testing.T) {
	if !IsNestedShortener("https://bit.ly/abc") || !IsNestedShortener("https://www.tinyurl.com/x") {
		t.Fatalf("expected known shorteners to match")
	}
	if !IsNestedShortener("https://bit.ly./abc") || !IsNestedShortener("https://BIT.LY./abc") {
		t.Fatalf("expected trailing root dot to still match")
	}
	if IsNestedShortener("https://example.com/bit.ly") {
		t.Fatalf("expected path mentions to not match")
	}
}

func TestHasDangerousPattern(t *testing.T) {
	bad := []string{
		"https://evil.com/login.php",
		"https://evil.com/Verify-Account?x=1",
		"https://user@evil.com/",
		"https://files.example.com/setup.EXE",
	}
	for _, u := range bad {
		if !HasDangerousPattern(u) {
			t.Fatalf("expected %s to be dangerous", u)
		}
	}
	if HasDangerousPattern("https://example.com/page") {
		t.Fatalf("expected plain page to be clean")
	}
}

func TestTrustScore(t *testing.T) {
	base := TrustScore("https://example.com")
	if base < 70 {
		t.Fatalf("expected baseline >= 70, got %d", base)
	}
	tk := TrustScore("https://example.tk")
	if tk >= base {
		t.Fatalf("expected .tk (%d) to score below .com (%d)", tk, base)
	}
	if dotted := TrustScore("https://example.tk./"); dotted != tk {
		t.Fatalf("expected example.tk. to score like example.tk (%d), got %d", tk, dotted)
	}

	long := "https://example.com/?q=" + strings.Repeat("a", 1100)
	short := "https://example.com/?q=a"
	if TrustScore(long) >= TrustScore(short) {
		t.Fatalf("expected long url to score lower")
	}

	if got := TrustScore("::not a url::"); got != 0 {
		t.Fatalf("expected 0 for unparseable input, got %d", got)
	}
}

func TestTrustScore_PenaltiesStack(t *testing.T) {
	// http (70) - tld (30) - labels>3 (10) - label>20 (20) - malware host (25) => clamp 0
	u := "http://abcdefghijklmnopqrstuvwxyz.a.b.example.xyz/"
	if got := TrustScore(u); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}

	q := "https://example.com/?" + strings.TrimSuffix(strings.Repeat("a=1&", 11), "&")
	if got := TrustScore(q); got != 70 {
		t.Fatalf("expected 80-10=70 with 11 params, got %d", got)
	}
}

func TestScanner_GateOrderAndRecording(t *testing.T) {
	sink := &flagSink{}
	s := Scanner{Flags: sink}

	cases := []struct {
		url    string
		reason Reason
	}{
		{"http://123.123.123.123/x", ReasonIPBased},
		{"https://bit.ly/abc", ReasonNestedShortener},
		{"http://123.123.123.123./x", ReasonIPBased},
		{"https://bit.ly./abc", ReasonNestedShortener},
		{"https://evil.com/login.php", ReasonDangerousPattern},
		{"http://abcdefghijklmnopqrstuvwxyz.a.b.example.xyz/", ReasonLowTrustScore},
	}
	for _, c := range cases {
		v := s.Gate(c.url)
		if v.Allowed || v.Reason != c.reason {
			t.Fatalf("%s: expected reject %q, got %+v", c.url, c.reason, v)
		}
	}
	if len(sink.reasons) != len(cases) {
		t.Fatalf("expected every rejection to be recorded, got %d", len(sink.reasons))
	}

	ok := s.Gate("https://example.com/page")
	if !ok.Allowed || !ok.HasTrustScore || ok.TrustScore != 80 {
		t.Fatalf("expected allow with score 80, got %+v", ok)
	}
	if len(sink.reasons) != len(cases) {
		t.Fatalf("expected allowed url to not be recorded")
	}
}
