// Package urlsafety pontua e filtra URLs de destino antes do encurtamento:
// hosts IP, encurtadores aninhados, padrões de phishing/malware e trust score.
package urlsafety

import (
	"net/url"
	"regexp"
	"strings"
)

// encurtadores conhecidos (bloqueio de encurtamento aninhado).
var shortenerDomains = map[string]struct{}{
	"bit.ly": {}, "tinyurl.com": {}, "goo.gl": {}, "t.co": {}, "ow.ly": {}, "is.gd": {},
	"buff.ly": {}, "adf.ly": {}, "bl.ink": {}, "lnkd.in": {}, "db.tt": {}, "qr.ae": {},
	"rebrand.ly": {}, "rb.gy": {}, "short.io": {}, "cutt.ly": {}, "shorturl.at": {},
	"tiny.cc": {}, "v.gd": {}, "vo.la": {}, "clck.ru": {}, "trib.al": {}, "su.pr": {},
}

var suspiciousTLDs = map[string]struct{}{
	"tk": {}, "ml": {}, "ga": {}, "cf": {}, "gq": {}, "xyz": {}, "top": {},
	"work": {}, "click": {}, "link": {}, "buzz": {}, "surf": {}, "icu": {},
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)login.*\.php$`),
	regexp.MustCompile(`(?i)signin.*\.html$`),
	regexp.MustCompile(`(?i)verify[-_]?account`),
	regexp.MustCompile(`(?i)secure[-_]?update`),
	regexp.MustCompile(`(?i)confirm[-_]?identity`),
	regexp.MustCompile(`(?i)account[-_]?verify`),
	regexp.MustCompile(`(?i)wallet[-_]?connect`),
	regexp.MustCompile(`(?i)password[-_]?reset`),
	regexp.MustCompile(`@`), // credencial embutida
	regexp.MustCompile(`(?i)\.(exe|bat|cmd|scr|pif|msi|dll|vbs|js|wsf|ps1)$`),
}

var malwareHostPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^[a-z0-9]{20,}\.`), // subdomínio aleatório longo
	regexp.MustCompile(`\d{3,}\.`),
}

var (
	dottedQuad   = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
	bareIPv6     = regexp.MustCompile(`(?i)^[0-9a-f:]+$`)
	hexIP        = regexp.MustCompile(`(?i)^0x[0-9a-f]+$`)
	decimalIP    = regexp.MustCompile(`^\d{8,}$`)
	numericLabel = regexp.MustCompile(`(?i)^(0x[0-9a-f]+|\d+)$`)
)

// parse aceita só URLs absolutas com host.
func parse(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

// hostOf normaliza o host: minúsculo e sem o ponto final da raiz
// ("bit.ly." resolve igual a "bit.ly").
func hostOf(u *url.URL) string {
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// IsIPLiteralHost: IPv4 com pontos, IPv6 (com ou sem colchetes) ou IP codificado
// em hex/decimal/octal.
func IsIPLiteralHost(raw string) bool {
	u, ok := parse(raw)
	if !ok {
		return false
	}
	if strings.HasPrefix(u.Host, "[") {
		return true
	}
	host := hostOf(u)
	if dottedQuad.MatchString(host) {
		return true
	}
	if strings.Contains(host, ":") && bareIPv6.MatchString(host) {
		return true
	}
	if hexIP.MatchString(host) || decimalIP.MatchString(host) {
		return true
	}
	return allNumericLabels(host)
}

// ex: 0177.0.0.1, 0x7f.1
func allNumericLabels(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !numericLabel.MatchString(l) {
			return false
		}
	}
	return true
}

func IsNestedShortener(raw string) bool {
	u, ok := parse(raw)
	if !ok {
		return false
	}
	host := strings.TrimPrefix(hostOf(u), "www.")
	_, found := shortenerDomains[host]
	return found
}

// HasDangerousPattern testa a URL inteira (path, query e userinfo).
func HasDangerousPattern(raw string) bool {
	for _, p := range dangerousPatterns {
		if p.MatchString(raw) {
			return true
		}
	}
	return false
}

// TrustScore devolve 0..100; 0 para URL que não parseia.
func TrustScore(raw string) int {
	u, ok := parse(raw)
	if !ok {
		return 0
	}
	host := hostOf(u)
	score := 70

	if strings.EqualFold(u.Scheme, "https") {
		score += 10
	}

	labels := strings.Split(host, ".")
	if _, bad := suspiciousTLDs[labels[len(labels)-1]]; bad {
		score -= 30
	}

	if len(labels) > 3 {
		score -= 10
	}
	for _, l := range labels {
		if len(l) > 20 {
			score -= 20
			break
		}
	}

	for _, p := range malwareHostPatterns {
		if p.MatchString(host) {
			score -= 25
			break
		}
	}

	if len(raw) > 500 {
		score -= 10
	}
	if len(raw) > 1000 {
		score -= 10
	}

	if len(strings.Split(u.RawQuery, "&")) > 10 {
		score -= 10
	}

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
