package application

import (
	"regexp"
	"strings"
)

// clientes HTTP de linha de comando, crawlers e browsers headless.
var suspiciousUA = regexp.MustCompile(`(?i)curl|wget|python-requests|httpie|scrapy|spider|crawl|headless|phantom|selenium|puppeteer`)

// IsSuspiciousUA reporta UA vazio, bibliotecas HTTP, crawlers e automação.
func IsSuspiciousUA(ua string) bool {
	if strings.TrimSpace(ua) == "" {
		return true
	}
	if suspiciousUA.MatchString(ua) {
		return true
	}
	return hasBotToken(strings.ToLower(ua))
}

// "bot" conta, "bottle" não (RE2 não tem lookahead).
func hasBotToken(ua string) bool {
	for i := 0; ; {
		j := strings.Index(ua[i:], "bot")
		if j < 0 {
			return false
		}
		i += j + len("bot")
		if !strings.HasPrefix(ua[i:], "tle") {
			return true
		}
	}
}
