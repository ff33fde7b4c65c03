// Package proxydetect marca sinais de proxy/Tor/anonimizador e IPs de faixas
// privadas, e anota o resultado no contexto (secmeta) para os estágios seguintes.
package proxydetect

import (
	"errors"
	"net/http"
	"net/netip"
	"strings"

	"shortlink-gateway/middleware/clientip"
	"shortlink-gateway/middleware/secmeta"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const DefaultMaxHops = 5

var ErrTooManyHops = errors.New("too many proxy hops")

// headers cuja simples presença indica proxy/anonimizador.
var proxyHeaders = []string{
	"Via",
	"X-Proxy-Id",
	"Forwarded",
	"X-Tor",
	"X-Tor-Exit-Node",
	"X-Anonymous",
}

// faixas RFC1918. Heurística, não é GeoIP.
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

type Detector struct {
	Resolver clientip.Resolver
	MaxHops  int
}

// Inspect devolve os metadados da request ou ErrTooManyHops.
func (d Detector) Inspect(r *http.Request) (*secmeta.Meta, error) {
	maxHops := d.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" && countHops(xff) > maxHops {
		return nil, ErrTooManyHops
	}

	ip := d.Resolver.Resolve(r)
	m := &secmeta.Meta{
		ClientIP:     ip,
		Subnet:       clientip.SubnetOf(ip),
		UserAgent:    r.Header.Get("User-Agent"),
		Proxied:      xff != "",
		DataCenterIP: IsPrivateRange(ip),
	}
	for _, h := range proxyHeaders {
		if r.Header.Get(h) != "" {
			m.Proxied = true
			break
		}
	}
	return m, nil
}

func countHops(xff string) int {
	n := 0
	for _, p := range strings.Split(xff, ",") {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// IsPrivateRange verifica o IP (sem o prefixo ::ffff:) contra as faixas RFC1918.
func IsPrivateRange(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimPrefix(strings.TrimSpace(ip), "::ffff:"))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware rejeita com 403 cadeias de proxy longas demais e anota secmeta.Meta.
func Middleware(d Detector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m, err := d.Inspect(r)
			if err != nil {
				log.Warn().Str("remote", r.RemoteAddr).Msg("rejected request: too many proxy hops")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "Request blocked: too many proxy hops detected.",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(secmeta.WithMeta(r.Context(), m)))
		})
	}
}
