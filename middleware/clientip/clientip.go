// Package clientip extrai e normaliza o IP do cliente e a subnet correspondente.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown é usado quando não há endereço utilizável.
const Unknown = "unknown"

// Resolver decide de onde vem o IP do cliente.
//
// Header: header já confiável preenchido pelo proxy de borda (ex: CF-Connecting-IP).
// TrustXForwardedFor: usa o primeiro IP do X-Forwarded-For.
// Sem nenhum dos dois, usa o host do RemoteAddr.
type Resolver struct {
	Header             string
	TrustXForwardedFor bool
}

func (rv Resolver) Resolve(r *http.Request) string {
	if rv.Header != "" {
		if v := strings.TrimSpace(r.Header.Get(rv.Header)); v != "" {
			return Normalize(v)
		}
	}

	if rv.TrustXForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return Normalize(ip)
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return Normalize(host)
	}
	if r.RemoteAddr != "" {
		return Normalize(r.RemoteAddr)
	}
	return Unknown
}

// Normalize devolve a forma canônica do IP (IPv4 mapeado em IPv6 vira IPv4).
// Valores que não são IP voltam sem alteração.
func Normalize(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ip
	}
	return addr.Unmap().WithZone("").String()
}

// SubnetOf agrupa o IP em /24 (IPv4) ou /48 (IPv6).
func SubnetOf(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == Unknown {
		return Unknown
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	addr = addr.Unmap().WithZone("")

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	p, err := addr.Prefix(bits)
	if err != nil {
		return ip
	}
	return p.String()
}
