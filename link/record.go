// Package link define o registro de redirecionamento, a codificação base62 dos
// códigos e a taxonomia de erros compartilhada por resolver, creator e HTTP.
package link

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// chaves no store
const (
	URLKeyPrefix   = "url:"
	ClickKeyPrefix = "clicks:"
	CounterKey     = "global:url:id"
)

func URLKey(code string) string   { return URLKeyPrefix + code }
func ClickKey(code string) string { return ClickKeyPrefix + code }

// Record é o valor gravado em url:{code}. Os nomes curtos reduzem o payload no store.
//
// ExpiresAtMs == 0 significa que nunca expira. Enabled=false nunca é servido.
type Record struct {
	URL            string    `json:"u"`
	ExpiresAtMs    int64     `json:"t"`
	Enabled        bool      `json:"e"`
	Protected      bool      `json:"p"`
	RedirectStatus int       `json:"r"`
	CreatedAt      time.Time `json:"ca"`
}

func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAtMs != 0 && now.UnixMilli() > r.ExpiresAtMs
}

// ExpiresAt devolve nil quando o link não expira.
func (r Record) ExpiresAt() *time.Time {
	if r.ExpiresAtMs == 0 {
		return nil
	}
	t := time.UnixMilli(r.ExpiresAtMs).UTC()
	return &t
}

func (r Record) Marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Unmarshal aceita o JSON compacto e também o formato antigo
// ("https://..." para 301 ou "302|https://..." para 302).
func Unmarshal(raw string) (Record, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Record{}, fmt.Errorf("empty record")
	}

	if raw[0] != '{' {
		rec := Record{URL: raw, Enabled: true, RedirectStatus: 301}
		if rest, ok := strings.CutPrefix(raw, "302|"); ok {
			rec.URL = rest
			rec.RedirectStatus = 302
		}
		return rec, nil
	}

	// e ausente conta como habilitado
	rec := Record{Enabled: true}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if !ValidRedirectStatus(rec.RedirectStatus) {
		rec.RedirectStatus = DefaultRedirectStatus
	}
	return rec, nil
}

const DefaultRedirectStatus = 308

func ValidRedirectStatus(s int) bool {
	return s == 301 || s == 302 || s == 308
}

// CacheControl: 301/308 podem ser cacheados; 302 não, para não perder cliques.
func CacheControl(status int) string {
	if status == 302 {
		return "no-store"
	}
	return "public, max-age=3600"
}
