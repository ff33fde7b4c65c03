package ratelimit

import (
	"context"
	"net/http"
	"time"

	"shortlink-gateway/middleware/clientip"
	"shortlink-gateway/middleware/ratelimit/application"
	"shortlink-gateway/middleware/ratelimit/domain"
	"shortlink-gateway/middleware/secmeta"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

type KeyFunc func(r *http.Request) string

// Options do limiter geral das leituras.
type Options struct {
	Store         domain.BucketStore
	Stats         domain.StatsStore
	KeyFn         KeyFunc
	Resolver      clientip.Resolver
	RejectStatus  int
	MinRetryAfter time.Duration
	// StandardHeaders envia RateLimit-Limit, RateLimit-Remaining e RateLimit-Reset.
	StandardHeaders bool
	Now             func() time.Time
}

// DefaultKeyFunc usa o IP já anotado em secmeta (quando o ProxyDetector rodou antes)
// ou resolve o IP pela request.
func DefaultKeyFunc(rv clientip.Resolver) KeyFunc {
	return func(r *http.Request) string {
		if m, ok := secmeta.FromContext(r.Context()); ok && m.ClientIP != "" {
			return m.ClientIP
		}
		return rv.Resolve(r)
	}
}

// Middleware é o limiter geral (token bucket por IP) de redirect e track.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.Resolver)
	}

	svc := application.ReadLimiter{
		Buckets:       opts.Store,
		MinRetryAfter: opts.MinRetryAfter,
		Now:           opts.Now,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))

			dec := svc.Decide(key)
			if opts.StandardHeaders && dec.Quota != nil {
				setQuotaHeaders(w.Header(), *dec.Quota)
			}
			RecordStats(r.Context(), opts.Stats, key, dec, routeOf(r))
			if !dec.Allowed {
				WriteRejection(w, opts.RejectStatus, dec.RetryAfter, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setQuotaHeaders(h http.Header, q domain.Quota) {
	h.Set("RateLimit-Limit", formatInt(q.Limit))
	h.Set("RateLimit-Remaining", formatInt(q.Remaining))
	h.Set("RateLimit-Reset", formatInt(ceilSeconds(q.Reset)))
}

// RecordStats grava a decisão no StatsStore sem derrubar a request se falhar.
func RecordStats(ctx context.Context, stats domain.StatsStore, key domain.Key, dec domain.Decision, route string) {
	if stats == nil {
		return
	}
	err := stats.Record(ctx, domain.StatsEvent{
		Key:     key,
		Allowed: dec.Allowed,
		Scope:   dec.Scope,
		Route:   route,
		At:      time.Now(),
	})
	if err != nil {
		log.Debug().Err(err).Str("route", route).Msg("rate limit stats record failed")
	}
}

// routeOf usa o padrão do ServeMux; sem ele (middleware fora do mux) a rota
// fica vazia para não abrir uma série por short code.
func routeOf(r *http.Request) string {
	return r.Pattern
}

// WriteRejection responde {error} em JSON com Retry-After em segundos.
func WriteRejection(w http.ResponseWriter, status int, retryAfter time.Duration, msg string) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", RetryAfterSeconds(retryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
