package ratelimit

import (
	"net/http"
	"time"

	"shortlink-gateway/middleware/clientip"
	"shortlink-gateway/middleware/ratelimit/application"
	"shortlink-gateway/middleware/ratelimit/domain"
	"shortlink-gateway/middleware/ratelimit/infra"
)

// ConcurrencyOptions limita quantas requests ficam em voo no servidor inteiro.
type ConcurrencyOptions struct {
	// Slots tem precedência sobre Max; passe o mesmo valor ao dashboard.
	Slots          domain.Slots
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Exempt deixa passar sem vaga (ex.: /health, para o health check responder
	// mesmo com o servidor saturado).
	Exempt   func(*http.Request) bool
	Stats    domain.StatsStore
	Resolver clientip.Resolver
}

// InFlightRoute é a rota gravada nas stats das recusas por falta de vaga.
const InFlightRoute = "* (in-flight)"

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Slots == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		opts.Slots = infra.NewSlots(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.InFlight{
		Slots:          opts.Slots,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Exempt != nil && opts.Exempt(r) {
				next.ServeHTTP(w, r)
				return
			}

			release, ok := svc.Acquire(r.Context())
			if !ok {
				dec := domain.Decision{Allowed: false, RetryAfter: time.Second, Scope: domain.ScopeInFlight}
				RecordStats(r.Context(), opts.Stats, domain.Key(opts.Resolver.Resolve(r)), dec, InFlightRoute)
				WriteRejection(w, opts.RejectStatus, dec.RetryAfter, "Server is busy. Please try again later.")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
