package application

import (
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"
)

// ReadLimiter decide o limiter geral de GET /{code} e GET /track/{code}.
type ReadLimiter struct {
	Buckets domain.BucketStore
	// MinRetryAfter é o piso do Retry-After (padrão 1s).
	MinRetryAfter time.Duration
	Now           func() time.Time
}

func (s ReadLimiter) Decide(key domain.Key) domain.Decision {
	if s.Buckets == nil {
		return domain.Decision{Allowed: true}
	}
	b := s.Buckets.Bucket(key)
	if b == nil {
		return domain.Decision{Allowed: true}
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	q, wait, ok := b.Take(now())
	if ok {
		return domain.Decision{Allowed: true, Quota: &q}
	}

	floor := s.MinRetryAfter
	if floor <= 0 {
		floor = time.Second
	}
	return domain.Decision{
		Allowed:    false,
		RetryAfter: max(wait, floor),
		Scope:      domain.ScopeGeneral,
		Quota:      &q,
	}
}
