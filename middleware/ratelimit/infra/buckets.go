package infra

import (
	"container/list"
	"math"
	"sync"
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// BucketStore guarda um token bucket (x/time/rate) por IP para o limiter das
// leituras. A varredura só remove buckets que já encheram de novo, então
// esquecer uma chave nunca devolve fichas a quem ainda estava limitado.
// Com maxKeys > 0, inserir além da capacidade descarta o bucket mais antigo.
type BucketStore struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	order   *list.List
	maxKeys int

	rps        rate.Limit
	burst      int
	sweepEvery time.Duration
	now        func() time.Time
}

type BucketOption func(*BucketStore)

func WithBucketSweepEvery(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.sweepEvery = d }
}

func WithBucketClock(now func() time.Time) BucketOption {
	return func(s *BucketStore) { s.now = now }
}

// WithMaxBuckets limita quantos IPs ficam em memória. 0 não limita.
func WithMaxBuckets(n int) BucketOption {
	return func(s *BucketStore) { s.maxKeys = n }
}

// NewBucketStore: rps fichas por segundo, até burst acumuladas.
// 100 leituras a cada 15 min é rps=100/900, burst=100.
func NewBucketStore(rps float64, burst int, opts ...BucketOption) *BucketStore {
	s := &BucketStore{
		buckets:    make(map[string]*tokenBucket),
		order:      list.New(),
		rps:        rate.Limit(rps),
		burst:      burst,
		sweepEvery: 2 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bucket implementa domain.BucketStore.
func (s *BucketStore) Bucket(key domain.Key) domain.Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[string(key)]; ok {
		return b
	}
	if s.maxKeys > 0 && len(s.buckets) >= s.maxKeys {
		if front := s.order.Front(); front != nil {
			delete(s.buckets, front.Value.(string))
			s.order.Remove(front)
		}
	}
	b := &tokenBucket{lim: rate.NewLimiter(s.rps, s.burst), rps: float64(s.rps), burst: s.burst}
	b.elem = s.order.PushBack(string(key))
	s.buckets[string(key)] = b
	return b
}

// Sweep remove os buckets cheios e devolve quantos saíram.
func (s *BucketStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, b := range s.buckets {
		if b.full(now) {
			s.order.Remove(b.elem)
			delete(s.buckets, k)
			n++
		}
	}
	return n
}

// StartJanitor varre periodicamente até ctx encerrar.
func (s *BucketStore) StartJanitor(ctx DoneContext) {
	startTicker(ctx, s.sweepEvery, func() { s.Sweep() })
}

func (s *BucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

type tokenBucket struct {
	lim   *rate.Limiter
	rps   float64
	burst int
	elem  *list.Element
}

func (b *tokenBucket) Take(now time.Time) (domain.Quota, time.Duration, bool) {
	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return b.quota(now), 0, false
	}
	if wait := res.DelayFrom(now); wait > 0 {
		// devolve a ficha: quem foi negado não entra na fila
		res.CancelAt(now)
		return b.quota(now), wait, false
	}
	return b.quota(now), 0, true
}

func (b *tokenBucket) quota(now time.Time) domain.Quota {
	tokens := math.Max(b.lim.TokensAt(now), 0)
	q := domain.Quota{Limit: b.burst, Remaining: int(math.Floor(tokens))}
	if b.rps > 0 {
		missing := float64(b.burst) - tokens
		q.Reset = time.Duration(missing / b.rps * float64(time.Second))
	}
	return q
}

func (b *tokenBucket) full(now time.Time) bool {
	return b.lim.TokensAt(now) >= float64(b.burst)
}
