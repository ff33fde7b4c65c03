package infra

import (
	"container/list"
	"sync"
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

const violationShards = 32

// ViolationStore implementa domain.ViolationBook em memória, particionado por hash do IP.
type ViolationStore struct {
	shards [violationShards]violationShard

	staleAfter  time.Duration
	sweepEvery  time.Duration
	now         func() time.Time
	maxPerShard int
}

type violationShard struct {
	mu    sync.Mutex
	recs  map[string]*violationRec
	order *list.List
}

type violationRec struct {
	domain.Violation
	lastAt time.Time
	elem   *list.Element
}

type ViolationOption func(*ViolationStore)

// WithStaleAfter define após quanto tempo sem violações (e sem bloqueio) o registro some.
func WithStaleAfter(d time.Duration) ViolationOption {
	return func(s *ViolationStore) { s.staleAfter = d }
}

func WithViolationSweepEvery(d time.Duration) ViolationOption {
	return func(s *ViolationStore) { s.sweepEvery = d }
}

func WithViolationClock(now func() time.Time) ViolationOption {
	return func(s *ViolationStore) { s.now = now }
}

// WithMaxViolations limita os IPs registrados; a cota é dividida entre os
// shards e cada um descarta o registro mais antigo ao encher. 0 não limita.
func WithMaxViolations(n int) ViolationOption {
	return func(s *ViolationStore) {
		s.maxPerShard = 0
		if n > 0 {
			s.maxPerShard = (n + violationShards - 1) / violationShards
		}
	}
}

func NewViolationStore(opts ...ViolationOption) *ViolationStore {
	s := &ViolationStore{
		staleAfter: time.Hour,
		sweepEvery: 5 * time.Minute,
		now:        time.Now,
	}
	for i := range s.shards {
		s.shards[i].recs = make(map[string]*violationRec)
		s.shards[i].order = list.New()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ViolationStore) shard(ip domain.Key) *violationShard {
	return &s.shards[xxhash.Sum64String(string(ip))%violationShards]
}

func (s *ViolationStore) BlockedFor(ip domain.Key, now time.Time) time.Duration {
	sh := s.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.recs[string(ip)]
	if !ok || !rec.BlockedUntil.After(now) {
		return 0
	}
	return rec.BlockedUntil.Sub(now)
}

// Record soma uma violação e, se algum degrau foi atingido, estende o bloqueio.
// O bloqueio nunca recua.
func (s *ViolationStore) Record(ip domain.Key, now time.Time, tiers []domain.BackoffTier) domain.Violation {
	sh := s.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.recs[string(ip)]
	if !ok {
		if s.maxPerShard > 0 && len(sh.recs) >= s.maxPerShard {
			if front := sh.order.Front(); front != nil {
				delete(sh.recs, front.Value.(string))
				sh.order.Remove(front)
			}
		}
		rec = &violationRec{elem: sh.order.PushBack(string(ip))}
		sh.recs[string(ip)] = rec
	}
	rec.Count++
	rec.lastAt = now

	if block := domain.BlockFor(tiers, rec.Count); block > 0 {
		if until := now.Add(block); until.After(rec.BlockedUntil) {
			rec.BlockedUntil = until
		}
	}
	return rec.Violation
}

// Sweep descarta registros sem bloqueio ativo e sem violação recente.
func (s *ViolationStore) Sweep() int {
	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for ip, rec := range sh.recs {
			if !rec.BlockedUntil.After(now) && now.Sub(rec.lastAt) > s.staleAfter {
				sh.order.Remove(rec.elem)
				delete(sh.recs, ip)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *ViolationStore) StartJanitor(ctx DoneContext) {
	startTicker(ctx, s.sweepEvery, func() { s.Sweep() })
}
