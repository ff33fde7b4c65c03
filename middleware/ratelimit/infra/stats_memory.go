package infra

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"shortlink-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Summary é o bloco "rateLimit" do dashboard.
type Summary struct {
	Total         Counters            `json:"total"`
	ByRoute       map[string]Counters `json:"byRoute"`
	DeniedByScope map[string]int64    `json:"deniedByScope"`
	// TopKeys: IPs com mais negações (só com track keys ligado).
	TopKeys []KeyCounters `json:"topKeys,omitempty"`
}

type KeyCounters struct {
	Key string `json:"key"`
	Counters
}

func routeLabel(route string) string {
	if route = strings.TrimSpace(route); route == "" {
		return "other"
	}
	return route
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore conta as decisões desta instância. É o resumo do dashboard
// quando o Redis de stats está desligado.
//
// Com WithTrackKeys(true) também conta por IP, limitado a maxKeys chaves;
// passando disso a chave mais antiga (ordem de inserção) sai.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byScope map[string]int64
	byKey   map[string]Counters
	order   []string

	trackKeys bool
	maxKeys   int
	topKeys   int
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func WithMaxTrackedKeys(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

// WithTopKeys define quantos IPs aparecem no resumo.
func WithTopKeys(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.topKeys = n }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byScope: make(map[string]int64),
		byKey:   make(map[string]Counters),
		maxKeys: 10000,
		topKeys: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := routeLabel(ev.Route)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	c := s.byRoute[route]
	c.add(ev.Allowed)
	s.byRoute[route] = c

	// só negações têm escopo
	if !ev.Allowed && ev.Scope != domain.ScopeNone {
		s.byScope[string(ev.Scope)]++
	}

	if k := string(ev.Key); s.trackKeys && k != "" {
		s.recordKeyLocked(k, ev.Allowed)
	}
	return nil
}

func (s *MemoryStatsStore) recordKeyLocked(k string, allowed bool) {
	c, ok := s.byKey[k]
	if !ok {
		if len(s.order) >= s.maxKeys {
			delete(s.byKey, s.order[0])
			s.order = s.order[1:]
		}
		s.order = append(s.order, k)
	}
	c.add(allowed)
	s.byKey[k] = c
}

// Summary implementa o resumo do dashboard para esta instância.
func (s *MemoryStatsStore) Summary(context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Total:         s.total,
		ByRoute:       copyMap(s.byRoute),
		DeniedByScope: copyMap(s.byScope),
		TopKeys:       s.topKeysLocked(),
	}, nil
}

// topKeysLocked ordena por negações, depois por total; empate pela chave.
func (s *MemoryStatsStore) topKeysLocked() []KeyCounters {
	if s.topKeys <= 0 || len(s.byKey) == 0 {
		return nil
	}
	all := make([]KeyCounters, 0, len(s.byKey))
	for k, c := range s.byKey {
		all = append(all, KeyCounters{Key: k, Counters: c})
	}
	slices.SortFunc(all, func(a, b KeyCounters) int {
		if a.Denied != b.Denied {
			return cmp.Compare(b.Denied, a.Denied)
		}
		if ta, tb := a.Allowed+a.Denied, b.Allowed+b.Denied; ta != tb {
			return cmp.Compare(tb, ta)
		}
		return strings.Compare(a.Key, b.Key)
	})
	return all[:min(len(all), s.topKeys)]
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MultiStats repassa o evento para vários stores; o primeiro erro é devolvido
// depois de todos receberem o evento.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
