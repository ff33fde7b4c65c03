package timewindow

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

// Keyed é um mapa chave -> *Log particionado em shards.
//
// O lock do shard só protege o mapa; cada Log tem o próprio lock, então chaves
// diferentes não disputam entre si. Com maxKeys > 0, ao inserir além da capacidade
// a chave mais antiga (ordem de inserção) do shard é despejada.
type Keyed struct {
	shards      []*shard
	maxPerShard int
}

type shard struct {
	mu    sync.Mutex
	logs  map[string]*entry
	order *list.List
}

type entry struct {
	log  *Log
	elem *list.Element
}

type Option func(*options)

type options struct {
	shards int
}

// WithShards define o número de shards (útil em testes de despejo).
func WithShards(n int) Option {
	return func(o *options) { o.shards = n }
}

func NewKeyed(maxKeys int, opts ...Option) *Keyed {
	o := options{shards: defaultShards}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shards <= 0 {
		o.shards = 1
	}

	k := &Keyed{shards: make([]*shard, o.shards)}
	if maxKeys > 0 {
		k.maxPerShard = (maxKeys + o.shards - 1) / o.shards
	}
	for i := range k.shards {
		k.shards[i] = &shard{logs: make(map[string]*entry), order: list.New()}
	}
	return k
}

func (k *Keyed) shardFor(key string) *shard {
	return k.shards[xxhash.Sum64String(key)%uint64(len(k.shards))]
}

func (k *Keyed) getOrCreate(key string) *Log {
	s := k.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.logs[key]; ok {
		return e.log
	}

	if k.maxPerShard > 0 && len(s.logs) >= k.maxPerShard {
		if front := s.order.Front(); front != nil {
			old := front.Value.(string)
			if e, ok := s.logs[old]; ok {
				e.log.dead.Store(true)
				delete(s.logs, old)
			}
			s.order.Remove(front)
		}
	}

	l := &Log{}
	s.logs[key] = &entry{log: l, elem: s.order.PushBack(key)}
	return l
}

// With executa fn com o Log da chave travado, criando-o se preciso.
// Se o Log foi despejado/varrido entre a busca e o lock, busca de novo.
func (k *Keyed) With(key string, fn func(l *Log)) {
	for {
		l := k.getOrCreate(key)
		l.mu.Lock()
		if l.dead.Load() {
			l.mu.Unlock()
			continue
		}
		fn(l)
		l.mu.Unlock()
		return
	}
}

// View executa fn somente se a chave existir. Não cria entradas.
func (k *Keyed) View(key string, fn func(l *Log)) bool {
	s := k.shardFor(key)
	s.mu.Lock()
	e, ok := s.logs[key]
	s.mu.Unlock()
	if !ok {
		return false
	}

	e.log.mu.Lock()
	defer e.log.mu.Unlock()
	if e.log.dead.Load() {
		return false
	}
	fn(e.log)
	return true
}

// Each percorre todas as chaves, um shard por vez.
func (k *Keyed) Each(fn func(key string, l *Log)) {
	for _, s := range k.shards {
		s.mu.Lock()
		for key, e := range s.logs {
			e.log.mu.Lock()
			fn(key, e.log)
			e.log.mu.Unlock()
		}
		s.mu.Unlock()
	}
}

// Sweep remove as chaves para as quais remove devolve true.
// Trava um shard por vez; nunca a tabela inteira.
func (k *Keyed) Sweep(remove func(l *Log) bool) int {
	removed := 0
	for _, s := range k.shards {
		s.mu.Lock()
		for key, e := range s.logs {
			e.log.mu.Lock()
			if remove(e.log) {
				e.log.dead.Store(true)
				delete(s.logs, key)
				s.order.Remove(e.elem)
				removed++
			}
			e.log.mu.Unlock()
		}
		s.mu.Unlock()
	}
	return removed
}

func (k *Keyed) Len() int {
	n := 0
	for _, s := range k.shards {
		s.mu.Lock()
		n += len(s.logs)
		s.mu.Unlock()
	}
	return n
}
