package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Memory implementa Store num mapa protegido por mutex.
// Usado nos testes e com STORE_BACKEND=memory; não persiste nada.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time

	// Fail, quando não-nil, é devolvido por todas as operações (simula queda).
	Fail error
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

type MemoryOption func(*Memory)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{entries: make(map[string]memEntry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lookup assume m.mu travado.
func (m *Memory) lookup(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return "", m.Fail
	}
	e, ok := m.lookup(key)
	if !ok {
		return "", ErrNil
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, opts SetOptions) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	if _, exists := m.lookup(key); exists && opts.NX {
		return false, nil
	}
	e := memEntry{value: value}
	if opts.TTL > 0 {
		e.expiresAt = m.now().Add(opts.TTL)
	}
	m.entries[key] = e
	return true, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	_, ok := m.lookup(key)
	return ok, nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	return m.incrLocked(key)
}

func (m *Memory) incrLocked(key string) (int64, error) {
	e, _ := m.lookup(key)
	var n int64
	if e.value != "" {
		v, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("memory incr %s: value is not an integer", key)
		}
		n = v
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.entries[key] = e
	return n, nil
}

func (m *Memory) Pipeline(_ context.Context, ops ...Op) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}

	out := make([]Result, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpGet:
			if e, ok := m.lookup(op.Key); ok {
				out[i] = Result{Value: e.value, Found: true}
			}
		case OpExists:
			if _, ok := m.lookup(op.Key); ok {
				out[i] = Result{Int: 1, Found: true}
			}
		case OpIncr:
			n, err := m.incrLocked(op.Key)
			if err != nil {
				return nil, err
			}
			out[i] = Result{Int: n, Found: true}
		default:
			return nil, fmt.Errorf("memory pipeline: unknown op %d", op.Kind)
		}
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Fail
}

func (m *Memory) Close() error { return nil }

// SetFail liga/desliga a simulação de indisponibilidade.
func (m *Memory) SetFail(err error) {
	m.mu.Lock()
	m.Fail = err
	m.mu.Unlock()
}
