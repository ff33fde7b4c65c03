package monitor

import (
	"sync"
	"time"
)

type FlaggedLink struct {
	URL       string    `json:"url"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// flaggedRing guarda os últimos N links rejeitados; o mais antigo sai primeiro.
type flaggedRing struct {
	mu   sync.Mutex
	buf  []FlaggedLink
	head int // próxima posição de escrita
	size int
}

func newFlaggedRing(capacity int) *flaggedRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &flaggedRing{buf: make([]FlaggedLink, capacity)}
}

func (r *flaggedRing) push(f FlaggedLink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = f
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// recent devolve até n itens, do mais novo para o mais antigo.
func (r *flaggedRing) recent(n int) []FlaggedLink {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	out := make([]FlaggedLink, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.head - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

func (r *flaggedRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
