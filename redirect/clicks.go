package redirect

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"shortlink-gateway/link"
	"shortlink-gateway/store"
)

// ClickRecorder incrementa clicks:{code} fora do caminho da resposta.
//
// Entrega best-effort: com a fila cheia o clique é descartado, e cada incremento
// tem uma nova tentativa. Cliques na fila quando o processo morre sem Close se perdem.
type ClickRecorder struct {
	store   store.Store
	queue   chan string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewClickRecorder(st store.Store, workers, queueSize int) *ClickRecorder {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 4096
	}
	c := &ClickRecorder{
		store:   st,
		queue:   make(chan string, queueSize),
		timeout: 2 * time.Second,
	}
	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c
}

// Dispatch enfileira sem bloquear. Devolve false quando descartou.
func (c *ClickRecorder) Dispatch(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.queue <- code:
		return true
	default:
		log.Debug().Str("code", code).Msg("click queue full, dropping")
		return false
	}
}

func (c *ClickRecorder) worker() {
	defer c.wg.Done()
	for code := range c.queue {
		c.incr(code)
	}
}

func (c *ClickRecorder) incr(code string) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		_, err = c.store.Incr(ctx, link.ClickKey(code))
		cancel()
		if err == nil {
			return
		}
	}
	log.Warn().Err(err).Str("code", code).Msg("click increment lost")
}

// Close para de aceitar cliques e espera a fila esvaziar.
func (c *ClickRecorder) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	c.wg.Wait()
}
