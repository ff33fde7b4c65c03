package infra

import "time"

// DoneContext aceita context.Context sem puxar o pacote context para os stores.
type DoneContext interface {
	Done() <-chan struct{}
}

// startTicker roda fn a cada every até ctx encerrar. every <= 0 desliga.
func startTicker(ctx DoneContext, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn()
			}
		}
	}()
}
