package application

import (
	"context"
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"
)

// InFlight reserva uma vaga do teto de requests simultâneas.
//
// Com AcquireTimeout <= 0 não há fila: sem vaga livre a request é recusada
// na hora. Com timeout, espera no máximo esse tempo (ou até ctx encerrar).
type InFlight struct {
	Slots          domain.Slots
	AcquireTimeout time.Duration
}

func (s InFlight) Acquire(ctx context.Context) (func(), bool) {
	if s.Slots == nil {
		return func() {}, true
	}
	if s.AcquireTimeout <= 0 {
		return s.Slots.TryAcquire()
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Slots.Acquire(acqCtx)
}
