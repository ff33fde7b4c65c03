package domain

// Contratos do limiter geral das leituras e da decisão comum a todos os limiters.

import (
	"context"
	"time"
)

type Key string

// Quota é o estado do bucket logo após uma tentativa.
type Quota struct {
	Limit     int
	Remaining int
	// Reset é quanto falta para o bucket encher de novo.
	Reset time.Duration
}

// Bucket consome uma ficha em now. Com ok=false, wait estima quando a
// próxima ficha chega (0 se nunca chega).
type Bucket interface {
	Take(now time.Time) (q Quota, wait time.Duration, ok bool)
}

// BucketStore devolve o bucket de uma chave (IP), criando se preciso.
type BucketStore interface {
	Bucket(Key) Bucket
}

// Slots é a capacidade de requests em voo no servidor inteiro.
// O release devolvido por Acquire/TryAcquire é idempotente.
type Slots interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	TryAcquire() (release func(), ok bool)
	InUse() int
	Capacity() int
}

// Scope identifica qual regra bloqueou.
type Scope string

const (
	ScopeNone     Scope = ""
	ScopeIP       Scope = "ip"
	ScopeSubnet   Scope = "subnet"
	ScopeBackoff  Scope = "backoff"
	ScopeGeneral  Scope = "general"
	ScopeInFlight Scope = "inflight"
)

type Decision struct {
	Allowed bool
	// RetryAfter vai no header Retry-After quando bloquear; 0 omite.
	RetryAfter time.Duration
	Scope      Scope
	// Quota só é preenchida pelo limiter geral.
	Quota *Quota
}
