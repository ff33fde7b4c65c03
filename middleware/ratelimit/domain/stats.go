package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão de admissão: criação de link, leitura ou vaga em voo.
//
// Route é o padrão do mux ("GET /{code}"), nunca o path cru, para que cada
// short code não vire uma série nova.
type StatsEvent struct {
	Key     Key
	Allowed bool
	Scope   Scope
	Route   string
	At      time.Time
}

// StatsStore recebe as decisões. Erros são logados pelo chamador e nunca
// mudam a resposta.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
